// internal/dex/raydium/quote.go
package raydium

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rovshanmuradov/raydium-watcher/internal/blockchain"
	"github.com/rovshanmuradov/raydium-watcher/internal/storage"
	"github.com/rovshanmuradov/raydium-watcher/internal/utils/logger"
	"github.com/rovshanmuradov/raydium-watcher/internal/utils/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// QuoteSide - направление сделки относительно токена (не опорного актива).
type QuoteSide string

const (
	// SideBuy - покупка токена за опорный актив.
	SideBuy QuoteSide = "buy"
	// SideSell - продажа токена за опорный актив.
	SideSell QuoteSide = "sell"
)

// ParseQuoteSide разбирает "buy"/"sell", пустая строка означает покупку.
func ParseQuoteSide(s string) (QuoteSide, error) {
	switch QuoteSide(strings.ToLower(strings.TrimSpace(s))) {
	case "", SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	default:
		return "", fmt.Errorf("unknown side %q", s)
	}
}

// QuoteRequest - запрос котировки. Один из токенов пары обязан быть опорным активом.
type QuoteRequest struct {
	TokenA solana.PublicKey
	TokenB solana.PublicKey
	Side   QuoteSide
	// Amount - заданная сторона сделки, по умолчанию 1.
	Amount decimal.Decimal
	// IsTokenBAmount - Amount относится к TokenB.
	IsTokenBAmount bool
	// Price - необязательная цена "B за A".
	Price decimal.Decimal
	// Slippage - доля, например 0.01.
	Slippage decimal.Decimal
}

// Quote - результат котировки.
type Quote struct {
	PoolAddress PoolAddress
	PoolKey     *PoolKey
	*SwapQuoteResult
	// MinAmountOut задаётся для exact-in при ненулевом проскальзывании.
	MinAmountOut decimal.Decimal
	// MaxAmountIn задаётся для exact-out при ненулевом проскальзывании.
	MaxAmountIn decimal.Decimal
}

// QuoteServiceConfig - параметры QuoteService.
type QuoteServiceConfig struct {
	ReferenceMint solana.PublicKey
	DefaultFeeBps uint16
	// ReservesTTL - срок свежести снимка резервов.
	ReservesTTL time.Duration
	PoolKeyTTL  time.Duration
	LRUSize     int
}

// QuoteService разрешает пару в пул, читает резервы и считает котировку по кривой.
type QuoteService struct {
	cfg     QuoteServiceConfig
	store   storage.Store
	api     PoolInfoFetcher
	sources []PoolKeySource
	reader  blockchain.AccountReader
	keys    *lru.Cache[solana.PublicKey, *PoolKey]
	logger  *zap.Logger
	metrics *metrics.Collector
	now     func() time.Time

	// fees - первый источник из sources, умеющий читать комиссию
	fees     PoolFeeSource
	feeCache *lru.Cache[solana.PublicKey, uint16]
}

// NewQuoteService создает сервис котировок.
//
// sources опрашиваются по порядку при промахе кэша PoolKey (обычно API, затем чтение с чейна).
// api и reader могут быть nil, тогда соответствующий шаг разрешения пропускается.
func NewQuoteService(
	cfg QuoteServiceConfig,
	store storage.Store,
	api PoolInfoFetcher,
	sources []PoolKeySource,
	reader blockchain.AccountReader,
	logger *zap.Logger,
) (*QuoteService, error) {
	if cfg.ReferenceMint.IsZero() {
		cfg.ReferenceMint = WrappedSolMint
	}
	if cfg.DefaultFeeBps == 0 {
		cfg.DefaultFeeBps = DefaultFeeBps
	}
	if cfg.DefaultFeeBps > FeeDenominator {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFee, cfg.DefaultFeeBps)
	}
	if cfg.ReservesTTL <= 0 {
		cfg.ReservesTTL = 5 * time.Second
	}
	if cfg.LRUSize <= 0 {
		cfg.LRUSize = 1024
	}

	keys, err := lru.New[solana.PublicKey, *PoolKey](cfg.LRUSize)
	if err != nil {
		return nil, fmt.Errorf("create pool key cache: %w", err)
	}

	feeCache, err := lru.New[solana.PublicKey, uint16](cfg.LRUSize)
	if err != nil {
		return nil, fmt.Errorf("create pool fee cache: %w", err)
	}

	svc := &QuoteService{
		cfg:      cfg,
		store:    store,
		api:      api,
		sources:  sources,
		reader:   reader,
		keys:     keys,
		feeCache: feeCache,
		logger:   logger.Named("quote"),
		now:      time.Now,
	}
	for _, src := range sources {
		if fs, ok := src.(PoolFeeSource); ok {
			svc.fees = fs
			break
		}
	}
	return svc, nil
}

// SetMetrics подключает коллектор метрик.
func (s *QuoteService) SetMetrics(m *metrics.Collector) {
	s.metrics = m
}

// ReferenceMint возвращает опорный актив.
func (s *QuoteService) ReferenceMint() solana.PublicKey {
	return s.cfg.ReferenceMint
}

// normalizeRequest приводит запрос к виду, где TokenB - опорный актив.
// Пара без опорного актива отклоняется до любого ввода-вывода.
func (s *QuoteService) normalizeRequest(req QuoteRequest) (QuoteRequest, error) {
	if req.TokenA.IsZero() || req.TokenB.IsZero() {
		return req, &ValidationError{Field: "token", Message: "both tokens are required"}
	}
	if req.TokenA.Equals(req.TokenB) {
		return req, &ValidationError{Field: "tokenB", Message: "same token on both sides"}
	}
	if req.Side == "" {
		req.Side = SideBuy
	}
	if req.Side != SideBuy && req.Side != SideSell {
		return req, &ValidationError{Field: "side", Message: fmt.Sprintf("unknown side %q", req.Side)}
	}
	if req.Amount.IsZero() {
		req.Amount = decimal.NewFromInt(1)
	}
	if req.Amount.IsNegative() {
		return req, fmt.Errorf("%w: %s", ErrInvalidAmount, req.Amount)
	}
	if req.Slippage.IsNegative() || req.Slippage.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return req, &ValidationError{Field: "slippage", Message: "must be within [0, 1)"}
	}

	switch {
	case req.TokenB.Equals(s.cfg.ReferenceMint):
		return req, nil
	case req.TokenA.Equals(s.cfg.ReferenceMint):
		// Опорный актив назван первым: меняем пару местами.
		// Side задан относительно токена и не меняется.
		req.TokenA, req.TokenB = req.TokenB, req.TokenA
		req.IsTokenBAmount = !req.IsTokenBAmount
		if !req.Price.IsZero() {
			req.Price = decimal.NewFromInt(1).Div(req.Price)
		}
		return req, nil
	default:
		return req, fmt.Errorf("%w: %s/%s (reference %s)", ErrNotReferencePair, req.TokenA, req.TokenB, s.cfg.ReferenceMint)
	}
}

// Quote считает котировку для пары с опорным активом.
func (s *QuoteService) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	defer logger.TrackPerformance(s.logger, "quote")()
	start := time.Now()
	q, err := s.quote(ctx, req)
	s.metrics.RecordQuote(time.Since(start), err == nil)
	return q, err
}

func (s *QuoteService) quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	req, err := s.normalizeRequest(req)
	if err != nil {
		return nil, &QuoteError{Stage: "validate", Err: err}
	}

	addr, err := s.GetPoolAddress(ctx, req.TokenA, req.TokenB)
	if err != nil {
		return nil, &QuoteError{Stage: "pool address", Err: err}
	}
	key, err := s.GetPoolKey(ctx, addr.ID)
	if err != nil {
		return nil, &QuoteError{Stage: "pool key", Err: err}
	}
	if !key.Contains(req.TokenA) || !key.Contains(req.TokenB) {
		return nil, &QuoteError{Stage: "pool key", Err: &ValidationError{
			Field:   "pool",
			Message: fmt.Sprintf("pool %s does not hold %s/%s", key.ID, req.TokenA, req.TokenB),
		}}
	}
	reserves, err := s.GetReserves(ctx, key)
	if err != nil {
		return nil, &QuoteError{Stage: "reserves", Err: err}
	}

	decA, decB := key.MintA.Decimals, key.MintB.Decimals
	if !key.MintA.Address.Equals(req.TokenA) {
		decA, decB = decB, decA
	}

	swap := SwapQuoteRequest{
		// Продажа токена - это A -> B
		AToB:      req.Side == SideSell,
		TokenA:    req.TokenA,
		TokenB:    req.TokenB,
		DecimalsA: decA,
		DecimalsB: decB,
		FeeBps:    addr.FeeBps,
		ReservesA: ToBaseUnitsCeil(reserves[req.TokenA], decA),
		ReservesB: ToBaseUnitsCeil(reserves[req.TokenB], decB),
		Price:     req.Price,
	}
	if req.IsTokenBAmount {
		swap.AmountB = req.Amount
	} else {
		swap.AmountA = req.Amount
	}

	result, err := CalcAMMAmount(swap)
	if err != nil {
		return nil, &QuoteError{Stage: "calculate", Err: err}
	}

	q := &Quote{PoolAddress: addr, PoolKey: key, SwapQuoteResult: result}
	if !req.Slippage.IsZero() {
		one := decimal.NewFromInt(1)
		outDecimals, inDecimals := decB, decA
		if !result.AToB {
			outDecimals, inDecimals = decA, decB
		}
		if result.ExactIn {
			q.MinAmountOut = result.OutAmount.Mul(one.Sub(req.Slippage)).RoundFloor(int32(outDecimals))
		} else {
			q.MaxAmountIn = result.InAmount.Mul(one.Add(req.Slippage)).RoundCeil(int32(inDecimals))
		}
	}

	s.logger.Debug("Quote computed",
		zap.String("pool", key.ID.String()),
		zap.String("source", addr.Source),
		zap.Bool("a_to_b", result.AToB),
		zap.Bool("exact_in", result.ExactIn),
		zap.String("in", result.InAmount.String()),
		zap.String("out", result.OutAmount.String()),
		zap.String("price", result.Price.String()))
	return q, nil
}

// GetPrice возвращает только цену котировки.
func (s *QuoteService) GetPrice(ctx context.Context, req QuoteRequest) (decimal.Decimal, error) {
	q, err := s.Quote(ctx, req)
	if err != nil {
		return decimal.Zero, err
	}
	return q.Price, nil
}
