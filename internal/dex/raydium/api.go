// internal/dex/raydium/api.go
package raydium

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultRequestTimeout = 5 * time.Second
	defaultAPIRetries     = 3
)

// APIPoolInfo - метаданные пула из /pools/info/mint.
type APIPoolInfo struct {
	Type        string          `json:"type"`
	ProgramID   string          `json:"programId"`
	ID          string          `json:"id"`
	MintA       Mint            `json:"mintA"`
	MintB       Mint            `json:"mintB"`
	Price       decimal.Decimal `json:"price"`
	MintAmountA decimal.Decimal `json:"mintAmountA"`
	MintAmountB decimal.Decimal `json:"mintAmountB"`
	// FeeRate - доля, например 0.0025.
	FeeRate decimal.Decimal `json:"feeRate"`
	TVL     decimal.Decimal `json:"tvl"`
}

// PoolID разбирает адрес пула.
func (p *APIPoolInfo) PoolID() (solana.PublicKey, error) {
	return solana.PublicKeyFromBase58(p.ID)
}

// FeeBps переводит feeRate в базисные пункты; ok == false, если ставка не задана.
func (p *APIPoolInfo) FeeBps() (uint16, bool) {
	if p.FeeRate.IsZero() || p.FeeRate.IsNegative() {
		return 0, false
	}
	bps := p.FeeRate.Mul(decimal.NewFromInt(FeeDenominator)).Round(0)
	if bps.GreaterThan(decimal.NewFromInt(FeeDenominator)) {
		return 0, false
	}
	return uint16(bps.IntPart()), true
}

type apiEnvelope[T any] struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Msg     string `json:"msg,omitempty"`
	Data    T      `json:"data"`
}

type apiPage[T any] struct {
	Count       int  `json:"count"`
	Data        []T  `json:"data"`
	HasNextPage bool `json:"hasNextPage"`
}

// APIClient - клиент Raydium API v3.
type APIClient struct {
	client  *http.Client
	logger  *zap.Logger
	baseURL string
	retries uint
	limiter *rate.Limiter
}

// APIOption настраивает APIClient.
type APIOption func(*APIClient)

// WithHTTPClient подменяет HTTP клиент.
func WithHTTPClient(c *http.Client) APIOption {
	return func(a *APIClient) { a.client = c }
}

// WithRateLimit ограничивает частоту запросов к API.
func WithRateLimit(rps float64, burst int) APIOption {
	return func(a *APIClient) {
		if rps > 0 {
			a.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithAPIRetries задаёт число попыток на запрос.
func WithAPIRetries(n uint) APIOption {
	return func(a *APIClient) {
		if n > 0 {
			a.retries = n
		}
	}
}

// NewAPIClient создает клиент для baseURL (по умолчанию DefaultRaydiumAPIURL).
func NewAPIClient(baseURL string, logger *zap.Logger, opts ...APIOption) *APIClient {
	if baseURL == "" {
		baseURL = DefaultRaydiumAPIURL
	}
	a := &APIClient{
		client: &http.Client{
			Timeout: defaultRequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger:  logger.Named("raydium-api"),
		baseURL: strings.TrimRight(baseURL, "/"),
		retries: defaultAPIRetries,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FetchPoolByMints возвращает самый ликвидный стандартный пул пары.
// Порядок минтов не важен. ErrPoolNotFound, если API не знает пары.
func (a *APIClient) FetchPoolByMints(ctx context.Context, mint1, mint2 solana.PublicKey) (*APIPoolInfo, error) {
	q := url.Values{}
	q.Set("mint1", mint1.String())
	q.Set("mint2", mint2.String())
	q.Set("poolType", "standard")
	q.Set("poolSortField", "liquidity")
	q.Set("sortType", "desc")
	q.Set("pageSize", "100")
	q.Set("page", "1")

	var resp apiEnvelope[apiPage[APIPoolInfo]]
	if err := a.get(ctx, "/pools/info/mint", q, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data.Data) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrPoolNotFound, mint1, mint2)
	}

	info := resp.Data.Data[0]
	if _, err := info.PoolID(); err != nil {
		return nil, fmt.Errorf("invalid pool id %q: %w", info.ID, err)
	}

	a.logger.Debug("Pool found by mints",
		zap.String("pool_id", info.ID),
		zap.String("tvl", info.TVL.String()),
		zap.String("fee_rate", info.FeeRate.String()))
	return &info, nil
}

// FetchPoolKeysByID возвращает PoolKey по адресу пула.
func (a *APIClient) FetchPoolKeysByID(ctx context.Context, id solana.PublicKey) (*PoolKey, error) {
	q := url.Values{}
	q.Set("ids", id.String())

	var resp apiEnvelope[[]*PoolKey]
	if err := a.get(ctx, "/pools/key/ids", q, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || resp.Data[0] == nil {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, id)
	}

	key := resp.Data[0]
	if !key.ID.Equals(id) {
		return nil, fmt.Errorf("%w: api returned %s for %s", ErrPoolNotFound, key.ID, id)
	}
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("pool keys %s: %w", id, err)
	}
	return key, nil
}

// get выполняет GET с повторами; 4xx кроме 429 не повторяется.
func (a *APIClient) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	endpoint := a.baseURL + path + "?" + q.Encode()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 2 * time.Second

	notify := func(err error, d time.Duration) {
		a.logger.Warn("Retrying Raydium API request",
			zap.String("path", path), zap.Error(err), zap.Duration("backoff", d))
	}

	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		return a.do(ctx, endpoint)
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(a.retries), backoff.WithNotify(notify))
	if err != nil {
		return fmt.Errorf("raydium api %s: %w", path, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	if env, ok := out.(interface{ ok() (bool, string) }); ok {
		if success, msg := env.ok(); !success {
			return fmt.Errorf("raydium api %s: unsuccessful response: %s", path, msg)
		}
	}
	return nil
}

func (e *apiEnvelope[T]) ok() (bool, string) {
	return e.Success, e.Msg
}

func (a *APIClient) do(ctx context.Context, endpoint string) ([]byte, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	a.logger.Debug("api request completed",
		zap.Duration("duration", time.Since(start)),
		zap.Int("status", resp.StatusCode))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	default:
		return nil, backoff.Permanent(fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body)))
	}
}
