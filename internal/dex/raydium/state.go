// internal/dex/raydium/state.go
package raydium

import (
	"context"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/near/borsh-go"
	"github.com/rovshanmuradov/raydium-watcher/internal/blockchain"
	"github.com/rovshanmuradov/raydium-watcher/internal/blockchain/solbc"
	"go.uber.org/zap"
)

const (
	// LiquidityStateSize - размер аккаунта AMM v4.
	LiquidityStateSize = 752
	// MarketStateSize - размер аккаунта рынка OpenBook (Serum v3).
	MarketStateSize = 388
)

var ammAuthoritySeed = []byte("amm authority")

// LiquidityState - аккаунт пула AMM v4.
type LiquidityState struct {
	Status                 uint64
	Nonce                  uint64
	MaxOrder               uint64
	Depth                  uint64
	BaseDecimal            uint64
	QuoteDecimal           uint64
	State                  uint64
	ResetFlag              uint64
	MinSize                uint64
	VolMaxCutRatio         uint64
	AmountWaveRatio        uint64
	BaseLotSize            uint64
	QuoteLotSize           uint64
	MinPriceMultiplier     uint64
	MaxPriceMultiplier     uint64
	SystemDecimalValue     uint64
	MinSeparateNumerator   uint64
	MinSeparateDenominator uint64
	TradeFeeNumerator      uint64
	TradeFeeDenominator    uint64
	PnlNumerator           uint64
	PnlDenominator         uint64
	SwapFeeNumerator       uint64
	SwapFeeDenominator     uint64
	BaseNeedTakePnl        uint64
	QuoteNeedTakePnl       uint64
	QuoteTotalPnl          uint64
	BaseTotalPnl           uint64
	PoolOpenTime           uint64
	PunishPcAmount         uint64
	PunishCoinAmount       uint64
	OrderbookToInitTime    uint64

	// u128 счётчики как пары u64
	SwapBaseInAmount   [2]uint64
	SwapQuoteOutAmount [2]uint64
	SwapBase2QuoteFee  uint64
	SwapQuoteInAmount  [2]uint64
	SwapBaseOutAmount  [2]uint64
	SwapQuote2BaseFee  uint64

	BaseVault       solana.PublicKey
	QuoteVault      solana.PublicKey
	BaseMint        solana.PublicKey
	QuoteMint       solana.PublicKey
	LpMint          solana.PublicKey
	OpenOrders      solana.PublicKey
	MarketID        solana.PublicKey
	MarketProgramID solana.PublicKey
	TargetOrders    solana.PublicKey
	WithdrawQueue   solana.PublicKey
	LpVault         solana.PublicKey
	Owner           solana.PublicKey
	LpReserve       uint64
	Padding         [3]uint64
}

// FeeBps - торговая комиссия пула в базисных пунктах.
func (s *LiquidityState) FeeBps() (uint16, bool) {
	if s.TradeFeeDenominator == 0 || s.TradeFeeNumerator > s.TradeFeeDenominator {
		return 0, false
	}
	return uint16(s.TradeFeeNumerator * FeeDenominator / s.TradeFeeDenominator), true
}

// MarketState - аккаунт рынка OpenBook.
type MarketState struct {
	Padding          [5]uint8
	AccountFlags     [8]uint8
	OwnAddress       solana.PublicKey
	VaultSignerNonce uint64
	BaseMint         solana.PublicKey
	QuoteMint        solana.PublicKey

	BaseVault         solana.PublicKey
	BaseDepositsTotal uint64
	BaseFeesAccrued   uint64

	QuoteVault         solana.PublicKey
	QuoteDepositsTotal uint64
	QuoteFeesAccrued   uint64
	QuoteDustThreshold uint64

	RequestQueue solana.PublicKey
	EventQueue   solana.PublicKey
	Bids         solana.PublicKey
	Asks         solana.PublicKey

	BaseLotSize            uint64
	QuoteLotSize           uint64
	FeeRateBps             uint64
	ReferrerRebatesAccrued uint64
	TailPadding            [7]uint8
}

// DecodeLiquidityState разбирает данные аккаунта AMM v4.
func DecodeLiquidityState(data []byte) (*LiquidityState, error) {
	if len(data) != LiquidityStateSize {
		return nil, &ValidationError{Field: "liquidity state", Message: fmt.Sprintf("size %d, want %d", len(data), LiquidityStateSize)}
	}
	var s LiquidityState
	if err := borsh.Deserialize(&s, data); err != nil {
		return nil, fmt.Errorf("decode liquidity state: %w", err)
	}
	return &s, nil
}

// DecodeMarketState разбирает данные аккаунта рынка.
func DecodeMarketState(data []byte) (*MarketState, error) {
	if len(data) != MarketStateSize {
		return nil, &ValidationError{Field: "market state", Message: fmt.Sprintf("size %d, want %d", len(data), MarketStateSize)}
	}
	var s MarketState
	if err := borsh.Deserialize(&s, data); err != nil {
		return nil, fmt.Errorf("decode market state: %w", err)
	}
	return &s, nil
}

// DecodeTokenAmount возвращает минт и баланс SPL токен-аккаунта.
func DecodeTokenAmount(data []byte) (solana.PublicKey, uint64, error) {
	var acc token.Account
	if err := bin.NewBinDecoder(data).Decode(&acc); err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("decode token account: %w", err)
	}
	return acc.Mint, acc.Amount, nil
}

// OnChainKeyFetcher собирает PoolKey из аккаунтов пула и рынка, когда ни кэш, ни API его не знают.
type OnChainKeyFetcher struct {
	reader blockchain.AccountReader
	logger *zap.Logger
}

func NewOnChainKeyFetcher(reader blockchain.AccountReader, logger *zap.Logger) *OnChainKeyFetcher {
	return &OnChainKeyFetcher{reader: reader, logger: logger.Named("onchain-keys")}
}

// FetchPoolKey читает аккаунт пула, затем аккаунт его рынка.
func (f *OnChainKeyFetcher) FetchPoolKey(ctx context.Context, id solana.PublicKey) (*PoolKey, error) {
	pool, err := f.readAccount(ctx, id, RaydiumV4ProgramID)
	if err != nil {
		return nil, err
	}
	state, err := DecodeLiquidityState(pool)
	if err != nil {
		return nil, fmt.Errorf("pool %s: %w", id, err)
	}

	market, err := f.readAccount(ctx, state.MarketID, state.MarketProgramID)
	if err != nil {
		return nil, err
	}
	ms, err := DecodeMarketState(market)
	if err != nil {
		return nil, fmt.Errorf("market %s: %w", state.MarketID, err)
	}

	authority, _, err := solana.FindProgramAddress([][]byte{ammAuthoritySeed}, RaydiumV4ProgramID)
	if err != nil {
		return nil, fmt.Errorf("amm authority: %w", err)
	}
	marketAuthority, _, err := DeriveMarketAuthority(state.MarketProgramID, state.MarketID)
	if err != nil {
		return nil, fmt.Errorf("market %s: %w", state.MarketID, err)
	}

	key := &PoolKey{
		ID:               id,
		ProgramID:        RaydiumV4ProgramID,
		Authority:        authority,
		OpenOrders:       state.OpenOrders,
		TargetOrders:     state.TargetOrders,
		Vault:            PoolVaults{A: state.BaseVault, B: state.QuoteVault},
		MintA:            Mint{Address: state.BaseMint, Decimals: uint8(state.BaseDecimal)},
		MintB:            Mint{Address: state.QuoteMint, Decimals: uint8(state.QuoteDecimal)},
		MarketProgramID:  state.MarketProgramID,
		MarketID:         state.MarketID,
		MarketAuthority:  marketAuthority,
		MarketBaseVault:  ms.BaseVault,
		MarketQuoteVault: ms.QuoteVault,
		MarketBids:       ms.Bids,
		MarketAsks:       ms.Asks,
		MarketEventQueue: ms.EventQueue,
	}
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("pool %s: %w", id, err)
	}

	f.logger.Debug("Pool key decoded from chain",
		zap.String("pool", id.String()),
		zap.String("market", state.MarketID.String()))
	return key, nil
}

// FetchPoolFee читает торговую комиссию из аккаунта пула.
func (f *OnChainKeyFetcher) FetchPoolFee(ctx context.Context, id solana.PublicKey) (uint16, error) {
	pool, err := f.readAccount(ctx, id, RaydiumV4ProgramID)
	if err != nil {
		return 0, err
	}
	state, err := DecodeLiquidityState(pool)
	if err != nil {
		return 0, fmt.Errorf("pool %s: %w", id, err)
	}
	bps, ok := state.FeeBps()
	if !ok {
		return 0, fmt.Errorf("pool %s: %w: %d/%d", id, ErrInvalidFee, state.TradeFeeNumerator, state.TradeFeeDenominator)
	}
	return bps, nil
}

// readAccount предпочитает getAccountInfo, если читатель его умеет.
func (f *OnChainKeyFetcher) readAccount(ctx context.Context, key, owner solana.PublicKey) ([]byte, error) {
	var acc *blockchain.AccountData
	if single, ok := f.reader.(blockchain.AccountInfoReader); ok {
		var err error
		acc, err = single.GetAccountInfo(ctx, key)
		if solbc.IsAccountNotFoundError(err) {
			return nil, fmt.Errorf("%w: account %s", ErrPoolNotFound, key)
		}
		if err != nil {
			return nil, fmt.Errorf("read account %s: %w", key, err)
		}
	} else {
		accounts, err := f.reader.GetMultipleAccounts(ctx, []solana.PublicKey{key})
		if err != nil {
			return nil, fmt.Errorf("read account %s: %w", key, err)
		}
		if len(accounts) > 0 {
			acc = accounts[0]
		}
	}

	if acc == nil {
		return nil, fmt.Errorf("%w: account %s", ErrPoolNotFound, key)
	}
	if !acc.Owner.Equals(owner) {
		return nil, &ValidationError{Field: key.String(), Message: fmt.Sprintf("owner %s, want %s", acc.Owner, owner)}
	}
	return acc.Data, nil
}
