// internal/dex/raydium/keys.go
package raydium

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/raydium-watcher/internal/blockchain"
)

type extractOptions struct {
	decimalsA uint8
	decimalsB uint8
	derive    ProgramAddressFunc
}

// ExtractOption настраивает ExtractPoolKey.
type ExtractOption func(*extractOptions)

// WithMintDecimals задаёт известные точности минтов A и B.
func WithMintDecimals(a, b uint8) ExtractOption {
	return func(o *extractOptions) {
		o.decimalsA, o.decimalsB = a, b
	}
}

// WithProgramAddressFunc подменяет проверку PDA при поиске market authority.
func WithProgramAddressFunc(f ProgramAddressFunc) ExtractOption {
	return func(o *extractOptions) {
		o.derive = f
	}
}

// ExtractPoolKey восстанавливает PoolKey из транзакции создания пула.
//
// Аккаунты пула читаются по фиксированным смещениям из инструкции программы
// ликвидности, аккаунты рынка - из общего списка аккаунтов транзакции.
// Любое расхождение с раскладкой даёт ErrMalformedTransaction; частичная
// запись никогда не возвращается.
func ExtractPoolKey(tx *blockchain.ParsedTransaction, layout Layout, opts ...ExtractOption) (*PoolKey, error) {
	o := extractOptions{
		decimalsA: DefaultMintADecimals,
		decimalsB: DefaultMintBDecimals,
		derive:    solana.CreateProgramAddress,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, fmt.Errorf("%w: empty transaction", ErrMalformedTransaction)
	}

	ix, ok := findInstruction(tx, layout.ProgramID)
	if !ok {
		return nil, fmt.Errorf("%w: no instruction for program %s", ErrMalformedTransaction, layout.ProgramID)
	}
	if need := layout.MinInstructionAccounts(); len(ix.Accounts) < need {
		return nil, fmt.Errorf("%w: instruction has %d accounts, layout %s needs %d",
			ErrMalformedTransaction, len(ix.Accounts), layout, need)
	}
	if need := layout.MinMessageAccounts(); len(tx.AccountKeys) < need {
		return nil, fmt.Errorf("%w: transaction has %d accounts, layout %s needs %d",
			ErrMalformedTransaction, len(tx.AccountKeys), layout, need)
	}

	inst := func(f AccountField) solana.PublicKey { return ix.Accounts[layout.Instruction[f]] }
	msg := func(f AccountField) solana.PublicKey { return tx.AccountKeys[layout.Message[f]] }

	key := &PoolKey{
		ID:           inst(FieldPoolID),
		ProgramID:    layout.ProgramID,
		Authority:    inst(FieldAuthority),
		OpenOrders:   inst(FieldOpenOrders),
		TargetOrders: inst(FieldTargetOrders),
		Vault: PoolVaults{
			A: inst(FieldVaultA),
			B: inst(FieldVaultB),
		},
		MintA:            Mint{Address: inst(FieldMintA), Decimals: o.decimalsA},
		MintB:            Mint{Address: inst(FieldMintB), Decimals: o.decimalsB},
		MarketProgramID:  inst(FieldMarketProgramID),
		MarketID:         inst(FieldMarketID),
		MarketBids:       msg(FieldMarketBids),
		MarketAsks:       msg(FieldMarketAsks),
		MarketEventQueue: msg(FieldMarketEventQueue),
		MarketBaseVault:  msg(FieldMarketBaseVault),
		MarketQuoteVault: msg(FieldMarketQuoteVault),
	}

	authority, _, err := searchMarketAuthority(o.derive, key.MarketProgramID, key.MarketID)
	if err != nil {
		return nil, fmt.Errorf("market %s: %w", key.MarketID, err)
	}
	key.MarketAuthority = authority

	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}
	return key, nil
}

// findInstruction возвращает первую инструкцию верхнего уровня указанной программы.
func findInstruction(tx *blockchain.ParsedTransaction, program solana.PublicKey) (blockchain.ParsedInstruction, bool) {
	for _, ix := range tx.Instructions {
		if ix.ProgramID.Equals(program) {
			return ix, true
		}
	}
	return blockchain.ParsedInstruction{}, false
}
