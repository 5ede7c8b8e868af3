// internal/blockchain/types.go
package blockchain

import (
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// ParsedTransaction - разобранная транзакция в том объёме, который нужен для
// восстановления пула: аккаунты сообщения, инструкции верхнего уровня и
// балансы токенов после исполнения.
type ParsedTransaction struct {
	Signature         solana.Signature
	Slot              uint64
	AccountKeys       []solana.PublicKey
	Instructions      []ParsedInstruction
	PostTokenBalances []TokenBalance
	LogMessages       []string
	// Err - ошибка исполнения транзакции, nil при успехе.
	Err interface{}
}

// ParsedInstruction - инструкция с программой и упорядоченным списком аккаунтов.
type ParsedInstruction struct {
	ProgramID solana.PublicKey
	Accounts  []solana.PublicKey
}

// TokenBalance - баланс токенного счёта после исполнения транзакции.
type TokenBalance struct {
	AccountIndex uint16
	Mint         solana.PublicKey
	Owner        solana.PublicKey
	// Amount в минимальных единицах
	Amount   uint64
	Decimals uint8
}

// UIAmount возвращает баланс в человеко-читаемых единицах.
func (b TokenBalance) UIAmount() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(b.Amount), -int32(b.Decimals))
}

// Account возвращает аккаунт сообщения по индексу.
func (tx *ParsedTransaction) Account(index int) (solana.PublicKey, bool) {
	if index < 0 || index >= len(tx.AccountKeys) {
		return solana.PublicKey{}, false
	}
	return tx.AccountKeys[index], true
}

// AccountData - сырые данные аккаунта, nil если аккаунт не существует.
type AccountData struct {
	Owner solana.PublicKey
	Data  []byte
}
