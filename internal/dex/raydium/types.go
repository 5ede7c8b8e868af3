// internal/dex/raydium/types.go
// Package raydium реализует обнаружение новых AMM v4 пулов Raydium и расчёт котировок по ним.
package raydium

import (
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// Mint описывает токен пула: адрес и точность.
type Mint struct {
	Address  solana.PublicKey `json:"address"`
	Decimals uint8            `json:"decimals"`
}

// PoolVaults - резервные счета пула. A соответствует MintA, B соответствует MintB.
type PoolVaults struct {
	A solana.PublicKey `json:"A"`
	B solana.PublicKey `json:"B"`
}

// PoolKey - структурная запись пула. После создания не меняется.
//
// JSON теги совпадают с форматом Raydium API v3 (/pools/key/ids), поэтому
// одна и та же структура читается и из кэша, и из ответа API.
type PoolKey struct {
	ID           solana.PublicKey `json:"id"`
	ProgramID    solana.PublicKey `json:"programId"`
	Authority    solana.PublicKey `json:"authority"`
	OpenOrders   solana.PublicKey `json:"openOrders"`
	TargetOrders solana.PublicKey `json:"targetOrders"`
	Vault        PoolVaults       `json:"vault"`
	MintA        Mint             `json:"mintA"`
	MintB        Mint             `json:"mintB"`

	// OpenBook market
	MarketProgramID  solana.PublicKey `json:"marketProgramId"`
	MarketID         solana.PublicKey `json:"marketId"`
	MarketAuthority  solana.PublicKey `json:"marketAuthority"`
	MarketBaseVault  solana.PublicKey `json:"marketBaseVault"`
	MarketQuoteVault solana.PublicKey `json:"marketQuoteVault"`
	MarketBids       solana.PublicKey `json:"marketBids"`
	MarketAsks       solana.PublicKey `json:"marketAsks"`
	MarketEventQueue solana.PublicKey `json:"marketEventQueue"`
}

// Contains проверяет, что mint является одним из двух токенов пула.
func (k *PoolKey) Contains(mint solana.PublicKey) bool {
	return k.MintA.Address.Equals(mint) || k.MintB.Address.Equals(mint)
}

// Validate проверяет, что все адреса записи заполнены.
func (k *PoolKey) Validate() error {
	fields := map[string]solana.PublicKey{
		"id":               k.ID,
		"programId":        k.ProgramID,
		"authority":        k.Authority,
		"openOrders":       k.OpenOrders,
		"targetOrders":     k.TargetOrders,
		"vault.A":          k.Vault.A,
		"vault.B":          k.Vault.B,
		"mintA":            k.MintA.Address,
		"mintB":            k.MintB.Address,
		"marketProgramId":  k.MarketProgramID,
		"marketId":         k.MarketID,
		"marketAuthority":  k.MarketAuthority,
		"marketBaseVault":  k.MarketBaseVault,
		"marketQuoteVault": k.MarketQuoteVault,
		"marketBids":       k.MarketBids,
		"marketAsks":       k.MarketAsks,
		"marketEventQueue": k.MarketEventQueue,
	}
	for name, key := range fields {
		if key.IsZero() {
			return &ValidationError{Field: name, Message: "empty address"}
		}
	}
	if k.MintA.Address.Equals(k.MintB.Address) {
		return &ValidationError{Field: "mintB", Message: "same mint on both sides"}
	}
	return nil
}

// InitialReserves - резервы пула в человеко-читаемых единицах по адресу минта.
type InitialReserves map[solana.PublicKey]decimal.Decimal

// Covers проверяет наличие записей для обоих токенов пула.
func (r InitialReserves) Covers(key *PoolKey) bool {
	_, okA := r[key.MintA.Address]
	_, okB := r[key.MintB.Address]
	return okA && okB
}

// PoolAddress - результат разрешения пары токенов в адрес пула.
type PoolAddress struct {
	ID     solana.PublicKey
	FeeBps uint16
	// Source - откуда получен адрес: "pair-cache", "info-cache" или "api".
	Source string
}
