// internal/dex/raydium/reserves.go
package raydium

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/raydium-watcher/internal/blockchain"
	"github.com/shopspring/decimal"
)

// ExtractInitialReserves читает резервы пула из балансов токенов после исполнения
// транзакции создания. Для каждого минта предпочитается баланс счёта-хранилища
// пула; если его нет, берётся первый баланс с тем же минтом.
func ExtractInitialReserves(tx *blockchain.ParsedTransaction, key *PoolKey) (InitialReserves, error) {
	if tx == nil || key == nil {
		return nil, fmt.Errorf("%w: empty transaction or pool key", ErrReservesNotFound)
	}

	reserves := make(InitialReserves, 2)
	for _, side := range []struct {
		mint  solana.PublicKey
		vault solana.PublicKey
	}{
		{key.MintA.Address, key.Vault.A},
		{key.MintB.Address, key.Vault.B},
	} {
		balance, ok := findPostBalance(tx, side.mint, side.vault)
		if !ok {
			return nil, fmt.Errorf("%w: mint %s", ErrReservesNotFound, side.mint)
		}
		reserves[side.mint] = balance.UIAmount()
	}

	if !reserves.Covers(key) {
		return nil, fmt.Errorf("%w: pool %s", ErrReservesNotFound, key.ID)
	}
	return reserves, nil
}

func findPostBalance(tx *blockchain.ParsedTransaction, mint, vault solana.PublicKey) (blockchain.TokenBalance, bool) {
	var (
		fallback blockchain.TokenBalance
		found    bool
	)
	for _, b := range tx.PostTokenBalances {
		if !b.Mint.Equals(mint) {
			continue
		}
		if account, ok := tx.Account(int(b.AccountIndex)); ok && account.Equals(vault) {
			return b, true
		}
		if !found {
			fallback, found = b, true
		}
	}
	return fallback, found
}

// ReservesSnapshot - запись резервов в кэше: суммы по адресу минта и момент чтения.
type ReservesSnapshot struct {
	Amounts map[string]decimal.Decimal `json:"amounts"`
	// Timestamp в миллисекундах Unix.
	Timestamp int64 `json:"timestamp"`
}

// NewReservesSnapshot фиксирует резервы на момент at.
func NewReservesSnapshot(reserves InitialReserves, at time.Time) ReservesSnapshot {
	amounts := make(map[string]decimal.Decimal, len(reserves))
	for mint, amount := range reserves {
		amounts[mint.String()] = amount
	}
	return ReservesSnapshot{Amounts: amounts, Timestamp: at.UnixMilli()}
}

// Fresh сообщает, что снимок моложе ttl относительно now.
func (s ReservesSnapshot) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(time.UnixMilli(s.Timestamp)) < ttl
}

// Reserves возвращает суммы по минтам; false, если какого-то минта нет.
func (s ReservesSnapshot) Reserves(mintA, mintB solana.PublicKey) (InitialReserves, bool) {
	a, okA := s.Amounts[mintA.String()]
	b, okB := s.Amounts[mintB.String()]
	if !okA || !okB {
		return nil, false
	}
	return InitialReserves{mintA: a, mintB: b}, true
}

// decodeReservesSnapshot понимает и плоскую запись {"<mint>": 1.5, "timestamp": ms},
// которую пишут другие клиенты того же кэша.
func decodeReservesSnapshot(raw string) (ReservesSnapshot, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return ReservesSnapshot{}, fmt.Errorf("decode reserves snapshot: %w", err)
	}

	if _, nested := fields["amounts"]; nested {
		var s ReservesSnapshot
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return ReservesSnapshot{}, fmt.Errorf("decode reserves snapshot: %w", err)
		}
		return s, nil
	}

	s := ReservesSnapshot{Amounts: make(map[string]decimal.Decimal, len(fields))}
	for name, value := range fields {
		if name == "timestamp" {
			var ts decimal.Decimal
			if err := ts.UnmarshalJSON(value); err != nil {
				return ReservesSnapshot{}, fmt.Errorf("decode reserves timestamp: %w", err)
			}
			s.Timestamp = ts.IntPart()
			continue
		}
		var amount decimal.Decimal
		if err := amount.UnmarshalJSON(value); err != nil {
			return ReservesSnapshot{}, fmt.Errorf("decode reserves of %s: %w", name, err)
		}
		s.Amounts[name] = amount
	}
	return s, nil
}
