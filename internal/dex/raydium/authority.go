// internal/dex/raydium/authority.go
package raydium

import (
	"github.com/gagliardetto/solana-go"
)

// ProgramAddressFunc проверяет набор seeds и возвращает PDA, если адрес вне кривой.
type ProgramAddressFunc func(seeds [][]byte, programID solana.PublicKey) (solana.PublicKey, error)

// DeriveMarketAuthority ищет vault signer рынка OpenBook: seeds = marketID ‖ nonce ‖ 7 нулевых байт,
// nonce перебирается в [0, 100). Возвращает первый подошедший адрес и nonce.
// Если ни один nonce не подошёл, возвращает нулевой ключ и ErrAuthorityNotFound.
func DeriveMarketAuthority(marketProgramID, marketID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return searchMarketAuthority(solana.CreateProgramAddress, marketProgramID, marketID)
}

func searchMarketAuthority(derive ProgramAddressFunc, marketProgramID, marketID solana.PublicKey) (solana.PublicKey, uint8, error) {
	padding := make([]byte, 7)
	for nonce := 0; nonce < MaxAuthorityNonce; nonce++ {
		seeds := [][]byte{marketID.Bytes(), {byte(nonce)}, padding}
		authority, err := derive(seeds, marketProgramID)
		if err == nil {
			return authority, uint8(nonce), nil
		}
	}
	return solana.PublicKey{}, 0, ErrAuthorityNotFound
}
