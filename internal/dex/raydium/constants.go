// internal/dex/raydium/constants.go
package raydium

import (
	"github.com/gagliardetto/solana-go"
)

// Program IDs
var (
	// Используем MPK для краткости, так как это константы
	RaydiumV4ProgramID   = solana.MPK("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
	MigrationProgramID   = solana.MPK("39azUYFWPz3VHgKCf3VChUwbpURdCHRxjWVowf5jUJjg")
	OpenBookProgramID    = solana.MPK("srmqPvymJeFKQ4zGQed1GFppgkRHL9kaELCbyksJtPX")
	WrappedSolMint       = solana.MPK("So11111111111111111111111111111111111111112")
	DefaultRaydiumAPIURL = "https://api-v3.raydium.io"
)

const (
	// InitializeMarker - строка в логах, по которой отличаем создание пула от прочих вызовов.
	InitializeMarker = "initialize2"

	// Известные точности минтов на основном пути (не читаются с чейна).
	DefaultMintADecimals uint8 = 9
	DefaultMintBDecimals uint8 = 6

	DefaultFeeBps uint16 = 25
	FeeDenominator       = 10000

	// Диапазон перебора nonce для market authority.
	MaxAuthorityNonce = 100

	// NewPoolsChannel - канал уведомлений о найденных пулах.
	NewPoolsChannel = "raydium:pools:new"
)
