// internal/dex/raydium/cachekeys.go
package raydium

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Префиксы ключей кэша
const (
	poolKeyPrefix  = "pool_key_info"
	poolInfoPrefix = "pool_info"
	reservesPrefix = "reserves"
	lockPrefix     = "lock:"
)

// PoolKeyCacheKey - ключ PoolKey по id пула.
func PoolKeyCacheKey(id solana.PublicKey) string {
	return fmt.Sprintf("%s-%s", poolKeyPrefix, id)
}

// PairCacheKey - ключ PoolKey по паре минтов в заданном порядке.
func PairCacheKey(a, b solana.PublicKey) string {
	return fmt.Sprintf("%s-%s-%s", poolKeyPrefix, a, b)
}

// PoolInfoCacheKey - ключ метаданных пула из API.
func PoolInfoCacheKey(a, b solana.PublicKey) string {
	return fmt.Sprintf("%s-%s-%s", poolInfoPrefix, a, b)
}

// ReservesCacheKey - ключ резервов пула, порядок минтов как в PoolKey.
func ReservesCacheKey(mintA, mintB solana.PublicKey) string {
	return fmt.Sprintf("%s-%s-%s", reservesPrefix, mintA, mintB)
}

// PoolLockKey - ключ блокировки записи PoolKey.
func PoolLockKey(id solana.PublicKey) string {
	return lockPrefix + PoolKeyCacheKey(id)
}
