// internal/blockchain/blockchain.go
package blockchain

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// TransactionFetcher получает транзакцию в разобранном виде по подписи.
// Возвращает (nil, nil), если узел не знает транзакцию.
type TransactionFetcher interface {
	GetParsedTransaction(ctx context.Context, sig solana.Signature) (*ParsedTransaction, error)
}

// AccountReader читает данные нескольких аккаунтов одним запросом.
// Порядок результата совпадает с порядком ключей, отсутствующие аккаунты - nil.
type AccountReader interface {
	GetMultipleAccounts(ctx context.Context, keys []solana.PublicKey) ([]*AccountData, error)
}

// AccountInfoReader читает один аккаунт.
// Отсутствующий аккаунт возвращается ошибкой, а не nil.
type AccountInfoReader interface {
	GetAccountInfo(ctx context.Context, key solana.PublicKey) (*AccountData, error)
}
