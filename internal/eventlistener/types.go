// internal/eventlistener/types.go
package eventlistener

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// Event - уведомление logsSubscribe для одной транзакции.
type Event struct {
	Signature solana.Signature
	Slot      uint64
	Logs      []string
	// Err - ошибка исполнения транзакции, nil при успехе.
	Err interface{}
}

// Failed сообщает, что транзакция завершилась ошибкой.
func (e Event) Failed() bool {
	return e.Err != nil
}

// Subscription - открытая подписка на логи программы.
type Subscription interface {
	// Recv блокируется до следующего события, отмены ctx или обрыва потока.
	Recv(ctx context.Context) (*Event, error)
	// Unsubscribe закрывает подписку; повторный вызов безопасен.
	Unsubscribe()
}

// Subscriber открывает подписки на логи, упоминающие программу.
type Subscriber interface {
	Subscribe(ctx context.Context, program solana.PublicKey) (Subscription, error)
}
