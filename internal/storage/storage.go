// internal/storage/storage.go
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound возвращается при промахе кэша.
var ErrNotFound = errors.New("key not found")

// Store определяет интерфейс key-value хранилища для метаданных пулов
type Store interface {
	// Get возвращает значение или ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set записывает значение; ttl == 0 означает без истечения.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	// Lock захватывает блокировку key для owner на ttl. false, если занято.
	Lock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	// Unlock снимает блокировку, только если она принадлежит owner.
	Unlock(ctx context.Context, key, owner string) (bool, error)

	// Уведомления
	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channel string) (<-chan string, error)

	Close() error
}
