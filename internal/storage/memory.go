// internal/storage/memory.go
package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	rstore "github.com/eko/gocache/store/ristretto/v4"
)

// MemoryStore - Store в памяти процесса: значения в ristretto через gocache,
// блокировки и подписки в обычных map под мьютексом.
type MemoryStore struct {
	client *ristretto.Cache
	cache  *cache.Cache[string]

	mu     sync.Mutex
	locks  map[string]memoryLock
	subs   map[string][]chan string
	closed bool
	now    func() time.Time
}

type memoryLock struct {
	owner   string
	expires time.Time
}

// NewMemoryStore создаёт хранилище в памяти.
func NewMemoryStore() (*MemoryStore, error) {
	client, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1_000_000,
		MaxCost:     64 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}

	return &MemoryStore{
		client: client,
		cache:  cache.New[string](rstore.NewRistretto(client)),
		locks:  make(map[string]memoryLock),
		subs:   make(map[string][]chan string),
		now:    time.Now,
	}, nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	value, err := m.cache.Get(ctx, key)
	if err != nil {
		// ristretto store отдаёт ошибку только при промахе
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return value, nil
}

func (m *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	err := m.cache.Set(ctx, key, value,
		store.WithExpiration(ttl),
		store.WithCost(int64(len(value))),
	)
	if err != nil {
		return fmt.Errorf("memory set %s: %w", key, err)
	}
	// ristretto применяет запись асинхронно
	m.client.Wait()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if err := m.cache.Delete(ctx, key); err != nil {
			return fmt.Errorf("memory delete %s: %w", key, err)
		}
	}
	m.client.Wait()
	return nil
}

func (m *MemoryStore) Lock(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if current, ok := m.locks[key]; ok && (current.expires.IsZero() || now.Before(current.expires)) {
		return false, nil
	}

	lock := memoryLock{owner: owner}
	if ttl > 0 {
		lock.expires = now.Add(ttl)
	}
	m.locks[key] = lock
	return true, nil
}

func (m *MemoryStore) Unlock(_ context.Context, key, owner string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.locks[key]
	if !ok || current.owner != owner {
		return false, nil
	}
	delete(m.locks, key)
	return true, nil
}

// Publish рассылает сообщение подписчикам канала. Медленный подписчик пропускает сообщение.
func (m *MemoryStore) Publish(_ context.Context, channel, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ch := range m.subs[channel] {
		select {
		case ch <- message:
		default:
		}
	}
	return nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, channel string) (<-chan string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("memory store closed")
	}
	ch := make(chan string, 16)
	m.subs[channel] = append(m.subs[channel], ch)

	go func() {
		<-ctx.Done()
		m.unsubscribe(channel, ch)
	}()
	return ch, nil
}

func (m *MemoryStore) unsubscribe(channel string, ch chan string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := m.subs[channel]
	for i, sub := range subs {
		if sub == ch {
			m.subs[channel] = append(subs[:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	for channel, subs := range m.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(m.subs, channel)
	}
	m.client.Close()
	return nil
}

var _ Store = (*MemoryStore)(nil)
