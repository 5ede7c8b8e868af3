// internal/dex/raydium/mocks_test.go
package raydium

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/raydium-watcher/internal/blockchain"
	"github.com/rovshanmuradov/raydium-watcher/internal/eventlistener"
	"github.com/rovshanmuradov/raydium-watcher/internal/storage"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockFetcher реализует blockchain.TransactionFetcher
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) GetParsedTransaction(ctx context.Context, sig solana.Signature) (*blockchain.ParsedTransaction, error) {
	args := m.Called(ctx, sig)
	tx, _ := args.Get(0).(*blockchain.ParsedTransaction)
	return tx, args.Error(1)
}

// MockAccountReader реализует blockchain.AccountReader
type MockAccountReader struct {
	mock.Mock
}

func (m *MockAccountReader) GetMultipleAccounts(ctx context.Context, keys []solana.PublicKey) ([]*blockchain.AccountData, error) {
	args := m.Called(ctx, keys)
	accounts, _ := args.Get(0).([]*blockchain.AccountData)
	return accounts, args.Error(1)
}

// scriptedSubscription отдаёт заранее записанные события, закрытие канала - обрыв потока.
type scriptedSubscription struct {
	events       chan *eventlistener.Event
	unsubscribed atomic.Int32
}

func newScriptedSubscription(events ...*eventlistener.Event) *scriptedSubscription {
	ch := make(chan *eventlistener.Event, len(events))
	for _, e := range events {
		ch <- e
	}
	return &scriptedSubscription{events: ch}
}

func (s *scriptedSubscription) Recv(ctx context.Context) (*eventlistener.Event, error) {
	select {
	case e, ok := <-s.events:
		if !ok {
			return nil, eventlistener.ErrSubscriptionClosed
		}
		return e, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *scriptedSubscription) Unsubscribe() {
	s.unsubscribed.Add(1)
}

// fakeSubscriber выдаёт подписки по очереди; после исчерпания возвращает ошибку.
type fakeSubscriber struct {
	mu    sync.Mutex
	subs  []*scriptedSubscription
	calls int
}

func (f *fakeSubscriber) Subscribe(_ context.Context, _ solana.PublicKey) (eventlistener.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls >= len(f.subs) {
		f.calls++
		return nil, errors.New("no more subscriptions")
	}
	sub := f.subs[f.calls]
	f.calls++
	return sub, nil
}

// failingStore проваливает Publish, остальное делегирует MemoryStore.
type failingStore struct {
	*storage.MemoryStore
	publishErr error
}

func (f *failingStore) Publish(ctx context.Context, channel, message string) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	return f.MemoryStore.Publish(ctx, channel, message)
}

func newTestStore(t *testing.T) *storage.MemoryStore {
	t.Helper()
	store, err := storage.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// MockPoolInfoFetcher реализует PoolInfoFetcher
type MockPoolInfoFetcher struct {
	mock.Mock
}

func (m *MockPoolInfoFetcher) FetchPoolByMints(ctx context.Context, mint1, mint2 solana.PublicKey) (*APIPoolInfo, error) {
	args := m.Called(ctx, mint1, mint2)
	info, _ := args.Get(0).(*APIPoolInfo)
	return info, args.Error(1)
}

// MockPoolKeySource реализует PoolKeySource
type MockPoolKeySource struct {
	mock.Mock
}

func (m *MockPoolKeySource) FetchPoolKey(ctx context.Context, id solana.PublicKey) (*PoolKey, error) {
	args := m.Called(ctx, id)
	key, _ := args.Get(0).(*PoolKey)
	return key, args.Error(1)
}

// countingStore считает обращения к хранилищу.
type countingStore struct {
	*storage.MemoryStore
	gets atomic.Int32
	sets atomic.Int32
}

func (c *countingStore) Get(ctx context.Context, key string) (string, error) {
	c.gets.Add(1)
	return c.MemoryStore.Get(ctx, key)
}

func (c *countingStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.sets.Add(1)
	return c.MemoryStore.Set(ctx, key, value, ttl)
}

// MockAccountInfoReader дополнительно реализует blockchain.AccountInfoReader
type MockAccountInfoReader struct {
	MockAccountReader
}

func (m *MockAccountInfoReader) GetAccountInfo(ctx context.Context, key solana.PublicKey) (*blockchain.AccountData, error) {
	args := m.Called(ctx, key)
	acc, _ := args.Get(0).(*blockchain.AccountData)
	return acc, args.Error(1)
}
