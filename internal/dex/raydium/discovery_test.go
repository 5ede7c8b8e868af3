// internal/dex/raydium/discovery_test.go
package raydium

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/raydium-watcher/internal/eventlistener"
	"github.com/rovshanmuradov/raydium-watcher/internal/storage"
	"github.com/rovshanmuradov/raydium-watcher/internal/utils/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var initLogs = []string{
	"Program 39azUYFWPz3VHgKCf3VChUwbpURdCHRxjWVowf5jUJjg invoke [1]",
	"Program log: initialize2: InitializeInstruction2 { nonce: 254, open_time: 0 }",
}

func initEvent(sigByte byte) *eventlistener.Event {
	return &eventlistener.Event{Signature: solana.Signature{sigByte}, Slot: uint64(sigByte), Logs: initLogs}
}

func newTestListener(cfg DiscoveryConfig, sub eventlistener.Subscriber, fetcher *MockFetcher, store storage.Store) *DiscoveryListener {
	l := NewDiscoveryListener(cfg, sub, fetcher, store, zap.NewNop())
	l.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	l.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return l
}

func TestDiscoveryOneShotPublishesOnce(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	sub := newScriptedSubscription(initEvent(1), initEvent(2), initEvent(3))
	fetcher := new(MockFetcher)
	fetcher.On("GetParsedTransaction", mock.Anything, solana.Signature{1}).Return(fixtureInitTxWithPool(4), nil)
	fetcher.On("GetParsedTransaction", mock.Anything, solana.Signature{2}).Return(fixtureInitTxWithPool(40), nil)
	fetcher.On("GetParsedTransaction", mock.Anything, solana.Signature{3}).Return(fixtureInitTxWithPool(41), nil)

	notifications, err := store.Subscribe(ctx, NewPoolsChannel)
	require.NoError(t, err)

	l := newTestListener(DefaultDiscoveryConfig(), &fakeSubscriber{subs: []*scriptedSubscription{sub}}, fetcher, store)
	assert.Equal(t, StateIdle, l.State())

	found, err := l.Run(ctx)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, StateDone, l.State())
	assert.Equal(t, int32(1), sub.unsubscribed.Load())
	fetcher.AssertNumberOfCalls(t, "GetParsedTransaction", 1)

	key := found[0].PoolKey
	assert.Equal(t, testAddr(4), key.ID)

	// Все три ключа указывают на одну запись
	for _, k := range []string{
		PoolKeyCacheKey(key.ID),
		PairCacheKey(key.MintA.Address, key.MintB.Address),
		PairCacheKey(key.MintB.Address, key.MintA.Address),
	} {
		raw, err := store.Get(ctx, k)
		require.NoError(t, err, k)
		var cached PoolKey
		require.NoError(t, json.Unmarshal([]byte(raw), &cached))
		assert.Equal(t, *key, cached)
	}

	// Второй и третий пулы не опубликованы
	_, err = store.Get(ctx, PoolKeyCacheKey(testAddr(40)))
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.Get(ctx, PoolKeyCacheKey(testAddr(41)))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	raw, err := store.Get(ctx, ReservesCacheKey(key.MintA.Address, key.MintB.Address))
	require.NoError(t, err)
	snapshot, err := decodeReservesSnapshot(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000_000), snapshot.Timestamp)
	reserves, ok := snapshot.Reserves(key.MintA.Address, key.MintB.Address)
	require.True(t, ok)
	assert.True(t, dec("79.005359057").Equal(reserves[key.MintA.Address]))

	select {
	case msg := <-notifications:
		var n poolNotification
		require.NoError(t, json.Unmarshal([]byte(msg), &n))
		assert.Equal(t, key.ID, n.PoolKey.ID)
		assert.Equal(t, solana.Signature{1}.String(), n.Signature)
	case <-time.After(time.Second):
		t.Fatal("no notification published")
	}
}

func TestDiscoverySkipsIrrelevantEvents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	failed := initEvent(1)
	failed.Err = map[string]interface{}{"InstructionError": []interface{}{2, "Custom"}}
	noMarker := &eventlistener.Event{Signature: solana.Signature{2}, Logs: []string{"Program log: Instruction: Swap"}}

	sub := newScriptedSubscription(failed, noMarker, initEvent(3))
	fetcher := new(MockFetcher)
	fetcher.On("GetParsedTransaction", mock.Anything, solana.Signature{3}).Return(fixtureInitTx(), nil)

	l := newTestListener(DefaultDiscoveryConfig(), &fakeSubscriber{subs: []*scriptedSubscription{sub}}, fetcher, store)
	found, err := l.Run(ctx)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, solana.Signature{3}, found[0].Signature)
	fetcher.AssertNumberOfCalls(t, "GetParsedTransaction", 1)
}

func TestDiscoveryContinuesAfterDetectionFailure(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	malformed := fixtureInitTx()
	malformed.Instructions = malformed.Instructions[:1]

	sub := newScriptedSubscription(initEvent(1), initEvent(2), initEvent(3), initEvent(4))
	fetcher := new(MockFetcher)
	fetcher.On("GetParsedTransaction", mock.Anything, solana.Signature{1}).Return(nil, errors.New("node unavailable"))
	fetcher.On("GetParsedTransaction", mock.Anything, solana.Signature{2}).Return(nil, nil)
	fetcher.On("GetParsedTransaction", mock.Anything, solana.Signature{3}).Return(malformed, nil)
	fetcher.On("GetParsedTransaction", mock.Anything, solana.Signature{4}).Return(fixtureInitTx(), nil)

	l := newTestListener(DefaultDiscoveryConfig(), &fakeSubscriber{subs: []*scriptedSubscription{sub}}, fetcher, store)
	found, err := l.Run(ctx)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, solana.Signature{4}, found[0].Signature)
	fetcher.AssertNumberOfCalls(t, "GetParsedTransaction", 4)
	assert.Equal(t, StateDone, l.State())
}

func TestDiscoveryHandleEventErrors(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	noPost := fixtureInitTx()
	noPost.PostTokenBalances = noPost.PostTokenBalances[:1]

	fetcher := new(MockFetcher)
	fetcher.On("GetParsedTransaction", mock.Anything, solana.Signature{1}).Return(nil, nil)
	fetcher.On("GetParsedTransaction", mock.Anything, solana.Signature{2}).Return(noPost, nil)

	l := newTestListener(DefaultDiscoveryConfig(), &fakeSubscriber{}, fetcher, store)

	tests := []struct {
		name    string
		event   *eventlistener.Event
		stage   ListenerState
		wantErr error
	}{
		{"unknown transaction", initEvent(1), StateFetching, ErrPoolNotFound},
		{"missing post balance", initEvent(2), StateExtracting, ErrReservesNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok, err := l.handleEvent(ctx, tt.event)
			assert.False(t, ok)
			require.ErrorIs(t, err, tt.wantErr)

			var derr *DiscoveryError
			require.ErrorAs(t, err, &derr)
			assert.Equal(t, tt.stage, derr.Stage)
			assert.Equal(t, tt.event.Signature, derr.Signature)
		})
	}
}

func TestDiscoveryPublishRollback(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStore: newTestStore(t), publishErr: errors.New("broker down")}

	sub := newScriptedSubscription(initEvent(1))
	fetcher := new(MockFetcher)
	fetcher.On("GetParsedTransaction", mock.Anything, solana.Signature{1}).Return(fixtureInitTx(), nil)

	l := newTestListener(DefaultDiscoveryConfig(), &fakeSubscriber{subs: []*scriptedSubscription{sub}}, fetcher, store)

	d, ok, err := l.handleEvent(ctx, initEvent(1))
	assert.False(t, ok)
	assert.Nil(t, d.PoolKey)
	var derr *DiscoveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, StatePublishing, derr.Stage)

	key, err := ExtractPoolKey(fixtureInitTx(), RaydiumV4Initialize2)
	require.NoError(t, err)
	for _, k := range []string{
		PoolKeyCacheKey(key.ID),
		PairCacheKey(key.MintA.Address, key.MintB.Address),
		PairCacheKey(key.MintB.Address, key.MintA.Address),
		ReservesCacheKey(key.MintA.Address, key.MintB.Address),
	} {
		_, err := store.Get(ctx, k)
		assert.ErrorIs(t, err, storage.ErrNotFound, k)
	}
}

func TestDiscoveryStreamClosedOneShot(t *testing.T) {
	sub := newScriptedSubscription()
	close(sub.events)

	l := newTestListener(DefaultDiscoveryConfig(), &fakeSubscriber{subs: []*scriptedSubscription{sub}}, new(MockFetcher), newTestStore(t))
	found, err := l.Run(context.Background())
	assert.Empty(t, found)
	assert.ErrorIs(t, err, ErrListenerClosed)
	assert.Equal(t, StateFailed, l.State())
	assert.Equal(t, int32(1), sub.unsubscribed.Load())
}

func TestDiscoverySubscribeError(t *testing.T) {
	l := newTestListener(DefaultDiscoveryConfig(), &fakeSubscriber{}, new(MockFetcher), newTestStore(t))
	_, err := l.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, l.State())
}

func TestDiscoveryCancelUnsubscribes(t *testing.T) {
	sub := newScriptedSubscription()
	l := newTestListener(DefaultDiscoveryConfig(), &fakeSubscriber{subs: []*scriptedSubscription{sub}}, new(MockFetcher), newTestStore(t))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	found, err := l.Run(ctx)
	assert.Empty(t, found)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateDone, l.State())
	assert.Equal(t, int32(1), sub.unsubscribed.Load())
}

func TestDiscoveryActiveMode(t *testing.T) {
	store := newTestStore(t)

	// Первый поток обрывается после двух событий, второй несёт повтор и новый пул
	first := newScriptedSubscription(initEvent(1), initEvent(2))
	close(first.events)
	second := newScriptedSubscription(initEvent(3), initEvent(4))

	fetcher := new(MockFetcher)
	fetcher.On("GetParsedTransaction", mock.Anything, solana.Signature{1}).Return(fixtureInitTxWithPool(4), nil)
	fetcher.On("GetParsedTransaction", mock.Anything, solana.Signature{2}).Return(fixtureInitTxWithPool(40), nil)
	fetcher.On("GetParsedTransaction", mock.Anything, solana.Signature{3}).Return(fixtureInitTxWithPool(4), nil)
	fetcher.On("GetParsedTransaction", mock.Anything, solana.Signature{4}).Return(fixtureInitTxWithPool(41), nil)

	cfg := DefaultDiscoveryConfig()
	cfg.Mode = ModeActive
	l := newTestListener(cfg, &fakeSubscriber{subs: []*scriptedSubscription{first, second}}, fetcher, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		found []Discovery
		err   error
		done  = make(chan struct{})
	)
	go func() {
		found, err = l.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, getErr := store.Get(ctx, PoolKeyCacheKey(testAddr(41)))
		return getErr == nil
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, found, 3)
	assert.Equal(t, testAddr(4), found[0].PoolKey.ID)
	assert.Equal(t, testAddr(40), found[1].PoolKey.ID)
	assert.Equal(t, testAddr(41), found[2].PoolKey.ID)
	assert.Equal(t, int32(1), first.unsubscribed.Load())
	assert.Equal(t, int32(1), second.unsubscribed.Load())

	// Блокировки сняты
	acquired, lockErr := store.Lock(context.Background(), PoolLockKey(testAddr(4)), "other", time.Second)
	require.NoError(t, lockErr)
	assert.True(t, acquired)
}

func TestDiscoveryActiveSkipsLockedPool(t *testing.T) {
	store := newTestStore(t)

	// Пул 4 уже обрабатывает другой экземпляр
	held, err := store.Lock(context.Background(), PoolLockKey(testAddr(4)), "other-instance", time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	sub := newScriptedSubscription(initEvent(1), initEvent(2))
	fetcher := new(MockFetcher)
	fetcher.On("GetParsedTransaction", mock.Anything, solana.Signature{1}).Return(fixtureInitTxWithPool(4), nil)
	fetcher.On("GetParsedTransaction", mock.Anything, solana.Signature{2}).Return(fixtureInitTxWithPool(40), nil)

	cfg := DefaultDiscoveryConfig()
	cfg.Mode = ModeActive
	l := newTestListener(cfg, &fakeSubscriber{subs: []*scriptedSubscription{sub}}, fetcher, store)
	collector := metrics.NewCollector()
	l.SetMetrics(collector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var found []Discovery
	done := make(chan struct{})
	go func() {
		found, _ = l.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, getErr := store.Get(ctx, PoolKeyCacheKey(testAddr(40)))
		return getErr == nil
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	require.Len(t, found, 1)
	assert.Equal(t, testAddr(40), found[0].PoolKey.ID)
	_, err = store.Get(context.Background(), PoolKeyCacheKey(testAddr(4)))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `raydium_watcher_pools_discovered_total{mode="active"} 1`)
}

func TestParseListenerMode(t *testing.T) {
	m, err := ParseListenerMode("ACTIVE")
	require.NoError(t, err)
	assert.Equal(t, ModeActive, m)

	m, err = ParseListenerMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeOneShot, m)

	_, err = ParseListenerMode("forever")
	assert.Error(t, err)

	assert.Equal(t, "Publishing", StatePublishing.String())
}
