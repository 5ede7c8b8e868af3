// internal/dex/raydium/discovery.go
package raydium

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rovshanmuradov/raydium-watcher/internal/blockchain"
	"github.com/rovshanmuradov/raydium-watcher/internal/eventlistener"
	"github.com/rovshanmuradov/raydium-watcher/internal/storage"
	"github.com/rovshanmuradov/raydium-watcher/internal/utils/logger"
	"github.com/rovshanmuradov/raydium-watcher/internal/utils/metrics"
	"go.uber.org/zap"
)

// ListenerMode определяет жизненный цикл слушателя.
type ListenerMode int

const (
	// ModeOneShot - отписка после первой успешной публикации.
	ModeOneShot ListenerMode = iota
	// ModeActive - публикует любое число пулов до отмены контекста.
	ModeActive
)

func (m ListenerMode) String() string {
	switch m {
	case ModeOneShot:
		return "oneshot"
	case ModeActive:
		return "active"
	default:
		return fmt.Sprintf("ListenerMode(%d)", int(m))
	}
}

// ParseListenerMode разбирает "oneshot" или "active".
func ParseListenerMode(s string) (ListenerMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "oneshot":
		return ModeOneShot, nil
	case "active":
		return ModeActive, nil
	default:
		return 0, fmt.Errorf("unknown listener mode %q", s)
	}
}

// ListenerState - состояние конечного автомата слушателя.
type ListenerState int32

const (
	StateIdle ListenerState = iota
	StateSubscribed
	StateFiltering
	StateFetching
	StateExtracting
	StatePublishing
	StateDone
	StateFailed
)

func (s ListenerState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateSubscribed:
		return "Subscribed"
	case StateFiltering:
		return "Filtering"
	case StateFetching:
		return "Fetching"
	case StateExtracting:
		return "Extracting"
	case StatePublishing:
		return "Publishing"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("ListenerState(%d)", int32(s))
	}
}

// Discovery - опубликованный пул.
type Discovery struct {
	PoolKey    *PoolKey
	Reserves   InitialReserves
	Signature  solana.Signature
	Slot       uint64
	DetectedAt time.Time
}

// poolNotification - сообщение в канале новых пулов.
type poolNotification struct {
	PoolKey   *PoolKey         `json:"pool_key"`
	Reserves  ReservesSnapshot `json:"reserves"`
	Signature string           `json:"signature"`
	Slot      uint64           `json:"slot"`
}

// DiscoveryConfig - параметры слушателя.
type DiscoveryConfig struct {
	// Program - адрес, на логи которого подписываемся.
	Program solana.PublicKey
	// Marker - строка логов, отличающая создание пула.
	Marker         string
	Mode           ListenerMode
	Layout         Layout
	ExtractOptions []ExtractOption

	// PoolKeyTTL и ReservesTTL - время жизни записей кэша, 0 без истечения.
	PoolKeyTTL  time.Duration
	ReservesTTL time.Duration
	// LockTTL - время жизни блокировки записи пула в active режиме.
	LockTTL time.Duration
	// Channel - канал уведомлений, пустая строка отключает публикацию.
	Channel string
}

// DefaultDiscoveryConfig возвращает конфигурацию для Raydium AMM v4.
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		Program: MigrationProgramID,
		Marker:  InitializeMarker,
		Mode:    ModeOneShot,
		Layout:  RaydiumV4Initialize2,
		LockTTL: 10 * time.Second,
		Channel: NewPoolsChannel,
	}
}

// DiscoveryListener подписывается на логи программы миграции, восстанавливает
// PoolKey из транзакции создания и публикует его в хранилище.
type DiscoveryListener struct {
	cfg        DiscoveryConfig
	subscriber eventlistener.Subscriber
	fetcher    blockchain.TransactionFetcher
	store      storage.Store
	filter     eventlistener.Filter
	logger     *zap.Logger
	metrics    *metrics.Collector

	state atomic.Int32
	owner string
	now   func() time.Time
	// newBackOff - политика повторной подписки в active режиме.
	newBackOff func() backoff.BackOff
}

// NewDiscoveryListener создает слушатель.
func NewDiscoveryListener(
	cfg DiscoveryConfig,
	subscriber eventlistener.Subscriber,
	fetcher blockchain.TransactionFetcher,
	store storage.Store,
	logger *zap.Logger,
) *DiscoveryListener {
	if cfg.Marker == "" {
		cfg.Marker = InitializeMarker
	}
	if cfg.Layout.Name == "" {
		cfg.Layout = RaydiumV4Initialize2
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Second
	}

	return &DiscoveryListener{
		cfg:        cfg,
		subscriber: subscriber,
		fetcher:    fetcher,
		store:      store,
		filter:     eventlistener.MarkerFilter(cfg.Marker),
		logger:     logger.Named("discovery"),
		owner:      uuid.New().String(),
		now:        time.Now,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			return b
		},
	}
}

// SetMetrics подключает коллектор метрик.
func (l *DiscoveryListener) SetMetrics(m *metrics.Collector) {
	l.metrics = m
}

// State возвращает текущее состояние автомата.
func (l *DiscoveryListener) State() ListenerState {
	return ListenerState(l.state.Load())
}

func (l *DiscoveryListener) setState(s ListenerState) {
	l.state.Store(int32(s))
}

// Run подписывается и обрабатывает события до завершения.
//
// В oneshot режиме возвращает ровно одно обнаружение и отписывается. В active
// режиме работает до отмены ctx, переподписываясь при обрыве потока. Отмена ctx
// всегда закрывает подписку и возвращает уже опубликованные пулы вместе с ctx.Err().
func (l *DiscoveryListener) Run(ctx context.Context) ([]Discovery, error) {
	sub, err := l.subscriber.Subscribe(ctx, l.cfg.Program)
	if err != nil {
		l.setState(StateFailed)
		return nil, fmt.Errorf("subscribe %s: %w", l.cfg.Program, err)
	}
	defer func() { sub.Unsubscribe() }()

	l.setState(StateSubscribed)
	l.logger.Info("Listening for new pools",
		zap.String("program", l.cfg.Program.String()),
		zap.String("marker", l.cfg.Marker),
		zap.String("mode", l.cfg.Mode.String()),
		zap.String("layout", l.cfg.Layout.String()))

	var found []Discovery
	for {
		event, err := sub.Recv(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			l.setState(StateDone)
			return found, ctxErr
		}
		if err != nil {
			if l.cfg.Mode != ModeActive {
				l.setState(StateFailed)
				return found, fmt.Errorf("%w: %v", ErrListenerClosed, err)
			}

			l.logger.Warn("Log subscription lost, resubscribing", zap.Error(err))
			sub.Unsubscribe()
			next, err := l.resubscribe(ctx)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					l.setState(StateDone)
					return found, ctxErr
				}
				l.setState(StateFailed)
				return found, fmt.Errorf("%w: %v", ErrListenerClosed, err)
			}
			sub = next
			l.setState(StateSubscribed)
			continue
		}

		d, ok, err := l.handleEvent(ctx, event)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				l.setState(StateDone)
				return found, ctxErr
			}
			l.setState(StateFailed)
			l.recordFailure(err)
			l.logger.Error("Pool detection failed", zap.Error(err))
			continue
		}
		if !ok {
			l.setState(StateSubscribed)
			continue
		}

		found = append(found, d)
		l.recordDiscovery(d)
		if l.cfg.Mode != ModeActive {
			l.setState(StateDone)
			return found, nil
		}
		l.setState(StateSubscribed)
	}
}

func (l *DiscoveryListener) recordFailure(err error) {
	var de *DiscoveryError
	if errors.As(err, &de) {
		l.metrics.RecordDiscoveryFailure(de.Stage.String())
	}
}

func (l *DiscoveryListener) recordDiscovery(d Discovery) {
	l.metrics.RecordPoolDiscovered(l.cfg.Mode.String())
	for mint, amount := range d.Reserves {
		l.metrics.UpdatePoolLiquidity(d.PoolKey.ID.String(), mint.String(), amount.InexactFloat64())
	}
}

func (l *DiscoveryListener) resubscribe(ctx context.Context) (eventlistener.Subscription, error) {
	notify := func(err error, d time.Duration) {
		l.logger.Warn("Resubscribe failed", zap.Error(err), zap.Duration("backoff", d))
	}
	return backoff.Retry(ctx, func() (eventlistener.Subscription, error) {
		return l.subscriber.Subscribe(ctx, l.cfg.Program)
	}, backoff.WithBackOff(l.newBackOff()), backoff.WithNotify(notify))
}

// handleEvent проводит одно событие через Filtering → Fetching → Extracting → Publishing.
// ok == false означает, что событие пропущено без побочных эффектов.
func (l *DiscoveryListener) handleEvent(ctx context.Context, event *eventlistener.Event) (Discovery, bool, error) {
	log := logger.WithSignature(l.logger, event.Signature)

	if event.Failed() {
		log.Warn("Skipping failed transaction", zap.Any("err", event.Err))
		return Discovery{}, false, nil
	}

	l.setState(StateFiltering)
	if !l.filter(*event) {
		log.Debug("Ignoring event without marker")
		return Discovery{}, false, nil
	}

	l.setState(StateFetching)
	tx, err := l.fetcher.GetParsedTransaction(ctx, event.Signature)
	if err != nil {
		return Discovery{}, false, &DiscoveryError{Stage: StateFetching, Signature: event.Signature, Err: err}
	}
	if tx == nil {
		return Discovery{}, false, &DiscoveryError{Stage: StateFetching, Signature: event.Signature, Err: ErrPoolNotFound}
	}

	l.setState(StateExtracting)
	key, err := ExtractPoolKey(tx, l.cfg.Layout, l.cfg.ExtractOptions...)
	if err != nil {
		return Discovery{}, false, &DiscoveryError{Stage: StateExtracting, Signature: event.Signature, Err: err}
	}
	reserves, err := ExtractInitialReserves(tx, key)
	if err != nil {
		return Discovery{}, false, &DiscoveryError{Stage: StateExtracting, Signature: event.Signature, Err: err}
	}

	d := Discovery{
		PoolKey:    key,
		Reserves:   reserves,
		Signature:  event.Signature,
		Slot:       event.Slot,
		DetectedAt: l.now(),
	}

	l.setState(StatePublishing)
	published, err := l.publish(ctx, d)
	if err != nil {
		return Discovery{}, false, &DiscoveryError{Stage: StatePublishing, Signature: event.Signature, Err: err}
	}
	if !published {
		log.Info("Pool already published", zap.String("pool", key.ID.String()))
		return Discovery{}, false, nil
	}

	log.Info("New pool published",
		zap.String("pool", key.ID.String()),
		zap.String("mint_a", key.MintA.Address.String()),
		zap.String("mint_b", key.MintB.Address.String()),
		zap.String("reserve_a", reserves[key.MintA.Address].String()),
		zap.String("reserve_b", reserves[key.MintB.Address].String()))
	return d, true, nil
}

// publish записывает PoolKey под тремя ключами, резервы и уведомление.
// При ошибке уже записанные ключи удаляются. В active режиме запись идёт
// под блокировкой пула, а уже опубликованный пул пропускается.
func (l *DiscoveryListener) publish(ctx context.Context, d Discovery) (bool, error) {
	key := d.PoolKey
	idKey := PoolKeyCacheKey(key.ID)

	if l.cfg.Mode == ModeActive {
		lockKey := PoolLockKey(key.ID)
		acquired, err := l.store.Lock(ctx, lockKey, l.owner, l.cfg.LockTTL)
		if err != nil {
			return false, fmt.Errorf("lock %s: %w", lockKey, err)
		}
		if !acquired {
			return false, nil
		}
		defer func() {
			if _, err := l.store.Unlock(context.WithoutCancel(ctx), lockKey, l.owner); err != nil {
				l.logger.Warn("Failed to release pool lock", zap.String("key", lockKey), zap.Error(err))
			}
		}()

		if _, err := l.store.Get(ctx, idKey); err == nil {
			return false, nil
		} else if !errors.Is(err, storage.ErrNotFound) {
			return false, fmt.Errorf("check %s: %w", idKey, err)
		}
	}

	encoded, err := json.Marshal(key)
	if err != nil {
		return false, fmt.Errorf("encode pool key: %w", err)
	}
	snapshot := NewReservesSnapshot(d.Reserves, d.DetectedAt)
	encodedReserves, err := json.Marshal(snapshot)
	if err != nil {
		return false, fmt.Errorf("encode reserves: %w", err)
	}

	writes := []struct {
		key   string
		value string
		ttl   time.Duration
	}{
		{idKey, string(encoded), l.cfg.PoolKeyTTL},
		{PairCacheKey(key.MintA.Address, key.MintB.Address), string(encoded), l.cfg.PoolKeyTTL},
		{PairCacheKey(key.MintB.Address, key.MintA.Address), string(encoded), l.cfg.PoolKeyTTL},
		{ReservesCacheKey(key.MintA.Address, key.MintB.Address), string(encodedReserves), l.cfg.ReservesTTL},
	}

	written := make([]string, 0, len(writes))
	for _, w := range writes {
		if err := l.store.Set(ctx, w.key, w.value, w.ttl); err != nil {
			l.rollback(ctx, written)
			return false, fmt.Errorf("set %s: %w", w.key, err)
		}
		written = append(written, w.key)
	}

	if l.cfg.Channel == "" {
		return true, nil
	}
	msg, err := json.Marshal(poolNotification{
		PoolKey:   key,
		Reserves:  snapshot,
		Signature: d.Signature.String(),
		Slot:      d.Slot,
	})
	if err != nil {
		l.rollback(ctx, written)
		return false, fmt.Errorf("encode notification: %w", err)
	}
	if err := l.store.Publish(ctx, l.cfg.Channel, string(msg)); err != nil {
		l.rollback(ctx, written)
		return false, fmt.Errorf("publish %s: %w", l.cfg.Channel, err)
	}
	return true, nil
}

func (l *DiscoveryListener) rollback(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	if err := l.store.Delete(context.WithoutCancel(ctx), keys...); err != nil {
		l.logger.Error("Rollback failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
