// internal/eventlistener/listener.go
package eventlistener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/rovshanmuradov/raydium-watcher/internal/utils/metrics"
	"go.uber.org/zap"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 2 * time.Second
	maxAttempts    = 5
)

// ErrSubscriptionClosed - поток событий закрыт сервером или Unsubscribe.
var ErrSubscriptionClosed = errors.New("log subscription closed")

// WSSubscriber открывает logsSubscribe через websocket RPC узла.
type WSSubscriber struct {
	wsURL      string
	commitment rpc.CommitmentType
	logger     *zap.Logger
	metrics    *metrics.Collector
}

// NewWSSubscriber создаёт подписчика для websocket-эндпоинта.
func NewWSSubscriber(wsURL string, commitment rpc.CommitmentType, logger *zap.Logger) *WSSubscriber {
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}
	return &WSSubscriber{
		wsURL:      wsURL,
		commitment: commitment,
		logger:     logger.Named("ws-subscriber"),
	}
}

// SetMetrics включает учёт активных подписок.
func (s *WSSubscriber) SetMetrics(m *metrics.Collector) {
	s.metrics = m
}

// Subscribe подключается к узлу (с повторами) и подписывается на логи, упоминающие program.
func (s *WSSubscriber) Subscribe(ctx context.Context, program solana.PublicKey) (Subscription, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = initialBackoff
	policy.MaxInterval = maxBackoff

	notify := func(err error, d time.Duration) {
		s.logger.Warn("WebSocket connect failed, retrying", zap.Error(err), zap.Duration("backoff", d))
	}

	client, err := backoff.Retry(ctx, func() (*ws.Client, error) {
		return ws.Connect(ctx, s.wsURL)
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(maxAttempts), backoff.WithNotify(notify))
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", s.wsURL, err)
	}

	sub, err := client.LogsSubscribeMentions(program, s.commitment)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("logsSubscribe %s: %w", program, err)
	}

	s.logger.Info("Subscribed to program logs",
		zap.String("program", program.String()),
		zap.String("commitment", string(s.commitment)))

	s.metrics.UpdateWebsocketConnections(program.String(), 1)
	return &wsSubscription{
		client: client,
		sub:    sub,
		onClose: func() {
			s.metrics.UpdateWebsocketConnections(program.String(), -1)
		},
	}, nil
}

type wsSubscription struct {
	client    *ws.Client
	sub       *ws.LogSubscription
	onClose   func()
	closeOnce sync.Once
}

func (w *wsSubscription) Recv(ctx context.Context) (*Event, error) {
	res, err := w.sub.Recv(ctx)
	if err != nil {
		if errors.Is(err, ws.ErrSubscriptionClosed) {
			return nil, ErrSubscriptionClosed
		}
		return nil, err
	}
	return &Event{
		Signature: res.Value.Signature,
		Slot:      res.Context.Slot,
		Logs:      res.Value.Logs,
		Err:       res.Value.Err,
	}, nil
}

func (w *wsSubscription) Unsubscribe() {
	w.closeOnce.Do(func() {
		w.sub.Unsubscribe()
		w.client.Close()
		if w.onClose != nil {
			w.onClose()
		}
	})
}
