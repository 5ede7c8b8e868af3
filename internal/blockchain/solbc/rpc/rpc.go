// internal/blockchain/solbc/rpc/rpc.go
package rpc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/rovshanmuradov/raydium-watcher/internal/utils/metrics"
	"go.uber.org/zap"
)

// Основные константы
const (
	defaultRetryAttempts = 3
	retryDelay           = 200 * time.Millisecond
	maxRetryDelay        = 2 * time.Second
	defaultTimeout       = 10 * time.Second
)

// RPCClient распределяет запросы по нескольким узлам и переключается на следующий при ошибке
type RPCClient struct {
	nodes   []*solanarpc.Client
	urls    []string
	current int
	mu      sync.Mutex
	logger  *zap.Logger
	metrics *metrics.Collector

	retries uint
	timeout time.Duration
}

// Option настраивает RPCClient
type Option func(*RPCClient)

// WithRetries задаёт число попыток на один запрос.
func WithRetries(n uint) Option {
	return func(c *RPCClient) {
		if n > 0 {
			c.retries = n
		}
	}
}

// WithTimeout задаёт общий таймаут запроса со всеми повторами.
func WithTimeout(d time.Duration) Option {
	return func(c *RPCClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMetrics включает учёт латентности запросов.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *RPCClient) {
		c.metrics = m
	}
}

// NewClient создает новый RPC клиент
func NewClient(urls []string, logger *zap.Logger, opts ...Option) (*RPCClient, error) {
	if len(urls) == 0 {
		return nil, ErrNoRPCNodes
	}

	nodes := make([]*solanarpc.Client, len(urls))
	for i, url := range urls {
		nodes[i] = solanarpc.New(url)
	}

	c := &RPCClient{
		nodes:   nodes,
		urls:    urls,
		logger:  logger.Named("rpc-client"),
		retries: defaultRetryAttempts,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// next возвращает текущий узел и сдвигает указатель на следующий
func (c *RPCClient) next() (*solanarpc.Client, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	node, url := c.nodes[c.current], c.urls[c.current]
	c.current = (c.current + 1) % len(c.nodes)
	return node, url
}

// ExecuteWithRetry выполняет RPC-запрос с автоматическим переключением узлов при ошибке.
// solanarpc.ErrNotFound не повторяется: другой узел ответит так же.
func (c *RPCClient) ExecuteWithRetry(ctx context.Context, method string, operation func(context.Context, *solanarpc.Client) error) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryDelay
	policy.MaxInterval = maxRetryDelay

	attempt := 0
	_, err := backoff.Retry(timeoutCtx, func() (struct{}, error) {
		attempt++
		node, url := c.next()

		start := time.Now()
		err := operation(timeoutCtx, node)
		c.metrics.RecordRPCLatency(method, time.Since(start), err == nil || errors.Is(err, solanarpc.ErrNotFound))
		if err == nil {
			return struct{}{}, nil
		}
		if errors.Is(err, solanarpc.ErrNotFound) {
			return struct{}{}, backoff.Permanent(err)
		}

		c.logger.Debug("RPC request failed, trying next node",
			zap.String("method", method),
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return struct{}{}, &Error{Method: method, NodeURL: url, Attempt: attempt, Err: err}
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(c.retries))

	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}

// URLs возвращает адреса узлов
func (c *RPCClient) URLs() []string {
	return append([]string(nil), c.urls...)
}

// Close закрывает соединения узлов
func (c *RPCClient) Close() error {
	var errs []error
	for _, node := range c.nodes {
		if err := node.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
