// internal/bot/runner.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/raydium-watcher/internal/blockchain/solbc"
	"github.com/rovshanmuradov/raydium-watcher/internal/blockchain/solbc/rpc"
	"github.com/rovshanmuradov/raydium-watcher/internal/config"
	"github.com/rovshanmuradov/raydium-watcher/internal/dex/raydium"
	"github.com/rovshanmuradov/raydium-watcher/internal/eventlistener"
	"github.com/rovshanmuradov/raydium-watcher/internal/server"
	"github.com/rovshanmuradov/raydium-watcher/internal/storage"
	"github.com/rovshanmuradov/raydium-watcher/internal/utils/metrics"
)

// ErrNoWebSocket - discovery запрошен без websocket_url.
var ErrNoWebSocket = errors.New("websocket_url is required for discovery")

// Runner собирает компоненты приложения из конфигурации.
type Runner struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *metrics.Collector
	store    storage.Store
	client   *solbc.Client
	quotes   *raydium.QuoteService
	shutdown *ShutdownHandler

	newSubscriber func() eventlistener.Subscriber
}

// NewRunner открывает хранилище и RPC и собирает сервис котировок.
// Всё открытое регистрируется в ShutdownHandler и закрывается через Close.
func NewRunner(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Runner, error) {
	r := &Runner{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics.NewCollector(),
		shutdown: NewShutdownHandler(logger, 30*time.Second),
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	r.store = store
	r.shutdown.Add("store", store)

	commitment := solanarpc.CommitmentType(cfg.Commitment)
	client, err := solbc.NewClient(cfg.RPCList, commitment, logger,
		rpc.WithRetries(uint(cfg.Retries)),
		rpc.WithTimeout(cfg.RPCTimeout),
		rpc.WithMetrics(r.metrics),
	)
	if err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("create rpc client: %w", err)
	}
	r.client = client
	r.shutdown.Add("rpc", client)

	api := raydium.NewAPIClient(cfg.RaydiumAPIURL, logger,
		raydium.WithRateLimit(cfg.APIRateLimit, 1),
		raydium.WithAPIRetries(uint(cfg.Retries)),
	)
	onChain := raydium.NewOnChainKeyFetcher(client, logger)

	quotes, err := raydium.NewQuoteService(raydium.QuoteServiceConfig{
		ReferenceMint: cfg.ReferenceMintKey(),
		DefaultFeeBps: cfg.DefaultFeeBps,
		ReservesTTL:   cfg.ReservesTTL,
		PoolKeyTTL:    cfg.PoolKeyTTL,
		LRUSize:       cfg.LRUSize,
	}, store, api, []raydium.PoolKeySource{api, onChain}, client, logger)
	if err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("create quote service: %w", err)
	}
	quotes.SetMetrics(r.metrics)
	r.quotes = quotes

	r.newSubscriber = func() eventlistener.Subscriber {
		s := eventlistener.NewWSSubscriber(cfg.WebSocketURL, commitment, logger)
		s.SetMetrics(r.metrics)
		return s
	}
	return r, nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.CacheBackend {
	case "memory":
		store, err := storage.NewMemoryStore()
		if err != nil {
			return nil, fmt.Errorf("open memory store: %w", err)
		}
		return store, nil
	default:
		store, err := storage.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		return store, nil
	}
}

// Metrics возвращает коллектор, общий для всех компонентов.
func (r *Runner) Metrics() *metrics.Collector {
	return r.metrics
}

// Store возвращает открытое хранилище.
func (r *Runner) Store() storage.Store {
	return r.store
}

func (r *Runner) discoveryConfig(mode raydium.ListenerMode) raydium.DiscoveryConfig {
	layout := raydium.RaydiumV4Initialize2
	layout.ProgramID = r.cfg.LiquidityProgramID()

	return raydium.DiscoveryConfig{
		Program: r.cfg.MigrationProgramID(),
		Marker:  r.cfg.InitMarker,
		Mode:    mode,
		Layout:  layout,
		ExtractOptions: []raydium.ExtractOption{
			raydium.WithMintDecimals(r.cfg.MintADecimals, r.cfg.MintBDecimals),
		},
		PoolKeyTTL:  r.cfg.PoolKeyTTL,
		ReservesTTL: r.cfg.ReservesTTL,
		LockTTL:     r.cfg.LockTTL,
		Channel:     raydium.NewPoolsChannel,
	}
}

// Discover запускает слушатель новых пулов в режиме из конфигурации.
// discovery_timeout ограничивает ожидание; по его истечении возвращается
// context.DeadlineExceeded вместе с уже найденными пулами.
func (r *Runner) Discover(ctx context.Context) ([]raydium.Discovery, error) {
	if r.cfg.WebSocketURL == "" {
		return nil, ErrNoWebSocket
	}
	mode, err := raydium.ParseListenerMode(r.cfg.ListenerMode)
	if err != nil {
		return nil, err
	}

	if r.cfg.DiscoveryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.DiscoveryTimeout)
		defer cancel()
	}

	listener := raydium.NewDiscoveryListener(r.discoveryConfig(mode), r.newSubscriber(), r.client, r.store, r.logger)
	listener.SetMetrics(r.metrics)
	return listener.Run(ctx)
}

// Quote считает одну котировку.
func (r *Runner) Quote(ctx context.Context, req raydium.QuoteRequest) (*raydium.Quote, error) {
	return r.quotes.Quote(ctx, req)
}

func (r *Runner) newServer() (*server.Server, error) {
	return server.New(server.ServerDeps{
		Handlers: &server.Handlers{
			Quotes:  r.quotes,
			Store:   r.store,
			Metrics: r.metrics,
			DevMode: r.cfg.DebugLogging,
			Logger:  r.logger,
			Timeout: r.cfg.RPCTimeout,
		},
		Config: server.ServerConfig{
			Addr:           r.cfg.HTTPAddr,
			DevMode:        r.cfg.DebugLogging,
			QuoteRateLimit: r.cfg.QuoteRateLimit,
		},
		Logger: r.logger,
	})
}

// Serve поднимает HTTP API до отмены ctx. В active режиме с заданным
// websocket_url параллельно работает слушатель новых пулов.
func (r *Runner) Serve(ctx context.Context) error {
	srv, err := r.newServer()
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return srv.Shutdown(context.Background())
	})

	if r.cfg.WebSocketURL != "" && r.cfg.ListenerMode == raydium.ModeActive.String() {
		g.Go(func() error {
			pools, err := r.Discover(gctx)
			r.logger.Info("Discovery stopped", zap.Int("pools", len(pools)))
			if err != nil && gctx.Err() == nil && !errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("discovery: %w", err)
			}
			return nil
		})
	}

	err = g.Wait()

	// Shutdown уже вызван горутиной выше, дожидаемся его завершения
	waitCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if werr := srv.WaitClosed(waitCtx); werr != nil && err == nil {
		err = fmt.Errorf("wait http shutdown: %w", werr)
	}
	return err
}

// Close закрывает RPC и хранилище.
func (r *Runner) Close(ctx context.Context) error {
	return r.shutdown.Shutdown(ctx)
}
