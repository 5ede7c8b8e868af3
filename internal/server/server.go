// internal/server/server.go
package server

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// ServerConfig - параметры HTTP сервера.
type ServerConfig struct {
	Addr    string // адрес, например ":8080"
	DevMode bool   // подробности ошибок в ответах
	// QuoteRateLimit - запросов в секунду на клиента для /quote, 0 отключает ограничение.
	QuoteRateLimit float64
}

// ServerDeps - зависимости для New.
type ServerDeps struct {
	Handlers *Handlers
	Config   ServerConfig
	Logger   *zap.Logger
}

// Server - echo с управлением жизненным циклом.
type Server struct {
	e      *echo.Echo
	cfg    ServerConfig
	logger *zap.Logger
	closed chan struct{}
}

// New собирает сервер и регистрирует маршруты.
func New(deps ServerDeps) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(requestLogger(logger))

	e.Server.ReadTimeout = 15 * time.Second
	e.Server.WriteTimeout = 30 * time.Second
	e.Server.IdleTimeout = 60 * time.Second

	RegisterRoutes(e, deps.Handlers, deps.Config)

	return &Server{e: e, cfg: deps.Config, logger: logger, closed: make(chan struct{})}, nil
}

// Echo отдаёт роутер (нужен тестам).
func (s *Server) Echo() *echo.Echo {
	return s.e
}

// Start блокируется до остановки сервера.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.cfg.Addr))
	return s.e.Start(s.cfg.Addr)
}

// Shutdown останавливает сервер, не дольше 10 секунд.
func (s *Server) Shutdown(ctx context.Context) error {
	defer close(s.closed)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.e.Shutdown(ctx)
}

// WaitClosed ждёт завершения Shutdown или отмены ctx.
func (s *Server) WaitClosed(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return nil
	}
}

// requestLogger пишет запросы в zap вместо стандартного логгера echo.
func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogMethod:  true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				logger.Warn("request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Debug("request", fields...)
			return nil
		},
	})
}

// SetNoCacheHeaders запрещает кэширование ответов API.
func SetNoCacheHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set("Cache-Control", "no-store")
		return next(c)
	}
}
