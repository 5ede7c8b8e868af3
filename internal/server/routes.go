// internal/server/routes.go
package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// RegisterRoutes регистрирует маршруты, middleware и обработчик ошибок.
func RegisterRoutes(e *echo.Echo, h *Handlers, cfg ServerConfig) {
	e.HTTPErrorHandler = NotFoundJSON()
	e.Use(SetNoCacheHeaders)

	e.GET("/health", h.Health)
	e.GET("/pools/:id", h.PoolByID)
	e.GET("/pools", h.PoolByMints)

	quote := e.Group("/quote")
	if cfg.QuoteRateLimit > 0 {
		burst := int(cfg.QuoteRateLimit)
		if burst < 1 {
			burst = 1
		}
		quote.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(cfg.QuoteRateLimit),
			Burst:     burst,
			ExpiresIn: 2 * time.Minute,
		})))
	}
	quote.GET("", h.Quote)

	if h.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.Metrics.Handler()))
	}

	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})
}
