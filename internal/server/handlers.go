// internal/server/handlers.go
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/labstack/echo/v4"
	"github.com/rovshanmuradov/raydium-watcher/internal/dex/raydium"
	"github.com/rovshanmuradov/raydium-watcher/internal/storage"
	"github.com/rovshanmuradov/raydium-watcher/internal/utils/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// healthKey читается при проверке хранилища, промах означает, что хранилище живо.
const healthKey = "health:ping"

// QuoteAPI - то, что HTTP слой использует из raydium.QuoteService.
type QuoteAPI interface {
	GetPoolAddress(ctx context.Context, a, b solana.PublicKey) (raydium.PoolAddress, error)
	GetPoolKey(ctx context.Context, id solana.PublicKey) (*raydium.PoolKey, error)
	Quote(ctx context.Context, req raydium.QuoteRequest) (*raydium.Quote, error)
}

// Handlers - зависимости обработчиков API.
type Handlers struct {
	Quotes  QuoteAPI
	Store   storage.Store
	Metrics *metrics.Collector
	DevMode bool
	Logger  *zap.Logger
	Timeout time.Duration
}

// err пишет ошибку в едином формате, в dev режиме добавляет details.
func (h *Handlers) err(c echo.Context, code int, msg string, details any) error {
	resp := ErrorResponse{Error: msg, Code: code}
	if h.DevMode && details != nil {
		resp.Details = details
	}
	return c.JSON(code, resp)
}

func (h *Handlers) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	d := h.Timeout
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

// Health проверяет доступность хранилища.
func (h *Handlers) Health(c echo.Context) error {
	if h.Store == nil {
		return c.JSON(http.StatusOK, HealthResponse{OK: true, Store: "none"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if _, err := h.Store.Get(ctx, healthKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		if h.Logger != nil {
			h.Logger.Warn("Store health check failed", zap.Error(err))
		}
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{OK: false, Store: "unavailable"})
	}
	return c.JSON(http.StatusOK, HealthResponse{OK: true, Store: "ok"})
}

// PoolByID возвращает PoolKey по адресу пула.
func (h *Handlers) PoolByID(c echo.Context) error {
	id, err := solana.PublicKeyFromBase58(strings.TrimSpace(c.Param("id")))
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid pool id", map[string]any{"id": err.Error()})
	}

	ctx, cancel := h.withTimeout(c.Request().Context())
	defer cancel()

	key, err := h.Quotes.GetPoolKey(ctx, id)
	if err != nil {
		return h.quoteErr(c, "pool lookup failed", err)
	}
	return c.JSON(http.StatusOK, PoolResponse{PoolKey: key})
}

// PoolByMints разрешает пару минтов в пул: /pools?mint1=&mint2=
func (h *Handlers) PoolByMints(c echo.Context) error {
	mint1, err := parseMint(c, "mint1")
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid mint1", map[string]any{"mint1": err.Error()})
	}
	mint2, err := parseMint(c, "mint2")
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid mint2", map[string]any{"mint2": err.Error()})
	}

	ctx, cancel := h.withTimeout(c.Request().Context())
	defer cancel()

	addr, err := h.Quotes.GetPoolAddress(ctx, mint1, mint2)
	if err != nil {
		return h.quoteErr(c, "pool lookup failed", err)
	}
	key, err := h.Quotes.GetPoolKey(ctx, addr.ID)
	if err != nil {
		return h.quoteErr(c, "pool lookup failed", err)
	}
	return c.JSON(http.StatusOK, PoolResponse{Source: addr.Source, FeeBps: addr.FeeBps, PoolKey: key})
}

// Quote: /quote?tokenA=&tokenB=&side=buy|sell&amount=&isTokenBAmount=&price=&slippage=
func (h *Handlers) Quote(c echo.Context) error {
	req, details := parseQuoteRequest(c)
	if details != nil {
		return h.err(c, http.StatusBadRequest, "invalid quote request", details)
	}

	ctx, cancel := h.withTimeout(c.Request().Context())
	defer cancel()

	q, err := h.Quotes.Quote(ctx, req)
	if err != nil {
		return h.quoteErr(c, "quote failed", err)
	}
	return c.JSON(http.StatusOK, NewQuoteResponse(q))
}

func (h *Handlers) quoteErr(c echo.Context, msg string, err error) error {
	code := statusFor(err)
	if code >= http.StatusInternalServerError && h.Logger != nil {
		h.Logger.Error(msg, zap.String("uri", c.Request().RequestURI), zap.Error(err))
	}
	return h.err(c, code, msg, map[string]any{"err": err.Error()})
}

func parseMint(c echo.Context, name string) (solana.PublicKey, error) {
	v := strings.TrimSpace(c.QueryParam(name))
	if v == "" {
		return solana.PublicKey{}, errors.New("required")
	}
	return solana.PublicKeyFromBase58(v)
}

func parseDecimal(c echo.Context, name string, details map[string]any) decimal.Decimal {
	v := strings.TrimSpace(c.QueryParam(name))
	if v == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		details[name] = "must be a decimal number"
		return decimal.Zero
	}
	return d
}

// parseQuoteRequest собирает запрос; details != nil означает ошибку параметров.
func parseQuoteRequest(c echo.Context) (raydium.QuoteRequest, map[string]any) {
	details := map[string]any{}
	var req raydium.QuoteRequest

	var err error
	if req.TokenA, err = parseMint(c, "tokenA"); err != nil {
		details["tokenA"] = err.Error()
	}
	if req.TokenB, err = parseMint(c, "tokenB"); err != nil {
		details["tokenB"] = err.Error()
	}
	if req.Side, err = raydium.ParseQuoteSide(c.QueryParam("side")); err != nil {
		details["side"] = "must be buy or sell"
	}
	if v := strings.TrimSpace(c.QueryParam("isTokenBAmount")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			details["isTokenBAmount"] = "must be boolean"
		}
		req.IsTokenBAmount = b
	}
	req.Amount = parseDecimal(c, "amount", details)
	req.Price = parseDecimal(c, "price", details)
	req.Slippage = parseDecimal(c, "slippage", details)

	if len(details) > 0 {
		return req, details
	}
	return req, nil
}
