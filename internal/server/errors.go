// internal/server/errors.go
package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rovshanmuradov/raydium-watcher/internal/dex/raydium"
)

// NotFoundJSON отдаёт ошибки echo в едином JSON формате.
func NotFoundJSON() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			_ = c.JSON(he.Code, ErrorResponse{
				Error: http.StatusText(he.Code),
				Code:  he.Code,
			})
			return
		}

		_ = c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "internal server error",
			Code:  http.StatusInternalServerError,
		})
	}
}

// statusFor переводит ошибки котирования в HTTP статус.
func statusFor(err error) int {
	var ve *raydium.ValidationError
	switch {
	case errors.As(err, &ve),
		errors.Is(err, raydium.ErrNotReferencePair),
		errors.Is(err, raydium.ErrAmbiguousAmount),
		errors.Is(err, raydium.ErrMissingAmount),
		errors.Is(err, raydium.ErrInvalidAmount),
		errors.Is(err, raydium.ErrInvalidFee):
		return http.StatusBadRequest
	case errors.Is(err, raydium.ErrPoolNotFound),
		errors.Is(err, raydium.ErrReservesNotFound):
		return http.StatusNotFound
	case errors.Is(err, raydium.ErrZeroReserves),
		errors.Is(err, raydium.ErrDivisionByZero),
		errors.Is(err, raydium.ErrAuthorityNotFound):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}
