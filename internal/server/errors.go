package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aman-zulfiqar/solana-bonding-curve/internal/cache"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/models"
)

// NotFoundJSON returns a custom HTTP error handler that returns JSON responses
// This ensures all errors (including 404s) have consistent JSON format
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

// statusFor maps pool errors to HTTP status codes.
func statusFor(err error) int {
	var terr *models.TransferError
	switch {
	case errors.Is(err, models.ErrUninitialized):
		return http.StatusNotFound
	case errors.Is(err, models.ErrAlreadyInitialized), errors.Is(err, models.ErrSlippageExceeded):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrInsufficientLiquidity),
		errors.Is(err, models.ErrInsufficientReserve),
		errors.Is(err, models.ErrArithmeticOverflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusForbidden
	case errors.As(err, &terr):
		return http.StatusBadGateway
	case errors.Is(err, cache.ErrPoolBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
