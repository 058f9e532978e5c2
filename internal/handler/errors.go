package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront-api/internal/repository"
	"github.com/iliyamo/storefront-api/internal/service"
)

// statusFor maps service and repository errors to an HTTP status and the
// message shown to the client. Unknown errors are internal.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrMissingData):
		return http.StatusBadRequest, "missing data"
	case errors.Is(err, service.ErrEmptyCart):
		return http.StatusBadRequest, "cart is empty"
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid email or password"
	case errors.Is(err, service.ErrNoToken):
		return http.StatusUnauthorized, "no token"
	case errors.Is(err, service.ErrTokenExpired):
		return http.StatusUnauthorized, "token expired"
	case errors.Is(err, service.ErrInvalidToken), errors.Is(err, service.ErrTokenInvalid):
		return http.StatusUnauthorized, "invalid token"
	case errors.Is(err, repository.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, service.ErrDuplicateEmail):
		return http.StatusConflict, "email already registered"
	case errors.Is(err, service.ErrUpstream):
		return http.StatusInternalServerError, "payment gateway error"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// writeError renders err as {"message": ...}. Server-side failures are
// logged with the original error; clients never see it.
func writeError(c echo.Context, log *zap.Logger, err error) error {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	return c.JSON(status, echo.Map{"message": msg})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"message": msg})
}
