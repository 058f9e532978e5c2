package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "errors"
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/storefront-api/internal/service"
)

// Context keys set by JWTAuth.
const (
    CtxUserID    = "user_id"
    CtxSessionID = "session_id"
)

// TokenVerifier checks an access token without a store lookup.
type TokenVerifier interface {
    VerifyAccess(raw string) (service.Identity, error)
}

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// injects the token's user and session ids into the request context. Handlers
// read them via `c.Get("user_id")` (uint64) and `c.Get("session_id")`.
// An expired token is reported separately so clients know to call refresh.
func JWTAuth(v TokenVerifier) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            raw, ok := BearerToken(c)
            if !ok {
                return c.JSON(http.StatusUnauthorized, echo.Map{"message": "no token"})
            }
            id, err := v.VerifyAccess(raw)
            if err != nil {
                if errors.Is(err, service.ErrTokenExpired) {
                    return c.JSON(http.StatusUnauthorized, echo.Map{"message": "token expired"})
                }
                return c.JSON(http.StatusUnauthorized, echo.Map{"message": "invalid token"})
            }
            c.Set(CtxUserID, id.UserID)
            c.Set(CtxSessionID, id.SessionID)
            return next(c)
        }
    }
}

// BearerToken extracts the raw token from the Authorization header.
func BearerToken(c echo.Context) (string, bool) {
    auth := c.Request().Header.Get(echo.HeaderAuthorization)
    const prefix = "Bearer "
    if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
        return "", false
    }
    raw := strings.TrimSpace(auth[len(prefix):])
    return raw, raw != ""
}
