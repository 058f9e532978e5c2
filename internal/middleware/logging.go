package middleware

import (
    "fmt"
    "net/http"
    "runtime/debug"
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"
)

// RequestLogger writes one line per request. Bodies are never logged.
func RequestLogger(log *zap.Logger) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            err := next(c)
            if err != nil {
                // let echo's error handler fill in the status before we read it
                c.Error(err)
            }
            req := c.Request()
            res := c.Response()
            fields := []zap.Field{
                zap.String("method", req.Method),
                zap.String("path", req.URL.Path),
                zap.Int("status", res.Status),
                zap.Duration("duration", time.Since(start)),
                zap.String("remote_ip", c.RealIP()),
                zap.Int64("bytes_out", res.Size),
            }
            switch {
            case res.Status >= http.StatusInternalServerError:
                log.Error("request", fields...)
            case res.Status >= http.StatusBadRequest:
                log.Warn("request", fields...)
            default:
                log.Info("request", fields...)
            }
            return nil
        }
    }
}

// Recover turns a panic into a 500 response and logs the stack.
func Recover(log *zap.Logger) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) (err error) {
            defer func() {
                if r := recover(); r != nil {
                    if r == http.ErrAbortHandler {
                        panic(r)
                    }
                    log.Error("panic recovered",
                        zap.String("panic", fmt.Sprint(r)),
                        zap.String("path", c.Request().URL.Path),
                        zap.ByteString("stack", debug.Stack()),
                    )
                    err = c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal server error"})
                }
            }()
            return next(c)
        }
    }
}
