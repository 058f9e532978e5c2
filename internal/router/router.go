package router // package router defines how HTTP routes are registered for the API

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront-api/internal/config"
	"github.com/iliyamo/storefront-api/internal/handler"
	"github.com/iliyamo/storefront-api/internal/middleware"
)

// Deps carries everything the HTTP layer is built from.
type Deps struct {
	Auth     *handler.AuthHandler
	Profile  *handler.ProfileHandler
	Products *handler.ProductHandler
	Carts    *handler.CartHandler
	Orders   *handler.OrderHandler
	Payments *handler.PaymentHandler

	Verifier middleware.TokenVerifier
	DB       handler.Pinger
	Redis    *redis.Client // nil disables rate limiting and caching

	CORSOrigins []string
	RateLimit   config.RateLimitConfig
	Cache       config.CacheConfig
	Log         *zap.Logger
}

// New builds the Echo instance with global middleware and every route.
func New(d Deps) *echo.Echo {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover(d.Log))
	e.Use(middleware.RequestLogger(d.Log))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     d.CORSOrigins,
		AllowCredentials: true,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType},
	}))
	e.Use(echomw.BodyLimit("6M"))

	RegisterRoutes(e, d.DB)
	api := e.Group("/api")
	RegisterAuth(api, d)
	RegisterCatalog(api, d)
	RegisterShop(api, d)
	return e
}

// RegisterRoutes registers routes that do not require authentication:
// liveness and readiness probes.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	if db != nil {
		e.GET("/readyz", handler.Ready(db))
	}
}

// RegisterAuth registers the auth and profile routes. Everything under
// /auth sits behind the Redis rate limiter.
func RegisterAuth(api *echo.Group, d Deps) {
	jwt := middleware.JWTAuth(d.Verifier)

	g := api.Group("/auth", middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log))
	g.POST("/register", d.Auth.Register)
	g.POST("/login", d.Auth.Login)
	g.POST("/refresh", d.Auth.Refresh)
	g.POST("/logout", d.Auth.Logout, jwt)

	// Deleting an account removes its products, so cached catalog
	// responses are dropped too.
	p := api.Group("/users", jwt)
	p.GET("/profile", d.Profile.Get)
	p.PUT("/profile", d.Profile.Update)
	p.DELETE("/profile", d.Profile.Delete, middleware.NewCacheInvalidator(d.Cache, d.Redis, d.Log))
}
