package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront-api/internal/middleware"
)

// RegisterCatalog registers /products. Reads are public and served through
// the Redis cache; writes need a token and invalidate the cache.
func RegisterCatalog(api *echo.Group, d Deps) {
	cache := middleware.NewRedisCache(d.Cache, d.Redis, d.Log)
	invalidate := middleware.NewCacheInvalidator(d.Cache, d.Redis, d.Log)
	jwt := middleware.JWTAuth(d.Verifier)

	g := api.Group("/products")
	g.GET("", d.Products.List, cache)
	g.GET("/user/:userId", d.Products.ListByOwner, cache)
	g.GET("/:id", d.Products.Get, cache)

	g.POST("", d.Products.Create, jwt, invalidate)
	g.PUT("/:id", d.Products.Update, jwt, invalidate)
	g.DELETE("/:id", d.Products.Delete, jwt, invalidate)
	g.PUT("/:id/image", d.Products.UploadImage, jwt, invalidate)
}
