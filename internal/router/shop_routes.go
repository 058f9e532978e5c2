package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront-api/internal/middleware"
)

// RegisterShop registers cart, order and payment endpoints. All of them act
// as the user in the access token, except the gateway webhook.
func RegisterShop(api *echo.Group, d Deps) {
	jwt := middleware.JWTAuth(d.Verifier)

	carts := api.Group("/carts", jwt)
	carts.GET("", d.Carts.List)
	carts.POST("", d.Carts.Add)
	carts.DELETE("/:productId", d.Carts.Remove)

	orders := api.Group("/orders", jwt)
	orders.GET("", d.Orders.List)
	orders.GET("/:id", d.Orders.Get)

	pay := api.Group("/payment")
	pay.POST("/create", d.Payments.Create, jwt)
	pay.POST("/webhook", d.Payments.Webhook)
}
