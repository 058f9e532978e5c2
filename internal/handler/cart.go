package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront-api/internal/model"
)

// CartStore is implemented by repository.CartRepo.
type CartStore interface {
	Add(ctx context.Context, userID, productID uint64, quantity int) error
	Remove(ctx context.Context, userID, productID uint64) error
	Lines(ctx context.Context, userID uint64) ([]model.CartLine, error)
}

// CartHandler serves the caller's cart. The acting user always comes from
// the access token.
type CartHandler struct {
	carts CartStore
	log   *zap.Logger
}

func NewCartHandler(carts CartStore, log *zap.Logger) *CartHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CartHandler{carts: carts, log: log}
}

type addToCartReq struct {
	ProductID uint64 `json:"productId"`
	Quantity  *int   `json:"quantity"`
}

// List returns the cart lines with live product data.
func (h *CartHandler) List(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	return h.respondLines(ctx, c, uid)
}

// Add puts a product into the cart; quantity defaults to 1.
func (h *CartHandler) Add(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}
	var req addToCartReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.ProductID == 0 {
		return badRequest(c, "productId is required")
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	if qty < 1 {
		return badRequest(c, "quantity must be at least 1")
	}

	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := h.carts.Add(ctx, uid, req.ProductID, qty); err != nil {
		return writeError(c, h.log, err)
	}
	return h.respondLines(ctx, c, uid)
}

// Remove drops a product from the cart.
func (h *CartHandler) Remove(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}
	pid, ok := paramID(c, "productId")
	if !ok {
		return badRequest(c, "invalid product id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := h.carts.Remove(ctx, uid, pid); err != nil {
		return writeError(c, h.log, err)
	}
	return h.respondLines(ctx, c, uid)
}

func (h *CartHandler) respondLines(ctx context.Context, c echo.Context, uid uint64) error {
	lines, err := h.carts.Lines(ctx, uid)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, lines)
}
