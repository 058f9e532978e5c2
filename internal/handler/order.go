package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront-api/internal/model"
)

// OrderReader is implemented by repository.OrderRepo.
type OrderReader interface {
	ListByUser(ctx context.Context, userID uint64) ([]model.Order, error)
	GetByIDForUser(ctx context.Context, orderID, userID uint64) (*model.Order, error)
}

// OrderHandler exposes the caller's order history.
type OrderHandler struct {
	orders OrderReader
	log    *zap.Logger
}

func NewOrderHandler(orders OrderReader, log *zap.Logger) *OrderHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderHandler{orders: orders, log: log}
}

// List returns the caller's orders, newest first.
func (h *OrderHandler) List(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	orders, err := h.orders.ListByUser(ctx, uid)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, orders)
}

// Get returns one order. Orders of other users are reported as not found.
func (h *OrderHandler) Get(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid order id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	o, err := h.orders.GetByIDForUser(ctx, id, uid)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, o)
}
