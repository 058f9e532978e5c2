package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront-api/internal/gateway/yookassa"
	"github.com/iliyamo/storefront-api/internal/service"
)

// gatewayTimeout covers a gateway call including its retries.
const gatewayTimeout = 20 * time.Second

// Payments is implemented by service.PaymentService.
type Payments interface {
	CreatePayment(ctx context.Context, userID uint64) (service.Checkout, error)
	HandleWebhook(ctx context.Context, n yookassa.Notification) (service.Ack, error)
}

// PaymentHandler starts checkouts and receives gateway notifications.
type PaymentHandler struct {
	payments Payments
	log      *zap.Logger
}

func NewPaymentHandler(payments Payments, log *zap.Logger) *PaymentHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &PaymentHandler{payments: payments, log: log}
}

// Create turns the caller's cart into a pending order and returns the
// gateway confirmation URL.
func (h *PaymentHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), gatewayTimeout)
	defer cancel()

	out, err := h.payments.CreatePayment(ctx, uid)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, out)
}

// Webhook answers in plain text. Anything but 200 makes the gateway
// redeliver, so only internal failures produce a 500.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	var n yookassa.Notification
	if err := c.Bind(&n); err != nil {
		h.log.Warn("webhook: malformed payload", zap.Error(err))
		return c.String(http.StatusBadRequest, "BAD REQUEST")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), gatewayTimeout)
	defer cancel()

	ack, err := h.payments.HandleWebhook(ctx, n)
	if err != nil {
		h.log.Error("webhook failed",
			zap.String("event", n.Event),
			zap.String("payment_id", n.Object.ID),
			zap.Error(err),
		)
		return c.String(http.StatusInternalServerError, "ERROR")
	}
	return c.String(http.StatusOK, string(ack))
}
