package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront-api/internal/gateway/yookassa"
	"github.com/iliyamo/storefront-api/internal/model"
	"github.com/iliyamo/storefront-api/internal/queue"
	"github.com/iliyamo/storefront-api/internal/repository"
)

// PlaceholderPrefix marks payment ids that were never replaced by a real
// gateway id.
const PlaceholderPrefix = "pending-"

type UserLookup interface {
	GetByID(ctx context.Context, id uint64) (*model.User, error)
}

type CartReader interface {
	Lines(ctx context.Context, userID uint64) ([]model.CartLine, error)
}

// OrderStore is the order persistence used by PaymentService.
type OrderStore interface {
	CreatePending(ctx context.Context, o *model.Order) error
	SetPaymentID(ctx context.Context, orderID uint64, paymentID string) error
	GetByPaymentID(ctx context.Context, paymentID string) (*model.Order, error)
	Transition(ctx context.Context, orderID uint64, to model.OrderStatus, clearCart bool) (bool, error)
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]model.Order, error)
}

// Gateway is the remote payment provider.
type Gateway interface {
	CreatePayment(ctx context.Context, req yookassa.PaymentRequest, idempotenceKey string) (*yookassa.Payment, error)
	GetPayment(ctx context.Context, id string) (*yookassa.Payment, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, ev queue.Event) error
}

// PaymentOptions configures PaymentService.
type PaymentOptions struct {
	ClientURL string // storefront origin; the return URL is built from it
	Currency  string
	// VerifyWebhooks makes HandleWebhook fetch the payment from the gateway
	// and trust that status instead of the one in the payload.
	VerifyWebhooks bool
}

// Checkout is the result of CreatePayment.
type Checkout struct {
	ConfirmationURL string `json:"confirmationUrl"`
	OrderID         uint64 `json:"orderId"`
}

// Ack is the plain-text body returned to the gateway for a webhook.
type Ack string

const (
	AckOK      Ack = "OK"
	AckIgnored Ack = "IGNORED"
)

// ReconcileReport summarizes one sweep over stale pending orders.
type ReconcileReport struct {
	Scanned   int
	Succeeded int
	Canceled  int
	Unchanged int
	Failed    int
}

type PaymentService struct {
	users   UserLookup
	carts   CartReader
	orders  OrderStore
	gateway Gateway
	events  EventPublisher
	opts    PaymentOptions
	now     func() time.Time
	log     *zap.Logger
}

// NewPaymentService wires the payment flow. events may be nil.
func NewPaymentService(users UserLookup, carts CartReader, orders OrderStore, gw Gateway, events EventPublisher, opts PaymentOptions, log *zap.Logger) *PaymentService {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Currency == "" {
		opts.Currency = "RUB"
	}
	opts.ClientURL = strings.TrimRight(opts.ClientURL, "/")
	return &PaymentService{
		users:   users,
		carts:   carts,
		orders:  orders,
		gateway: gw,
		events:  events,
		opts:    opts,
		now:     time.Now,
		log:     log,
	}
}

// WithClock overrides the time source used by the sweep.
func (s *PaymentService) WithClock(now func() time.Time) *PaymentService {
	s.now = now
	return s
}

// CreatePayment turns the user's cart into a pending order and asks the
// gateway for a payment. The order is stored before the gateway call so its
// id can be embedded in the return URL. When the gateway call fails the
// order stays pending with its placeholder id until the sweep cancels it.
func (s *PaymentService) CreatePayment(ctx context.Context, userID uint64) (Checkout, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Checkout{}, ErrUserNotFound
		}
		return Checkout{}, fmt.Errorf("lookup user: %w", err)
	}
	lines, err := s.carts.Lines(ctx, userID)
	if err != nil {
		return Checkout{}, fmt.Errorf("load cart: %w", err)
	}
	if len(lines) == 0 {
		return Checkout{}, ErrEmptyCart
	}

	total := decimal.Zero
	items := make([]model.OrderItem, 0, len(lines))
	for _, l := range lines {
		total = total.Add(l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
		items = append(items, model.OrderItem{ProductID: l.ProductID, Quantity: l.Quantity})
	}

	placeholder, err := uuid.NewV4()
	if err != nil {
		return Checkout{}, err
	}
	order := &model.Order{
		UserID:     userID,
		Items:      items,
		TotalPrice: total,
		Status:     model.OrderPending,
		PaymentID:  PlaceholderPrefix + placeholder.String(),
	}
	if err := s.orders.CreatePending(ctx, order); err != nil {
		return Checkout{}, fmt.Errorf("create order: %w", err)
	}

	orderRef := strconv.FormatUint(order.ID, 10)
	key, err := uuid.NewV4()
	if err != nil {
		return Checkout{}, err
	}
	payment, err := s.gateway.CreatePayment(ctx, yookassa.PaymentRequest{
		Amount:            yookassa.Amount{Value: total.StringFixed(2), Currency: s.opts.Currency},
		PaymentMethodData: &yookassa.PaymentMethodData{Type: "bank_card"},
		Confirmation: yookassa.Confirmation{
			Type:      "redirect",
			ReturnURL: s.opts.ClientURL + "/#/cart/success/" + orderRef,
		},
		Capture:     true,
		Description: "Order #" + orderRef + " of " + user.Username,
		Metadata:    map[string]string{"orderId": orderRef},
	}, key.String())
	if err != nil {
		s.log.Error("payment creation failed; order left pending",
			zap.Uint64("order_id", order.ID), zap.String("payment_id", order.PaymentID), zap.Error(err))
		return Checkout{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	if err := s.orders.SetPaymentID(ctx, order.ID, payment.ID); err != nil {
		s.log.Error("payment id backfill failed",
			zap.Uint64("order_id", order.ID), zap.String("gateway_payment_id", payment.ID), zap.Error(err))
		return Checkout{}, fmt.Errorf("store payment id: %w", err)
	}
	return Checkout{ConfirmationURL: payment.ConfirmationURL(), OrderID: order.ID}, nil
}

// HandleWebhook applies a gateway notification. Unknown payments are
// acknowledged so the gateway stops retrying; a returned error means the
// delivery should be retried.
func (s *PaymentService) HandleWebhook(ctx context.Context, n yookassa.Notification) (Ack, error) {
	if !strings.HasPrefix(n.Event, "payment") {
		return AckIgnored, nil
	}
	paymentID := n.Object.ID
	if paymentID == "" {
		s.log.Warn("webhook without payment id", zap.String("event", n.Event))
		return AckOK, nil
	}

	order, err := s.orders.GetByPaymentID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Warn("order not found for payment id", zap.String("payment_id", paymentID))
			return AckOK, nil
		}
		return "", fmt.Errorf("lookup order: %w", err)
	}
	if order.Status.Terminal() {
		return AckOK, nil
	}

	status := n.Object.Status
	if s.opts.VerifyWebhooks {
		p, err := s.gateway.GetPayment(ctx, paymentID)
		if err != nil {
			return "", fmt.Errorf("%w: verify payment %s: %v", ErrUpstream, paymentID, err)
		}
		status = p.Status
	}
	if _, err := s.apply(ctx, order, status); err != nil {
		return "", err
	}
	return AckOK, nil
}

// apply moves order to the terminal state matching the gateway status. It
// returns the status reached, or "" when nothing changed.
func (s *PaymentService) apply(ctx context.Context, order *model.Order, gatewayStatus string) (model.OrderStatus, error) {
	var to model.OrderStatus
	switch gatewayStatus {
	case yookassa.StatusSucceeded:
		to = model.OrderSucceeded
	case yookassa.StatusCanceled:
		to = model.OrderCanceled
	default:
		return "", nil
	}

	changed, err := s.orders.Transition(ctx, order.ID, to, to == model.OrderSucceeded)
	if err != nil {
		return "", fmt.Errorf("transition order %d: %w", order.ID, err)
	}
	if !changed {
		return "", nil
	}
	s.log.Info("order transitioned", zap.Uint64("order_id", order.ID), zap.String("status", string(to)))
	s.publish(ctx, queue.NewOrderEvent(string(to), order.ID, order.UserID, order.PaymentID, order.TotalPrice.StringFixed(2), s.now()))
	return to, nil
}

func (s *PaymentService) publish(ctx context.Context, ev queue.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("event publish failed", zap.String("event", ev.EventType()), zap.Error(err))
	}
}

// ReconcilePending sweeps pending orders older than maxAge. Orders that
// still carry a placeholder never reached the gateway and are canceled;
// the others are polled and settled through the same transition as
// webhooks. Per-order failures are logged and counted, not returned.
func (s *PaymentService) ReconcilePending(ctx context.Context, maxAge time.Duration, limit int) (ReconcileReport, error) {
	var rep ReconcileReport
	if limit <= 0 {
		limit = 100
	}
	stale, err := s.orders.ListStalePending(ctx, s.now().Add(-maxAge), limit)
	if err != nil {
		return rep, fmt.Errorf("list stale orders: %w", err)
	}
	for i := range stale {
		o := &stale[i]
		rep.Scanned++

		status := yookassa.StatusCanceled
		if !strings.HasPrefix(o.PaymentID, PlaceholderPrefix) {
			p, err := s.gateway.GetPayment(ctx, o.PaymentID)
			if err != nil {
				rep.Failed++
				s.log.Warn("sweep: gateway lookup failed", zap.Uint64("order_id", o.ID), zap.Error(err))
				continue
			}
			status = p.Status
		}

		reached, err := s.apply(ctx, o, status)
		switch {
		case err != nil:
			rep.Failed++
			s.log.Warn("sweep: transition failed", zap.Uint64("order_id", o.ID), zap.Error(err))
		case reached == model.OrderSucceeded:
			rep.Succeeded++
		case reached == model.OrderCanceled:
			rep.Canceled++
		default:
			rep.Unchanged++
		}
	}
	return rep, nil
}
