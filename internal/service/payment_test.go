package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/storefront-api/internal/gateway/yookassa"
	"github.com/iliyamo/storefront-api/internal/model"
	"github.com/iliyamo/storefront-api/internal/queue"
)

type payFixture struct {
	svc    *PaymentService
	users  *fakeUsers
	shop   *fakeShop
	gw     *fakeGateway
	events *fakePublisher
	logs   *observer.ObservedLogs
	userID uint64
}

func newPayFixture(t *testing.T, verify bool) *payFixture {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	f := &payFixture{
		users:  newFakeUsers(),
		shop:   newFakeShop(),
		gw:     newFakeGateway(),
		events: &fakePublisher{},
		logs:   logs,
	}
	u := &model.User{Username: "alice", Email: "a@x.com"}
	require.NoError(t, f.users.Create(context.Background(), u))
	f.userID = u.ID
	f.svc = NewPaymentService(f.users, f.shop, f.shop, f.gw, f.events, PaymentOptions{
		ClientURL:      "https://shop.example/",
		Currency:       "RUB",
		VerifyWebhooks: verify,
	}, zap.New(core))
	return f
}

func (f *payFixture) fillCart(lines ...model.CartLine) {
	f.shop.carts[f.userID] = lines
}

func line(productID uint64, price string, qty int) model.CartLine {
	return model.CartLine{
		CartItem: model.CartItem{ProductID: productID, Quantity: qty},
		Product:  model.ProductRef{ID: productID, Title: "p", Price: decimal.RequireFromString(price)},
	}
}

func TestCreatePayment_ComputesTotalAndBackfillsPaymentID(t *testing.T) {
	f := newPayFixture(t, false)
	f.fillCart(line(1, "100", 2))

	out, err := f.svc.CreatePayment(context.Background(), f.userID)
	require.NoError(t, err)

	o := f.shop.order(out.OrderID)
	assert.True(t, o.TotalPrice.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, model.OrderPending, o.Status)
	assert.Equal(t, "pay-1", o.PaymentID)
	assert.Equal(t, []model.OrderItem{{ProductID: 1, Quantity: 2}}, o.Items)
	assert.Equal(t, "https://pay.example/pay-1", out.ConfirmationURL)

	require.Len(t, f.gw.created, 1)
	req := f.gw.created[0]
	assert.Equal(t, yookassa.Amount{Value: "200.00", Currency: "RUB"}, req.Amount)
	assert.Equal(t, "https://shop.example/#/cart/success/1", req.Confirmation.ReturnURL)
	assert.Equal(t, "redirect", req.Confirmation.Type)
	assert.Equal(t, "bank_card", req.PaymentMethodData.Type)
	assert.True(t, req.Capture)
	assert.Equal(t, "1", req.Metadata["orderId"])
	assert.NotEmpty(t, f.gw.keys[0])
}

func TestCreatePayment_SumsFractionalPrices(t *testing.T) {
	f := newPayFixture(t, false)
	f.fillCart(line(1, "0.10", 3), line(2, "19.99", 1))

	out, err := f.svc.CreatePayment(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, "20.29", f.shop.order(out.OrderID).TotalPrice.StringFixed(2))
	assert.Equal(t, "20.29", f.gw.created[0].Amount.Value)
}

func TestCreatePayment_EmptyCartCreatesNoOrder(t *testing.T) {
	f := newPayFixture(t, false)

	_, err := f.svc.CreatePayment(context.Background(), f.userID)
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Empty(t, f.shop.orders)
	assert.Empty(t, f.gw.created)
}

func TestCreatePayment_UnknownUser(t *testing.T) {
	f := newPayFixture(t, false)

	_, err := f.svc.CreatePayment(context.Background(), 999)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Empty(t, f.shop.orders)
}

func TestCreatePayment_GatewayFailureLeavesPendingPlaceholder(t *testing.T) {
	f := newPayFixture(t, false)
	f.fillCart(line(1, "5", 1))
	f.gw.createErr = errors.New("connection reset")

	_, err := f.svc.CreatePayment(context.Background(), f.userID)
	assert.ErrorIs(t, err, ErrUpstream)

	require.Len(t, f.shop.orders, 1)
	o := f.shop.order(1)
	assert.Equal(t, model.OrderPending, o.Status)
	assert.Contains(t, o.PaymentID, PlaceholderPrefix)
	assert.Equal(t, 1, f.logs.FilterMessage("payment creation failed; order left pending").Len())
}

func checkout(t *testing.T, f *payFixture) (orderID uint64, paymentID string) {
	t.Helper()
	f.fillCart(line(1, "100", 2))
	out, err := f.svc.CreatePayment(context.Background(), f.userID)
	require.NoError(t, err)
	return out.OrderID, f.shop.order(out.OrderID).PaymentID
}

func notification(event, id, status string) yookassa.Notification {
	return yookassa.Notification{Type: "notification", Event: event, Object: yookassa.Payment{ID: id, Status: status}}
}

func TestWebhook_SucceededTransitionsAndClearsCart(t *testing.T) {
	f := newPayFixture(t, false)
	orderID, paymentID := checkout(t, f)

	ack, err := f.svc.HandleWebhook(context.Background(), notification("payment.succeeded", paymentID, "succeeded"))
	require.NoError(t, err)
	assert.Equal(t, AckOK, ack)
	assert.Equal(t, model.OrderSucceeded, f.shop.order(orderID).Status)
	assert.Empty(t, f.shop.carts[f.userID])
	assert.Equal(t, []string{queue.TypeOrderSucceeded}, f.events.types())
}

func TestWebhook_DuplicateDeliveryIsIdempotent(t *testing.T) {
	f := newPayFixture(t, false)
	orderID, paymentID := checkout(t, f)
	n := notification("payment.succeeded", paymentID, "succeeded")

	_, err := f.svc.HandleWebhook(context.Background(), n)
	require.NoError(t, err)
	// the user starts a new cart before the redelivery arrives
	f.fillCart(line(2, "1", 1))

	ack, err := f.svc.HandleWebhook(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, AckOK, ack)
	assert.Equal(t, model.OrderSucceeded, f.shop.order(orderID).Status)
	assert.Equal(t, 1, f.shop.clears[f.userID])
	assert.Len(t, f.shop.carts[f.userID], 1)
	assert.Len(t, f.events.types(), 1)
}

func TestWebhook_ConcurrentDuplicatesTransitionOnce(t *testing.T) {
	f := newPayFixture(t, false)
	_, paymentID := checkout(t, f)
	n := notification("payment.succeeded", paymentID, "succeeded")

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, err := f.svc.HandleWebhook(context.Background(), n)
			done <- err
		}()
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-done)
	}
	assert.Equal(t, 1, f.shop.clears[f.userID])
	assert.Len(t, f.events.types(), 1)
}

func TestWebhook_CanceledKeepsCart(t *testing.T) {
	f := newPayFixture(t, false)
	orderID, paymentID := checkout(t, f)

	_, err := f.svc.HandleWebhook(context.Background(), notification("payment.canceled", paymentID, "canceled"))
	require.NoError(t, err)
	assert.Equal(t, model.OrderCanceled, f.shop.order(orderID).Status)
	assert.Len(t, f.shop.carts[f.userID], 1)
	assert.Equal(t, []string{queue.TypeOrderCanceled}, f.events.types())

	// terminal states never change
	_, err = f.svc.HandleWebhook(context.Background(), notification("payment.succeeded", paymentID, "succeeded"))
	require.NoError(t, err)
	assert.Equal(t, model.OrderCanceled, f.shop.order(orderID).Status)
}

func TestWebhook_UnknownPaymentAcknowledged(t *testing.T) {
	f := newPayFixture(t, false)
	orderID, _ := checkout(t, f)

	ack, err := f.svc.HandleWebhook(context.Background(), notification("payment.succeeded", "nope", "succeeded"))
	require.NoError(t, err)
	assert.Equal(t, AckOK, ack)
	assert.Equal(t, model.OrderPending, f.shop.order(orderID).Status)
	assert.Equal(t, 1, f.logs.FilterMessage("order not found for payment id").Len())
}

func TestWebhook_NonPaymentEventIgnored(t *testing.T) {
	f := newPayFixture(t, false)
	orderID, paymentID := checkout(t, f)

	ack, err := f.svc.HandleWebhook(context.Background(), notification("refund.succeeded", paymentID, "succeeded"))
	require.NoError(t, err)
	assert.Equal(t, AckIgnored, ack)
	assert.Equal(t, model.OrderPending, f.shop.order(orderID).Status)
}

func TestWebhook_OtherStatusesLeaveOrderPending(t *testing.T) {
	f := newPayFixture(t, false)
	orderID, paymentID := checkout(t, f)

	ack, err := f.svc.HandleWebhook(context.Background(), notification("payment.waiting_for_capture", paymentID, "waiting_for_capture"))
	require.NoError(t, err)
	assert.Equal(t, AckOK, ack)
	assert.Equal(t, model.OrderPending, f.shop.order(orderID).Status)
	assert.Empty(t, f.events.types())
}

func TestWebhook_VerifiedStatusWinsOverPayload(t *testing.T) {
	f := newPayFixture(t, true)
	orderID, paymentID := checkout(t, f)

	// forged "succeeded" while the gateway still says pending
	_, err := f.svc.HandleWebhook(context.Background(), notification("payment.succeeded", paymentID, "succeeded"))
	require.NoError(t, err)
	assert.Equal(t, model.OrderPending, f.shop.order(orderID).Status)

	f.gw.setStatus(paymentID, yookassa.StatusSucceeded)
	_, err = f.svc.HandleWebhook(context.Background(), notification("payment.succeeded", paymentID, "succeeded"))
	require.NoError(t, err)
	assert.Equal(t, model.OrderSucceeded, f.shop.order(orderID).Status)
}

func TestWebhook_VerifyFailureAsksForRedelivery(t *testing.T) {
	f := newPayFixture(t, true)
	_, paymentID := checkout(t, f)
	f.gw.getErr = errors.New("timeout")

	_, err := f.svc.HandleWebhook(context.Background(), notification("payment.succeeded", paymentID, "succeeded"))
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestWebhook_StoreFailureIsReturned(t *testing.T) {
	f := newPayFixture(t, false)
	_, paymentID := checkout(t, f)
	f.shop.transitionErr = errors.New("deadlock")

	_, err := f.svc.HandleWebhook(context.Background(), notification("payment.succeeded", paymentID, "succeeded"))
	assert.Error(t, err)
}

func TestWebhook_PublishFailureDoesNotFail(t *testing.T) {
	f := newPayFixture(t, false)
	orderID, paymentID := checkout(t, f)
	f.events.err = errors.New("broker down")

	ack, err := f.svc.HandleWebhook(context.Background(), notification("payment.succeeded", paymentID, "succeeded"))
	require.NoError(t, err)
	assert.Equal(t, AckOK, ack)
	assert.Equal(t, model.OrderSucceeded, f.shop.order(orderID).Status)
}

func TestReconcilePending(t *testing.T) {
	f := newPayFixture(t, false)
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	f.svc.WithClock(func() time.Time { return now })
	old := now.Add(-time.Hour)

	// 1: real payment that succeeded, 2: real payment still pending,
	// 3: placeholder that never reached the gateway, 4: too recent
	id1, pay1 := checkout(t, f)
	id2, _ := checkout(t, f)
	f.gw.createErr = errors.New("down")
	_, err := f.svc.CreatePayment(context.Background(), f.userID)
	require.Error(t, err)
	f.gw.createErr = nil
	id4, _ := checkout(t, f)

	f.gw.setStatus(pay1, yookassa.StatusSucceeded)
	for _, id := range []uint64{id1, id2, 3} {
		f.shop.orders[id].CreatedAt = old
	}
	f.shop.orders[id4].CreatedAt = now

	rep, err := f.svc.ReconcilePending(context.Background(), 30*time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Scanned: 3, Succeeded: 1, Canceled: 1, Unchanged: 1}, rep)
	assert.Equal(t, model.OrderSucceeded, f.shop.order(id1).Status)
	assert.Equal(t, model.OrderPending, f.shop.order(id2).Status)
	assert.Equal(t, model.OrderCanceled, f.shop.order(3).Status)
	assert.Equal(t, model.OrderPending, f.shop.order(id4).Status)
}

func TestReconcilePending_GatewayErrorsCounted(t *testing.T) {
	f := newPayFixture(t, false)
	id, _ := checkout(t, f)
	f.shop.orders[id].CreatedAt = time.Now().Add(-time.Hour)
	f.gw.getErr = errors.New("503")

	rep, err := f.svc.ReconcilePending(context.Background(), time.Minute, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, model.OrderPending, f.shop.order(id).Status)
}
