package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/iliyamo/storefront-api/internal/gateway/yookassa"
	"github.com/iliyamo/storefront-api/internal/model"
	"github.com/iliyamo/storefront-api/internal/queue"
	"github.com/iliyamo/storefront-api/internal/repository"
)

type fakeUsers struct {
	mu     sync.Mutex
	byID   map[uint64]*model.User
	nextID uint64

	createErr error
	getErr    error
}

var (
	_ UserStore    = (*fakeUsers)(nil)
	_ ProfileStore = (*fakeUsers)(nil)
)

func newFakeUsers() *fakeUsers { return &fakeUsers{byID: map[uint64]*model.User{}} }

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, x := range f.byID {
		if x.Email == u.Email {
			return repository.ErrDuplicate
		}
	}
	f.nextID++
	u.ID = f.nextID
	cpy := *u
	f.byID[u.ID] = &cpy
	return nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	email = repository.NormalizeEmail(email)
	for _, u := range f.byID {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, id uint64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) Update(_ context.Context, id uint64, upd repository.UserUpdate) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if upd.Email != nil {
		for _, x := range f.byID {
			if x.ID != id && x.Email == *upd.Email {
				return nil, repository.ErrDuplicate
			}
		}
		u.Email = *upd.Email
	}
	if upd.Username != nil {
		u.Username = *upd.Username
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) Delete(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeUsers) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID)
}

type fakeSessions struct {
	mu      sync.Mutex
	byID    map[string]*model.Session
	deleted []string
}

var _ SessionStore = (*fakeSessions)(nil)

func newFakeSessions() *fakeSessions { return &fakeSessions{byID: map[string]*model.Session{}} }

func (f *fakeSessions) Create(_ context.Context, s *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *s
	f.byID[s.ID] = &c
	return nil
}

func (f *fakeSessions) GetActive(_ context.Context, id string, now time.Time) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok || !s.ActiveAt(now) {
		return nil, repository.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (f *fakeSessions) GetForUser(_ context.Context, id string, userID uint64) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok || s.UserID != userID {
		return nil, repository.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (f *fakeSessions) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeSessions) all() []model.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Session, 0, len(f.byID))
	for _, s := range f.byID {
		out = append(out, *s)
	}
	return out
}

// fakeShop backs both the cart and the order stores so a transition can
// clear the cart the way the SQL transaction does.
type fakeShop struct {
	mu      sync.Mutex
	carts   map[uint64][]model.CartLine
	orders  map[uint64]*model.Order
	nextID  uint64
	clears  map[uint64]int
	linesErr, createErr, setPaymentErr, transitionErr error
}

var (
	_ CartReader = (*fakeShop)(nil)
	_ OrderStore = (*fakeShop)(nil)
)

func newFakeShop() *fakeShop {
	return &fakeShop{
		carts:  map[uint64][]model.CartLine{},
		orders: map[uint64]*model.Order{},
		clears: map[uint64]int{},
	}
}

func (f *fakeShop) Lines(_ context.Context, userID uint64) ([]model.CartLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.linesErr != nil {
		return nil, f.linesErr
	}
	return append([]model.CartLine(nil), f.carts[userID]...), nil
}

func (f *fakeShop) CreatePending(_ context.Context, o *model.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	o.ID = f.nextID
	o.Status = model.OrderPending
	c := *o
	f.orders[o.ID] = &c
	return nil
}

func (f *fakeShop) SetPaymentID(_ context.Context, orderID uint64, paymentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setPaymentErr != nil {
		return f.setPaymentErr
	}
	o, ok := f.orders[orderID]
	if !ok {
		return repository.ErrNotFound
	}
	o.PaymentID = paymentID
	return nil
}

func (f *fakeShop) GetByPaymentID(_ context.Context, paymentID string) (*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.PaymentID == paymentID {
			c := *o
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeShop) Transition(_ context.Context, orderID uint64, to model.OrderStatus, clearCart bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transitionErr != nil {
		return false, f.transitionErr
	}
	o, ok := f.orders[orderID]
	if !ok || o.Status != model.OrderPending {
		return false, nil
	}
	o.Status = to
	if clearCart {
		delete(f.carts, o.UserID)
		f.clears[o.UserID]++
	}
	return true, nil
}

func (f *fakeShop) ListStalePending(_ context.Context, before time.Time, limit int) ([]model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Order
	for id := uint64(1); id <= f.nextID && len(out) < limit; id++ {
		o, ok := f.orders[id]
		if ok && o.Status == model.OrderPending && o.CreatedAt.Before(before) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeShop) order(id uint64) model.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.orders[id]
}

type fakeGateway struct {
	mu       sync.Mutex
	created  []yookassa.PaymentRequest
	keys     []string
	payments map[string]*yookassa.Payment
	nextID   int

	createErr error
	getErr    error
	gets      int
}

var _ Gateway = (*fakeGateway)(nil)

func newFakeGateway() *fakeGateway { return &fakeGateway{payments: map[string]*yookassa.Payment{}} }

func (g *fakeGateway) CreatePayment(_ context.Context, req yookassa.PaymentRequest, key string) (*yookassa.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.created = append(g.created, req)
	g.keys = append(g.keys, key)
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.nextID++
	id := "pay-" + strconv.Itoa(g.nextID)
	p := &yookassa.Payment{
		ID:           id,
		Status:       yookassa.StatusPending,
		Amount:       req.Amount,
		Confirmation: &yookassa.Confirmation{Type: "redirect", ConfirmationURL: "https://pay.example/" + id},
	}
	g.payments[id] = p
	return p, nil
}

func (g *fakeGateway) GetPayment(_ context.Context, id string) (*yookassa.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gets++
	if g.getErr != nil {
		return nil, g.getErr
	}
	p, ok := g.payments[id]
	if !ok {
		return nil, &yookassa.APIError{StatusCode: 404, Code: "not_found"}
	}
	c := *p
	return &c, nil
}

func (g *fakeGateway) setStatus(id, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[id].Status = status
}

type fakePublisher struct {
	mu     sync.Mutex
	events []queue.Event
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, ev queue.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}
