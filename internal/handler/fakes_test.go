package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/storefront-api/internal/gateway/yookassa"
	"github.com/iliyamo/storefront-api/internal/model"
	"github.com/iliyamo/storefront-api/internal/repository"
	"github.com/iliyamo/storefront-api/internal/service"
	"github.com/iliyamo/storefront-api/internal/storage"
	"github.com/iliyamo/storefront-api/internal/utils"
)

type fakeAuth struct {
	result     service.AuthResult
	err        error
	refreshed  string
	loggedOut  []string
	logoutUser uint64
}

func (f *fakeAuth) Register(_ context.Context, _, _, _ string, _ service.ClientMeta) (service.AuthResult, error) {
	return f.result, f.err
}

func (f *fakeAuth) Login(_ context.Context, _, _ string, _ service.ClientMeta) (service.AuthResult, error) {
	return f.result, f.err
}

func (f *fakeAuth) Refresh(_ context.Context, raw string) (utils.AccessToken, error) {
	if raw == "" {
		return utils.AccessToken{}, service.ErrNoToken
	}
	if raw != f.refreshed {
		return utils.AccessToken{}, service.ErrInvalidToken
	}
	return utils.AccessToken{Token: "fresh-access", Exp: time.Now().Add(time.Minute)}, nil
}

func (f *fakeAuth) Logout(_ context.Context, raw string, userID uint64) error {
	if raw == "" || userID == 0 {
		return service.ErrMissingData
	}
	f.loggedOut = append(f.loggedOut, raw)
	f.logoutUser = userID
	return nil
}

func (f *fakeAuth) RefreshTTL() time.Duration { return 30 * 24 * time.Hour }

type fakeProfiles struct {
	users   map[uint64]*model.User
	deleted []uint64
}

func (f *fakeProfiles) Get(_ context.Context, id uint64) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, service.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeProfiles) Update(_ context.Context, id uint64, in service.ProfileUpdate) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, service.ErrUserNotFound
	}
	if in.Email == "taken@x.com" {
		return nil, service.ErrDuplicateEmail
	}
	if in.Username != "" {
		u.Username = in.Username
	}
	return u, nil
}

func (f *fakeProfiles) Delete(_ context.Context, id uint64) error {
	if _, ok := f.users[id]; !ok {
		return service.ErrUserNotFound
	}
	delete(f.users, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeProducts struct {
	mu    sync.Mutex
	next  uint64
	items map[uint64]*model.Product
}

func newFakeProducts(seed ...model.Product) *fakeProducts {
	f := &fakeProducts{items: map[uint64]*model.Product{}}
	for i := range seed {
		p := seed[i]
		f.items[p.ID] = &p
		if p.ID > f.next {
			f.next = p.ID
		}
	}
	return f
}

func (f *fakeProducts) Create(_ context.Context, p *model.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	p.ID = f.next
	cp := *p
	f.items[p.ID] = &cp
	return nil
}

func (f *fakeProducts) GetByID(_ context.Context, id uint64) (*model.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProducts) List(context.Context) ([]model.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Product{}
	for _, p := range f.items {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeProducts) Search(_ context.Context, q repository.ProductSearchQuery) ([]model.Product, error) {
	all, _ := f.List(context.Background())
	out := []model.Product{}
	for _, p := range all {
		if q.Tag != "" && !slices.Contains(p.Tags, q.Tag) {
			continue
		}
		if q.Text != "" && !strings.Contains(strings.ToLower(p.Title), strings.ToLower(q.Text)) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeProducts) ListByOwner(_ context.Context, owner uint64) ([]model.Product, error) {
	all, _ := f.List(context.Background())
	out := []model.Product{}
	for _, p := range all {
		if p.OwnerID == owner {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProducts) owned(id, owner uint64) (*model.Product, error) {
	p, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if p.OwnerID != owner {
		return nil, repository.ErrForbidden
	}
	return p, nil
}

func (f *fakeProducts) Update(_ context.Context, p *model.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, err := f.owned(p.ID, p.OwnerID)
	if err != nil {
		return err
	}
	p.Image = cur.Image
	cp := *p
	f.items[p.ID] = &cp
	return nil
}

func (f *fakeProducts) SetImage(_ context.Context, id, owner uint64, url string) (*string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, err := f.owned(id, owner)
	if err != nil {
		return nil, err
	}
	prev := cur.Image
	cur.Image = &url
	return prev, nil
}

func (f *fakeProducts) Delete(_ context.Context, id, owner uint64) (*model.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, err := f.owned(id, owner)
	if err != nil {
		return nil, err
	}
	delete(f.items, id)
	return cur, nil
}

type fakeImages struct {
	uploaded []string
	bodies   [][]byte
	deleted  []string
}

func (f *fakeImages) Upload(_ context.Context, folder string, r io.Reader, _ int64, contentType string) (string, error) {
	if contentType != "image/png" {
		return "", fmt.Errorf("%w: %q", storage.ErrUnsupportedType, contentType)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", err
	}
	url := "https://cdn.example.com/" + folder + "/new.png"
	f.uploaded = append(f.uploaded, url)
	f.bodies = append(f.bodies, buf.Bytes())
	return url, nil
}

func (f *fakeImages) Delete(_ context.Context, url string) error {
	f.deleted = append(f.deleted, url)
	return nil
}

type fakeCarts struct {
	known map[uint64]bool
	lines map[uint64][]model.CartLine
}

func (f *fakeCarts) Add(_ context.Context, uid, pid uint64, qty int) error {
	if !f.known[pid] {
		return repository.ErrNotFound
	}
	for i, l := range f.lines[uid] {
		if l.ProductID == pid {
			f.lines[uid][i].Quantity += qty
			return nil
		}
	}
	f.lines[uid] = append(f.lines[uid], model.CartLine{CartItem: model.CartItem{ProductID: pid, Quantity: qty}})
	return nil
}

func (f *fakeCarts) Remove(_ context.Context, uid, pid uint64) error {
	kept := []model.CartLine{}
	for _, l := range f.lines[uid] {
		if l.ProductID != pid {
			kept = append(kept, l)
		}
	}
	f.lines[uid] = kept
	return nil
}

func (f *fakeCarts) Lines(_ context.Context, uid uint64) ([]model.CartLine, error) {
	if f.lines[uid] == nil {
		return []model.CartLine{}, nil
	}
	return f.lines[uid], nil
}

type fakeOrders struct {
	orders []model.Order
}

func (f *fakeOrders) ListByUser(_ context.Context, uid uint64) ([]model.Order, error) {
	out := []model.Order{}
	for _, o := range f.orders {
		if o.UserID == uid {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrders) GetByIDForUser(_ context.Context, id, uid uint64) (*model.Order, error) {
	for _, o := range f.orders {
		if o.ID == id && o.UserID == uid {
			return &o, nil
		}
	}
	return nil, repository.ErrNotFound
}

type fakePayments struct {
	checkout service.Checkout
	err      error
	ack      service.Ack
	got      []yookassa.Notification
}

func (f *fakePayments) CreatePayment(context.Context, uint64) (service.Checkout, error) {
	return f.checkout, f.err
}

func (f *fakePayments) HandleWebhook(_ context.Context, n yookassa.Notification) (service.Ack, error) {
	f.got = append(f.got, n)
	return f.ack, f.err
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }
