package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront-api/internal/model"
	"github.com/iliyamo/storefront-api/internal/repository"
	"github.com/iliyamo/storefront-api/internal/storage"
)

// maxImageBytes caps product image uploads.
const maxImageBytes = 5 << 20

// ProductStore is implemented by repository.ProductRepo.
type ProductStore interface {
	Create(ctx context.Context, p *model.Product) error
	GetByID(ctx context.Context, id uint64) (*model.Product, error)
	List(ctx context.Context) ([]model.Product, error)
	Search(ctx context.Context, q repository.ProductSearchQuery) ([]model.Product, error)
	ListByOwner(ctx context.Context, ownerID uint64) ([]model.Product, error)
	Update(ctx context.Context, p *model.Product) error
	SetImage(ctx context.Context, id, ownerID uint64, url string) (*string, error)
	Delete(ctx context.Context, id, ownerID uint64) (*model.Product, error)
}

// ImageStore is implemented by storage.ImageStore.
type ImageStore interface {
	Upload(ctx context.Context, folder string, r io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, url string) error
}

// ProductHandler serves the catalog. Reads are public; writes require the
// caller to own the product.
type ProductHandler struct {
	products ProductStore
	images   ImageStore
	log      *zap.Logger
}

func NewProductHandler(products ProductStore, images ImageStore, log *zap.Logger) *ProductHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProductHandler{products: products, images: images, log: log}
}

type productReq struct {
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	Price           decimal.Decimal   `json:"price"`
	Tags            []string          `json:"tags"`
	Characteristics map[string]string `json:"characteristics"`
}

// toModel validates the request and normalizes tags into a set.
func (r productReq) toModel() (model.Product, string) {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		return model.Product{}, "title is required"
	}
	if r.Price.IsNegative() {
		return model.Product{}, "price must not be negative"
	}
	seen := make(map[string]struct{}, len(r.Tags))
	tags := make([]string, 0, len(r.Tags))
	for _, t := range r.Tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
	}
	chars := r.Characteristics
	if chars == nil {
		chars = map[string]string{}
	}
	return model.Product{
		Title:           title,
		Description:     strings.TrimSpace(r.Description),
		Price:           r.Price,
		Tags:            tags,
		Characteristics: chars,
	}, ""
}

// List returns the catalog, optionally filtered by ?q= text and ?tag=.
func (h *ProductHandler) List(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	q := repository.ProductSearchQuery{Text: c.QueryParam("q"), Tag: c.QueryParam("tag")}
	var (
		items []model.Product
		err   error
	)
	if q.Empty() {
		items, err = h.products.List(ctx)
	} else {
		items, err = h.products.Search(ctx, q)
	}
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, items)
}

// ListByOwner returns the products created by :userId.
func (h *ProductHandler) ListByOwner(c echo.Context) error {
	ownerID, ok := paramID(c, "userId")
	if !ok {
		return badRequest(c, "invalid user id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	items, err := h.products.ListByOwner(ctx, ownerID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, items)
}

// Get returns one product.
func (h *ProductHandler) Get(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid product id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	p, err := h.products.GetByID(ctx, id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, p)
}

// Create adds a product owned by the caller.
func (h *ProductHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}
	var req productReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	p, msg := req.toModel()
	if msg != "" {
		return badRequest(c, msg)
	}
	p.OwnerID = uid

	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := h.products.Create(ctx, &p); err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, p)
}

// Update overwrites title, description, price, tags and characteristics.
func (h *ProductHandler) Update(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid product id")
	}
	var req productReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	p, msg := req.toModel()
	if msg != "" {
		return badRequest(c, msg)
	}
	p.ID, p.OwnerID = id, uid

	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := h.products.Update(ctx, &p); err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, p)
}

// Delete removes the product and its stored image.
func (h *ProductHandler) Delete(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid product id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	p, err := h.products.Delete(ctx, id, uid)
	if err != nil {
		return writeError(c, h.log, err)
	}
	if p.Image != nil {
		h.dropImage(ctx, *p.Image)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "product deleted"})
}

// UploadImage replaces the product image with the multipart field "image".
func (h *ProductHandler) UploadImage(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid product id")
	}
	if h.images == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"message": "image storage is not configured"})
	}
	fh, err := c.FormFile("image")
	if err != nil {
		return badRequest(c, "image file is required")
	}
	if fh.Size > maxImageBytes {
		return badRequest(c, "image is too large")
	}
	f, err := fh.Open()
	if err != nil {
		return badRequest(c, "cannot read image")
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	url, err := h.images.Upload(ctx, storage.FolderProducts, f, fh.Size, fh.Header.Get(echo.HeaderContentType))
	if errors.Is(err, storage.ErrUnsupportedType) {
		return badRequest(c, "unsupported image type")
	}
	if err != nil {
		return writeError(c, h.log, err)
	}

	prev, err := h.products.SetImage(ctx, id, uid, url)
	if err != nil {
		h.dropImage(ctx, url)
		return writeError(c, h.log, err)
	}
	if prev != nil {
		h.dropImage(ctx, *prev)
	}

	p, err := h.products.GetByID(ctx, id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, p)
}

// dropImage deletes a stored object; failures leave an orphan and are only logged.
func (h *ProductHandler) dropImage(ctx context.Context, url string) {
	if h.images == nil {
		return
	}
	if err := h.images.Delete(ctx, url); err != nil {
		h.log.Warn("image cleanup failed", zap.String("url", url), zap.Error(err))
	}
}
