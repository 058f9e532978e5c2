package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront-api/internal/model"
	"github.com/iliyamo/storefront-api/internal/service"
)

// Profiles is implemented by service.ProfileService.
type Profiles interface {
	Get(ctx context.Context, userID uint64) (*model.User, error)
	Update(ctx context.Context, userID uint64, in service.ProfileUpdate) (*model.User, error)
	Delete(ctx context.Context, userID uint64) error
}

// ProfileHandler serves /users/profile for the authenticated user.
type ProfileHandler struct {
	profiles Profiles
	auth     *AuthHandler // clears the refresh cookie after account deletion
	log      *zap.Logger
}

func NewProfileHandler(profiles Profiles, auth *AuthHandler, log *zap.Logger) *ProfileHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProfileHandler{profiles: profiles, auth: auth, log: log}
}

// Get returns the caller's account.
func (h *ProfileHandler) Get(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.profiles.Get(ctx, uid)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, u)
}

// Update changes username, email and/or password.
func (h *ProfileHandler) Update(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}
	var req service.ProfileUpdate
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.profiles.Update(ctx, uid, req)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, u)
}

// Delete removes the account. Sessions, cart and products go with it.
func (h *ProfileHandler) Delete(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	if err := h.profiles.Delete(ctx, uid); err != nil {
		return writeError(c, h.log, err)
	}
	if h.auth != nil {
		h.auth.clearRefreshCookie(c)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "account deleted"})
}
