package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront-api/internal/model"
	"github.com/iliyamo/storefront-api/internal/service"
	"github.com/iliyamo/storefront-api/internal/utils"
)

// RefreshCookie is the name of the HTTP-only cookie carrying the refresh token.
const RefreshCookie = "refreshToken"

// Authenticator is implemented by service.AuthService.
type Authenticator interface {
	Register(ctx context.Context, username, email, password string, meta service.ClientMeta) (service.AuthResult, error)
	Login(ctx context.Context, email, password string, meta service.ClientMeta) (service.AuthResult, error)
	Refresh(ctx context.Context, raw string) (utils.AccessToken, error)
	Logout(ctx context.Context, raw string, userID uint64) error
	RefreshTTL() time.Duration
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	auth       Authenticator
	production bool
	log        *zap.Logger
}

func NewAuthHandler(auth Authenticator, production bool, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{auth: auth, production: production, log: log}
}

// ----- DTOs -----

type registerReq struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResp struct {
	AccessToken string         `json:"accessToken"`
	User        model.UserView `json:"user"`
}

// Register: create the account and start a session right away.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	res, err := h.auth.Register(ctx, req.Username, req.Email, req.Password, clientMeta(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	h.setRefreshCookie(c, res.RefreshToken)
	return c.JSON(http.StatusCreated, authResp{AccessToken: res.AccessToken, User: res.User})
}

// Login: verify credentials and start a new session.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	res, err := h.auth.Login(ctx, req.Email, req.Password, clientMeta(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	h.setRefreshCookie(c, res.RefreshToken)
	return c.JSON(http.StatusOK, authResp{AccessToken: res.AccessToken, User: res.User})
}

// Refresh: exchange the refresh cookie for a new access token. The refresh
// token itself is not rotated.
func (h *AuthHandler) Refresh(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	tok, err := h.auth.Refresh(ctx, refreshFromCookie(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"accessToken": tok.Token})
}

// Logout deletes the caller's session matching the refresh cookie. The user
// id comes from the verified access token, never from the request body.
func (h *AuthHandler) Logout(c echo.Context) error {
	uid, _ := getUserID(c)
	ctx, cancel := requestCtx(c)
	defer cancel()

	if err := h.auth.Logout(ctx, refreshFromCookie(c), uid); err != nil {
		return writeError(c, h.log, err)
	}
	h.clearRefreshCookie(c)
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

func (h *AuthHandler) setRefreshCookie(c echo.Context, raw string) {
	ttl := h.auth.RefreshTTL()
	ck := h.baseCookie()
	ck.Value = raw
	ck.MaxAge = int(ttl / time.Second)
	ck.Expires = time.Now().Add(ttl)
	c.SetCookie(ck)
}

func (h *AuthHandler) clearRefreshCookie(c echo.Context) {
	ck := h.baseCookie()
	ck.MaxAge = -1
	ck.Expires = time.Unix(0, 0)
	c.SetCookie(ck)
}

func (h *AuthHandler) baseCookie() *http.Cookie {
	ck := &http.Cookie{
		Name:     RefreshCookie,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if h.production {
		// the storefront is served from another origin
		ck.Secure = true
		ck.SameSite = http.SameSiteNoneMode
	}
	return ck
}

func refreshFromCookie(c echo.Context) string {
	ck, err := c.Cookie(RefreshCookie)
	if err != nil {
		return ""
	}
	return ck.Value
}

func clientMeta(c echo.Context) service.ClientMeta {
	return service.ClientMeta{UserAgent: c.Request().UserAgent(), IP: c.RealIP()}
}
