// Package service contains application services for authentication,
// payments and the catalog.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront-api/internal/model"
	"github.com/iliyamo/storefront-api/internal/repository"
	"github.com/iliyamo/storefront-api/internal/utils"
)

// UserStore is the credential store used by AuthService.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id uint64) (*model.User, error)
}

// SessionStore holds refresh-token sessions.
type SessionStore interface {
	Create(ctx context.Context, s *model.Session) error
	GetActive(ctx context.Context, id string, now time.Time) (*model.Session, error)
	GetForUser(ctx context.Context, id string, userID uint64) (*model.Session, error)
	Delete(ctx context.Context, id string) error
}

// ClientMeta is recorded on the session at login.
type ClientMeta struct {
	UserAgent string
	IP        string
}

// AuthResult is returned by Register and Login. RefreshToken is meant for an
// HTTP-only cookie and must not be placed in a response body.
type AuthResult struct {
	AccessToken    string
	AccessExpires  time.Time
	RefreshToken   string
	RefreshExpires time.Time
	User           model.UserView
}

// Identity is what a verified access token proves.
type Identity struct {
	UserID    uint64
	SessionID string
}

// maxPasswordBytes is the bcrypt input limit.
const maxPasswordBytes = 72

type AuthService struct {
	users      UserStore
	sessions   SessionStore
	signer     *utils.TokenSigner
	refreshTTL time.Duration
	bcryptCost int
	now        func() time.Time
	log        *zap.Logger
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users UserStore, sessions SessionStore, signer *utils.TokenSigner, refreshTTL time.Duration, bcryptCost int, log *zap.Logger) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		users:      users,
		sessions:   sessions,
		signer:     signer,
		refreshTTL: refreshTTL,
		bcryptCost: bcryptCost,
		now:        time.Now,
		log:        log,
	}
}

// WithClock overrides the time source used for session expiry.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// RefreshTTL is the lifetime of refresh tokens and their cookie.
func (s *AuthService) RefreshTTL() time.Duration { return s.refreshTTL }

// Register creates a user and opens the first session for it.
func (s *AuthService) Register(ctx context.Context, username, email, password string, meta ClientMeta) (AuthResult, error) {
	username = strings.TrimSpace(username)
	email = repository.NormalizeEmail(email)
	if username == "" || email == "" || password == "" {
		return AuthResult{}, fmt.Errorf("%w: username, email and password are required", ErrValidation)
	}
	if !strings.Contains(email, "@") {
		return AuthResult{}, fmt.Errorf("%w: malformed email", ErrValidation)
	}
	if len(password) > maxPasswordBytes {
		return AuthResult{}, fmt.Errorf("%w: password too long", ErrValidation)
	}

	hash, err := utils.HashPassword(password, s.bcryptCost)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}
	u := &model.User{Username: username, Email: email, PasswordHash: hash}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return AuthResult{}, ErrDuplicateEmail
		}
		return AuthResult{}, fmt.Errorf("create user: %w", err)
	}
	return s.startSession(ctx, u, meta)
}

// Login authenticates by email and password. An unknown email and a wrong
// password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string, meta ClientMeta) (AuthResult, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return AuthResult{}, fmt.Errorf("%w: email and password are required", ErrValidation)
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, fmt.Errorf("lookup user: %w", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return AuthResult{}, ErrInvalidCredentials
	}
	return s.startSession(ctx, u, meta)
}

func (s *AuthService) startSession(ctx context.Context, u *model.User, meta ClientMeta) (AuthResult, error) {
	sid, err := uuid.NewV4()
	if err != nil {
		return AuthResult{}, err
	}
	now := s.now().UTC()
	rt, err := utils.NewRefreshToken(sid.String(), s.refreshTTL, now)
	if err != nil {
		return AuthResult{}, fmt.Errorf("refresh token: %w", err)
	}
	secretHash, err := utils.HashPassword(rt.Secret, s.bcryptCost)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash refresh token: %w", err)
	}
	sess := &model.Session{
		ID:               rt.Selector,
		UserID:           u.ID,
		RefreshTokenHash: secretHash,
		UserAgent:        meta.UserAgent,
		IP:               meta.IP,
		ExpiresAt:        rt.Exp,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return AuthResult{}, fmt.Errorf("create session: %w", err)
	}
	at, err := s.signer.Issue(u.ID, sess.ID)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue access token: %w", err)
	}
	s.log.Debug("session started", zap.Uint64("user_id", u.ID), zap.String("session_id", sess.ID))
	return AuthResult{
		AccessToken:    at.Token,
		AccessExpires:  at.Exp,
		RefreshToken:   rt.Raw,
		RefreshExpires: rt.Exp,
		User:           u.View(),
	}, nil
}

// Refresh mints a new access token for the session the refresh token
// belongs to. The refresh token itself is not rotated.
func (s *AuthService) Refresh(ctx context.Context, raw string) (utils.AccessToken, error) {
	if strings.TrimSpace(raw) == "" {
		return utils.AccessToken{}, ErrNoToken
	}
	selector, secret, ok := utils.SplitRefreshToken(raw)
	if !ok {
		return utils.AccessToken{}, ErrInvalidToken
	}
	sess, err := s.sessions.GetActive(ctx, selector, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return utils.AccessToken{}, ErrInvalidToken
		}
		return utils.AccessToken{}, fmt.Errorf("lookup session: %w", err)
	}
	if !utils.VerifyPassword(sess.RefreshTokenHash, secret) {
		return utils.AccessToken{}, ErrInvalidToken
	}
	at, err := s.signer.Issue(sess.UserID, sess.ID)
	if err != nil {
		return utils.AccessToken{}, fmt.Errorf("issue access token: %w", err)
	}
	return at, nil
}

// VerifyAccess checks an access token without touching the store. A revoked
// session keeps its already issued access tokens valid until they expire.
func (s *AuthService) VerifyAccess(raw string) (Identity, error) {
	if strings.TrimSpace(raw) == "" {
		return Identity{}, ErrNoToken
	}
	claims, err := s.signer.Verify(raw)
	if err != nil {
		if errors.Is(err, utils.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, ErrTokenInvalid
	}
	return Identity{UserID: claims.UserID, SessionID: claims.SessionID}, nil
}

// Logout deletes the caller's session matching the refresh token. A token
// that matches nothing, or a session of another user, is ignored.
func (s *AuthService) Logout(ctx context.Context, raw string, userID uint64) error {
	if strings.TrimSpace(raw) == "" || userID == 0 {
		return ErrMissingData
	}
	selector, secret, ok := utils.SplitRefreshToken(raw)
	if !ok {
		return nil
	}
	sess, err := s.sessions.GetForUser(ctx, selector, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("lookup session: %w", err)
	}
	if !utils.VerifyPassword(sess.RefreshTokenHash, secret) {
		return nil
	}
	if err := s.sessions.Delete(ctx, sess.ID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.log.Debug("session closed", zap.Uint64("user_id", userID), zap.String("session_id", sess.ID))
	return nil
}
