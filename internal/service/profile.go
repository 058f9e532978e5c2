package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/storefront-api/internal/model"
	"github.com/iliyamo/storefront-api/internal/queue"
	"github.com/iliyamo/storefront-api/internal/repository"
	"github.com/iliyamo/storefront-api/internal/utils"
)

// ProfileStore is the user persistence behind profile endpoints.
type ProfileStore interface {
	GetByID(ctx context.Context, id uint64) (*model.User, error)
	Update(ctx context.Context, id uint64, upd repository.UserUpdate) (*model.User, error)
	Delete(ctx context.Context, id uint64) error
}

// ProfileUpdate carries optional new values; empty strings mean unchanged.
type ProfileUpdate struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// OwnedImages lists the stored product images of a user.
type OwnedImages interface {
	ImagesByOwner(ctx context.Context, ownerID uint64) ([]string, error)
}

type ProfileService struct {
	users      ProfileStore
	products   OwnedImages
	events     EventPublisher
	bcryptCost int
	log        *zap.Logger
}

func NewProfileService(users ProfileStore, products OwnedImages, events EventPublisher, bcryptCost int, log *zap.Logger) *ProfileService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProfileService{users: users, products: products, events: events, bcryptCost: bcryptCost, log: log}
}

// Get returns the caller's account.
func (s *ProfileService) Get(ctx context.Context, userID uint64) (*model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// Update changes username, email and/or password.
func (s *ProfileService) Update(ctx context.Context, userID uint64, in ProfileUpdate) (*model.User, error) {
	var upd repository.UserUpdate
	if v := strings.TrimSpace(in.Username); v != "" {
		upd.Username = &v
	}
	if v := repository.NormalizeEmail(in.Email); v != "" {
		if !strings.Contains(v, "@") {
			return nil, fmt.Errorf("%w: malformed email", ErrValidation)
		}
		upd.Email = &v
	}
	if in.Password != "" {
		if len(in.Password) > maxPasswordBytes {
			return nil, fmt.Errorf("%w: password too long", ErrValidation)
		}
		hash, err := utils.HashPassword(in.Password, s.bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		upd.PasswordHash = &hash
	}
	if upd.Username == nil && upd.Email == nil && upd.PasswordHash == nil {
		return nil, fmt.Errorf("%w: nothing to update", ErrValidation)
	}

	u, err := s.users.Update(ctx, userID, upd)
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return nil, ErrDuplicateEmail
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrUserNotFound
	case err != nil:
		return nil, fmt.Errorf("update user: %w", err)
	}
	return u, nil
}

// Delete removes the account. Sessions, cart and products go with it by
// cascade; the avatar and product images are removed asynchronously by the
// events consumer.
func (s *ProfileService) Delete(ctx context.Context, userID uint64) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	// Collected first: once the user row is gone the products are too.
	var images []string
	if u.Avatar != nil && *u.Avatar != "" {
		images = append(images, *u.Avatar)
	}
	if s.products != nil {
		owned, err := s.products.ImagesByOwner(ctx, userID)
		if err != nil {
			return fmt.Errorf("list product images: %w", err)
		}
		images = append(images, owned...)
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}
	ev := queue.UserDeletedEvent{UserID: userID, Images: images, DeletedAt: time.Now().UTC().Format(time.RFC3339)}
	if s.events != nil {
		if err := s.events.Publish(ctx, ev); err != nil {
			s.log.Warn("event publish failed", zap.String("event", ev.EventType()), zap.Uint64("user_id", userID),
				zap.Int("orphaned_images", len(images)), zap.Error(err))
		}
	}
	return nil
}
