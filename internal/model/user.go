package model

import "time"

// User represents an account as stored in the `users` table.
//
// Fields:
//  ID           – primary key identifier.
//  Username     – display name.
//  Email        – unique, normalized (trimmed, lower-cased) address.
//  PasswordHash – bcrypt hash; never serialized.
//  Avatar       – public URL of the avatar object, if any.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
    ID           uint64    `json:"id"`
    Username     string    `json:"username"`
    Email        string    `json:"email"`
    PasswordHash string    `json:"-"`
    Avatar       *string   `json:"avatar,omitempty"`
    CreatedAt    time.Time `json:"createdAt"`
    UpdatedAt    time.Time `json:"updatedAt"`
}

// UserView is the public projection of a User returned by auth endpoints.
type UserView struct {
    ID       uint64 `json:"id"`
    Username string `json:"username"`
    Email    string `json:"email"`
}

// View returns the public projection of u.
func (u User) View() UserView {
    return UserView{ID: u.ID, Username: u.Username, Email: u.Email}
}

// CartItem is one line of a user's live cart (`cart_items` row). Quantity is
// always at least 1.
type CartItem struct {
    ProductID uint64    `json:"productId"`
    Quantity  int       `json:"quantity"`
    AddedAt   time.Time `json:"addedAt"`
}

// CartLine is a cart item joined with the current state of its product.
type CartLine struct {
    CartItem
    Product ProductRef `json:"product"`
}

// Session models one refresh-token lineage (`sessions` row). Only the bcrypt
// hash of the refresh secret is stored, never the secret itself.
//
// Fields:
//  ID               – uuid; doubles as the non-secret selector of the refresh token.
//  UserID           – owner of the session.
//  RefreshTokenHash – bcrypt hash of the refresh secret.
//  UserAgent, IP    – client metadata captured at login.
//  ExpiresAt        – absolute expiry; rows past it are reclaimed by the store.
type Session struct {
    ID               string
    UserID           uint64
    RefreshTokenHash string
    UserAgent        string
    IP               string
    ExpiresAt        time.Time
    CreatedAt        time.Time
}

// ActiveAt reports whether the session can still be matched at now.
func (s Session) ActiveAt(now time.Time) bool {
    return now.Before(s.ExpiresAt)
}
