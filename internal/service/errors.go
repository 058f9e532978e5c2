package service

import "errors"

// Validation and lookup failures.
var (
	ErrValidation     = errors.New("validation failed")
	ErrMissingData    = errors.New("missing data")
	ErrUserNotFound   = errors.New("user not found")
	ErrEmptyCart      = errors.New("cart is empty")
	ErrDuplicateEmail = errors.New("email already registered")
)

// Credential failures. All of these surface as 401.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNoToken            = errors.New("no token")
	ErrInvalidToken       = errors.New("invalid refresh token")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid")
)

// ErrUpstream wraps payment gateway failures.
var ErrUpstream = errors.New("payment gateway error")
