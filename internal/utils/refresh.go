package utils

import (
    "crypto/rand"
    "encoding/hex"
    "strings"
    "time"
)

// refreshSecretBytes is the amount of random material in a refresh secret
// (256 bits, 64 hex characters).
const refreshSecretBytes = 32

// RefreshToken is a long-lived opaque credential of the form
// "<selector>.<secret>". The selector is the session id and is not secret;
// only a bcrypt hash of Secret is persisted.
type RefreshToken struct {
    Raw      string    // value handed to the client (cookie)
    Selector string    // session id
    Secret   string    // random hex, hashed before storage
    Exp      time.Time // UTC expiration time
}

// NewRefreshToken generates a fresh secret for the session identified by
// selector, expiring ttl after now.
func NewRefreshToken(selector string, ttl time.Duration, now time.Time) (RefreshToken, error) {
    secret, err := randomHex(refreshSecretBytes)
    if err != nil {
        return RefreshToken{}, err
    }
    return RefreshToken{
        Raw:      selector + "." + secret,
        Selector: selector,
        Secret:   secret,
        Exp:      now.UTC().Add(ttl),
    }, nil
}

// SplitRefreshToken separates a presented token into selector and secret.
// ok is false when either part is missing.
func SplitRefreshToken(raw string) (selector, secret string, ok bool) {
    selector, secret, found := strings.Cut(strings.TrimSpace(raw), ".")
    if !found || selector == "" || len(secret) != 2*refreshSecretBytes {
        return "", "", false
    }
    return selector, secret, true
}

// randomHex returns a hex‑encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
    buf := make([]byte, n)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    return hex.EncodeToString(buf), nil
}
