package utils // package utils provides helper functions for token creation and hashing

import (
    "errors"
    "fmt"
    "strconv"
    "time"

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// Access token verification failures. Expiry is reported separately so that
// clients know a refresh is enough.
var (
    ErrTokenExpired = errors.New("token expired")
    ErrTokenInvalid = errors.New("token invalid")
)

const accessIssuer = "storefront-api"

// AccessToken represents a signed JWT access token along with its expiry.
type AccessToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// AccessClaims is the claim set of an access token: the user and the session
// (refresh-token lineage) it was minted from.
type AccessClaims struct {
    UserID    uint64 `json:"userId"`
    SessionID string `json:"sessionId"`
    jwt.RegisteredClaims
}

// TokenSigner issues and verifies HS256 access tokens. Verification is
// stateless: it trusts the signature and the embedded expiry.
type TokenSigner struct {
    secret []byte
    ttl    time.Duration
    now    func() time.Time
}

// NewTokenSigner builds a signer with the given HMAC secret and token lifetime.
func NewTokenSigner(secret string, ttl time.Duration) *TokenSigner {
    return &TokenSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock returns a copy of s that reads the current time from now.
func (s *TokenSigner) WithClock(now func() time.Time) *TokenSigner {
    cp := *s
    cp.now = now
    return &cp
}

// TTL returns the lifetime of issued tokens.
func (s *TokenSigner) TTL() time.Duration { return s.ttl }

// Issue signs an access token for the given user and session.
func (s *TokenSigner) Issue(userID uint64, sessionID string) (AccessToken, error) {
    now := s.now().UTC()
    exp := now.Add(s.ttl)
    claims := AccessClaims{
        UserID:    userID,
        SessionID: sessionID,
        RegisteredClaims: jwt.RegisteredClaims{
            Issuer:    accessIssuer,
            Subject:   strconv.FormatUint(userID, 10),
            IssuedAt:  jwt.NewNumericDate(now),
            ExpiresAt: jwt.NewNumericDate(exp),
        },
    }
    signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}

// Verify parses raw and returns its claims. It fails with ErrTokenExpired
// when the expiry has passed and with ErrTokenInvalid for any signature,
// algorithm, format or claim problem.
func (s *TokenSigner) Verify(raw string) (*AccessClaims, error) {
    claims := &AccessClaims{}
    _, err := jwt.ParseWithClaims(raw, claims,
        func(*jwt.Token) (interface{}, error) { return s.secret, nil },
        jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
        jwt.WithExpirationRequired(),
        jwt.WithIssuer(accessIssuer),
        jwt.WithTimeFunc(s.now),
    )
    if err != nil {
        if errors.Is(err, jwt.ErrTokenExpired) {
            return nil, ErrTokenExpired
        }
        return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
    }
    if claims.UserID == 0 || claims.SessionID == "" {
        return nil, fmt.Errorf("%w: missing userId/sessionId", ErrTokenInvalid)
    }
    return claims, nil
}
