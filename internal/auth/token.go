// Package auth issues and verifies the bearer tokens handed to members at login.
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

// Issuer is the iss claim of every member token.
const Issuer = "velvetrope"

// MinSecretLength is the shortest HMAC key accepted.
const MinSecretLength = 32

var (
	// ErrInvalidToken is returned for tokens that fail parsing, signature or claim checks.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrMissingToken is returned when no bearer token is present.
	ErrMissingToken = errors.New("authorization header is missing")
)

// Claims are the member token claims. The subject is the normalized account.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 member tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	clock  clockwork.Clock
}

// NewTokenIssuer creates an issuer. clock may be nil.
func NewTokenIssuer(secret []byte, ttl time.Duration, clock clockwork.Clock) (*TokenIssuer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes", MinSecretLength)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token lifetime must be positive")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TokenIssuer{secret: secret, ttl: ttl, clock: clock}, nil
}

// GenerateSecret returns a random key for deployments without JWT_SECRET.
// Tokens signed with it do not survive a restart.
func GenerateSecret() ([]byte, error) {
	b := make([]byte, MinSecretLength)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate token secret: %w", err)
	}
	return b, nil
}

// Issue returns a signed token for account and its expiry.
func (i *TokenIssuer) Issue(account string) (string, time.Time, error) {
	now := i.clock.Now()
	expires := now.Add(i.ttl)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify parses token and returns the account it was issued to.
func (i *TokenIssuer) Verify(token string) (string, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, i.key,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func (i *TokenIssuer) key(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return i.secret, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrInvalidToken
	}
	return strings.TrimSpace(token), nil
}
