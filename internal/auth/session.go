// ABOUTME: Short-lived session tokens exchanged against long-lived store tokens
// ABOUTME: HS256-signed JWTs carrying the account id in the "sub" claim

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/messenger/internal/snowflake"
	"github.com/2389/messenger/internal/store"
)

// AccountLookup is the slice of AccountStore the exchanger needs.
type AccountLookup interface {
	LookupByToken(ctx context.Context, token string) (*store.Account, error)
}

// Exchanger trades a store token for a short-lived session JWT and verifies
// session JWTs presented by the request layer.
type Exchanger struct {
	secret   []byte
	ttl      time.Duration
	accounts AccountLookup
}

// NewExchanger creates an exchanger signing with secret. Sessions expire
// after ttl.
func NewExchanger(secret []byte, ttl time.Duration, accounts AccountLookup) *Exchanger {
	return &Exchanger{secret: secret, ttl: ttl, accounts: accounts}
}

// Exchange validates the store token against the accounts table and issues
// a session JWT for the owning account. Unknown tokens map to
// ErrInvalidToken so callers cannot distinguish revoked from never-issued.
func (e *Exchanger) Exchange(ctx context.Context, storeToken string) (string, error) {
	acc, err := e.accounts.LookupByToken(ctx, storeToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("looking up token: %w", err)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": acc.ID.String(),
		"iat": now.Unix(),
		"exp": now.Add(e.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(e.secret)
}

// Verify validates a session JWT and returns the account id from the "sub"
// claim.
func (e *Exchanger) Verify(tokenString string) (snowflake.ID, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return e.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrExpiredToken
		}
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return 0, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidToken
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return 0, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	id, err := snowflake.Parse(sub)
	if err != nil {
		return 0, fmt.Errorf("%w: sub", ErrInvalidToken)
	}
	return id, nil
}
