// ABOUTME: Store-token parsing for the request layer
// ABOUTME: Tokens are "base64url(decimal id).base64url(secret)"; the id prefix is recoverable

package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/2389/messenger/internal/snowflake"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// ParseToken extracts the account identifier embedded in a store token
// without a database round trip. It does not prove the token is live; use
// AccountStore.LookupByToken for that.
//
// Note the embedded id is the one the account was registered with; if the
// account was promoted since, the live id differs in its type tag.
func ParseToken(token string) (snowflake.ID, error) {
	prefix, _, found := strings.Cut(token, ".")
	if !found || prefix == "" {
		return 0, ErrInvalidToken
	}

	raw, err := base64.RawURLEncoding.DecodeString(prefix)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := snowflake.Parse(string(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return id, nil
}
