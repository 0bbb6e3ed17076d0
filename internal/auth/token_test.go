// ABOUTME: Tests for store-token parsing
// ABOUTME: Round-trips the id prefix and rejects malformed inputs

package auth

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/messenger/internal/snowflake"
)

func TestParseToken_RoundTrip(t *testing.T) {
	gen := snowflake.NewGenerator()
	id := gen.Next(snowflake.TagUser)

	token := base64.RawURLEncoding.EncodeToString([]byte(id.String())) + ".c2VjcmV0"

	parsed, err := ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseToken_Invalid(t *testing.T) {
	cases := map[string]string{
		"no separator":     "justonepart",
		"empty prefix":     ".c2VjcmV0",
		"bad base64":       "!!!.c2VjcmV0",
		"non-numeric body": base64.RawURLEncoding.EncodeToString([]byte("alice")) + ".c2VjcmV0",
	}

	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseToken(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
