// ABOUTME: Reversible opaque encoding applied to stored text fields
// ABOUTME: Obfuscation only; it provides no confidentiality and is a known weak point

package store

import (
	"encoding/base64"
	"fmt"
)

// Codec obfuscates text at the storage boundary. Encoding must be
// deterministic so UNIQUE constraints keep working on encoded values.
type Codec interface {
	Encode(s string) string
	Decode(s string) (string, error)
}

// rotateCodec shifts every byte by a fixed offset and base64-encodes the
// result. Trivially reversible by anyone with the file.
type rotateCodec struct {
	offset byte
}

// DefaultCodec returns the codec applied to account names and log headers.
func DefaultCodec() Codec {
	return rotateCodec{offset: 13}
}

func (c rotateCodec) Encode(s string) string {
	b := []byte(s)
	for i := range b {
		b[i] += c.offset
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func (c rotateCodec) Decode(s string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("decoding stored text: %w", err)
	}
	for i := range b {
		b[i] -= c.offset
	}
	return string(b), nil
}
