// Package auth bridges store tokens and the request layer.
//
// Store tokens are long-lived opaque credentials minted at registration:
// "base64url(decimal id).base64url(16 random bytes)". ParseToken recovers
// the embedded account id without touching the database.
//
// Exchanger trades a live store token for a short-lived HS256 session JWT
// (sub = account id) and verifies presented session JWTs. The request layer
// decides which of the two credential forms it accepts per endpoint.
package auth
