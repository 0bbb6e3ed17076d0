// ABOUTME: Account persistence and password-hash authentication
// ABOUTME: Covers registration, token issuance, deletion paths, and admin retagging

package store

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"

	"github.com/2389/messenger/internal/snowflake"
)

var (
	accountsRegistered = metrics.GetOrCreateCounter("messenger_accounts_registered_total")
	accountsDeleted    = metrics.GetOrCreateCounter("messenger_accounts_deleted_total")
)

// AccountStore manages the accounts table. Construct it through Open.
type AccountStore struct {
	db     *DB
	logger *slog.Logger
}

// hashPassword derives the stored hash. The account's own id is the salt,
// binding the hash to the identity so identical passwords never share a
// stored hash.
func hashPassword(password string, id snowflake.ID) string {
	sum := sha512.Sum512([]byte(password + id.String()))
	return hex.EncodeToString(sum[:])
}

// mintToken builds "base64url(decimal id).base64url(16 random bytes)".
func mintToken(id snowflake.ID) string {
	secret := uuid.New()
	return base64.RawURLEncoding.EncodeToString([]byte(id.String())) +
		"." +
		base64.RawURLEncoding.EncodeToString(secret[:])
}

// isNumeric reports whether s is non-empty and consists only of ASCII
// digits. Numeric names are reserved for identifier lookups.
func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Register creates an account and returns its token.
//
// Numeric names, duplicates, empty fields, and malformed UTF-8 all surface
// as ErrInvalidName so callers cannot probe which condition failed.
func (s *AccountStore) Register(ctx context.Context, name, password string) (string, error) {
	if name == "" || password == "" || isNumeric(name) {
		return "", ErrInvalidName
	}
	if !utf8.ValidString(name) || !utf8.ValidString(password) {
		return "", ErrInvalidName
	}

	sc, err := s.db.scope(ctx)
	if err != nil {
		return "", err
	}
	defer sc.Close()

	id := s.db.gen.Next(snowflake.TagUser)
	token := mintToken(id)

	_, err = sc.Exec(ctx,
		`INSERT INTO accounts (id, name, password_hash, token) VALUES (?, ?, ?, ?)`,
		int64(id),
		s.db.codec.Encode(name),
		hashPassword(password, id),
		token,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return "", ErrInvalidName
		}
		return "", fmt.Errorf("inserting account: %w", err)
	}

	accountsRegistered.Inc()
	s.logger.Debug("registered account", "id", id)
	return token, nil
}

// Authenticate recomputes the salted hash with the stored account's own id
// and returns the stored token on an exact match.
func (s *AccountStore) Authenticate(ctx context.Context, name, password string) (string, error) {
	sc, err := s.db.scope(ctx)
	if err != nil {
		return "", err
	}
	defer sc.Close()

	var rawID int64
	var storedHash, token string
	err = sc.QueryRow(ctx,
		`SELECT id, password_hash, token FROM accounts WHERE name = ?`,
		s.db.codec.Encode(name),
	).Scan(&rawID, &storedHash, &token)
	if err == sql.ErrNoRows {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("querying account: %w", err)
	}

	computed := hashPassword(password, snowflake.ID(rawID))
	if subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) != 1 {
		return "", ErrInvalidCredentials
	}
	return token, nil
}

// DeleteByToken removes the account owning token after verifying password.
// Any mismatch, including an unknown token, is ErrInvalidCredentials.
func (s *AccountStore) DeleteByToken(ctx context.Context, token, password string) error {
	sc, err := s.db.scope(ctx)
	if err != nil {
		return err
	}
	defer sc.Close()

	var rawID int64
	var storedHash string
	err = sc.QueryRow(ctx,
		`SELECT id, password_hash FROM accounts WHERE token = ?`,
		token,
	).Scan(&rawID, &storedHash)
	if err == sql.ErrNoRows {
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("querying account: %w", err)
	}

	computed := hashPassword(password, snowflake.ID(rawID))
	if subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) != 1 {
		return ErrInvalidCredentials
	}

	if _, err := sc.Exec(ctx, `DELETE FROM accounts WHERE id = ?`, rawID); err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}

	accountsDeleted.Inc()
	s.logger.Info("account deleted by owner", "id", snowflake.ID(rawID))
	return nil
}

// DeleteByID is the admin deletion path. Admin accounts cannot be removed
// this way: the type tag inside the id is checked before touching the table,
// so the failure is ErrForbidden rather than ErrNotFound.
func (s *AccountStore) DeleteByID(ctx context.Context, id snowflake.ID) error {
	if snowflake.TypeOf(id) == snowflake.TagAdmin {
		return ErrForbidden
	}

	sc, err := s.db.scope(ctx)
	if err != nil {
		return err
	}
	defer sc.Close()

	res, err := sc.Exec(ctx, `DELETE FROM accounts WHERE id = ?`, int64(id))
	if err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	accountsDeleted.Inc()
	s.logger.Info("account deleted by admin", "id", id)
	return nil
}

// Lookup resolves an account by id (numeric query) or by name (anything
// else). The returned Account carries id and name only.
func (s *AccountStore) Lookup(ctx context.Context, query string) (*Account, error) {
	sc, err := s.db.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer sc.Close()

	var row *sql.Row
	if isNumeric(query) {
		id, err := snowflake.Parse(query)
		if err != nil {
			return nil, ErrNotFound
		}
		row = sc.QueryRow(ctx, `SELECT id, name FROM accounts WHERE id = ?`, int64(id))
	} else {
		row = sc.QueryRow(ctx, `SELECT id, name FROM accounts WHERE name = ?`, s.db.codec.Encode(query))
	}

	return s.scanAccount(row)
}

// LookupByToken resolves the account owning token.
func (s *AccountStore) LookupByToken(ctx context.Context, token string) (*Account, error) {
	sc, err := s.db.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer sc.Close()

	acc, err := s.scanAccount(sc.QueryRow(ctx,
		`SELECT id, name FROM accounts WHERE token = ?`, token))
	if err != nil {
		return nil, err
	}
	acc.Token = token
	return acc, nil
}

func (s *AccountStore) scanAccount(row *sql.Row) (*Account, error) {
	var rawID int64
	var encodedName string
	err := row.Scan(&rawID, &encodedName)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning account: %w", err)
	}

	name, err := s.db.codec.Decode(encodedName)
	if err != nil {
		return nil, fmt.Errorf("decoding account name: %w", err)
	}
	return &Account{ID: snowflake.ID(rawID), Name: name}, nil
}

// Promote rewrites the type tag inside the stored id and returns the new
// identifier. Callers must use the returned id afterward.
//
// The stored password hash stays salted with the pre-promotion id, so
// password authentication no longer matches for promoted accounts; their
// token keeps working.
func (s *AccountStore) Promote(ctx context.Context, id snowflake.ID, tag uint8) (snowflake.ID, error) {
	newID := snowflake.Retag(id, tag)

	sc, err := s.db.scope(ctx)
	if err != nil {
		return 0, err
	}
	defer sc.Close()

	res, err := sc.Exec(ctx, `UPDATE accounts SET id = ? WHERE id = ?`, int64(newID), int64(id))
	if err != nil {
		return 0, fmt.Errorf("retagging account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return 0, ErrNotFound
	}

	s.logger.Info("account promoted", "old_id", id, "new_id", newID, "tag", tag)
	return newID, nil
}
