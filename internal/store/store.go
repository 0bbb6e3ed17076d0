// ABOUTME: DB facade and data types for the messenger storage engine
// ABOUTME: Owns the sqlite handle, the identifier generator, and the per-entity stores

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/2389/messenger/internal/snowflake"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when an admin account is targeted through the
// restricted deletion path.
var ErrForbidden = errors.New("forbidden")

// ErrInvalidName is returned for names that are empty, purely numeric,
// malformed, or already taken. Callers cannot tell which condition failed.
var ErrInvalidName = errors.New("invalid name")

// ErrInvalidCredentials is returned for any authentication mismatch: unknown
// name, wrong password, or unknown token. Deliberately indistinguishable.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrEmptyContent is returned when posting a message without content.
var ErrEmptyContent = errors.New("empty content")

// Account is a registered user. The type tag inside the ID distinguishes
// regular users from admins.
type Account struct {
	ID    snowflake.ID
	Name  string
	Token string
}

// Message is a single posted message. Mint time lives inside the ID.
type Message struct {
	ID      snowflake.ID
	Author  snowflake.ID
	Content string
}

// LogEntry is one structured log row. Date is the primary key, formatted as
// a fixed-width UTC timestamp so lexical order equals chronological order.
type LogEntry struct {
	Date    string
	Level   int
	Version string
	IP      string
	Message string
	Headers map[string]string
}

// DB owns the physical database. The sub-stores share its connection pool,
// identifier generator, and codec; no other component touches the file.
type DB struct {
	db     *sql.DB
	gen    *snowflake.Generator
	codec  Codec
	logger *slog.Logger

	Accounts *AccountStore
	Messages *MessageStore
	Logs     *LogStore
}

// Option configures a DB during Open.
type Option func(*DB)

// WithLogThreshold sets the minimum level a log entry must reach to be
// persisted (and mirrored). Levels below it are dropped silently.
func WithLogThreshold(level int) Option {
	return func(d *DB) { d.Logs.threshold = level }
}

// WithCodec replaces the at-rest text codec.
func WithCodec(c Codec) Option {
	return func(d *DB) { d.codec = c }
}

// Open opens (or creates) the database at path and prepares the schema.
// Parent directories are created if needed.
func Open(path string, opts ...Option) (*DB, error) {
	logger := slog.Default().With("component", "store")

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	d := &DB{
		db:     db,
		gen:    snowflake.NewGenerator(),
		codec:  DefaultCodec(),
		logger: logger,
	}
	d.Accounts = &AccountStore{db: d, logger: logger.With("table", "accounts")}
	d.Messages = &MessageStore{db: d, logger: logger.With("table", "messages")}
	d.Logs = &LogStore{db: d, logger: logger.With("table", "logs")}

	for _, opt := range opts {
		opt(d)
	}

	if err := d.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("store initialized", "path", path)
	return d, nil
}

// createSchema creates the three tables if they don't exist. Safe to run on
// every startup.
func (d *DB) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS accounts (
			id            INTEGER PRIMARY KEY,
			name          TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL UNIQUE,
			token         TEXT NOT NULL UNIQUE
		);

		CREATE TABLE IF NOT EXISTS messages (
			id      INTEGER PRIMARY KEY,
			author  INTEGER NOT NULL,
			content TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS logs (
			date    TEXT PRIMARY KEY,
			level   INTEGER NOT NULL,
			version TEXT,
			ip      TEXT,
			log     TEXT NOT NULL,
			headers TEXT
		);
	`

	_, err := d.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (d *DB) Close() error {
	d.logger.Info("closing store")
	return d.db.Close()
}

// isConstraintViolation checks if the error is a sqlite UNIQUE constraint
// violation.
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}
