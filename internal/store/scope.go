// ABOUTME: Scoped acquisition of a single database connection with commit-then-release semantics
// ABOUTME: Every store statement runs through a Scope; Close commits on all exit paths and is idempotent

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Scope pins one connection and one transaction for the duration of a
// logical operation. Operations that must be atomic (fetch-then-delete)
// share a single scope; everything else opens a fresh one per call.
//
// Close commits whatever was executed and releases the connection back to
// the pool. The pool reuse is an internal optimization; the contract is
// only atomicity plus guaranteed release.
type Scope struct {
	conn   *sql.Conn
	tx     *sql.Tx
	closed bool
}

// scope acquires a connection from the pool and starts a transaction on it.
func (d *DB) scope(ctx context.Context) (*Scope, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &Scope{conn: conn, tx: tx}, nil
}

// Exec executes a statement within the scope.
func (s *Scope) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.tx.ExecContext(ctx, query, args...)
}

// Query runs a query within the scope.
func (s *Scope) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.tx.QueryContext(ctx, query, args...)
}

// QueryRow runs a single-row query within the scope.
func (s *Scope) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.tx.QueryRowContext(ctx, query, args...)
}

// Commit commits the pinned transaction early. Close still releases the
// connection afterwards.
func (s *Scope) Commit() error {
	err := s.tx.Commit()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// Close commits and releases the connection. Calling Close again is a no-op.
// The commit happens on error paths too, matching the one-operation-per-scope
// usage where partial work never spans a scope.
func (s *Scope) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.tx.Commit()
	if errors.Is(err, sql.ErrTxDone) {
		err = nil
	}
	cerr := s.conn.Close()
	if err != nil {
		return fmt.Errorf("committing scope: %w", err)
	}
	if cerr != nil {
		return fmt.Errorf("releasing connection: %w", cerr)
	}
	return nil
}
