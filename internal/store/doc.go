// Package store is the persistence core of the messenger backend.
//
// # Architecture
//
// A single DB facade owns the sqlite handle and composes three independent
// stores:
//
//   - AccountStore: registration, password-hash authentication, token
//     issuance, deletion paths, admin promotion
//   - MessageStore: posting, audit-returning deletion, time-range listing,
//     retention sweeps
//   - LogStore: append-only structured logs with a severity threshold and
//     retention sweeps
//
// Every statement runs through a Scope: a pinned connection plus
// transaction that commits and releases on every exit path. Close is
// idempotent. Operations that must be atomic (fetch-then-delete) share one
// scope.
//
// # Identifiers
//
// Accounts and messages are keyed by snowflake identifiers
// (internal/snowflake): 64-bit values embedding mint time, a 5-bit type
// tag, and an 11-bit sequence counter. Because identifier order matches
// mint order, time-range listing and retention deletion are plain integer
// range queries; there is no timestamp column.
//
// Logs are the deliberate exception: their primary key is a fixed-width
// date string and range queries compare it literally.
//
// # At-rest encoding
//
// Account names and log header maps pass through a reversible Codec before
// hitting the file. This is obfuscation, not encryption.
//
// # Error handling
//
//   - ErrNotFound: entity does not exist
//   - ErrForbidden: admin account targeted via the restricted deletion path
//   - ErrInvalidName: bad or duplicate registration name (conditions are
//     indistinguishable on purpose)
//   - ErrInvalidCredentials: any authentication mismatch (also
//     indistinguishable on purpose)
//   - ErrEmptyContent: message posted without content
//
// Storage faults propagate wrapped; they are never folded into the
// sentinel values above.
//
// # SQLite configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// All methods accept context.Context.
package store
