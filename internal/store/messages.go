// ABOUTME: Message persistence with time-range listing driven purely by identifier ordering
// ABOUTME: Deletion returns the removed row for audit logging; retention sweeps are idempotent

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/2389/messenger/internal/snowflake"
)

var (
	messagesPosted = metrics.GetOrCreateCounter("messenger_messages_posted_total")
	messagesSwept  = metrics.GetOrCreateCounter("messenger_messages_swept_total")
)

// DefaultListLimit is used when List is called with a non-positive limit.
const DefaultListLimit = 20

// MessageStore manages the messages table. Construct it through Open.
type MessageStore struct {
	db     *DB
	logger *slog.Logger
}

// Post persists a new message and returns its identifier.
func (s *MessageStore) Post(ctx context.Context, author snowflake.ID, content string) (snowflake.ID, error) {
	if content == "" {
		return 0, ErrEmptyContent
	}

	sc, err := s.db.scope(ctx)
	if err != nil {
		return 0, err
	}
	defer sc.Close()

	id := s.db.gen.Next(snowflake.TagMessage)
	_, err = sc.Exec(ctx,
		`INSERT INTO messages (id, author, content) VALUES (?, ?, ?)`,
		int64(id), int64(author), content,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting message: %w", err)
	}

	messagesPosted.Inc()
	s.logger.Debug("posted message", "id", id, "author", author)
	return id, nil
}

// Delete removes a message and returns the deleted row so the caller can
// audit-log it. Fetch and delete share one scope.
func (s *MessageStore) Delete(ctx context.Context, id snowflake.ID) (*Message, error) {
	sc, err := s.db.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer sc.Close()

	var msg Message
	var rawID, rawAuthor int64
	err = sc.QueryRow(ctx,
		`SELECT id, author, content FROM messages WHERE id = ?`, int64(id),
	).Scan(&rawID, &rawAuthor, &msg.Content)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}
	msg.ID = snowflake.ID(rawID)
	msg.Author = snowflake.ID(rawAuthor)

	if _, err := sc.Exec(ctx, `DELETE FROM messages WHERE id = ?`, int64(id)); err != nil {
		return nil, fmt.Errorf("deleting message: %w", err)
	}

	s.logger.Info("message deleted", "id", id, "author", msg.Author)
	return &msg, nil
}

// List returns up to limit messages newest first. before and after are Unix
// millisecond timestamps bounding the mint time exclusively; -1 means
// unbounded. The bounds are translated into identifier bounds with the same
// shift used at mint time, so a single range-and-order query suffices.
func (s *MessageStore) List(ctx context.Context, limit int, before, after int64) ([]*Message, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	lower := int64(0)
	if after != -1 {
		lower = int64(snowflake.BoundAtMillis(after))
	}
	upper := int64(math.MaxInt64)
	if before != -1 {
		upper = int64(snowflake.BoundAtMillis(before))
	}

	sc, err := s.db.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer sc.Close()

	rows, err := sc.Query(ctx, `
		SELECT id, author, content
		FROM messages
		WHERE id > ? AND id < ?
		ORDER BY id DESC
		LIMIT ?
	`, lower, upper, limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var msg Message
		var rawID, rawAuthor int64
		if err := rows.Scan(&rawID, &rawAuthor, &msg.Content); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		msg.ID = snowflake.ID(rawID)
		msg.Author = snowflake.ID(rawAuthor)
		msgs = append(msgs, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return msgs, nil
}

// DeleteOlderThan removes every message minted before cutoff and writes one
// INFO log entry summarizing the sweep. Running it again with the same
// cutoff deletes nothing.
func (s *MessageStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	bound := int64(snowflake.BoundAt(cutoff))

	sc, err := s.db.scope(ctx)
	if err != nil {
		return 0, err
	}
	defer sc.Close()

	res, err := sc.Exec(ctx, `DELETE FROM messages WHERE id < ?`, bound)
	if err != nil {
		return 0, fmt.Errorf("deleting old messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	if err := sc.Close(); err != nil {
		return 0, err
	}

	messagesSwept.Add(int(n))
	if err := s.db.Logs.Append(ctx, LevelInfo, "", "",
		fmt.Sprintf("Deleted %d messages older than %s.", n, cutoff.UTC().Format(time.RFC3339)),
		nil,
	); err != nil {
		return n, fmt.Errorf("logging retention sweep: %w", err)
	}
	return n, nil
}

// DeleteOlderThanDays is DeleteOlderThan with a cutoff of days before now.
func (s *MessageStore) DeleteOlderThanDays(ctx context.Context, days int) (int64, error) {
	return s.DeleteOlderThan(ctx, time.Now().AddDate(0, 0, -days))
}
