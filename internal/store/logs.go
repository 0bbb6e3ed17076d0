// ABOUTME: Append-only structured log storage with a construction-time severity threshold
// ABOUTME: Date strings are the primary key; fixed-width formatting keeps lexical order chronological

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// Log severity levels. The store's threshold is compared against these;
// entries below it are neither persisted nor mirrored.
const (
	LevelUnset    = 0
	LevelDebug    = 1
	LevelInfo     = 2
	LevelWarning  = 3
	LevelError    = 4
	LevelCritical = 5
)

// logDateLayout is fixed-width and zero-padded. Range queries compare these
// strings literally, so the format must not change.
const logDateLayout = "2006-01-02 15:04:05.000000"

var logEntriesWritten = metrics.GetOrCreateCounter("messenger_log_entries_total")

// LogStore manages the logs table. Construct it through Open; the threshold
// is set with WithLogThreshold.
type LogStore struct {
	db        *DB
	logger    *slog.Logger
	threshold int

	mu   sync.Mutex
	last time.Time
}

// slogLevel maps a store level onto the mirrored slog level.
func slogLevel(level int) slog.Level {
	switch {
	case level >= LevelError:
		return slog.LevelError
	case level == LevelWarning:
		return slog.LevelWarn
	case level == LevelInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// nextDate returns a strictly increasing date key. The date column is the
// primary key, so two appends within the same microsecond must not collide.
func (s *LogStore) nextDate() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if !now.After(s.last) {
		now = s.last.Add(time.Microsecond)
	}
	s.last = now
	return now.Format(logDateLayout)
}

// Append persists one entry and mirrors it to the process log stream.
// Entries below the store threshold are dropped silently. Empty version/ip
// default to "n/a".
func (s *LogStore) Append(ctx context.Context, level int, version, ip, message string, headers map[string]string) error {
	if level < s.threshold {
		return nil
	}
	if version == "" {
		version = "n/a"
	}
	if ip == "" {
		ip = "n/a"
	}

	var encodedHeaders any
	if headers != nil {
		data, err := json.Marshal(headers)
		if err != nil {
			return fmt.Errorf("marshaling log headers: %w", err)
		}
		encodedHeaders = s.db.codec.Encode(string(data))
	}

	sc, err := s.db.scope(ctx)
	if err != nil {
		return err
	}
	defer sc.Close()

	_, err = sc.Exec(ctx,
		`INSERT INTO logs (date, level, version, ip, log, headers) VALUES (?, ?, ?, ?, ?, ?)`,
		s.nextDate(), level, version, ip, message, encodedHeaders,
	)
	if err != nil {
		return fmt.Errorf("inserting log entry: %w", err)
	}

	logEntriesWritten.Inc()
	s.logger.Log(ctx, slogLevel(level), message, "version", version, "ip", ip)
	return nil
}

// List returns entries newest first. before and after are Unix millisecond
// timestamps compared literally against the date column (logs carry no
// identifier, unlike messages); -1 means unbounded. limit -1 returns
// everything.
func (s *LogStore) List(ctx context.Context, limit int, before, after int64) ([]*LogEntry, error) {
	query := `SELECT date, level, version, ip, log, headers FROM logs WHERE 1=1`
	var args []any
	if after != -1 {
		query += ` AND date > ?`
		args = append(args, time.UnixMilli(after).UTC().Format(logDateLayout))
	}
	if before != -1 {
		query += ` AND date < ?`
		args = append(args, time.UnixMilli(before).UTC().Format(logDateLayout))
	}
	query += ` ORDER BY date DESC`
	if limit != -1 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	sc, err := s.db.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer sc.Close()

	rows, err := sc.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying logs: %w", err)
	}
	defer rows.Close()

	var entries []*LogEntry
	for rows.Next() {
		var e LogEntry
		var headers sql.NullString
		if err := rows.Scan(&e.Date, &e.Level, &e.Version, &e.IP, &e.Message, &headers); err != nil {
			return nil, fmt.Errorf("scanning log row: %w", err)
		}
		if headers.Valid && headers.String != "" {
			decoded, err := s.db.codec.Decode(headers.String)
			if err != nil {
				return nil, fmt.Errorf("decoding log headers: %w", err)
			}
			if err := json.Unmarshal([]byte(decoded), &e.Headers); err != nil {
				return nil, fmt.Errorf("unmarshaling log headers: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating log rows: %w", err)
	}
	return entries, nil
}

// DeleteOlderThan removes entries dated before cutoff and self-logs the
// result at INFO. Running it again with the same cutoff deletes nothing.
func (s *LogStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	sc, err := s.db.scope(ctx)
	if err != nil {
		return 0, err
	}
	defer sc.Close()

	res, err := sc.Exec(ctx, `DELETE FROM logs WHERE date < ?`,
		cutoff.UTC().Format(logDateLayout))
	if err != nil {
		return 0, fmt.Errorf("deleting old logs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	if err := sc.Close(); err != nil {
		return 0, err
	}

	if err := s.Append(ctx, LevelInfo, "", "",
		fmt.Sprintf("Deleted %d log entries older than %s.", n, cutoff.UTC().Format(time.RFC3339)),
		nil,
	); err != nil {
		return n, err
	}
	return n, nil
}

// DeleteOlderThanDays is DeleteOlderThan with a cutoff of days before now.
func (s *LogStore) DeleteOlderThanDays(ctx context.Context, days int) (int64, error) {
	return s.DeleteOlderThan(ctx, time.Now().AddDate(0, 0, -days))
}
