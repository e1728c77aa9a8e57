package sqlite

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/ctxkeep/ctxkeep/internal/journal"
)

// timeLayout is a fixed-width UTC format so lexicographic comparison in
// SQL matches chronological order. RFC3339Nano trims trailing zeros and
// would not sort correctly.
const timeLayout = "2006-01-02T15:04:05.000Z"

// Record appends an entry.
func (s *Store) Record(ctx context.Context, e journal.Entry) error {
	at := e.Time
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (at, session_id, op, policy, items, tokens, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		at.UTC().Format(timeLayout), e.SessionID, string(e.Op), e.Policy,
		e.ItemsAffected, e.TokensDelta, e.Detail,
	)
	if err != nil {
		return fmt.Errorf("sqlite: record entry: %w", err)
	}
	return nil
}

// Recent returns up to n entries in chronological order, newest last.
// An empty sessionID matches every session.
func (s *Store) Recent(ctx context.Context, sessionID string, n int) ([]journal.Entry, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT at, session_id, op, policy, items, tokens, detail
		FROM entries
		WHERE (? = '' OR session_id = ?)
		ORDER BY id DESC
		LIMIT ?`,
		sessionID, sessionID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []journal.Entry
	for rows.Next() {
		var e journal.Entry
		var at, op string
		if err := rows.Scan(&at, &e.SessionID, &op, &e.Policy, &e.ItemsAffected, &e.TokensDelta, &e.Detail); err != nil {
			return nil, fmt.Errorf("sqlite: scan entry: %w", err)
		}
		ts, err := time.Parse(timeLayout, at)
		if err != nil {
			return nil, fmt.Errorf("sqlite: parse entry time %q: %w", at, err)
		}
		e.Time = ts
		e.Op = journal.Op(op)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: recent rows: %w", err)
	}

	// Reverse to chronological order.
	slices.Reverse(entries)
	return entries, nil
}

// Len returns the number of stored entries.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count entries: %w", err)
	}
	return n, nil
}

// PruneBefore removes entries recorded before cutoff.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE at < ?", cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune entries: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune rows affected: %w", err)
	}
	return int(affected), nil
}
