// Package journal records what pruning and compaction did to each
// session: one entry per operation, never the conversation content
// itself. Entries feed the operator API and the retention job.
package journal

import (
	"context"
	"time"
)

// Op identifies the kind of context operation an entry records.
type Op string

// Recorded operations.
const (
	OpPrune   Op = "prune"
	OpCompact Op = "compact"
)

// Entry is one recorded operation against a session's window.
type Entry struct {
	Time          time.Time
	SessionID     string
	Op            Op
	Policy        string // prune policy name; "compact" for compactions
	ItemsAffected int
	TokensDelta   int // tokens freed by the operation
	Detail        string
}

// Recorder stores operation entries.
// Implementations must be safe for concurrent use.
type Recorder interface {
	// Record appends an entry. A zero Time is stamped with the current
	// time.
	Record(ctx context.Context, e Entry) error

	// Recent returns up to n entries in chronological order, newest
	// last. An empty sessionID matches every session.
	Recent(ctx context.Context, sessionID string, n int) ([]Entry, error)

	// Len returns the number of stored entries.
	Len(ctx context.Context) (int, error)

	// PruneBefore removes entries recorded before cutoff and returns the
	// number removed.
	PruneBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Nop returns a recorder that discards everything. Useful where a
// journal is optional.
func Nop() Recorder { return nopRecorder{} }

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Entry) error { return nil }
func (nopRecorder) Recent(context.Context, string, int) ([]Entry, error) {
	return nil, nil
}
func (nopRecorder) Len(context.Context) (int, error) { return 0, nil }
func (nopRecorder) PruneBefore(context.Context, time.Time) (int, error) {
	return 0, nil
}
