package journal

import (
	"context"
	"sync"
	"time"
)

const defaultCapacity = 1024

// MemoryRecorder is a thread-safe, bounded in-memory Recorder. When the
// capacity is reached the oldest entry is dropped, so it behaves as a
// ring of the most recent operations.
type MemoryRecorder struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
}

// NewMemoryRecorder creates an empty recorder holding at most capacity
// entries. Zero or negative capacity gets the default of 1024.
func NewMemoryRecorder(capacity int) *MemoryRecorder {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &MemoryRecorder{capacity: capacity}
}

// Compile-time interface check.
var _ Recorder = (*MemoryRecorder)(nil)

// Record appends an entry, evicting the oldest when full.
func (r *MemoryRecorder) Record(_ context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if len(r.entries) >= r.capacity {
		drop := len(r.entries) - r.capacity + 1
		r.entries = append(r.entries[:0], r.entries[drop:]...)
	}
	r.entries = append(r.entries, e)
	return nil
}

// Recent returns up to n matching entries in chronological order.
func (r *MemoryRecorder) Recent(_ context.Context, sessionID string, n int) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 {
		return nil, nil
	}

	// Walk backwards to find the newest matches, then reverse.
	var picked []Entry
	for i := len(r.entries) - 1; i >= 0 && len(picked) < n; i-- {
		if sessionID != "" && r.entries[i].SessionID != sessionID {
			continue
		}
		picked = append(picked, r.entries[i])
	}
	for i, j := 0, len(picked)-1; i < j; i, j = i+1, j-1 {
		picked[i], picked[j] = picked[j], picked[i]
	}
	return picked, nil
}

// Len returns the number of stored entries.
func (r *MemoryRecorder) Len(context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries), nil
}

// PruneBefore removes entries recorded before cutoff.
func (r *MemoryRecorder) PruneBefore(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.entries[:0]
	removed := 0
	for _, e := range r.entries {
		if e.Time.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return removed, nil
}
