// Package session maps session ids to per-conversation window engines
// and owns their lifecycle: creation with a capacity cap, activity
// tracking, and idle eviction. The window package itself is not
// concurrency-safe; this package is where serialization lives.
package session

import (
	"sync"
	"time"

	"github.com/ctxkeep/ctxkeep/internal/window"
)

// Engines bundles the four engines that share one tracker. They are
// handed out together under the session lock and must not escape the
// With callback.
type Engines struct {
	Tracker   *window.Tracker
	Pruner    *window.Pruner
	Compactor *window.Compactor
	Inspector *window.Inspector
}

// Session is one conversation's context window plus the mutex that
// serializes access to it. ID, Model, and CreatedAt are immutable after
// creation; the activity timestamp lives under the session lock so it
// can be read without holding the manager's.
type Session struct {
	ID        string
	Model     string
	CreatedAt time.Time

	mu           sync.Mutex
	lastActiveAt time.Time
	engines      Engines
}

// With runs fn with exclusive access to the session's engines. Keep fn
// short; it blocks every other caller of this session.
func (s *Session) With(fn func(Engines)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.engines)
}

// LastActive returns the time of the most recent activity.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActiveAt
}

func (s *Session) touch(t time.Time) {
	s.mu.Lock()
	s.lastActiveAt = t
	s.mu.Unlock()
}
