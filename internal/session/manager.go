package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/ctxkeep/ctxkeep/internal/window"
)

// Config controls session creation.
type Config struct {
	// MaxSessions limits concurrent sessions. Zero means unlimited.
	MaxSessions int

	// Window is the base engine configuration. SessionID and, when the
	// caller names one, Model are overridden per session.
	Window window.Config
}

// Manager is a concurrency-safe registry of sessions, keyed by id. It
// uses a map with a read-write mutex for O(1) lookups. The `now`
// function is injectable for deterministic testing.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	cfg      Config

	now func() time.Time
}

// NewManager creates an empty manager.
func NewManager(cfg Config) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		now:      time.Now,
	}
}

// GetOrCreate returns the session with the given id, creating it when
// absent. An empty id gets a generated one. The bool return is true when
// a new session was created. If MaxSessions > 0 and the limit is
// reached, no session is created and (nil, false) is returned. The model
// selector only applies at creation; an existing session keeps its
// profile.
func (m *Manager) GetOrCreate(id, model string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id != "" {
		if sess, ok := m.sessions[id]; ok {
			return sess, false
		}
	}

	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		return nil, false
	}

	if id == "" {
		generated, err := generateID()
		if err != nil {
			// Requires broken OS entropy; keep the session usable anyway.
			generated = fmt.Sprintf("err-%v", err)
		}
		id = generated
	}
	if model == "" {
		model = m.cfg.Window.Model
	}

	wcfg := m.cfg.Window
	wcfg.SessionID = id
	wcfg.Model = model
	tracker := window.NewTracker(wcfg)

	now := m.now()
	sess := &Session{
		ID:           id,
		Model:        model,
		CreatedAt:    now,
		lastActiveAt: now,
		engines: Engines{
			Tracker:   tracker,
			Pruner:    window.NewPruner(tracker),
			Compactor: window.NewCompactor(tracker),
			Inspector: window.NewInspector(tracker),
		},
	}
	m.sessions[id] = sess
	return sess, true
}

// Get returns the session for the given id, or nil if none exists.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// Touch updates the session's activity timestamp to the current time.
// It is a no-op if the session does not exist.
func (m *Manager) Touch(id string) {
	m.mu.RLock()
	sess := m.sessions[id]
	m.mu.RUnlock()

	if sess != nil {
		sess.touch(m.now())
	}
}

// Delete removes the session and reports whether it existed.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// Prune removes sessions whose idle time exceeds maxIdle and returns the
// number removed. Intended to be called periodically by a background
// job.
func (m *Manager) Prune(maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	pruned := 0
	for id, sess := range m.sessions {
		if now.Sub(sess.LastActive()) > maxIdle {
			delete(m.sessions, id)
			pruned++
		}
	}
	return pruned
}

// Len returns the number of active sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Range calls fn for each session. If fn returns false, iteration stops.
// The manager lock is held for the entire iteration, so keep fn fast;
// taking a session's With lock inside fn is fine, the reverse order
// never happens.
func (m *Manager) Range(fn func(*Session) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sess := range m.sessions {
		if !fn(sess) {
			return
		}
	}
}

// generateID produces a 32-character hex string from 16 random bytes.
func generateID() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("session: crypto/rand unavailable: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}
