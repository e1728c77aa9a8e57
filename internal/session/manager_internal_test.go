package session

import (
	"testing"
	"time"

	"github.com/ctxkeep/ctxkeep/internal/window"
)

func TestManager_PruneIdleSessions(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	current := base
	m := NewManager(Config{Window: window.Config{Model: "claude"}})
	m.now = func() time.Time { return current }

	m.GetOrCreate("stale", "")
	current = base.Add(30 * time.Minute)
	m.GetOrCreate("fresh", "")
	current = base.Add(45 * time.Minute)
	m.Touch("fresh")

	// An hour later: "stale" idled 60m, "fresh" idled 15m.
	current = base.Add(time.Hour)
	pruned := m.Prune(20 * time.Minute)

	if pruned != 1 {
		t.Fatalf("Prune = %d, want 1", pruned)
	}
	if m.Get("stale") != nil {
		t.Error("stale session survived the prune")
	}
	if m.Get("fresh") == nil {
		t.Error("fresh session was pruned")
	}
}

func TestManager_TouchUpdatesLastActive(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	current := base
	m := NewManager(Config{Window: window.Config{Model: "claude"}})
	m.now = func() time.Time { return current }

	sess, _ := m.GetOrCreate("s", "")
	current = base.Add(5 * time.Minute)
	m.Touch("s")

	if !sess.LastActive().Equal(base.Add(5 * time.Minute)) {
		t.Errorf("LastActive = %v, want %v", sess.LastActive(), base.Add(5*time.Minute))
	}

	// Touching an unknown id is a no-op.
	m.Touch("missing")
}
