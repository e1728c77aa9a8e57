package janitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ctxkeep/ctxkeep/internal/journal"
	"github.com/ctxkeep/ctxkeep/internal/session"
	"github.com/ctxkeep/ctxkeep/internal/window"
)

// sweepCounters implements SweepMetrics for job tests.
type sweepCounters struct {
	compactions atomic.Int32
	prunes      atomic.Int32
}

func (m *sweepCounters) RecordCompaction(_, _ int) { m.compactions.Add(1) }

func (m *sweepCounters) RecordPrune(_ string, _, _ int) { m.prunes.Add(1) }

// newSweepManager returns a manager whose sessions run on the small
// llama budget so usage climbs quickly.
func newSweepManager() *session.Manager {
	return session.NewManager(session.Config{
		Window: window.Config{Model: "llama-7b"},
	})
}

// busyToolOutput builds n lines of 40 characters each, newline included,
// so token counts stay easy to reason about.
func busyToolOutput(lines int) string {
	var b strings.Builder
	for i := range lines {
		fmt.Fprintf(&b, "replicated shard %04d to standby region\n", i)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func usageOf(s *session.Session) float64 {
	var usage float64
	s.With(func(eng session.Engines) {
		usage = eng.Tracker.Status().UsagePercent
	})
	return usage
}

func TestCompactionSweepJob_NameAndSchedule(t *testing.T) {
	t.Parallel()

	j := &CompactionSweepJob{}
	if j.Name() != "compaction_sweep" {
		t.Errorf("name = %q", j.Name())
	}
	if j.Schedule() != "*/10 * * * *" {
		t.Errorf("schedule = %q", j.Schedule())
	}

	j.ScheduleExpr = "*/2 * * * *"
	if j.Schedule() != "*/2 * * * *" {
		t.Errorf("override schedule = %q", j.Schedule())
	}
}

func TestCompactionSweepJob_Waters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name              string
		high, low         float64
		wantHigh, wantLow float64
	}{
		{name: "defaults", high: 0, low: 0, wantHigh: 0.8, wantLow: 0.8 * 0.75},
		{name: "explicit", high: 0.9, low: 0.3, wantHigh: 0.9, wantLow: 0.3},
		{name: "high out of range", high: 1.5, low: 0, wantHigh: 0.8, wantLow: 0.8 * 0.75},
		{name: "low above high", high: 0.5, low: 0.7, wantHigh: 0.5, wantLow: 0.5 * 0.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			j := &CompactionSweepJob{HighWater: tt.high, LowWater: tt.low}
			high, low := j.waters()
			if high != tt.wantHigh || low != tt.wantLow {
				t.Errorf("waters() = %v, %v, want %v, %v", high, low, tt.wantHigh, tt.wantLow)
			}
		})
	}
}

func TestCompactionSweepJob_CompactsHotSessions(t *testing.T) {
	t.Parallel()

	mgr := newSweepManager()
	rec := journal.NewMemoryRecorder(0)
	counters := &sweepCounters{}

	hot, _ := mgr.GetOrCreate("hot", "")
	hot.With(func(eng session.Engines) {
		for range 8 {
			eng.Tracker.AddToolResult(busyToolOutput(100), "replicator")
		}
	})
	cool, _ := mgr.GetOrCreate("cool", "")
	cool.With(func(eng session.Engines) {
		eng.Tracker.AddUserMessage("just checking in")
	})

	if u := usageOf(hot); u < 0.8 {
		t.Fatalf("setup: hot session usage = %v, want >= 0.8", u)
	}

	j := &CompactionSweepJob{Sessions: mgr, Journal: rec, Metrics: counters}
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if u := usageOf(hot); u >= 0.8 {
		t.Errorf("hot session usage after sweep = %v, want < 0.8", u)
	}

	entries, err := rec.Recent(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("journal entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.SessionID != "hot" || e.Op != journal.OpCompact || e.ItemsAffected != 8 {
		t.Errorf("entry = %+v", e)
	}
	if e.TokensDelta <= 0 {
		t.Errorf("TokensDelta = %d, want > 0", e.TokensDelta)
	}

	if counters.compactions.Load() != 1 || counters.prunes.Load() != 0 {
		t.Errorf("metrics = %d compactions, %d prunes, want 1, 0",
			counters.compactions.Load(), counters.prunes.Load())
	}
}

func TestCompactionSweepJob_FallsBackToPrune(t *testing.T) {
	t.Parallel()

	mgr := newSweepManager()
	rec := journal.NewMemoryRecorder(0)
	counters := &sweepCounters{}

	// 33 single-line messages of 201 tokens each: too small to compact,
	// together well over the high watermark (6633 of 8192 tokens).
	sess, _ := mgr.GetOrCreate("chatty", "")
	sess.With(func(eng session.Engines) {
		for range 33 {
			eng.Tracker.AddUserMessage(strings.Repeat("observed", 100))
		}
	})

	j := &CompactionSweepJob{Sessions: mgr, Journal: rec, Metrics: counters}
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	// Compaction found nothing, so the sweep pruned down to the low
	// watermark instead: 9 oldest messages go.
	if u := usageOf(sess); u > 0.6 {
		t.Errorf("usage after sweep = %v, want <= 0.6", u)
	}

	entries, err := rec.Recent(context.Background(), "chatty", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("journal entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Op != journal.OpPrune || e.Policy != "target" {
		t.Errorf("entry = %+v", e)
	}
	if e.ItemsAffected != 9 || e.TokensDelta != 9*201 {
		t.Errorf("ItemsAffected = %d, TokensDelta = %d, want 9, %d", e.ItemsAffected, e.TokensDelta, 9*201)
	}

	if counters.compactions.Load() != 0 || counters.prunes.Load() != 1 {
		t.Errorf("metrics = %d compactions, %d prunes, want 0, 1",
			counters.compactions.Load(), counters.prunes.Load())
	}
}

func TestCompactionSweepJob_SkipsCoolSessions(t *testing.T) {
	t.Parallel()

	mgr := newSweepManager()
	rec := journal.NewMemoryRecorder(0)

	sess, _ := mgr.GetOrCreate("calm", "")
	sess.With(func(eng session.Engines) {
		eng.Tracker.AddSystemPrompt("You are a terse assistant.", true)
		eng.Tracker.AddUserMessage("hello")
	})

	j := &CompactionSweepJob{Sessions: mgr, Journal: rec}
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if n, _ := rec.Len(context.Background()); n != 0 {
		t.Errorf("journal entries = %d, want 0", n)
	}
	var items int
	sess.With(func(eng session.Engines) {
		items = eng.Tracker.Len()
	})
	if items != 2 {
		t.Errorf("items = %d, want 2 untouched", items)
	}
}

func TestCompactionSweepJob_CancelledContext(t *testing.T) {
	t.Parallel()

	mgr := newSweepManager()
	sess, _ := mgr.GetOrCreate("hot", "")
	sess.With(func(eng session.Engines) {
		for range 8 {
			eng.Tracker.AddToolResult(busyToolOutput(100), "replicator")
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	j := &CompactionSweepJob{Sessions: mgr}
	err := j.Run(ctx)
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if !strings.Contains(err.Error(), "cancelled") {
		t.Errorf("error = %v", err)
	}

	// Nothing was touched.
	if u := usageOf(sess); u < 0.8 {
		t.Errorf("usage = %v, session should be untouched", u)
	}
}

// stubSessionStore implements SessionStore for cleanup job tests.
type stubSessionStore struct {
	gotMaxIdle time.Duration
	pruned     int
}

func (s *stubSessionStore) Prune(maxIdle time.Duration) int {
	s.gotMaxIdle = maxIdle
	return s.pruned
}

func TestSessionCleanupJob_NameAndSchedule(t *testing.T) {
	t.Parallel()

	j := &SessionCleanupJob{}
	if j.Name() != "session_cleanup" {
		t.Errorf("name = %q", j.Name())
	}
	if j.Schedule() != "*/5 * * * *" {
		t.Errorf("schedule = %q", j.Schedule())
	}
}

func TestSessionCleanupJob_Run(t *testing.T) {
	t.Parallel()

	store := &stubSessionStore{pruned: 3}
	j := &SessionCleanupJob{Store: store, MaxIdle: 30 * time.Minute}

	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if store.gotMaxIdle != 30*time.Minute {
		t.Errorf("maxIdle = %v, want 30m", store.gotMaxIdle)
	}
}

func TestSessionCleanupJob_DefaultMaxIdle(t *testing.T) {
	t.Parallel()

	store := &stubSessionStore{}
	j := &SessionCleanupJob{Store: store}

	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if store.gotMaxIdle != 2*time.Hour {
		t.Errorf("maxIdle = %v, want default 2h", store.gotMaxIdle)
	}
}

func TestJournalRetentionJob_NameAndSchedule(t *testing.T) {
	t.Parallel()

	j := &JournalRetentionJob{}
	if j.Name() != "journal_retention" {
		t.Errorf("name = %q", j.Name())
	}
	if j.Schedule() != "0 * * * *" {
		t.Errorf("schedule = %q", j.Schedule())
	}
}

func TestJournalRetentionJob_Run(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rec := journal.NewMemoryRecorder(0)
	for i := range 6 {
		err := rec.Record(context.Background(), journal.Entry{
			Time:      base.Add(time.Duration(i) * time.Hour),
			SessionID: "s",
			Op:        journal.OpPrune,
		})
		if err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	j := &JournalRetentionJob{
		Journal:   rec,
		Retention: 150 * time.Minute,
		now:       func() time.Time { return base.Add(6 * time.Hour) },
	}
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	// Cutoff is base+3h30m; the four entries before it are gone.
	n, err := rec.Len(context.Background())
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != 2 {
		t.Errorf("remaining entries = %d, want 2", n)
	}
}

func TestJournalRetentionJob_DefaultRetention(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	rec := journal.NewMemoryRecorder(0)
	_ = rec.Record(context.Background(), journal.Entry{Time: now.Add(-169 * time.Hour), SessionID: "old"})
	_ = rec.Record(context.Background(), journal.Entry{Time: now.Add(-time.Hour), SessionID: "fresh"})

	j := &JournalRetentionJob{
		Journal: rec,
		now:     func() time.Time { return now },
	}
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	entries, _ := rec.Recent(context.Background(), "", 10)
	if len(entries) != 1 || entries[0].SessionID != "fresh" {
		t.Errorf("entries = %+v, want only fresh", entries)
	}
}

// failingRecorder errors on PruneBefore; other methods are never called.
type failingRecorder struct{ journal.Recorder }

func (failingRecorder) PruneBefore(context.Context, time.Time) (int, error) {
	return 0, errors.New("disk gone")
}

func TestJournalRetentionJob_Error(t *testing.T) {
	t.Parallel()

	j := &JournalRetentionJob{Journal: failingRecorder{}}
	err := j.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "journal retention") {
		t.Errorf("error = %v", err)
	}
}
