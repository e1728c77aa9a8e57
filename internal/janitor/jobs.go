package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ctxkeep/ctxkeep/internal/journal"
	"github.com/ctxkeep/ctxkeep/internal/session"
)

// SessionStore is the subset of the session manager the cleanup job
// needs. Keeping it narrow keeps the job trivially testable.
type SessionStore interface {
	Prune(maxIdle time.Duration) int
}

// SweepMetrics receives counters from the compaction sweep. The
// gateway's metrics registry satisfies it; a nil value disables
// recording.
type SweepMetrics interface {
	RecordCompaction(itemsCompacted, tokensFreed int)
	RecordPrune(policy string, itemsRemoved, tokensFreed int)
}

func jobLogger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// CompactionSweepJob walks every session and reclaims space in the ones
// running hot. A session at or above HighWater usage is compacted first;
// if compaction alone does not bring it back under, it is pruned down to
// LowWater.
type CompactionSweepJob struct {
	Sessions     *session.Manager
	Journal      journal.Recorder
	Metrics      SweepMetrics
	Logger       *slog.Logger
	HighWater    float64 // usage fraction that triggers the sweep; default 0.8
	LowWater     float64 // prune target; default HighWater * 0.75
	ScheduleExpr string  // empty = default "*/10 * * * *"
}

// Compile-time interface check.
var _ Job = (*CompactionSweepJob)(nil)

// Name implements Job.
func (j *CompactionSweepJob) Name() string { return "compaction_sweep" }

// Schedule implements Job.
func (j *CompactionSweepJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/10 * * * *"
}

// waters returns the effective watermarks with defaults applied.
func (j *CompactionSweepJob) waters() (high, low float64) {
	high, low = j.HighWater, j.LowWater
	if high <= 0 || high > 1 {
		high = 0.8
	}
	if low <= 0 || low >= high {
		low = high * 0.75
	}
	return high, low
}

// Run sweeps all sessions once.
func (j *CompactionSweepJob) Run(ctx context.Context) error {
	high, low := j.waters()
	logger := jobLogger(j.Logger)

	var compacted, pruned int
	j.Sessions.Range(func(s *session.Session) bool {
		if ctx.Err() != nil {
			return false
		}
		s.With(func(eng session.Engines) {
			if eng.Tracker.Status().UsagePercent < high {
				return
			}

			res := eng.Compactor.Compact()
			if res.ItemsCompacted > 0 {
				compacted++
				j.record(ctx, journal.Entry{
					SessionID:     s.ID,
					Op:            journal.OpCompact,
					Policy:        "compact",
					ItemsAffected: res.ItemsCompacted,
					TokensDelta:   res.TokensSaved,
					Detail:        res.Summary,
				})
				if j.Metrics != nil {
					j.Metrics.RecordCompaction(res.ItemsCompacted, res.TokensSaved)
				}
			}

			// Compaction may not be enough: large pinned items and
			// already-compacted output do not shrink any further.
			if eng.Tracker.Status().UsagePercent < high {
				return
			}
			pres := eng.Pruner.PruneToTarget(low)
			if pres.ItemsRemoved == 0 {
				return
			}
			pruned++
			j.record(ctx, journal.Entry{
				SessionID:     s.ID,
				Op:            journal.OpPrune,
				Policy:        "target",
				ItemsAffected: pres.ItemsRemoved,
				TokensDelta:   pres.TokensFreed,
				Detail:        fmt.Sprintf("sweep to %.0f%% usage", low*100),
			})
			if j.Metrics != nil {
				j.Metrics.RecordPrune("target", pres.ItemsRemoved, pres.TokensFreed)
			}
		})
		return true
	})

	if compacted > 0 || pruned > 0 {
		logger.Info("janitor: compaction sweep",
			"compacted_sessions", compacted,
			"pruned_sessions", pruned,
		)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("janitor: compaction sweep cancelled: %w", ctx.Err())
	}
	return nil
}

func (j *CompactionSweepJob) record(ctx context.Context, e journal.Entry) {
	if j.Journal == nil {
		return
	}
	if err := j.Journal.Record(ctx, e); err != nil {
		jobLogger(j.Logger).Warn("janitor: journal write failed", "error", err)
	}
}

// SessionCleanupJob removes sessions that have been idle longer than MaxIdle.
type SessionCleanupJob struct {
	Store        SessionStore
	MaxIdle      time.Duration // default 2h
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/5 * * * *"
}

// Compile-time interface check.
var _ Job = (*SessionCleanupJob)(nil)

// Name implements Job.
func (j *SessionCleanupJob) Name() string { return "session_cleanup" }

// Schedule implements Job.
func (j *SessionCleanupJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/5 * * * *"
}

// Run prunes sessions idle longer than MaxIdle.
func (j *SessionCleanupJob) Run(_ context.Context) error {
	maxIdle := j.MaxIdle
	if maxIdle <= 0 {
		maxIdle = 2 * time.Hour
	}
	pruned := j.Store.Prune(maxIdle)
	if pruned > 0 {
		jobLogger(j.Logger).Info("janitor: pruned idle sessions", "count", pruned)
	}
	return nil
}

// JournalRetentionJob expires journal entries older than Retention.
type JournalRetentionJob struct {
	Journal      journal.Recorder
	Retention    time.Duration // default 168h
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "0 * * * *"

	now func() time.Time
}

// Compile-time interface check.
var _ Job = (*JournalRetentionJob)(nil)

// Name implements Job.
func (j *JournalRetentionJob) Name() string { return "journal_retention" }

// Schedule implements Job.
func (j *JournalRetentionJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 * * * *"
}

// Run removes entries recorded before now minus Retention.
func (j *JournalRetentionJob) Run(ctx context.Context) error {
	nowFn := j.now
	if nowFn == nil {
		nowFn = time.Now
	}
	retention := j.Retention
	if retention <= 0 {
		retention = 168 * time.Hour
	}

	cutoff := nowFn().Add(-retention)
	removed, err := j.Journal.PruneBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("janitor: journal retention: %w", err)
	}
	if removed > 0 {
		jobLogger(j.Logger).Info("janitor: expired journal entries removed",
			"count", removed,
			"cutoff", cutoff,
		)
	}
	return nil
}
