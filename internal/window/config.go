// Package window implements context-window budgeting for a single
// conversation: a Tracker that accounts tokens per item, a Pruner that
// evicts items under four policies, a Compactor that shrinks oversized
// items in place, and an Inspector that renders read-only views. The
// package does no I/O and keeps no global state; callers own
// serialization when a tracker is shared across goroutines.
package window

// Config carries the construction parameters for a tracker and the
// tuning knobs the compactor reads. The zero value is usable; every
// field has a default.
type Config struct {
	// SessionID labels status output. It has no behavioural effect.
	SessionID string

	// Model selects the capacity profile, see ResolveProfile.
	Model string

	// CharsPerToken is the estimator ratio. Zero means 4.0.
	CharsPerToken float64

	// CompactMinTokens is the size above which a non-pinned item becomes
	// a compaction candidate. Zero means 256.
	CompactMinTokens int

	// KeepHeadLines and KeepTailLines bound what compaction retains from
	// an oversized item. Zero means 8 each.
	KeepHeadLines int
	KeepTailLines int
}

// withDefaults returns a copy of c with zero values replaced.
func (c Config) withDefaults() Config {
	if c.CharsPerToken <= 0 {
		c.CharsPerToken = defaultCharsPerToken
	}
	if c.CompactMinTokens <= 0 {
		c.CompactMinTokens = 256
	}
	if c.KeepHeadLines <= 0 {
		c.KeepHeadLines = 8
	}
	if c.KeepTailLines <= 0 {
		c.KeepTailLines = 8
	}
	return c
}
