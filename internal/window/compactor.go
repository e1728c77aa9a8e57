package window

import (
	"fmt"
	"strings"
)

// markerTag appears in every elision marker the compactor writes. Items
// whose content already carries it are skipped on later passes, which is
// what makes repeated compaction converge instead of nibbling at its own
// markers.
const markerTag = " trimmed ...]"

// Character bounds for items that are too long but have too few lines
// for line-based trimming.
const (
	keepHeadChars = 240
	keepTailChars = 240
	minCharCut    = 80
)

// CompactResult reports the outcome of one compaction pass.
// CompressionRatio is TokensSaved over TokensBefore and stays within
// [0, 1]; an empty window compresses by 0.
type CompactResult struct {
	TokensBefore     int
	TokensAfter      int
	TokensSaved      int
	CompressionRatio float64
	ItemsCompacted   int
	Summary          string
}

// Compactor shrinks oversized items in place by keeping their head and
// tail and eliding the middle behind a marker. It never removes items
// and never touches pinned ones. A rewrite is only applied when the
// estimator agrees it saves tokens, so an item can never grow.
type Compactor struct {
	t *Tracker
}

// NewCompactor returns a compactor operating on t.
func NewCompactor(t *Tracker) *Compactor {
	return &Compactor{t: t}
}

// Compact runs one pass over the window. Candidates are non-pinned items
// above the configured token threshold that have not been compacted
// before. Item count and ordering are unchanged afterwards.
func (c *Compactor) Compact() CompactResult {
	before := c.t.totalTokens()
	compacted := 0
	for _, it := range c.t.items {
		if it.Pinned {
			continue
		}
		if it.TokenCount <= c.t.cfg.CompactMinTokens {
			continue
		}
		if strings.Contains(it.Content, markerTag) {
			continue
		}
		short, ok := c.shorten(it.Content)
		if !ok {
			continue
		}
		if c.t.estimator.Estimate(short) >= it.TokenCount {
			continue
		}
		c.t.updateContent(it, short)
		compacted++
	}

	after := c.t.totalTokens()
	saved := before - after
	ratio := 0.0
	if before > 0 {
		ratio = float64(saved) / float64(before)
	}
	summary := "nothing to compact"
	if compacted > 0 {
		summary = fmt.Sprintf("compacted %d of %d items, freed %d tokens (%d -> %d)",
			compacted, len(c.t.items), saved, before, after)
	}
	return CompactResult{
		TokensBefore:     before,
		TokensAfter:      after,
		TokensSaved:      saved,
		CompressionRatio: ratio,
		ItemsCompacted:   compacted,
		Summary:          summary,
	}
}

// shorten elides the middle of content. Multi-line content keeps the
// configured head and tail lines; content with too few lines for that
// falls back to character bounds. Returns false when there is nothing
// worth cutting.
func (c *Compactor) shorten(content string) (string, bool) {
	head, tail := c.t.cfg.KeepHeadLines, c.t.cfg.KeepTailLines
	lines := strings.Split(content, "\n")
	if len(lines) > head+tail+1 {
		cut := len(lines) - head - tail
		out := make([]string, 0, head+tail+1)
		out = append(out, lines[:head]...)
		out = append(out, fmt.Sprintf("[... %d lines%s", cut, markerTag))
		out = append(out, lines[len(lines)-tail:]...)
		return strings.Join(out, "\n"), true
	}
	if len(content) > keepHeadChars+keepTailChars+minCharCut {
		cut := len(content) - keepHeadChars - keepTailChars
		return content[:keepHeadChars] +
			fmt.Sprintf("\n[... %d chars%s\n", cut, markerTag) +
			content[len(content)-keepTailChars:], true
	}
	return "", false
}
