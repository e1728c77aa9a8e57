package window

import (
	"sort"
	"time"
)

// PruneResult reports what a prune removed. ItemsRemoved always equals
// len(PrunedItems); PrunedItems carries value copies for auditing.
type PruneResult struct {
	ItemsRemoved int
	TokensFreed  int
	PrunedItems  []Item
}

// Pruner evicts items from a tracker under one of four policies. Pinned
// items are never evicted by any policy. Out-of-range parameters are
// clamped into their domain rather than rejected, and a prune that finds
// nothing eligible returns a zero result, not an error.
type Pruner struct {
	t *Tracker
}

// NewPruner returns a pruner operating on t.
func NewPruner(t *Tracker) *Pruner {
	return &Pruner{t: t}
}

// PruneOldMessages removes non-pinned items created before maxAge ago,
// keeping the keepRecent most recent non-pinned items regardless of age.
// Negative keepRecent counts as zero; negative maxAge counts as zero,
// which makes every unprotected item old enough.
func (p *Pruner) PruneOldMessages(keepRecent int, maxAge time.Duration) PruneResult {
	if keepRecent < 0 {
		keepRecent = 0
	}
	if maxAge < 0 {
		maxAge = 0
	}
	cutoff := p.t.now().Add(-maxAge)

	protected := make(map[int]struct{}, keepRecent)
	for i := len(p.t.items) - 1; i >= 0 && len(protected) < keepRecent; i-- {
		if p.t.items[i].Pinned {
			continue
		}
		protected[p.t.items[i].ID] = struct{}{}
	}

	return p.t.removeMatching(func(it *Item) bool {
		if it.Pinned {
			return false
		}
		if _, ok := protected[it.ID]; ok {
			return false
		}
		return it.CreatedAt.Before(cutoff)
	})
}

// PruneByImportance removes non-pinned items with importance strictly
// below min. Min is clamped into [0, 1], so a min of 0 never removes
// anything.
func (p *Pruner) PruneByImportance(min float64) PruneResult {
	if min < 0 {
		min = 0
	}
	if min > 1 {
		min = 1
	}
	return p.t.removeMatching(func(it *Item) bool {
		return !it.Pinned && it.Importance < min
	})
}

// PruneToolOutputs removes non-pinned tool calls and tool results,
// keeping the keepRecent most recent of them. Other kinds are untouched.
func (p *Pruner) PruneToolOutputs(keepRecent int) PruneResult {
	if keepRecent < 0 {
		keepRecent = 0
	}

	protected := make(map[int]struct{}, keepRecent)
	for i := len(p.t.items) - 1; i >= 0 && len(protected) < keepRecent; i-- {
		it := p.t.items[i]
		if it.Kind.Category() != CategoryTool || it.Pinned {
			continue
		}
		protected[it.ID] = struct{}{}
	}

	return p.t.removeMatching(func(it *Item) bool {
		if it.Kind.Category() != CategoryTool || it.Pinned {
			return false
		}
		_, ok := protected[it.ID]
		return !ok
	})
}

// PruneToTarget removes non-pinned items, lowest importance first and
// oldest first within equal importance, until usage is at or below
// targetPercent of capacity. When only pinned items remain the prune
// stops there even if usage is still above target. Negative targets are
// clamped to zero; targets above 1.0 are legal and simply easier to
// satisfy.
func (p *Pruner) PruneToTarget(targetPercent float64) PruneResult {
	if targetPercent < 0 {
		targetPercent = 0
	}

	cands := make([]*Item, 0, len(p.t.items))
	for _, it := range p.t.items {
		if !it.Pinned {
			cands = append(cands, it)
		}
	}
	// Stable sort keeps insertion order within equal importance, which
	// gives the oldest-first tie break.
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].Importance < cands[j].Importance
	})

	total := p.t.totalTokens()
	max := float64(p.t.maxTokens)
	doomed := make(map[int]struct{})
	for _, c := range cands {
		if float64(total)/max <= targetPercent {
			break
		}
		doomed[c.ID] = struct{}{}
		total -= c.TokenCount
	}
	if len(doomed) == 0 {
		return PruneResult{}
	}

	return p.t.removeMatching(func(it *Item) bool {
		_, ok := doomed[it.ID]
		return ok
	})
}
