package window

import (
	"fmt"
	"strings"
)

// Breakdown is the per-bucket accounting view: one section per bucket in
// a fixed order, plus the grand total.
type Breakdown struct {
	Sections    []BreakdownSection
	TotalItems  int
	TotalTokens int
}

// BreakdownSection subtotals one bucket.
type BreakdownSection struct {
	Label  string
	Items  int
	Tokens int
}

// Inspection bundles every read-only view in one snapshot.
type Inspection struct {
	Status    Status
	Items     []Item
	Breakdown Breakdown
}

// Inspector renders read-only views of a tracker. None of its methods
// mutate tracker state.
type Inspector struct {
	t *Tracker
}

// NewInspector returns an inspector over t.
func NewInspector(t *Tracker) *Inspector {
	return &Inspector{t: t}
}

// StatusDisplay renders the ledger as a short two-line summary.
func (i *Inspector) StatusDisplay() string {
	st := i.t.Status()
	var b strings.Builder
	fmt.Fprintf(&b, "session %s (%s): %d/%d tokens, %.1f%% used\n",
		st.SessionID, st.Model, st.TotalTokens, st.MaxTokens, st.UsagePercent*100)
	fmt.Fprintf(&b, "items: %d | system: %d | messages: %d | tools: %d",
		st.ItemCount, st.SystemTokens, st.MessageTokens, st.ToolTokens)
	return b.String()
}

// ItemsList renders one line per item in insertion order, labeled by
// kind, with id, token cost, pin state, and a one-line content preview.
func (i *Inspector) ItemsList() string {
	if len(i.t.items) == 0 {
		return "context is empty"
	}
	lines := make([]string, 0, len(i.t.items))
	for _, it := range i.t.items {
		lines = append(lines, itemLine(it))
	}
	return strings.Join(lines, "\n")
}

// DetailedBreakdown renders a sectioned report: system prompt,
// conversation, and tool output, each with its item lines and subtotal,
// followed by the grand total. All three sections appear even when
// empty.
func (i *Inspector) DetailedBreakdown() string {
	var b strings.Builder
	bd := i.breakdown()
	for idx, sec := range bd.Sections {
		if idx > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "== %s ==\n", sec.Label)
		for _, it := range i.t.items {
			if bucketLabel(it.Kind.Category()) != sec.Label {
				continue
			}
			b.WriteString("  " + itemLine(it) + "\n")
		}
		fmt.Fprintf(&b, "subtotal: %d items, %d tokens\n", sec.Items, sec.Tokens)
	}
	fmt.Fprintf(&b, "\ntotal: %d items, %d tokens", bd.TotalItems, bd.TotalTokens)
	return b.String()
}

// Inspection returns the status, item snapshot, and breakdown in one
// consistent bundle.
func (i *Inspector) Inspection() Inspection {
	return Inspection{
		Status:    i.t.Status(),
		Items:     i.t.Items(),
		Breakdown: i.breakdown(),
	}
}

// FormatCompactResult renders a before/after compaction line with the
// percentage reduction. A zero before counts as a 0.0% reduction.
func (i *Inspector) FormatCompactResult(tokensBefore, tokensAfter, tokensSaved int) string {
	pct := 0.0
	if tokensBefore > 0 {
		pct = float64(tokensSaved) / float64(tokensBefore) * 100
	}
	return fmt.Sprintf("compaction: %d -> %d tokens, saved %d (%.1f%% reduction)",
		tokensBefore, tokensAfter, tokensSaved, pct)
}

func (i *Inspector) breakdown() Breakdown {
	secs := []BreakdownSection{
		{Label: bucketLabel(CategorySystem)},
		{Label: bucketLabel(CategoryMessage)},
		{Label: bucketLabel(CategoryTool)},
	}
	bd := Breakdown{}
	for _, it := range i.t.items {
		for idx := range secs {
			if bucketLabel(it.Kind.Category()) == secs[idx].Label {
				secs[idx].Items++
				secs[idx].Tokens += it.TokenCount
			}
		}
		bd.TotalItems++
		bd.TotalTokens += it.TokenCount
	}
	bd.Sections = secs
	return bd
}

func bucketLabel(c Category) string {
	switch c {
	case CategorySystem:
		return "System Prompt"
	case CategoryMessage:
		return "Conversation"
	case CategoryTool:
		return "Tool Output"
	}
	return string(c)
}

func itemLine(it *Item) string {
	pin := ""
	if it.Pinned {
		pin = " (pinned)"
	}
	preview := previewOf(it.Content)
	if it.ToolName != "" {
		preview = "[" + it.ToolName + "] " + preview
	}
	return fmt.Sprintf("[%3d] %-11s %6d tok%s  %s", it.ID, it.Kind, it.TokenCount, pin, preview)
}

// previewOf reduces content to its first line, capped at 60 characters.
func previewOf(content string) string {
	line := content
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	if len(line) > 60 {
		line = line[:57] + "..."
	}
	return line
}
