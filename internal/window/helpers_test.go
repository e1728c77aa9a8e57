package window_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/ctxkeep/ctxkeep/internal/window"
)

// Compile-time interface checks.
var _ window.TokenEstimator = (*window.CharEstimator)(nil)

// newTracker builds a tracker with the default 4.0 chars-per-token ratio
// for the given model selector.
func newTracker(model string) *window.Tracker {
	return window.NewTracker(window.Config{SessionID: "test", Model: model})
}

// seedConversation appends a pinned system prompt, n user/assistant
// pairs, and one multi-line tool result, which is the shape most pruning
// cases care about. Returns the id of the system prompt.
func seedConversation(tr *window.Tracker, pairs int) int {
	sysID := tr.AddSystemPrompt("You are a careful assistant. Keep answers short.", true)
	for i := 0; i < pairs; i++ {
		tr.AddUserMessage(fmt.Sprintf("user message number %d with a bit of content", i))
		tr.AddAssistantMessage(fmt.Sprintf("assistant reply number %d with a bit of content", i))
	}
	var lines []string
	for i := 0; i < 20; i++ {
		lines = append(lines, fmt.Sprintf("drwxr-xr-x 2 root root 4096 line %d", i))
	}
	tr.AddToolResult(strings.Join(lines, "\n"), "bash")
	return sysID
}

// checkLedger verifies the bucket totals against a fresh walk over the
// items. Every mutating case calls this afterwards.
func checkLedger(t *testing.T, tr *window.Tracker) {
	t.Helper()
	st := tr.Status()
	var total, sys, msg, tool int
	for _, it := range tr.Items() {
		total += it.TokenCount
		switch it.Kind.Category() {
		case window.CategorySystem:
			sys += it.TokenCount
		case window.CategoryMessage:
			msg += it.TokenCount
		case window.CategoryTool:
			tool += it.TokenCount
		}
	}
	if st.TotalTokens != total {
		t.Errorf("TotalTokens = %d, items sum to %d", st.TotalTokens, total)
	}
	if st.SystemTokens != sys {
		t.Errorf("SystemTokens = %d, items sum to %d", st.SystemTokens, sys)
	}
	if st.MessageTokens != msg {
		t.Errorf("MessageTokens = %d, items sum to %d", st.MessageTokens, msg)
	}
	if st.ToolTokens != tool {
		t.Errorf("ToolTokens = %d, items sum to %d", st.ToolTokens, tool)
	}
	if got := st.SystemTokens + st.MessageTokens + st.ToolTokens; got != st.TotalTokens {
		t.Errorf("bucket sum = %d, TotalTokens = %d", got, st.TotalTokens)
	}
	if st.ItemCount != len(tr.Items()) {
		t.Errorf("ItemCount = %d, len(Items()) = %d", st.ItemCount, len(tr.Items()))
	}
}

// hasID reports whether the snapshot contains an item with the id.
func hasID(items []window.Item, id int) bool {
	for _, it := range items {
		if it.ID == id {
			return true
		}
	}
	return false
}
