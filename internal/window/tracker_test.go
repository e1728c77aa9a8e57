package window_test

import (
	"strings"
	"testing"

	"github.com/ctxkeep/ctxkeep/internal/window"
)

// ---------------------------------------------------------------------------
// NewTracker
// ---------------------------------------------------------------------------

func TestNewTracker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		model       string
		wantProfile window.Profile
		wantMax     int
	}{
		{name: "claude family", model: "claude-sonnet-4", wantProfile: window.ProfileClaude, wantMax: 200_000},
		{name: "gpt4 family", model: "gpt-4o", wantProfile: window.ProfileGPT4, wantMax: 128_000},
		{name: "llama family", model: "llama", wantProfile: window.ProfileLlama, wantMax: 8_192},
		{name: "unknown falls back", model: "mystery-model-9", wantProfile: window.ProfileDefault, wantMax: 128_000},
		{name: "empty falls back", model: "", wantProfile: window.ProfileDefault, wantMax: 128_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tr := window.NewTracker(window.Config{SessionID: "s1", Model: tt.model})
			if tr.Profile() != tt.wantProfile {
				t.Errorf("Profile() = %q, want %q", tr.Profile(), tt.wantProfile)
			}
			st := tr.Status()
			if st.MaxTokens != tt.wantMax {
				t.Errorf("MaxTokens = %d, want %d", st.MaxTokens, tt.wantMax)
			}
			if st.TotalTokens != 0 || st.ItemCount != 0 {
				t.Errorf("fresh tracker not empty: %+v", st)
			}
			if st.UsagePercent != 0 {
				t.Errorf("fresh UsagePercent = %v, want 0", st.UsagePercent)
			}
			if st.SessionID != "s1" {
				t.Errorf("SessionID = %q, want %q", st.SessionID, "s1")
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Add operations
// ---------------------------------------------------------------------------

func TestTracker_AddKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		add            func(tr *window.Tracker) int
		wantKind       window.Kind
		wantImportance float64
		wantPinned     bool
		wantTool       string
	}{
		{
			name:           "system prompt pinned",
			add:            func(tr *window.Tracker) int { return tr.AddSystemPrompt("rules", true) },
			wantKind:       window.KindSystem,
			wantImportance: 1.0,
			wantPinned:     true,
		},
		{
			name:           "system prompt unpinned",
			add:            func(tr *window.Tracker) int { return tr.AddSystemPrompt("rules", false) },
			wantKind:       window.KindSystem,
			wantImportance: 1.0,
		},
		{
			name:           "user message",
			add:            func(tr *window.Tracker) int { return tr.AddUserMessage("hi") },
			wantKind:       window.KindUser,
			wantImportance: 0.5,
		},
		{
			name:           "assistant message",
			add:            func(tr *window.Tracker) int { return tr.AddAssistantMessage("hello") },
			wantKind:       window.KindAssistant,
			wantImportance: 0.5,
		},
		{
			name:           "tool call",
			add:            func(tr *window.Tracker) int { return tr.AddToolCall("ls -la", "bash") },
			wantKind:       window.KindToolCall,
			wantImportance: 0.5,
			wantTool:       "bash",
		},
		{
			name:           "tool result",
			add:            func(tr *window.Tracker) int { return tr.AddToolResult("total 42", "bash") },
			wantKind:       window.KindToolResult,
			wantImportance: 0.3,
			wantTool:       "bash",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tr := newTracker("claude")
			id := tt.add(tr)
			items := tr.Items()
			if len(items) != 1 {
				t.Fatalf("len(Items()) = %d, want 1", len(items))
			}
			it := items[0]
			if it.ID != id {
				t.Errorf("returned id %d, item id %d", id, it.ID)
			}
			if it.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", it.Kind, tt.wantKind)
			}
			if it.Importance != tt.wantImportance {
				t.Errorf("Importance = %v, want %v", it.Importance, tt.wantImportance)
			}
			if it.Pinned != tt.wantPinned {
				t.Errorf("Pinned = %v, want %v", it.Pinned, tt.wantPinned)
			}
			if it.ToolName != tt.wantTool {
				t.Errorf("ToolName = %q, want %q", it.ToolName, tt.wantTool)
			}
			if it.TokenCount < 1 {
				t.Errorf("TokenCount = %d, want at least 1 for non-empty content", it.TokenCount)
			}
			if it.CreatedAt.IsZero() {
				t.Error("CreatedAt is zero")
			}
			checkLedger(t, tr)
		})
	}
}

func TestTracker_EmptyContentCostsZero(t *testing.T) {
	t.Parallel()

	tr := newTracker("claude")
	tr.AddUserMessage("")
	items := tr.Items()
	if items[0].TokenCount != 0 {
		t.Errorf("empty content TokenCount = %d, want 0", items[0].TokenCount)
	}
	if st := tr.Status(); st.TotalTokens != 0 {
		t.Errorf("TotalTokens = %d, want 0", st.TotalTokens)
	}
}

func TestTracker_IDsMonotonic(t *testing.T) {
	t.Parallel()

	tr := newTracker("claude")
	var ids []int
	ids = append(ids, tr.AddSystemPrompt("a", false))
	ids = append(ids, tr.AddUserMessage("b"))
	ids = append(ids, tr.AddAssistantMessage("c"))
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Fatalf("ids not increasing: %v", ids)
		}
	}

	// Removal must not free an id for reuse.
	if !tr.RemoveItem(ids[2]) {
		t.Fatal("RemoveItem returned false for a live id")
	}
	next := tr.AddUserMessage("d")
	if next <= ids[2] {
		t.Errorf("id %d reused after removing %d", next, ids[2])
	}
}

// ---------------------------------------------------------------------------
// RemoveItem
// ---------------------------------------------------------------------------

func TestTracker_RemoveItem(t *testing.T) {
	t.Parallel()

	t.Run("existing id", func(t *testing.T) {
		t.Parallel()
		tr := newTracker("claude")
		id := tr.AddUserMessage("to be removed")
		keep := tr.AddUserMessage("to be kept")
		if !tr.RemoveItem(id) {
			t.Fatal("RemoveItem = false, want true")
		}
		items := tr.Items()
		if len(items) != 1 || items[0].ID != keep {
			t.Errorf("unexpected items after removal: %+v", items)
		}
		checkLedger(t, tr)
	})

	t.Run("absent id", func(t *testing.T) {
		t.Parallel()
		tr := newTracker("claude")
		tr.AddUserMessage("only")
		if tr.RemoveItem(999) {
			t.Error("RemoveItem = true for unknown id")
		}
		if tr.Len() != 1 {
			t.Errorf("Len() = %d, want 1", tr.Len())
		}
	})

	t.Run("pinned item is removable directly", func(t *testing.T) {
		t.Parallel()
		tr := newTracker("claude")
		id := tr.AddSystemPrompt("pinned rules", true)
		if !tr.RemoveItem(id) {
			t.Error("RemoveItem = false for pinned item; pins only guard policy eviction")
		}
		if tr.Len() != 0 {
			t.Errorf("Len() = %d, want 0", tr.Len())
		}
		checkLedger(t, tr)
	})
}

// ---------------------------------------------------------------------------
// Snapshots and accounting
// ---------------------------------------------------------------------------

func TestTracker_ItemsSnapshotIsolated(t *testing.T) {
	t.Parallel()

	tr := newTracker("claude")
	tr.AddUserMessage("original")
	items := tr.Items()
	items[0].Content = "mutated"
	items[0].TokenCount = 9999

	fresh := tr.Items()
	if fresh[0].Content != "original" {
		t.Errorf("snapshot mutation leaked into tracker: %q", fresh[0].Content)
	}
	checkLedger(t, tr)
}

func TestTracker_StatusAggregates(t *testing.T) {
	t.Parallel()

	tr := newTracker("claude")
	seedConversation(tr, 10)
	checkLedger(t, tr)

	st := tr.Status()
	if st.ItemCount != 22 {
		t.Errorf("ItemCount = %d, want 22", st.ItemCount)
	}
	if st.SystemTokens == 0 || st.MessageTokens == 0 || st.ToolTokens == 0 {
		t.Errorf("expected non-zero buckets, got %+v", st)
	}

	// Aggregates stay consistent across removals too.
	items := tr.Items()
	tr.RemoveItem(items[3].ID)
	tr.RemoveItem(items[7].ID)
	checkLedger(t, tr)
}

func TestTracker_UsageOverBudgetIsReported(t *testing.T) {
	t.Parallel()

	tr := newTracker("llama") // 8192-token capacity
	tr.AddUserMessage(strings.Repeat("x", 40_000))
	st := tr.Status()
	if st.UsagePercent <= 1.0 {
		t.Fatalf("UsagePercent = %v, want above 1.0", st.UsagePercent)
	}
	if st.TotalTokens <= st.MaxTokens {
		t.Fatalf("TotalTokens = %d not above MaxTokens = %d", st.TotalTokens, st.MaxTokens)
	}
}

func TestTracker_InsertionOrderPreserved(t *testing.T) {
	t.Parallel()

	tr := newTracker("claude")
	seedConversation(tr, 5)
	items := tr.Items()
	for i := 1; i < len(items); i++ {
		if items[i].ID <= items[i-1].ID {
			t.Fatalf("items out of insertion order at %d: %+v", i, items)
		}
	}
}
