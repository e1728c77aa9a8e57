package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ctxkeep/ctxkeep/internal/journal"
	"github.com/ctxkeep/ctxkeep/internal/session"
)

func TestStatus_Totals(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, Config{})

	// len 399 -> 100 tokens under the default 4 chars/token estimate.
	text := strings.Repeat("x", 399)
	for _, id := range []string{"a", "b"} {
		sess, _ := g.sessions.GetOrCreate(id, "")
		sess.With(func(e session.Engines) {
			e.Tracker.AddUserMessage(text)
			e.Tracker.AddAssistantMessage(text)
		})
	}
	if err := g.journal.Record(context.Background(), journal.Entry{SessionID: "a", Op: journal.OpCompact}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rr := httptest.NewRecorder()
	g.handleStatus().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var resp StatusResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Sessions != 2 {
		t.Errorf("Sessions = %d, want 2", resp.Sessions)
	}
	if resp.TotalItems != 4 {
		t.Errorf("TotalItems = %d, want 4", resp.TotalItems)
	}
	if resp.TotalTokens != 400 {
		t.Errorf("TotalTokens = %d, want 400", resp.TotalTokens)
	}
	if resp.JournalEntries != 1 {
		t.Errorf("JournalEntries = %d, want 1", resp.JournalEntries)
	}
}

func TestStatus_Empty(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rr := httptest.NewRecorder()
	g.handleStatus().ServeHTTP(rr, req)

	var resp StatusResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Sessions != 0 || resp.TotalItems != 0 || resp.TotalTokens != 0 {
		t.Errorf("empty gateway reported totals: %+v", resp)
	}
}
