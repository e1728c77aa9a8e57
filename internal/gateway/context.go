package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/ctxkeep/ctxkeep/internal/journal"
	"github.com/ctxkeep/ctxkeep/internal/session"
	"github.com/ctxkeep/ctxkeep/internal/window"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// sessionJSON is a serializable session snapshot.
type sessionJSON struct {
	ID           string  `json:"id"`
	Model        string  `json:"model"`
	Profile      string  `json:"profile"`
	CreatedAt    string  `json:"created_at"`
	LastActiveAt string  `json:"last_active_at"`
	Items        int     `json:"items"`
	TotalTokens  int     `json:"total_tokens"`
	MaxTokens    int     `json:"max_tokens"`
	UsagePercent float64 `json:"usage_percent"`
}

// windowStatusJSON mirrors window.Status.
type windowStatusJSON struct {
	SessionID     string  `json:"session_id"`
	Model         string  `json:"model"`
	TotalTokens   int     `json:"total_tokens"`
	SystemTokens  int     `json:"system_tokens"`
	MessageTokens int     `json:"message_tokens"`
	ToolTokens    int     `json:"tool_tokens"`
	ItemCount     int     `json:"item_count"`
	MaxTokens     int     `json:"max_tokens"`
	UsagePercent  float64 `json:"usage_percent"`
}

// itemJSON is a serializable context item.
type itemJSON struct {
	ID         int     `json:"id"`
	Kind       string  `json:"kind"`
	Content    string  `json:"content"`
	ToolName   string  `json:"tool_name,omitempty"`
	TokenCount int     `json:"token_count"`
	Pinned     bool    `json:"pinned"`
	Importance float64 `json:"importance"`
	CreatedAt  string  `json:"created_at"`
}

// breakdownJSON carries the per-bucket accounting plus the rendered
// report.
type breakdownJSON struct {
	Sections    []breakdownSectionJSON `json:"sections"`
	TotalItems  int                    `json:"total_items"`
	TotalTokens int                    `json:"total_tokens"`
	Display     string                 `json:"display"`
}

type breakdownSectionJSON struct {
	Label  string `json:"label"`
	Items  int    `json:"items"`
	Tokens int    `json:"tokens"`
}

// inspectionJSON bundles every read-only view in one response.
type inspectionJSON struct {
	Status    windowStatusJSON `json:"status"`
	Items     []itemJSON       `json:"items"`
	Breakdown breakdownJSON    `json:"breakdown"`
}

// compactResultJSON mirrors window.CompactResult plus the rendered
// one-liner.
type compactResultJSON struct {
	TokensBefore     int     `json:"tokens_before"`
	TokensAfter      int     `json:"tokens_after"`
	TokensSaved      int     `json:"tokens_saved"`
	CompressionRatio float64 `json:"compression_ratio"`
	ItemsCompacted   int     `json:"items_compacted"`
	Summary          string  `json:"summary"`
	Display          string  `json:"display"`
}

// pruneResultJSON mirrors window.PruneResult.
type pruneResultJSON struct {
	ItemsRemoved int        `json:"items_removed"`
	TokensFreed  int        `json:"tokens_freed"`
	PrunedItems  []itemJSON `json:"pruned_items"`
}

// journalEntryJSON is a serializable journal entry.
type journalEntryJSON struct {
	Time          string `json:"time"`
	SessionID     string `json:"session_id"`
	Op            string `json:"op"`
	Policy        string `json:"policy"`
	ItemsAffected int    `json:"items_affected"`
	TokensDelta   int    `json:"tokens_delta"`
	Detail        string `json:"detail,omitempty"`
}

func toSessionJSON(sess *session.Session) sessionJSON {
	out := sessionJSON{
		ID:           sess.ID,
		Model:        sess.Model,
		CreatedAt:    sess.CreatedAt.UTC().Format(time.RFC3339),
		LastActiveAt: sess.LastActive().UTC().Format(time.RFC3339),
	}
	sess.With(func(e session.Engines) {
		st := e.Tracker.Status()
		out.Profile = string(st.Model)
		out.Items = st.ItemCount
		out.TotalTokens = st.TotalTokens
		out.MaxTokens = st.MaxTokens
		out.UsagePercent = st.UsagePercent
	})
	return out
}

func toStatusJSON(st window.Status) windowStatusJSON {
	return windowStatusJSON{
		SessionID:     st.SessionID,
		Model:         string(st.Model),
		TotalTokens:   st.TotalTokens,
		SystemTokens:  st.SystemTokens,
		MessageTokens: st.MessageTokens,
		ToolTokens:    st.ToolTokens,
		ItemCount:     st.ItemCount,
		MaxTokens:     st.MaxTokens,
		UsagePercent:  st.UsagePercent,
	}
}

func toItemJSON(it window.Item) itemJSON {
	return itemJSON{
		ID:         it.ID,
		Kind:       string(it.Kind),
		Content:    it.Content,
		ToolName:   it.ToolName,
		TokenCount: it.TokenCount,
		Pinned:     it.Pinned,
		Importance: it.Importance,
		CreatedAt:  it.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toItemsJSON(items []window.Item) []itemJSON {
	out := make([]itemJSON, 0, len(items))
	for _, it := range items {
		out = append(out, toItemJSON(it))
	}
	return out
}

func toBreakdownJSON(bd window.Breakdown, display string) breakdownJSON {
	sections := make([]breakdownSectionJSON, 0, len(bd.Sections))
	for _, sec := range bd.Sections {
		sections = append(sections, breakdownSectionJSON{
			Label:  sec.Label,
			Items:  sec.Items,
			Tokens: sec.Tokens,
		})
	}
	return breakdownJSON{
		Sections:    sections,
		TotalItems:  bd.TotalItems,
		TotalTokens: bd.TotalTokens,
		Display:     display,
	}
}

func toCompactJSON(res window.CompactResult, display string) compactResultJSON {
	return compactResultJSON{
		TokensBefore:     res.TokensBefore,
		TokensAfter:      res.TokensAfter,
		TokensSaved:      res.TokensSaved,
		CompressionRatio: res.CompressionRatio,
		ItemsCompacted:   res.ItemsCompacted,
		Summary:          res.Summary,
		Display:          display,
	}
}

// handleListSessions returns all active sessions as JSON, sorted by id.
func (g *Gateway) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		sessions := []sessionJSON{}
		g.sessions.Range(func(sess *session.Session) bool {
			sessions = append(sessions, toSessionJSON(sess))
			return true
		})
		sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })

		writeJSON(w, http.StatusOK, sessions)
	}
}

// createSessionRequest is the body for POST /api/sessions. Both fields
// are optional: an empty id gets generated, an empty model uses the
// configured default.
type createSessionRequest struct {
	ID    string `json:"id"`
	Model string `json:"model"`
}

// handleCreateSession creates a session, or returns the existing one
// when the id is already known. 201 marks actual creation.
func (g *Gateway) handleCreateSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		sess, created := g.sessions.GetOrCreate(req.ID, req.Model)
		if sess == nil {
			http.Error(w, "session limit reached", http.StatusTooManyRequests)
			return
		}

		code := http.StatusOK
		if created {
			code = http.StatusCreated
		}
		writeJSON(w, code, toSessionJSON(sess))
	}
}

// handleDeleteSession deletes a session by its ID.
func (g *Gateway) handleDeleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			http.Error(w, "missing session id", http.StatusBadRequest)
			return
		}

		if !g.sessions.Delete(id) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// getSession resolves the {id} URL param to a session, writing a 404
// when it does not exist.
func (g *Gateway) getSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := chi.URLParam(r, "id")
	sess := g.sessions.Get(id)
	if sess == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

// handleSessionStatus returns the token ledger snapshot for one session.
func (g *Gateway) handleSessionStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := g.getSession(w, r)
		if !ok {
			return
		}

		var st window.Status
		sess.With(func(e session.Engines) { st = e.Tracker.Status() })
		g.metrics.ObserveUsage(string(st.Model), st.UsagePercent)

		writeJSON(w, http.StatusOK, toStatusJSON(st))
	}
}

// handleSessionItems returns the session's items in insertion order.
func (g *Gateway) handleSessionItems() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := g.getSession(w, r)
		if !ok {
			return
		}

		var items []window.Item
		sess.With(func(e session.Engines) { items = e.Tracker.Items() })

		writeJSON(w, http.StatusOK, toItemsJSON(items))
	}
}

// handleSessionBreakdown returns the per-bucket accounting view.
func (g *Gateway) handleSessionBreakdown() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := g.getSession(w, r)
		if !ok {
			return
		}

		var bd window.Breakdown
		var display string
		sess.With(func(e session.Engines) {
			bd = e.Inspector.Inspection().Breakdown
			display = e.Inspector.DetailedBreakdown()
		})

		writeJSON(w, http.StatusOK, toBreakdownJSON(bd, display))
	}
}

// handleSessionInspection returns status, items, and breakdown in one
// consistent snapshot.
func (g *Gateway) handleSessionInspection() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := g.getSession(w, r)
		if !ok {
			return
		}

		var insp window.Inspection
		var display string
		sess.With(func(e session.Engines) {
			insp = e.Inspector.Inspection()
			display = e.Inspector.DetailedBreakdown()
		})

		writeJSON(w, http.StatusOK, inspectionJSON{
			Status:    toStatusJSON(insp.Status),
			Items:     toItemsJSON(insp.Items),
			Breakdown: toBreakdownJSON(insp.Breakdown, display),
		})
	}
}

// addItemRequest is the body for POST /api/sessions/{id}/items.
type addItemRequest struct {
	Kind     string `json:"kind"`
	Content  string `json:"content"`
	ToolName string `json:"tool_name"`
	Pinned   bool   `json:"pinned"`
}

// handleAddItem appends one item to the session's window.
func (g *Gateway) handleAddItem() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := g.getSession(w, r)
		if !ok {
			return
		}

		var req addItemRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		kind := window.Kind(req.Kind)
		if !kind.Valid() {
			http.Error(w, "unknown kind: "+req.Kind, http.StatusBadRequest)
			return
		}
		if req.Pinned && kind != window.KindSystem {
			http.Error(w, "only system items can be pinned", http.StatusBadRequest)
			return
		}

		var id int
		sess.With(func(e session.Engines) {
			switch kind {
			case window.KindSystem:
				id = e.Tracker.AddSystemPrompt(req.Content, req.Pinned)
			case window.KindUser:
				id = e.Tracker.AddUserMessage(req.Content)
			case window.KindAssistant:
				id = e.Tracker.AddAssistantMessage(req.Content)
			case window.KindToolCall:
				id = e.Tracker.AddToolCall(req.Content, req.ToolName)
			case window.KindToolResult:
				id = e.Tracker.AddToolResult(req.Content, req.ToolName)
			}
		})

		g.sessions.Touch(sess.ID)
		g.metrics.RecordItemAdded(req.Kind)

		writeJSON(w, http.StatusCreated, map[string]int{"id": id})
	}
}

// handleRemoveItem removes one item directly, pinned or not.
func (g *Gateway) handleRemoveItem() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := g.getSession(w, r)
		if !ok {
			return
		}

		itemID, err := strconv.Atoi(chi.URLParam(r, "itemID"))
		if err != nil {
			http.Error(w, "invalid item id", http.StatusBadRequest)
			return
		}

		var removed bool
		sess.With(func(e session.Engines) { removed = e.Tracker.RemoveItem(itemID) })
		if !removed {
			http.Error(w, "item not found", http.StatusNotFound)
			return
		}

		g.sessions.Touch(sess.ID)
		w.WriteHeader(http.StatusNoContent)
	}
}

// pruneRequest is the body for POST /api/sessions/{id}/prune. Only the
// fields relevant to the chosen policy are read.
type pruneRequest struct {
	Policy        string  `json:"policy"`
	KeepRecent    int     `json:"keep_recent"`
	MaxAgeMinutes float64 `json:"max_age_minutes"`
	MinImportance float64 `json:"min_importance"`
	TargetPercent float64 `json:"target_percent"`
}

// pruneDetail renders the parameters a prune ran with, for the journal.
func pruneDetail(req pruneRequest) string {
	switch req.Policy {
	case "old_messages":
		return fmt.Sprintf("keep_recent=%d max_age_minutes=%g", req.KeepRecent, req.MaxAgeMinutes)
	case "importance":
		return fmt.Sprintf("min_importance=%g", req.MinImportance)
	case "tool_outputs":
		return fmt.Sprintf("keep_recent=%d", req.KeepRecent)
	case "target":
		return fmt.Sprintf("target_percent=%g", req.TargetPercent)
	}
	return ""
}

// handlePrune runs one of the four prune policies against the session.
func (g *Gateway) handlePrune() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := g.getSession(w, r)
		if !ok {
			return
		}

		var req pruneRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		switch req.Policy {
		case "old_messages", "importance", "tool_outputs", "target":
		default:
			http.Error(w, "unknown policy: "+req.Policy, http.StatusBadRequest)
			return
		}

		ctx, span := g.tracer.Start(r.Context(), "gateway.prune", trace.WithAttributes(
			attribute.String("session_id", sess.ID),
			attribute.String("policy", req.Policy),
		))
		defer span.End()

		var res window.PruneResult
		sess.With(func(e session.Engines) {
			switch req.Policy {
			case "old_messages":
				maxAge := time.Duration(req.MaxAgeMinutes * float64(time.Minute))
				res = e.Pruner.PruneOldMessages(req.KeepRecent, maxAge)
			case "importance":
				res = e.Pruner.PruneByImportance(req.MinImportance)
			case "tool_outputs":
				res = e.Pruner.PruneToolOutputs(req.KeepRecent)
			case "target":
				res = e.Pruner.PruneToTarget(req.TargetPercent)
			}
		})

		g.sessions.Touch(sess.ID)
		g.metrics.RecordPrune(req.Policy, res.ItemsRemoved, res.TokensFreed)
		if res.ItemsRemoved > 0 {
			g.record(ctx, journal.Entry{
				SessionID:     sess.ID,
				Op:            journal.OpPrune,
				Policy:        req.Policy,
				ItemsAffected: res.ItemsRemoved,
				TokensDelta:   res.TokensFreed,
				Detail:        pruneDetail(req),
			})
		}

		writeJSON(w, http.StatusOK, pruneResultJSON{
			ItemsRemoved: res.ItemsRemoved,
			TokensFreed:  res.TokensFreed,
			PrunedItems:  toItemsJSON(res.PrunedItems),
		})
	}
}

// handleCompact runs one compaction pass against the session.
func (g *Gateway) handleCompact() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := g.getSession(w, r)
		if !ok {
			return
		}

		ctx, span := g.tracer.Start(r.Context(), "gateway.compact", trace.WithAttributes(
			attribute.String("session_id", sess.ID),
		))
		defer span.End()

		res, display := g.compactSession(ctx, sess)

		writeJSON(w, http.StatusOK, toCompactJSON(res, display))
	}
}

// compactSession compacts one session and does the shared bookkeeping:
// activity touch, metrics, and the journal entry. The chat socket's
// /compact command goes through here too.
func (g *Gateway) compactSession(ctx context.Context, sess *session.Session) (window.CompactResult, string) {
	var res window.CompactResult
	var display string
	sess.With(func(e session.Engines) {
		res = e.Compactor.Compact()
		display = e.Inspector.FormatCompactResult(res.TokensBefore, res.TokensAfter, res.TokensSaved)
	})

	g.sessions.Touch(sess.ID)
	g.metrics.RecordCompaction(res.ItemsCompacted, res.TokensSaved)
	if res.ItemsCompacted > 0 {
		g.record(ctx, journal.Entry{
			SessionID:     sess.ID,
			Op:            journal.OpCompact,
			Policy:        "compact",
			ItemsAffected: res.ItemsCompacted,
			TokensDelta:   res.TokensSaved,
			Detail:        res.Summary,
		})
	}
	return res, display
}

// handleJournal returns recent journal entries, optionally filtered by
// session. n defaults to 50.
func (g *Gateway) handleJournal() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := 50
		if raw := r.URL.Query().Get("n"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				http.Error(w, "invalid n", http.StatusBadRequest)
				return
			}
			n = parsed
		}

		entries, err := g.journal.Recent(r.Context(), r.URL.Query().Get("session"), n)
		if err != nil {
			g.logger.Error("journal read failed", "error", err)
			http.Error(w, "journal unavailable", http.StatusInternalServerError)
			return
		}

		out := make([]journalEntryJSON, 0, len(entries))
		for _, e := range entries {
			out = append(out, journalEntryJSON{
				Time:          e.Time.UTC().Format(time.RFC3339),
				SessionID:     e.SessionID,
				Op:            string(e.Op),
				Policy:        e.Policy,
				ItemsAffected: e.ItemsAffected,
				TokensDelta:   e.TokensDelta,
				Detail:        e.Detail,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// record writes a journal entry, logging instead of failing the request
// when the journal is down.
func (g *Gateway) record(ctx context.Context, e journal.Entry) {
	if err := g.journal.Record(ctx, e); err != nil {
		g.logger.Warn("journal write failed", "error", err)
	}
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
