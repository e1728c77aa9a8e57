package gateway

import (
	"net/http"
	"time"

	"github.com/ctxkeep/ctxkeep/internal/session"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	UptimeSeconds  int64 `json:"uptime_seconds"`
	Sessions       int   `json:"sessions"`
	TotalItems     int   `json:"total_items"`
	TotalTokens    int   `json:"total_tokens"`
	JournalEntries int   `json:"journal_entries"`
}

// handleStatus returns an http.HandlerFunc for GET /status. Totals are
// summed across sessions under each session's lock; the numbers are a
// snapshot, not a transaction.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			UptimeSeconds: int64(time.Since(g.startedAt).Seconds()),
			Sessions:      g.sessions.Len(),
		}

		g.sessions.Range(func(sess *session.Session) bool {
			sess.With(func(e session.Engines) {
				st := e.Tracker.Status()
				resp.TotalItems += st.ItemCount
				resp.TotalTokens += st.TotalTokens
			})
			return true
		})

		if n, err := g.journal.Len(r.Context()); err == nil {
			resp.JournalEntries = n
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
