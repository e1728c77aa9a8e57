package gateway

import (
	"bufio"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(countRequests(g.metrics))

	// Public — no auth required.
	r.Get("/health", g.handleHealth())
	r.Method(http.MethodGet, "/metrics", g.metrics.Handler())

	// Webhooks — own HMAC auth per source.
	r.Post("/webhooks/{source}", g.handleWebhook())

	// Operator endpoints — auth required. Not mounted if no auth configured.
	if g.config.Auth.IsConfigured() {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(g.config.Auth, g.limiter))
			r.Get("/status", g.handleStatus())
			r.Get("/ws/chat", g.handleChatSocket)
			r.Route("/api", func(r chi.Router) {
				r.Get("/sessions", g.handleListSessions())
				r.Post("/sessions", g.handleCreateSession())
				r.Delete("/sessions/{id}", g.handleDeleteSession())
				r.Get("/sessions/{id}/status", g.handleSessionStatus())
				r.Get("/sessions/{id}/items", g.handleSessionItems())
				r.Get("/sessions/{id}/breakdown", g.handleSessionBreakdown())
				r.Get("/sessions/{id}/inspection", g.handleSessionInspection())
				r.Post("/sessions/{id}/items", g.handleAddItem())
				r.Delete("/sessions/{id}/items/{itemID}", g.handleRemoveItem())
				r.Post("/sessions/{id}/prune", g.handlePrune())
				r.Post("/sessions/{id}/compact", g.handleCompact())
				r.Get("/journal", g.handleJournal())
			})
		})
	}

	return r
}

// countRequests records every served request by route pattern and status
// code. Route patterns keep the label set bounded; raw paths would not.
func countRequests(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			m.RecordHTTPRequest(route, sw.status)
		})
	}
}

// statusWriter captures the response status code. Hijack and Flush are
// forwarded so the WebSocket upgrade and streaming responses still work
// through the wrapper.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("gateway: response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
