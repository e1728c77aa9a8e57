package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/ctxkeep/ctxkeep/internal/session"
	"github.com/ctxkeep/ctxkeep/internal/window"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// maxWebhookBody bounds ingest payloads. Oversized tool output is the
// compactor's problem, not the request reader's.
const maxWebhookBody = 1 << 20

// handleWebhook accepts pushed tool output: the raw body becomes a tool
// result in the source's session. Sources come from config; each may
// carry an HMAC secret and a target session id.
func (g *Gateway) handleWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.limiter != nil {
			if err := g.limiter.Allow("ingest"); err != nil {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
		}

		source := chi.URLParam(r, "source")
		if source == "" {
			http.Error(w, "missing source", http.StatusBadRequest)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		cfg, ok := g.config.Webhooks[source]
		if !ok {
			g.logger.Warn("webhook received for unconfigured source", "source", source)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"ok":true,"warning":"unconfigured source"}`))
			return
		}

		// Validate HMAC if a secret is configured.
		if cfg.Secret != "" {
			sig := r.Header.Get("X-Signature-256")
			if !validateHMAC(body, sig, cfg.Secret) {
				http.Error(w, "invalid signature", http.StatusUnauthorized)
				return
			}
		}

		_, span := g.tracer.Start(r.Context(), "gateway.ingest", trace.WithAttributes(
			attribute.String("source", source),
		))
		defer span.End()

		sessionID := cfg.Session
		if sessionID == "" {
			sessionID = source
		}

		sess, _ := g.sessions.GetOrCreate(sessionID, "")
		if sess == nil {
			http.Error(w, "session limit reached", http.StatusTooManyRequests)
			return
		}

		var itemID int
		sess.With(func(e session.Engines) {
			itemID = e.Tracker.AddToolResult(string(body), source)
		})
		g.sessions.Touch(sess.ID)
		g.metrics.RecordItemAdded(string(window.KindToolResult))

		g.logger.Info("webhook ingested",
			"source", source,
			"session", sess.ID,
			"bytes", len(body),
		)

		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"session": sess.ID,
			"item_id": itemID,
		})
	}
}

// validateHMAC checks an HMAC-SHA256 signature in constant time.
func validateHMAC(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
