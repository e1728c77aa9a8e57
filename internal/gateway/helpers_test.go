package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ctxkeep/ctxkeep/internal/journal"
	"github.com/ctxkeep/ctxkeep/internal/session"
	"github.com/ctxkeep/ctxkeep/internal/window"
)

const testToken = "test-token"

// newTestGateway builds an unstarted gateway over a fresh manager with
// the small llama window, so usage numbers move with modest content.
func newTestGateway(t *testing.T, cfg Config) *Gateway {
	t.Helper()

	if cfg.Bind == "" {
		cfg.Bind = "127.0.0.1:0"
	}
	mgr := session.NewManager(session.Config{
		Window: window.Config{Model: "llama-7b"},
	})
	g, err := New(cfg, Options{
		Logger:   slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
		Sessions: mgr,
		Journal:  journal.NewMemoryRecorder(64),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

// newAPIGateway returns a gateway with bearer auth plus its full router,
// so handler tests cover the real route table and middleware chain.
func newAPIGateway(t *testing.T) (*Gateway, http.Handler) {
	t.Helper()
	g := newTestGateway(t, Config{Auth: AuthConfig{BearerToken: testToken}})
	return g, g.buildRouter()
}

// doJSON runs one authenticated request against the handler and decodes
// the JSON response into out when out is non-nil and the request
// succeeded.
func doJSON(t *testing.T, h http.Handler, method, target string, body, out any) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if out != nil && rr.Code < 300 {
		if err := json.NewDecoder(rr.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return rr
}

// createSession makes a session through the API and returns its id.
func createSession(t *testing.T, h http.Handler, id string) string {
	t.Helper()

	var sess sessionJSON
	rr := doJSON(t, h, http.MethodPost, "/api/sessions", createSessionRequest{ID: id}, &sess)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create session: status = %d, body %s", rr.Code, rr.Body.String())
	}
	return sess.ID
}

// addItem appends one item through the API and returns the new item id.
func addItem(t *testing.T, h http.Handler, sessionID string, req addItemRequest) int {
	t.Helper()

	var resp map[string]int
	rr := doJSON(t, h, http.MethodPost, "/api/sessions/"+sessionID+"/items", req, &resp)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add item: status = %d, body %s", rr.Code, rr.Body.String())
	}
	return resp["id"]
}
