package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/ctxkeep/ctxkeep/internal/session"
	"github.com/ctxkeep/ctxkeep/internal/window"
)

// handleChatSocket is the HTTP handler for the operator chat WebSocket.
// Each connection is bound to one session named by the ?session= query
// parameter; an empty name uses the shared "chat" session so that
// reconnecting resumes the same window.
func (g *Gateway) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = "chat"
	}

	sess, _ := g.sessions.GetOrCreate(sessionID, "")
	if sess == nil {
		http.Error(w, "session limit reached", http.StatusTooManyRequests)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.logger.Error("websocket accept failed", "error", err)
		return
	}
	defer func() {
		_ = conn.Close(websocket.StatusInternalError, "unexpected close")
	}()

	g.addConn(conn)
	defer g.removeConn(conn)

	g.logger.Info("chat socket connected", "session", sess.ID)
	g.readLoop(r.Context(), conn, sess)
	g.logger.Info("chat socket disconnected", "session", sess.ID)
}

// readLoop dispatches inbound envelopes until the connection closes.
func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn, sess *session.Session) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			g.sendError(ctx, conn, "", "invalid message format")
			continue
		}

		switch env.Type {
		case MsgCommand:
			var p TextPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				g.sendError(ctx, conn, env.ID, "invalid command payload")
				continue
			}
			typ, payload := g.runCommand(ctx, sess, p.Text)
			g.send(ctx, conn, typ, env.ID, payload)

		case MsgChat:
			var p TextPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				g.sendError(ctx, conn, env.ID, "invalid chat payload")
				continue
			}
			var id int
			sess.With(func(e session.Engines) {
				id = e.Tracker.AddUserMessage(p.Text)
			})
			g.sessions.Touch(sess.ID)
			g.metrics.RecordItemAdded(string(window.KindUser))
			g.send(ctx, conn, MsgReply, env.ID, TextPayload{
				Text: fmt.Sprintf("added to context as item %d", id),
			})

		default:
			g.sendError(ctx, conn, env.ID, "unsupported message type: "+string(env.Type))
		}
	}
}

// runCommand executes a slash command against the session and returns
// the response type and payload.
func (g *Gateway) runCommand(ctx context.Context, sess *session.Session, text string) (MessageType, any) {
	switch strings.TrimSpace(text) {
	case "/status":
		var st window.Status
		var display string
		sess.With(func(e session.Engines) {
			st = e.Tracker.Status()
			display = e.Inspector.StatusDisplay()
		})
		g.metrics.ObserveUsage(string(st.Model), st.UsagePercent)
		return MsgStatus, TextPayload{Text: display}

	case "/context list":
		var display string
		sess.With(func(e session.Engines) { display = e.Inspector.ItemsList() })
		return MsgItems, TextPayload{Text: display}

	case "/context detail":
		var display string
		sess.With(func(e session.Engines) { display = e.Inspector.DetailedBreakdown() })
		return MsgBreakdown, TextPayload{Text: display}

	case "/compact":
		res, display := g.compactSession(ctx, sess)
		return MsgCompactResult, toCompactJSON(res, display)

	default:
		return MsgError, map[string]string{"message": "unknown command: " + text}
	}
}

// send marshals and writes one envelope, echoing the correlation id.
func (g *Gateway) send(ctx context.Context, conn *websocket.Conn, typ MessageType, id string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		g.logger.Error("marshal payload failed", "error", err)
		return
	}
	env := Envelope{
		Type:      typ,
		ID:        id,
		Payload:   raw,
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(env)
	if err != nil {
		g.logger.Error("marshal envelope failed", "error", err)
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		g.logger.Warn("write envelope failed", "error", err)
	}
}

// sendError sends an error envelope.
func (g *Gateway) sendError(ctx context.Context, conn *websocket.Conn, id, message string) {
	g.send(ctx, conn, MsgError, id, map[string]string{"message": message})
}
