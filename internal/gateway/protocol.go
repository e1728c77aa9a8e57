package gateway

import (
	"encoding/json"
	"time"
)

// MessageType identifies the kind of WebSocket message on the chat
// socket.
type MessageType string

// Protocol message types exchanged over the chat WebSocket.
const (
	// Inbound.
	MsgCommand MessageType = "command"
	MsgChat    MessageType = "chat"

	// Outbound.
	MsgReply         MessageType = "reply"
	MsgStatus        MessageType = "status"
	MsgItems         MessageType = "items"
	MsgBreakdown     MessageType = "breakdown"
	MsgCompactResult MessageType = "compact_result"
	MsgError         MessageType = "error"
)

// Envelope is the wire format for all WebSocket messages.
type Envelope struct {
	Type      MessageType     `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// TextPayload carries plain text in both directions: command and chat
// messages inbound, rendered views and acknowledgements outbound.
type TextPayload struct {
	Text string `json:"text"`
}
