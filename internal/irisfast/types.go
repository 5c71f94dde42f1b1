package irisfast

import (
	"encoding/json"
	"strings"
)

// Message is one chat event pushed by the Iris bridge.
type Message struct {
	Msg    string       `json:"msg"`
	Room   string       `json:"room"`
	Sender *string      `json:"sender,omitempty"`
	JSON   *MessageJSON `json:"json,omitempty"`
}

type MessageJSON struct {
	UserID     string `json:"user_id"`
	ChatID     string `json:"chat_id,omitempty"`
	Type       string `json:"type,omitempty"`
	Attachment string `json:"attachment,omitempty"`
}

type mentionAttachment struct {
	Mentions []struct {
		UserID json.Number `json:"user_id"`
	} `json:"mentions"`
}

// UserID returns the sender's stable id, falling back to the display name.
func (m *Message) UserID() string {
	if m == nil {
		return ""
	}
	if m.JSON != nil && strings.TrimSpace(m.JSON.UserID) != "" {
		return strings.TrimSpace(m.JSON.UserID)
	}
	return m.SenderName()
}

func (m *Message) SenderName() string {
	if m != nil && m.Sender != nil {
		return strings.TrimSpace(*m.Sender)
	}
	return ""
}

// Mentions lists user ids of @-mentions carried in the attachment, in order.
func (m *Message) Mentions() []string {
	if m == nil || m.JSON == nil || strings.TrimSpace(m.JSON.Attachment) == "" {
		return nil
	}
	var att mentionAttachment
	if err := json.Unmarshal([]byte(m.JSON.Attachment), &att); err != nil {
		return nil
	}
	out := make([]string, 0, len(att.Mentions))
	for _, mm := range att.Mentions {
		if id := strings.TrimSpace(mm.UserID.String()); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// Config is the bridge's /config response.
type Config struct {
	Port              int    `json:"port"`
	PollingSpeed      int    `json:"polling_speed"`
	MessageRate       int    `json:"message_rate"`
	WebserverEndpoint string `json:"web_server_endpoint"`
}

// ReplyRequest is the text reply frame for both HTTP /reply and WebSocket egress.
type ReplyRequest struct {
	Type string `json:"type"`
	Room string `json:"room"`
	Data string `json:"data"`
}

type WebSocketState string

const (
	WSStateDisconnected WebSocketState = "disconnected"
	WSStateConnecting   WebSocketState = "connecting"
	WSStateConnected    WebSocketState = "connected"
	WSStateReconnecting WebSocketState = "reconnecting"
	WSStateFailed       WebSocketState = "failed"
)

type MessageCallback func(message *Message)

type StateCallback func(state WebSocketState)
