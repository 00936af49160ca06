package model

import (
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage represents one message within a chat session as rendered by
// the client. Pending messages are placeholders and are never persisted.
type ChatMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Pending   bool      `json:"pending,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionHistory is one session's message list as last loaded from the server
// plus anything appended locally since.
type SessionHistory struct {
	SessionID string
	Messages  []ChatMessage
	LoadedAt  time.Time
}

func (h *SessionHistory) Append(m ChatMessage) {
	for i := range h.Messages {
		if h.Messages[i].ID == m.ID {
			h.Messages[i] = m
			return
		}
	}
	h.Messages = append(h.Messages, m)
}

func (h *SessionHistory) Snapshot() []ChatMessage {
	out := make([]ChatMessage, len(h.Messages))
	copy(out, h.Messages)
	return out
}
