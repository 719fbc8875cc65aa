package domain

import "time"

// ============================================================
// Visitor sessions & conversation messages
// ============================================================

// SessionStatus is the lifecycle status of a chat session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionClosed SessionStatus = "closed"
)

// SessionMetadata is captured once, when the session is created.
type SessionMetadata struct {
	Referrer   string `json:"referrer,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	LandingURL string `json:"landing_url,omitempty"`
}

// Session is one visit-scoped conversation container.
type Session struct {
	ID        string          `json:"session_id"`
	VisitorID string          `json:"visitor_id"`
	CreatedAt time.Time       `json:"created_at"`
	Status    SessionStatus   `json:"status"`
	Metadata  SessionMetadata `json:"metadata"`
}

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is an append-only conversation turn. CreatedAt is strictly
// increasing within a session; ID is a ULID so it sorts the same way.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ============================================================
// Chat API: Request/Response
// ============================================================

// EnsureSessionRequest is the body of POST /v1/sessions.
type EnsureSessionRequest struct {
	Referrer   string `json:"referrer,omitempty"`
	LandingURL string `json:"landing_url,omitempty"`
}

// EnsureSessionResponse carries the session id, or chat_enabled=false when
// the widget has to run session-less.
type EnsureSessionResponse struct {
	SessionID   string `json:"session_id,omitempty"`
	ChatEnabled bool   `json:"chat_enabled"`
}

// ChatRequest is the body of POST /v1/sessions/{sessionId}/messages.
type ChatRequest struct {
	Content string `json:"content"`
}

// ConversationView is what the widget renders.
type ConversationView struct {
	SessionID string    `json:"session_id"`
	State     string    `json:"state"`
	Messages  []Message `json:"messages"`
}
