// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the service layer
// from the concrete store, reply generator, email provider and the
// per-browser storage scope.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/leadchat-go/internal/domain"
)

// SessionStore creates and reads chat sessions and their messages.
// Messages are append-only; ListMessages returns them in creation order.
type SessionStore interface {
	CreateSession(ctx context.Context, visitorID string, meta domain.SessionMetadata) (*domain.Session, error)
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	ListSessions(ctx context.Context, filter domain.SessionFilter) ([]domain.Session, error)
	ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error)
	CountMessages(ctx context.Context, sessionIDs []string) (map[string]int, error)
	AppendMessage(ctx context.Context, sessionID string, role domain.Role, content string) (*domain.Message, error)
}

// LeadStore persists lead snapshots. GetLeadBySession returns (nil, nil)
// when the session has no lead yet.
type LeadStore interface {
	SaveLead(ctx context.Context, lead *domain.Lead) error
	GetLeadBySession(ctx context.Context, sessionID string) (*domain.Lead, error)
	ListLeads(ctx context.Context, filter domain.LeadFilter) ([]domain.Lead, error)
}

// NotificationStore records dispatched (or failed) notifications.
type NotificationStore interface {
	RecordNotification(ctx context.Context, rec *domain.NotificationRecord) error
	ListNotifications(ctx context.Context, leadID string) ([]domain.NotificationRecord, error)
}

// Store is the full persistence surface. Implemented by the Supabase and
// SQL adapters.
type Store interface {
	SessionStore
	LeadStore
	NotificationStore
	Ping(ctx context.Context) error
}

// ReplyGenerator produces the assistant's next message for a transcript.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, transcript []domain.Message) (string, error)
}

// EmailSender delivers one email and returns the provider message id.
type EmailSender interface {
	Send(ctx context.Context, email *domain.OutboundEmail) (string, error)
}

// LocalStore is the per-browser key/value storage scope (the server-side
// rendition of browser local storage). Writes are last-writer-wins.
// SetIfAbsent stores a value that expires after ttl unless the key already
// holds a live one; it backs advisory locks.
type LocalStore interface {
	Get(ctx context.Context, scope, key string) (string, bool, error)
	Set(ctx context.Context, scope, key, value string) error
	Delete(ctx context.Context, scope, key string) error
	SetIfAbsent(ctx context.Context, scope, key, value string, ttl time.Duration) (bool, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
