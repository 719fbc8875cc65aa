package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/leadchat-go/internal/domain"
	"github.com/boddenberg/leadchat-go/internal/infra/idgen"
)

// ============================================================
// Sessions & messages
// ============================================================

// CreateSession inserts a new active session for visitorID.
func (c *Client) CreateSession(ctx context.Context, visitorID string, meta domain.SessionMetadata) (*domain.Session, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateSession")
	defer span.End()

	row := map[string]any{
		"visitor_id": visitorID,
		"status":     domain.SessionActive,
		"metadata":   meta,
	}
	body, err := c.write("supabase/sessions", func() ([]byte, error) {
		return c.doPost(ctx, tableSessions, row)
	})
	if err != nil {
		return nil, err
	}

	var sessions []domain.Session
	if err := json.Unmarshal(body, &sessions); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("supabase returned no session row")
	}
	span.SetAttributes(attribute.String("session.id", sessions[0].ID))
	return &sessions[0], nil
}

// GetSession fetches one session by id.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetSession")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	body, err := c.read(ctx, "supabase/sessions", tableSessions+"?"+eq("session_id", sessionID)+"&limit=1")
	if err != nil {
		return nil, err
	}
	if isEmpty(body) {
		return nil, &domain.ErrNotFound{Resource: "session", ID: sessionID}
	}

	var sessions []domain.Session
	if err := json.Unmarshal(body, &sessions); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if len(sessions) == 0 {
		return nil, &domain.ErrNotFound{Resource: "session", ID: sessionID}
	}
	return &sessions[0], nil
}

// ListSessions returns sessions in the filter's range, newest first.
func (c *Client) ListSessions(ctx context.Context, filter domain.SessionFilter) ([]domain.Session, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListSessions")
	defer span.End()

	path := tableSessions + "?order=created_at.desc" + timeFilter("created_at", filter.Range.From, filter.Range.To)
	if filter.Limit > 0 {
		path += fmt.Sprintf("&limit=%d", filter.Limit)
	}
	body, err := c.read(ctx, "supabase/sessions", path)
	if err != nil {
		return nil, err
	}
	if isEmpty(body) {
		return []domain.Session{}, nil
	}

	var sessions []domain.Session
	if err := json.Unmarshal(body, &sessions); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	return sessions, nil
}

// ListMessages returns the transcript of a session in append order.
func (c *Client) ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListMessages")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	path := tableMessages + "?" + eq("session_id", sessionID) + "&order=created_at.asc,id.asc"
	body, err := c.read(ctx, "supabase/messages", path)
	if err != nil {
		return nil, err
	}
	if isEmpty(body) {
		return []domain.Message{}, nil
	}

	var msgs []domain.Message
	if err := json.Unmarshal(body, &msgs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return msgs, nil
}

// CountMessages returns the number of messages per session id. Sessions with
// no messages are absent from the map.
func (c *Client) CountMessages(ctx context.Context, sessionIDs []string) (map[string]int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CountMessages")
	defer span.End()

	counts := make(map[string]int, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return counts, nil
	}

	path := fmt.Sprintf("%s?select=session_id&session_id=in.(%s)", tableMessages, strings.Join(sessionIDs, ","))
	body, err := c.read(ctx, "supabase/messages", path)
	if err != nil {
		return nil, err
	}
	if isEmpty(body) {
		return counts, nil
	}

	var rows []struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode message counts: %w", err)
	}
	for _, r := range rows {
		counts[r.SessionID]++
	}
	return counts, nil
}

// AppendMessage inserts a message. Its created_at is strictly greater than
// that of the session's previous message.
func (c *Client) AppendMessage(ctx context.Context, sessionID string, role domain.Role, content string) (*domain.Message, error) {
	ctx, span := tracer.Start(ctx, "Supabase.AppendMessage")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("message.role", string(role)),
	)

	if !role.Valid() {
		return nil, &domain.ErrValidation{Field: "role", Message: "unknown role " + string(role)}
	}

	prev, err := c.lastMessageTime(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	createdAt := idgen.NextTimestamp(prev, time.Now())
	msg := domain.Message{
		ID:        idgen.NewULID(createdAt),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: createdAt,
	}

	if _, err := c.write("supabase/messages", func() ([]byte, error) {
		return c.doPost(ctx, tableMessages, msg)
	}); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) lastMessageTime(ctx context.Context, sessionID string) (time.Time, error) {
	path := tableMessages + "?select=created_at&" + eq("session_id", sessionID) + "&order=created_at.desc&limit=1"
	body, err := c.read(ctx, "supabase/messages", path)
	if err != nil {
		return time.Time{}, err
	}
	if isEmpty(body) {
		return time.Time{}, nil
	}

	var rows []struct {
		CreatedAt time.Time `json:"created_at"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return time.Time{}, fmt.Errorf("decode last message: %w", err)
	}
	if len(rows) == 0 {
		return time.Time{}, nil
	}
	return rows[0].CreatedAt, nil
}
