package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/leadchat-go/internal/domain"
	"github.com/boddenberg/leadchat-go/internal/infra/idgen"
)

const sessionColumns = "session_id, visitor_id, status, referrer, user_agent, landing_url, created_at"

// CreateSession inserts a new active session.
func (s *Store) CreateSession(ctx context.Context, visitorID string, meta domain.SessionMetadata) (*domain.Session, error) {
	ctx, span := tracer.Start(ctx, "SQL.CreateSession")
	defer span.End()

	sess := &domain.Session{
		ID:        uuid.NewString(),
		VisitorID: visitorID,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
		Status:    domain.SessionActive,
		Metadata:  meta,
	}
	span.SetAttributes(attribute.String("session.id", sess.ID))

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.VisitorID, sess.Status, meta.Referrer, meta.UserAgent, meta.LandingURL, formatTime(sess.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

// GetSession fetches one session.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	ctx, span := tracer.Start(ctx, "SQL.GetSession")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM chat_sessions WHERE session_id = ?`, sessionID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "session", ID: sessionID}
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// ListSessions returns sessions in the filter's range, newest first.
func (s *Store) ListSessions(ctx context.Context, filter domain.SessionFilter) ([]domain.Session, error) {
	ctx, span := tracer.Start(ctx, "SQL.ListSessions")
	defer span.End()

	where, args := rangeClause("created_at", filter.Range.From, filter.Range.To, nil, nil)
	query := `SELECT ` + sessionColumns + ` FROM chat_sessions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []domain.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (*domain.Session, error) {
	var (
		sess      domain.Session
		status    string
		createdAt string
	)
	if err := sc.Scan(&sess.ID, &sess.VisitorID, &status,
		&sess.Metadata.Referrer, &sess.Metadata.UserAgent, &sess.Metadata.LandingURL, &createdAt); err != nil {
		return nil, err
	}
	sess.Status = domain.SessionStatus(status)
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse session created_at: %w", err)
	}
	sess.CreatedAt = t
	return &sess, nil
}

// ListMessages returns a session's transcript in append order.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	ctx, span := tracer.Start(ctx, "SQL.ListMessages")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at FROM chat_messages
		 WHERE session_id = ? ORDER BY created_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	msgs := []domain.Message{}
	for rows.Next() {
		var (
			m         domain.Message
			role      string
			createdAt string
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &createdAt); err != nil {
			return nil, err
		}
		m.Role = domain.Role(role)
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse message created_at: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// CountMessages returns message counts for the given sessions.
func (s *Store) CountMessages(ctx context.Context, sessionIDs []string) (map[string]int, error) {
	ctx, span := tracer.Start(ctx, "SQL.CountMessages")
	defer span.End()

	counts := make(map[string]int, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return counts, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(sessionIDs)), ",")
	args := make([]any, len(sessionIDs))
	for i, id := range sessionIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, COUNT(*) FROM chat_messages WHERE session_id IN (`+placeholders+`) GROUP BY session_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// AppendMessage inserts a message inside a transaction so its created_at is
// strictly greater than the session's previous message.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, role domain.Role, content string) (*domain.Message, error) {
	ctx, span := tracer.Start(ctx, "SQL.AppendMessage")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("message.role", string(role)),
	)

	if !role.Valid() {
		return nil, &domain.ErrValidation{Field: "role", Message: "unknown role " + string(role)}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_sessions WHERE session_id = ?`, sessionID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}
	if exists == 0 {
		return nil, &domain.ErrNotFound{Resource: "session", ID: sessionID}
	}

	var last sql.NullString
	if err := tx.QueryRowContext(ctx, `SELECT MAX(created_at) FROM chat_messages WHERE session_id = ?`, sessionID).Scan(&last); err != nil {
		return nil, fmt.Errorf("read last message: %w", err)
	}
	var prev time.Time
	if last.Valid {
		if prev, err = parseTime(last.String); err != nil {
			return nil, fmt.Errorf("parse last created_at: %w", err)
		}
	}

	createdAt := idgen.NextTimestamp(prev, time.Now())
	msg := &domain.Message{
		ID:        idgen.NewULID(createdAt),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: createdAt,
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chat_messages (id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, string(msg.Role), msg.Content, formatTime(msg.CreatedAt),
	); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return msg, nil
}
