package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/leadchat-go/internal/domain"
)

const leadColumns = `id, session_id, name, email, company, phone, project_type, industry,
	budget_range, timeline, qualification_score, status, snapshot, created_at, updated_at`

// SaveLead upserts a lead row by id.
func (s *Store) SaveLead(ctx context.Context, lead *domain.Lead) error {
	ctx, span := tracer.Start(ctx, "SQL.SaveLead")
	defer span.End()
	span.SetAttributes(
		attribute.String("lead.id", lead.ID),
		attribute.Int("lead.snapshot", lead.Snapshot),
	)

	a := lead.Attributes
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leads (`+leadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			company = excluded.company,
			phone = excluded.phone,
			project_type = excluded.project_type,
			industry = excluded.industry,
			budget_range = excluded.budget_range,
			timeline = excluded.timeline,
			qualification_score = excluded.qualification_score,
			status = excluded.status,
			snapshot = excluded.snapshot,
			updated_at = excluded.updated_at`,
		lead.ID, lead.SessionID, a.Name, a.Email,
		nullString(a.Company), nullString(a.Phone), nullString(a.ProjectType), nullString(a.Industry),
		nullString(a.BudgetRange), nullString(a.Timeline),
		lead.QualificationScore, string(lead.Status), lead.Snapshot,
		formatTime(lead.CreatedAt), formatTime(lead.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save lead: %w", err)
	}
	return nil
}

// GetLeadBySession returns the session's lead or (nil, nil).
func (s *Store) GetLeadBySession(ctx context.Context, sessionID string) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "SQL.GetLeadBySession")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	row := s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE session_id = ?`, sessionID)
	lead, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return lead, nil
}

// ListLeads returns leads created in the filter's range, newest first.
func (s *Store) ListLeads(ctx context.Context, filter domain.LeadFilter) ([]domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "SQL.ListLeads")
	defer span.End()

	where, args := rangeClause("created_at", filter.Range.From, filter.Range.To, nil, nil)
	if filter.Tier != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Tier))
	}
	query := `SELECT ` + leadColumns + ` FROM leads`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	leads := []domain.Lead{}
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *lead)
	}
	return leads, rows.Err()
}

func scanLead(sc scanner) (*domain.Lead, error) {
	var (
		l                                 domain.Lead
		company, phone, project, industry sql.NullString
		budget, timeline                  sql.NullString
		status, createdAt, updatedAt      string
	)
	if err := sc.Scan(&l.ID, &l.SessionID, &l.Attributes.Name, &l.Attributes.Email,
		&company, &phone, &project, &industry, &budget, &timeline,
		&l.QualificationScore, &status, &l.Snapshot, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	l.Attributes.Company = stringPtr(company)
	l.Attributes.Phone = stringPtr(phone)
	l.Attributes.ProjectType = stringPtr(project)
	l.Attributes.Industry = stringPtr(industry)
	l.Attributes.BudgetRange = stringPtr(budget)
	l.Attributes.Timeline = stringPtr(timeline)
	l.Status = domain.Tier(status)

	var err error
	if l.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse lead created_at: %w", err)
	}
	if l.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse lead updated_at: %w", err)
	}
	return &l, nil
}

// RecordNotification inserts a record; a repeat for the same
// (lead, snapshot, kind) is ignored.
func (s *Store) RecordNotification(ctx context.Context, rec *domain.NotificationRecord) error {
	ctx, span := tracer.Start(ctx, "SQL.RecordNotification")
	defer span.End()
	span.SetAttributes(
		attribute.String("lead.id", rec.LeadID),
		attribute.String("notification.kind", string(rec.Kind)),
	)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lead_notifications (lead_id, snapshot, kind, template_variant, provider_id, error, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(lead_id, snapshot, kind) DO NOTHING`,
		rec.LeadID, rec.Snapshot, string(rec.Kind), string(rec.TemplateVariant),
		rec.ProviderID, rec.Error, formatTime(rec.SentAt),
	)
	if err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	return nil
}

// ListNotifications returns all records for a lead, oldest first.
func (s *Store) ListNotifications(ctx context.Context, leadID string) ([]domain.NotificationRecord, error) {
	ctx, span := tracer.Start(ctx, "SQL.ListNotifications")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT lead_id, snapshot, kind, template_variant, provider_id, error, sent_at
		FROM lead_notifications WHERE lead_id = ? ORDER BY sent_at ASC, kind ASC`, leadID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	recs := []domain.NotificationRecord{}
	for rows.Next() {
		var (
			r                     domain.NotificationRecord
			kind, variant, sentAt string
		)
		if err := rows.Scan(&r.LeadID, &r.Snapshot, &kind, &variant, &r.ProviderID, &r.Error, &sentAt); err != nil {
			return nil, err
		}
		r.Kind = domain.NotificationKind(kind)
		r.TemplateVariant = domain.TemplateVariant(variant)
		if r.SentAt, err = parseTime(sentAt); err != nil {
			return nil, fmt.Errorf("parse sent_at: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
