package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/leadchat-go/internal/domain"
)

// ============================================================
// Leads & notification records
// ============================================================

// leadRow maps the leads table columns (one row per session).
type leadRow struct {
	ID                 string      `json:"id"`
	SessionID          string      `json:"session_id"`
	Name               string      `json:"name"`
	Email              string      `json:"email"`
	Company            *string     `json:"company"`
	Phone              *string     `json:"phone"`
	ProjectType        *string     `json:"project_type"`
	Industry           *string     `json:"industry"`
	BudgetRange        *string     `json:"budget_range"`
	Timeline           *string     `json:"timeline"`
	QualificationScore int         `json:"qualification_score"`
	Status             domain.Tier `json:"status"`
	Snapshot           int         `json:"snapshot"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

func toLeadRow(l *domain.Lead) leadRow {
	a := l.Attributes
	return leadRow{
		ID:                 l.ID,
		SessionID:          l.SessionID,
		Name:               a.Name,
		Email:              a.Email,
		Company:            a.Company,
		Phone:              a.Phone,
		ProjectType:        a.ProjectType,
		Industry:           a.Industry,
		BudgetRange:        a.BudgetRange,
		Timeline:           a.Timeline,
		QualificationScore: l.QualificationScore,
		Status:             l.Status,
		Snapshot:           l.Snapshot,
		CreatedAt:          l.CreatedAt,
		UpdatedAt:          l.UpdatedAt,
	}
}

func (r leadRow) toDomain() domain.Lead {
	return domain.Lead{
		ID:        r.ID,
		SessionID: r.SessionID,
		Attributes: domain.LeadAttributes{
			Name:        r.Name,
			Email:       r.Email,
			Company:     r.Company,
			Phone:       r.Phone,
			ProjectType: r.ProjectType,
			Industry:    r.Industry,
			BudgetRange: r.BudgetRange,
			Timeline:    r.Timeline,
		},
		QualificationScore: r.QualificationScore,
		Status:             r.Status,
		Snapshot:           r.Snapshot,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

// SaveLead upserts the lead row keyed by id.
func (c *Client) SaveLead(ctx context.Context, lead *domain.Lead) error {
	ctx, span := tracer.Start(ctx, "Supabase.SaveLead")
	defer span.End()
	span.SetAttributes(
		attribute.String("lead.id", lead.ID),
		attribute.Int("lead.snapshot", lead.Snapshot),
	)

	_, err := c.write("supabase/leads", func() ([]byte, error) {
		return c.doPost(ctx, tableLeads+"?on_conflict=id", toLeadRow(lead), "resolution=merge-duplicates")
	})
	return err
}

// GetLeadBySession returns the session's lead, or (nil, nil) when none exists.
func (c *Client) GetLeadBySession(ctx context.Context, sessionID string) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetLeadBySession")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	body, err := c.read(ctx, "supabase/leads", tableLeads+"?"+eq("session_id", sessionID)+"&limit=1")
	if err != nil {
		return nil, err
	}
	if isEmpty(body) {
		return nil, nil
	}

	var rows []leadRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode lead: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	lead := rows[0].toDomain()
	return &lead, nil
}

// ListLeads returns leads created in the filter's range, optionally one tier.
func (c *Client) ListLeads(ctx context.Context, filter domain.LeadFilter) ([]domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListLeads")
	defer span.End()

	path := tableLeads + "?order=created_at.desc" + timeFilter("created_at", filter.Range.From, filter.Range.To)
	if filter.Tier != "" {
		path += "&" + eq("status", string(filter.Tier))
	}
	body, err := c.read(ctx, "supabase/leads", path)
	if err != nil {
		return nil, err
	}
	if isEmpty(body) {
		return []domain.Lead{}, nil
	}

	var rows []leadRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode leads: %w", err)
	}
	leads := make([]domain.Lead, 0, len(rows))
	for _, r := range rows {
		leads = append(leads, r.toDomain())
	}
	return leads, nil
}

// RecordNotification inserts a delivery record. The table carries a unique
// (lead_id, snapshot, kind) constraint; a duplicate is ignored.
func (c *Client) RecordNotification(ctx context.Context, rec *domain.NotificationRecord) error {
	ctx, span := tracer.Start(ctx, "Supabase.RecordNotification")
	defer span.End()
	span.SetAttributes(
		attribute.String("lead.id", rec.LeadID),
		attribute.String("notification.kind", string(rec.Kind)),
	)

	_, err := c.write("supabase/notifications", func() ([]byte, error) {
		return c.doPost(ctx, tableNotifications+"?on_conflict=lead_id,snapshot,kind", rec, "resolution=ignore-duplicates")
	})
	return err
}

// ListNotifications returns all records for a lead, oldest first.
func (c *Client) ListNotifications(ctx context.Context, leadID string) ([]domain.NotificationRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListNotifications")
	defer span.End()

	body, err := c.read(ctx, "supabase/notifications", tableNotifications+"?"+eq("lead_id", leadID)+"&order=sent_at.asc")
	if err != nil {
		return nil, err
	}
	if isEmpty(body) {
		return []domain.NotificationRecord{}, nil
	}

	var recs []domain.NotificationRecord
	if err := json.Unmarshal(body, &recs); err != nil {
		return nil, fmt.Errorf("decode notifications: %w", err)
	}
	return recs, nil
}
