package service

import (
	"context"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/leadchat-go/internal/domain"
	"github.com/boddenberg/leadchat-go/internal/infra/cache"
	"github.com/boddenberg/leadchat-go/internal/infra/observability"
	"github.com/boddenberg/leadchat-go/internal/port"
)

// LeadDispatcher sends the emails for a lead snapshot.
type LeadDispatcher interface {
	Dispatch(ctx context.Context, lead *domain.Lead) (*domain.DispatchResult, error)
}

// LeadPipeline merges captured attributes into a session's lead, scores it
// and hands new snapshots to the dispatcher.
type LeadPipeline struct {
	leads      port.LeadStore
	sessions   port.SessionStore
	dispatcher LeadDispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger

	locks *cache.InMemory[*sync.Mutex] // session id -> capture lock
}

// leadLockTTL evicts per-session capture locks after this long unused. It is
// far above the longest capture (store calls plus email sends).
const leadLockTTL = 30 * time.Minute

// NewLeadPipeline creates the lead pipeline.
func NewLeadPipeline(
	leads port.LeadStore,
	sessions port.SessionStore,
	dispatcher LeadDispatcher,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *LeadPipeline {
	return &LeadPipeline{
		leads:      leads,
		sessions:   sessions,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
		locks:      cache.New[*sync.Mutex](leadLockTTL),
	}
}

// Stop releases the lock cache's background cleanup.
func (p *LeadPipeline) Stop() {
	p.locks.Stop()
}

// Capture merges attrs into the session's lead. A changed attribute set or
// score produces a new snapshot; a complete lead (name and email) is then
// dispatched. Resubmitting identical data dispatches nothing new.
func (p *LeadPipeline) Capture(ctx context.Context, sessionID string, attrs domain.LeadAttributes) (*domain.CaptureResponse, error) {
	return p.capture(ctx, "LeadPipeline.Capture", sessionID, attrs, domain.LeadAttributes.Merge)
}

// capture runs the pipeline; merge folds the incoming attributes into the
// stored ones.
func (p *LeadPipeline) capture(
	ctx context.Context,
	op, sessionID string,
	attrs domain.LeadAttributes,
	merge func(stored, incoming domain.LeadAttributes) domain.LeadAttributes,
) (*domain.CaptureResponse, error) {
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	attrs = normalizeAttributes(attrs)
	if attrs.Email != "" {
		if _, err := mail.ParseAddress(attrs.Email); err != nil {
			return nil, &domain.ErrValidation{Field: "email", Message: "invalid email address"}
		}
	}

	if _, err := p.sessions.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	unlock := p.lock(sessionID)
	defer unlock()

	existing, err := p.leads.GetLeadBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	merged := attrs
	if existing != nil {
		merged = merge(existing.Attributes, attrs)
	}
	if merged.Email == "" {
		return nil, &domain.ErrValidation{Field: "email", Message: "email is required"}
	}

	score, scoreErr := ScoreLead(merged)
	if scoreErr != nil && !IsIncomplete(scoreErr) {
		return nil, scoreErr
	}

	lead := existing
	if existing == nil || !existing.Attributes.Equal(merged) || existing.QualificationScore != score.Value {
		now := time.Now().UTC()
		lead = &domain.Lead{
			ID:                 uuid.NewString(),
			SessionID:          sessionID,
			Attributes:         merged,
			QualificationScore: score.Value,
			Status:             score.Tier,
			Snapshot:           1,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if existing != nil {
			lead.ID = existing.ID
			lead.CreatedAt = existing.CreatedAt
			lead.Snapshot = existing.Snapshot + 1
		}
		if err := p.leads.SaveLead(ctx, lead); err != nil {
			return nil, err
		}
		p.metrics.IncrLeadScored(lead.Status)
		p.logger.Info("lead scored",
			zap.String("lead_id", lead.ID),
			zap.String("session_id", sessionID),
			zap.Int("snapshot", lead.Snapshot),
			zap.Int("score", lead.QualificationScore),
			zap.String("tier", string(lead.Status)),
		)
	}
	span.SetAttributes(
		attribute.Int("lead.score", lead.QualificationScore),
		attribute.Int("lead.snapshot", lead.Snapshot),
	)

	resp := &domain.CaptureResponse{Lead: lead}
	if scoreErr != nil {
		p.logger.Debug("lead incomplete, not dispatching",
			zap.String("lead_id", lead.ID),
			zap.Error(scoreErr),
		)
		return resp, nil
	}

	// A dropped request must not leave failed notification records behind.
	result, err := p.dispatcher.Dispatch(context.WithoutCancel(ctx), lead)
	if err != nil {
		p.logger.Error("lead dispatch failed",
			zap.String("lead_id", lead.ID),
			zap.Error(err),
		)
		return resp, nil
	}
	resp.Dispatch = result
	return resp, nil
}

// CaptureContact records contact details spotted in chat. They only fill
// fields the lead does not have yet; anything typed into the lead form wins.
// Without an email and without an existing lead there is nothing to attach
// them to yet.
func (p *LeadPipeline) CaptureContact(ctx context.Context, sessionID string, attrs domain.LeadAttributes) error {
	if attrs.Email == "" {
		existing, err := p.leads.GetLeadBySession(ctx, sessionID)
		if err != nil {
			return err
		}
		if existing == nil {
			return nil
		}
	}
	_, err := p.capture(ctx, "LeadPipeline.CaptureContact", sessionID, attrs, domain.LeadAttributes.FillMissing)
	return err
}

func (p *LeadPipeline) lock(sessionID string) func() {
	mu, _ := p.locks.GetOrCreate(sessionID, func() *sync.Mutex { return &sync.Mutex{} })
	mu.Lock()
	return mu.Unlock
}

func normalizeAttributes(a domain.LeadAttributes) domain.LeadAttributes {
	trim := func(s *string) *string {
		if s == nil {
			return nil
		}
		v := strings.TrimSpace(*s)
		if v == "" {
			return nil
		}
		return &v
	}
	return domain.LeadAttributes{
		Name:        strings.TrimSpace(a.Name),
		Email:       strings.ToLower(strings.TrimSpace(a.Email)),
		Company:     trim(a.Company),
		Phone:       trim(a.Phone),
		ProjectType: trim(a.ProjectType),
		Industry:    trim(a.Industry),
		BudgetRange: trim(a.BudgetRange),
		Timeline:    trim(a.Timeline),
	}
}
