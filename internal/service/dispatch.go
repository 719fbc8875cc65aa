package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/boddenberg/leadchat-go/internal/domain"
	"github.com/boddenberg/leadchat-go/internal/infra/email/templates"
	"github.com/boddenberg/leadchat-go/internal/infra/observability"
	"github.com/boddenberg/leadchat-go/internal/port"
)

// SiteInfo fills the site slots of every email.
type SiteInfo struct {
	Name        string
	URL         string
	CalendarURL string
	AdminURL    string
	SalesInbox  string
}

// Dispatcher sends the emails for a lead snapshot. Every channel runs on its
// own; one failing never stops the others.
type Dispatcher struct {
	sender        port.EmailSender
	notifications port.NotificationStore
	sessions      port.SessionStore
	site          SiteInfo
	metrics       *observability.Metrics
	logger        *zap.Logger
}

// NewDispatcher creates the notification dispatcher.
func NewDispatcher(
	sender port.EmailSender,
	notifications port.NotificationStore,
	sessions port.SessionStore,
	site SiteInfo,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		sender:        sender,
		notifications: notifications,
		sessions:      sessions,
		site:          site,
		metrics:       metrics,
		logger:        logger,
	}
}

type delivery struct {
	kind   domain.NotificationKind
	to     string
	render func() (*templates.Rendered, error)
}

// Dispatch sends the visitor confirmation, the internal alert and, for
// high-value leads, the high-value alert. Kinds already recorded for this
// snapshot are skipped. Delivery failures land in DispatchResult.Errors;
// the returned error only reports that the dispatch could not be planned.
func (d *Dispatcher) Dispatch(ctx context.Context, lead *domain.Lead) (*domain.DispatchResult, error) {
	ctx, span := tracer.Start(ctx, "Dispatcher.Dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("lead.id", lead.ID),
		attribute.Int("lead.snapshot", lead.Snapshot),
		attribute.String("lead.tier", string(lead.Status)),
	)

	variant := VariantFor(lead.Status)
	result := &domain.DispatchResult{Variant: variant}

	recorded, err := d.notifications.ListNotifications(ctx, lead.ID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	done := make(map[domain.NotificationKind]bool)
	for _, rec := range recorded {
		if rec.Snapshot != lead.Snapshot {
			continue
		}
		done[rec.Kind] = true
		if rec.Delivered() {
			markSent(result, rec.Kind)
		}
	}

	props := d.props(ctx, lead)
	deliveries := []delivery{
		{
			kind: domain.NotifyVisitorConfirmation,
			to:   lead.Attributes.Email,
			render: func() (*templates.Rendered, error) {
				return templates.VisitorConfirmation(templates.Variant(variant), props)
			},
		},
		{
			kind:   domain.NotifyInternalAlert,
			to:     d.site.SalesInbox,
			render: func() (*templates.Rendered, error) { return templates.InternalAlert(props) },
		},
	}
	if lead.Status == domain.TierHighValue {
		deliveries = append(deliveries, delivery{
			kind:   domain.NotifyHighValueAlert,
			to:     d.site.SalesInbox,
			render: func() (*templates.Rendered, error) { return templates.HighValueAlert(props) },
		})
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, dl := range deliveries {
		if done[dl.kind] {
			continue
		}
		dl := dl
		g.Go(func() error {
			providerID, err := d.deliver(gctx, dl, lead)

			rec := &domain.NotificationRecord{
				LeadID:          lead.ID,
				Snapshot:        lead.Snapshot,
				Kind:            dl.kind,
				TemplateVariant: variant,
				ProviderID:      providerID,
				SentAt:          time.Now().UTC(),
			}
			if err != nil {
				rec.Error = err.Error()
			}
			// Recorded even when the send failed so a manual resend can find it.
			if recErr := d.notifications.RecordNotification(context.WithoutCancel(gctx), rec); recErr != nil {
				d.logger.Error("failed to record notification",
					zap.String("lead_id", lead.ID),
					zap.String("kind", string(dl.kind)),
					zap.Error(recErr),
				)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, err.Error())
			} else {
				markSent(result, dl.kind)
			}
			return nil
		})
	}
	_ = g.Wait()

	d.logger.Info("lead dispatched",
		zap.String("lead_id", lead.ID),
		zap.Int("snapshot", lead.Snapshot),
		zap.String("variant", string(variant)),
		zap.Bool("visitor_email_sent", result.VisitorEmailSent),
		zap.Bool("internal_email_sent", result.InternalEmailSent),
		zap.Bool("high_value_alert_sent", result.HighValueAlertSent),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

func (d *Dispatcher) deliver(ctx context.Context, dl delivery, lead *domain.Lead) (string, error) {
	fail := func(err error) (string, error) {
		d.metrics.IncrEmail(dl.kind, "failed")
		derr := &domain.ErrDelivery{Kind: dl.kind, To: dl.to, Err: err}
		d.logger.Error("email delivery failed",
			zap.String("lead_id", lead.ID),
			zap.String("kind", string(dl.kind)),
			zap.Error(derr),
		)
		return "", derr
	}

	if dl.to == "" {
		return fail(fmt.Errorf("no recipient configured"))
	}
	msg, err := dl.render()
	if err != nil {
		return fail(fmt.Errorf("render: %w", err))
	}

	email := &domain.OutboundEmail{To: dl.to, Subject: msg.Subject, HTML: msg.HTML}
	if dl.kind != domain.NotifyVisitorConfirmation {
		email.ReplyTo = lead.Attributes.Email
	}

	start := time.Now()
	providerID, err := d.sender.Send(ctx, email)
	d.metrics.RecordDuration("send_email", time.Since(start))
	if err != nil {
		return fail(err)
	}

	d.metrics.IncrEmail(dl.kind, "sent")
	return providerID, nil
}

// props builds the template slots. The transcript is best effort.
func (d *Dispatcher) props(ctx context.Context, lead *domain.Lead) templates.LeadProps {
	a := lead.Attributes
	p := templates.LeadProps{
		SiteName:    d.site.Name,
		SiteURL:     d.site.URL,
		CalendarURL: d.site.CalendarURL,
		Name:        a.Name,
		Email:       a.Email,
		Company:     domain.Deref(a.Company),
		Phone:       domain.Deref(a.Phone),
		ProjectType: domain.Deref(a.ProjectType),
		Industry:    domain.Deref(a.Industry),
		BudgetRange: domain.Deref(a.BudgetRange),
		Timeline:    domain.Deref(a.Timeline),
		Score:       lead.QualificationScore,
		Tier:        string(lead.Status),
		SessionID:   lead.SessionID,
	}
	if d.site.AdminURL != "" {
		p.AdminURL = strings.TrimRight(d.site.AdminURL, "/") + "/sessions/" + lead.SessionID
	}

	msgs, err := d.sessions.ListMessages(ctx, lead.SessionID)
	if err != nil {
		d.logger.Warn("transcript unavailable for lead email",
			zap.String("session_id", lead.SessionID),
			zap.Error(err),
		)
		return p
	}
	for _, m := range msgs {
		if m.Role == domain.RoleSystem {
			continue
		}
		p.Transcript = append(p.Transcript, templates.TranscriptLine{Role: string(m.Role), Content: m.Content})
	}
	return p
}

func markSent(r *domain.DispatchResult, kind domain.NotificationKind) {
	switch kind {
	case domain.NotifyVisitorConfirmation:
		r.VisitorEmailSent = true
	case domain.NotifyInternalAlert:
		r.InternalEmailSent = true
	case domain.NotifyHighValueAlert:
		r.HighValueAlertSent = true
	}
}
