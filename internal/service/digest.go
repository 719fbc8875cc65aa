package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/boddenberg/leadchat-go/internal/domain"
	"github.com/boddenberg/leadchat-go/internal/infra/email/templates"
	"github.com/boddenberg/leadchat-go/internal/port"
)

const digestTopLeads = 5

// DigestJob emails the sales inbox a summary of the previous day.
type DigestJob struct {
	admin  *AdminService
	leads  port.LeadStore
	sender port.EmailSender
	site   SiteInfo
	logger *zap.Logger

	cron *cron.Cron
	now  func() time.Time
}

// NewDigestJob creates the digest job in the given location.
func NewDigestJob(admin *AdminService, leads port.LeadStore, sender port.EmailSender, site SiteInfo, loc *time.Location, logger *zap.Logger) *DigestJob {
	return &DigestJob{
		admin:  admin,
		leads:  leads,
		sender: sender,
		site:   site,
		logger: logger,
		cron:   cron.New(cron.WithLocation(loc)),
		now:    func() time.Time { return time.Now().In(loc) },
	}
}

// Start schedules the job with a standard five-field cron expression.
func (j *DigestJob) Start(schedule string) error {
	if _, err := j.cron.AddFunc(schedule, j.run); err != nil {
		return fmt.Errorf("schedule digest %q: %w", schedule, err)
	}
	j.cron.Start()
	j.logger.Info("digest scheduled", zap.String("schedule", schedule))
	return nil
}

// Stop waits for a running digest to finish or ctx to expire.
func (j *DigestJob) Stop(ctx context.Context) {
	select {
	case <-j.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (j *DigestJob) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	yesterday := j.now().AddDate(0, 0, -1)
	if err := j.Send(ctx, yesterday); err != nil {
		j.logger.Error("digest failed", zap.Error(err))
	}
}

// Send builds and emails the digest for the calendar day containing day.
func (j *DigestJob) Send(ctx context.Context, day time.Time) error {
	ctx, span := tracer.Start(ctx, "DigestJob.Send")
	defer span.End()

	if j.site.SalesInbox == "" {
		return &domain.ErrValidation{Field: "sales_inbox", Message: "not configured"}
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	r := domain.TimeRange{From: start, To: start.AddDate(0, 0, 1)}

	funnel, err := j.admin.Funnel(ctx, r)
	if err != nil {
		return err
	}
	leads, err := j.leads.ListLeads(ctx, domain.LeadFilter{Range: r})
	if err != nil {
		return fmt.Errorf("list leads: %w", err)
	}
	sort.SliceStable(leads, func(a, b int) bool {
		return leads[a].QualificationScore > leads[b].QualificationScore
	})

	props := templates.DigestProps{
		SiteName:       j.site.Name,
		Date:           start.Format("Mon, 02 Jan 2006"),
		Sessions:       funnel.Sessions,
		Conversations:  funnel.Conversations,
		Leads:          funnel.Leads,
		QualifiedLeads: funnel.QualifiedLeads,
		HighValueLeads: funnel.HighValueLeads,
		AverageScore:   funnel.AverageScore,
	}
	for _, l := range leads[:min(len(leads), digestTopLeads)] {
		props.TopLeads = append(props.TopLeads, templates.DigestLead{
			Name:  l.Attributes.Name,
			Email: l.Attributes.Email,
			Score: l.QualificationScore,
			Tier:  string(TierOf(l.QualificationScore)),
		})
	}

	msg, err := templates.Digest(props)
	if err != nil {
		return fmt.Errorf("render digest: %w", err)
	}
	id, err := j.sender.Send(ctx, &domain.OutboundEmail{To: j.site.SalesInbox, Subject: msg.Subject, HTML: msg.HTML})
	if err != nil {
		return err
	}

	j.logger.Info("digest sent",
		zap.String("date", props.Date),
		zap.Int("leads", props.Leads),
		zap.String("provider_id", id),
	)
	return nil
}
