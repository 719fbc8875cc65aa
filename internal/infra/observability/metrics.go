package observability

import (
	"time"

	"github.com/boddenberg/leadchat-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the chat/lead pipeline.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	sessions        *prometheus.CounterVec
	messages        *prometheus.CounterVec
	replies         *prometheus.CounterVec
	leadsScored     *prometheus.CounterVec
	emails          *prometheus.CounterVec
	activations     *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. A private registry avoids "duplicate collector"
// panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leadchat_operation_duration_seconds",
				Help:    "Duration of operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadchat_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadchat_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadchat_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		sessions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadchat_sessions_total",
				Help: "Session ensure outcomes (cached, created, failed).",
			},
			[]string{"outcome"},
		),
		messages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadchat_messages_total",
				Help: "Messages appended, by role.",
			},
			[]string{"role"},
		),
		replies: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadchat_replies_total",
				Help: "Reply generation outcomes (success, fallback).",
			},
			[]string{"status"},
		),
		leadsScored: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadchat_leads_scored_total",
				Help: "Lead snapshots scored, by tier.",
			},
			[]string{"tier"},
		),
		emails: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadchat_emails_total",
				Help: "Email sends by kind and status.",
			},
			[]string{"kind", "status"},
		),
		activations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadchat_widget_activations_total",
				Help: "Automatic widget openings by mechanism.",
			},
			[]string{"reason"},
		),
	}
}

// RecordDuration records the duration of an operation.
func (m *Metrics) RecordDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrSession counts an EnsureSession outcome.
func (m *Metrics) IncrSession(outcome string) {
	m.sessions.WithLabelValues(outcome).Inc()
}

// IncrMessage counts an appended message.
func (m *Metrics) IncrMessage(role domain.Role) {
	m.messages.WithLabelValues(string(role)).Inc()
}

// IncrReply counts a reply outcome: "success" or "fallback".
func (m *Metrics) IncrReply(status string) {
	m.replies.WithLabelValues(status).Inc()
}

// IncrLeadScored counts a scored lead snapshot.
func (m *Metrics) IncrLeadScored(tier domain.Tier) {
	m.leadsScored.WithLabelValues(string(tier)).Inc()
}

// IncrEmail counts an email attempt.
func (m *Metrics) IncrEmail(kind domain.NotificationKind, status string) {
	m.emails.WithLabelValues(string(kind), status).Inc()
}

// IncrActivation counts an automatic widget opening.
func (m *Metrics) IncrActivation(reason domain.ActivationReason) {
	m.activations.WithLabelValues(string(reason)).Inc()
}

// GetChatSnapshot returns a snapshot of the counters for GET /v1/metrics/chat.
func (m *Metrics) GetChatSnapshot() *domain.ChatMetrics {
	created := getCounterValue(m.sessions, "created")
	received := getCounterValue(m.messages, string(domain.RoleUser))
	success := getCounterValue(m.replies, "success")
	fallback := getCounterValue(m.replies, "fallback")

	var scored float64
	for _, tier := range []domain.Tier{domain.TierLow, domain.TierQualified, domain.TierHighValue} {
		scored += getCounterValue(m.leadsScored, string(tier))
	}

	var emailFailures float64
	for _, kind := range []domain.NotificationKind{
		domain.NotifyVisitorConfirmation, domain.NotifyInternalAlert, domain.NotifyHighValueAlert,
	} {
		emailFailures += getCounterValue(m.emails, string(kind), "failed")
	}

	fallbackRate := float64(0)
	if success+fallback > 0 {
		fallbackRate = fallback / (success + fallback)
	}

	return &domain.ChatMetrics{
		SessionsCreated:  int64(created),
		MessagesReceived: int64(received),
		RepliesGenerated: int64(success),
		FallbackRate:     fallbackRate,
		LeadsScored:      int64(scored),
		HighValueLeads:   int64(getCounterValue(m.leadsScored, string(domain.TierHighValue))),
		EmailFailures:    int64(emailFailures),
		Period:           "since_start",
	}
}

// getCounterValue extracts the current value from a CounterVec for the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
