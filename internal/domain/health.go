package domain

import "time"

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// ChatMetrics is returned by GET /v1/metrics/chat.
type ChatMetrics struct {
	SessionsCreated  int64   `json:"sessionsCreated"`
	MessagesReceived int64   `json:"messagesReceived"`
	RepliesGenerated int64   `json:"repliesGenerated"`
	FallbackRate     float64 `json:"fallbackRate"`
	LeadsScored      int64   `json:"leadsScored"`
	HighValueLeads   int64   `json:"highValueLeads"`
	EmailFailures    int64   `json:"emailFailures"`
	Period           string  `json:"period"`
}

// ============================================================
// Admin read surface
// ============================================================

// AdminLoginRequest is the body of POST /v1/admin/login.
type AdminLoginRequest struct {
	Password string `json:"password"`
}

// AdminLoginResponse carries the short-lived admin token.
type AdminLoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// TimeRange bounds admin queries. Zero values mean unbounded.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls in [From, To).
func (r TimeRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

// SessionFilter selects sessions for the admin list. Stores apply Range and
// Limit; Tier is resolved against leads by the admin service.
type SessionFilter struct {
	Range TimeRange
	Tier  Tier
	Limit int
}

// LeadFilter selects leads.
type LeadFilter struct {
	Range TimeRange
	Tier  Tier
}

// FunnelMetrics aggregates visitor → conversation → lead.
type FunnelMetrics struct {
	Sessions       int     `json:"sessions"`
	Conversations  int     `json:"conversations"`
	Leads          int     `json:"leads"`
	QualifiedLeads int     `json:"qualified_leads"`
	HighValueLeads int     `json:"high_value_leads"`
	ConversionRate float64 `json:"conversion_rate"`
	QualifiedRate  float64 `json:"qualified_rate"`
	AverageScore   float64 `json:"average_score"`
	From           string  `json:"from,omitempty"`
	To             string  `json:"to,omitempty"`
}

// SessionSummary is one row of the admin session list.
type SessionSummary struct {
	Session            Session `json:"session"`
	MessageCount       int     `json:"message_count"`
	QualificationScore *int    `json:"qualification_score,omitempty"`
	Status             Tier    `json:"status,omitempty"`
}

// SessionDetail is the admin view of one session.
type SessionDetail struct {
	Session            Session              `json:"session"`
	Lead               *Lead                `json:"lead,omitempty"`
	QualificationScore *int                 `json:"qualification_score,omitempty"`
	Status             Tier                 `json:"status,omitempty"`
	Transcript         []Message            `json:"transcript"`
	Notifications      []NotificationRecord `json:"notifications,omitempty"`
}

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}
