package domain

import "time"

// ============================================================
// Leads & qualification
// ============================================================

// Tier is the qualitative bucket derived from a lead score.
type Tier string

const (
	TierLow       Tier = "low"
	TierQualified Tier = "qualified"
	TierHighValue Tier = "high-value"
)

// LeadAttributes are the fields a conversation (or the lead form) can yield.
// Pointers distinguish "not captured" from "captured empty".
type LeadAttributes struct {
	Name        string  `json:"name,omitempty"`
	Email       string  `json:"email,omitempty"`
	Company     *string `json:"company,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	ProjectType *string `json:"project_type,omitempty"`
	Industry    *string `json:"industry,omitempty"`
	BudgetRange *string `json:"budget_range,omitempty"`
	Timeline    *string `json:"timeline,omitempty"`
}

// Merge overlays the non-empty fields of other onto a copy of a.
func (a LeadAttributes) Merge(other LeadAttributes) LeadAttributes {
	out := a
	if other.Name != "" {
		out.Name = other.Name
	}
	if other.Email != "" {
		out.Email = other.Email
	}
	out.Company = pick(out.Company, other.Company)
	out.Phone = pick(out.Phone, other.Phone)
	out.ProjectType = pick(out.ProjectType, other.ProjectType)
	out.Industry = pick(out.Industry, other.Industry)
	out.BudgetRange = pick(out.BudgetRange, other.BudgetRange)
	out.Timeline = pick(out.Timeline, other.Timeline)
	return out
}

// FillMissing copies the fields of other that are still empty in a. Values
// already captured are never replaced.
func (a LeadAttributes) FillMissing(other LeadAttributes) LeadAttributes {
	out := a
	if out.Name == "" {
		out.Name = other.Name
	}
	if out.Email == "" {
		out.Email = other.Email
	}
	out.Company = pick(other.Company, out.Company)
	out.Phone = pick(other.Phone, out.Phone)
	out.ProjectType = pick(other.ProjectType, out.ProjectType)
	out.Industry = pick(other.Industry, out.Industry)
	out.BudgetRange = pick(other.BudgetRange, out.BudgetRange)
	out.Timeline = pick(other.Timeline, out.Timeline)
	return out
}

// Equal reports whether two attribute sets carry the same values.
func (a LeadAttributes) Equal(b LeadAttributes) bool {
	return a.Name == b.Name && a.Email == b.Email &&
		Deref(a.Company) == Deref(b.Company) &&
		Deref(a.Phone) == Deref(b.Phone) &&
		Deref(a.ProjectType) == Deref(b.ProjectType) &&
		Deref(a.Industry) == Deref(b.Industry) &&
		Deref(a.BudgetRange) == Deref(b.BudgetRange) &&
		Deref(a.Timeline) == Deref(b.Timeline)
}

func pick(cur, next *string) *string {
	if next != nil && *next != "" {
		v := *next
		return &v
	}
	return cur
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Ptr returns a pointer to s.
func Ptr(s string) *string {
	return &s
}

// Score is the output of the qualification scorer.
type Score struct {
	Value int  `json:"qualification_score"`
	Tier  Tier `json:"status"`
}

// Lead is a captured lead. Score and Tier are computed, never user-supplied.
// Snapshot increments every time a re-score yields a new score/attribute set;
// notifications are tied to the snapshot they were sent for.
type Lead struct {
	ID                 string         `json:"id"`
	SessionID          string         `json:"session_id"`
	Attributes         LeadAttributes `json:"attributes"`
	QualificationScore int            `json:"qualification_score"`
	Status             Tier           `json:"status"`
	Snapshot           int            `json:"snapshot"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// ============================================================
// Notifications
// ============================================================

// NotificationKind identifies an email channel.
type NotificationKind string

const (
	NotifyVisitorConfirmation NotificationKind = "visitor-confirmation"
	NotifyInternalAlert       NotificationKind = "internal-alert"
	NotifyHighValueAlert      NotificationKind = "high-value-alert"
)

// TemplateVariant selects the visitor confirmation copy.
type TemplateVariant string

const (
	VariantStandard  TemplateVariant = "standard"
	VariantQualified TemplateVariant = "qualified"
	VariantHighValue TemplateVariant = "high-value"
)

// NotificationRecord tracks what was sent (or attempted) for a lead snapshot.
type NotificationRecord struct {
	LeadID          string           `json:"lead_id"`
	Snapshot        int              `json:"snapshot"`
	Kind            NotificationKind `json:"kind"`
	TemplateVariant TemplateVariant  `json:"template_variant"`
	ProviderID      string           `json:"provider_id,omitempty"`
	Error           string           `json:"error,omitempty"`
	SentAt          time.Time        `json:"sent_at"`
}

// Delivered reports whether the record represents a successful send.
func (r NotificationRecord) Delivered() bool {
	return r.Error == ""
}

// DispatchResult reports each channel independently.
type DispatchResult struct {
	Variant            TemplateVariant `json:"template_variant"`
	VisitorEmailSent   bool            `json:"visitor_email_sent"`
	InternalEmailSent  bool            `json:"internal_email_sent"`
	HighValueAlertSent bool            `json:"high_value_alert_sent"`
	Errors             []string        `json:"errors,omitempty"`
}

// CaptureResponse is returned by POST /v1/sessions/{sessionId}/lead.
type CaptureResponse struct {
	Lead     *Lead           `json:"lead"`
	Dispatch *DispatchResult `json:"dispatch,omitempty"`
}

// OutboundEmail is the provider-agnostic email a dispatcher hands to a sender.
type OutboundEmail struct {
	To      string
	Subject string
	HTML    string
	ReplyTo string
}
