package domain

import "time"

// ============================================================
// Trigger rules & engagement state
// ============================================================

// PageType is the classification of a site route.
type PageType string

const (
	PageHome        PageType = "home"
	PagePricing     PageType = "pricing"
	PageServices    PageType = "services"
	PageBlog        PageType = "blog"
	PageContact     PageType = "contact"
	PageAbout       PageType = "about"
	PageCaseStudies PageType = "case-studies"
	PageDefault     PageType = "default"
)

// TriggerRule is the per-page-type activation configuration.
type TriggerRule struct {
	DelaySeconds     int  `json:"delay_seconds" yaml:"delay_seconds"`
	EnableExitIntent bool `json:"enable_exit_intent" yaml:"enable_exit_intent"`
}

// Delay returns the proactive delay as a duration.
func (r TriggerRule) Delay() time.Duration {
	return time.Duration(r.DelaySeconds) * time.Second
}

// PageContext is what the activation logic knows about the current page.
type PageContext struct {
	PageType          PageType      `json:"page_type"`
	TimeOnPage        time.Duration `json:"time_on_page"`
	PreviouslyEngaged bool          `json:"previously_engaged"`
}

// EngagementState is the per-browser set of one-way flags.
type EngagementState struct {
	HasVisited      bool `json:"has_visited"`
	HasEngaged      bool `json:"has_engaged"`
	ExitIntentShown bool `json:"exit_intent_shown"`
	ProactiveShown  bool `json:"proactive_shown"`
}

// ActivationReason tells the widget why it was opened.
type ActivationReason string

const (
	ActivationProactive  ActivationReason = "proactive"
	ActivationExitIntent ActivationReason = "exit_intent"
)

// ActivationPlan is returned by GET /v1/widget/context.
type ActivationPlan struct {
	Context         PageContext     `json:"context"`
	Rule            TriggerRule     `json:"rule"`
	ProactiveArmed  bool            `json:"proactive_armed"`
	ExitIntentArmed bool            `json:"exit_intent_armed"`
	Engagement      EngagementState `json:"engagement"`
}

// PointerSample is one pointer position reported by the widget.
type PointerSample struct {
	X  float64   `json:"x"`
	Y  float64   `json:"y"`
	At time.Time `json:"at"`
}
