package service

import (
	"net/url"
	"strings"
	"time"

	"github.com/boddenberg/leadchat-go/internal/config"
	"github.com/boddenberg/leadchat-go/internal/domain"
)

// defaultRules is the built-in trigger table.
var defaultRules = map[domain.PageType]domain.TriggerRule{
	domain.PageHome:        {DelaySeconds: 30, EnableExitIntent: true},
	domain.PagePricing:     {DelaySeconds: 15, EnableExitIntent: true},
	domain.PageServices:    {DelaySeconds: 20, EnableExitIntent: true},
	domain.PageBlog:        {DelaySeconds: 60, EnableExitIntent: true},
	domain.PageContact:     {DelaySeconds: 45, EnableExitIntent: false},
	domain.PageAbout:       {DelaySeconds: 30, EnableExitIntent: false},
	domain.PageCaseStudies: {DelaySeconds: 25, EnableExitIntent: true},
	domain.PageDefault:     {DelaySeconds: 30, EnableExitIntent: true},
}

// pathPrefixes maps the first path segment to a page type.
var pathPrefixes = map[string]domain.PageType{
	"pricing":      domain.PagePricing,
	"plans":        domain.PagePricing,
	"services":     domain.PageServices,
	"service":      domain.PageServices,
	"blog":         domain.PageBlog,
	"posts":        domain.PageBlog,
	"articles":     domain.PageBlog,
	"contact":      domain.PageContact,
	"get-in-touch": domain.PageContact,
	"about":        domain.PageAbout,
	"team":         domain.PageAbout,
	"case-studies": domain.PageCaseStudies,
	"case-study":   domain.PageCaseStudies,
	"work":         domain.PageCaseStudies,
	"portfolio":    domain.PageCaseStudies,
}

// TriggerEngine is a read-only rule table. Safe for concurrent use.
type TriggerEngine struct {
	rules map[domain.PageType]domain.TriggerRule
}

// NewTriggerEngine builds the table from the built-in rules and an optional
// file override.
func NewTriggerEngine(override *config.TriggerRulesOverride) *TriggerEngine {
	rules := make(map[domain.PageType]domain.TriggerRule, len(defaultRules))
	for k, v := range defaultRules {
		rules[k] = v
	}
	if override != nil {
		if override.Default != nil {
			rules[domain.PageDefault] = *override.Default
		}
		for k, v := range override.Pages {
			rules[k] = v
		}
	}
	return &TriggerEngine{rules: rules}
}

// ClassifyPage maps a URL (absolute or path-only) to a page type. It never
// fails: anything unrecognized is PageDefault.
func ClassifyPage(rawURL string) domain.PageType {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}
	path = strings.ToLower(strings.Trim(path, "/"))
	if path == "" || path == "index.html" || path == "home" {
		return domain.PageHome
	}

	first, _, _ := strings.Cut(path, "/")
	if pt, ok := pathPrefixes[first]; ok {
		return pt
	}
	return domain.PageDefault
}

// Rules returns the rule for a page type, falling back to the default rule.
func (e *TriggerEngine) Rules(pageType domain.PageType) domain.TriggerRule {
	if r, ok := e.rules[pageType]; ok {
		return r
	}
	return e.rules[domain.PageDefault]
}

// CurrentContext describes the page for activation decisions.
func (e *TriggerEngine) CurrentContext(rawURL string, timeOnPage time.Duration, state domain.EngagementState) domain.PageContext {
	return domain.PageContext{
		PageType:          ClassifyPage(rawURL),
		TimeOnPage:        timeOnPage,
		PreviouslyEngaged: state.HasEngaged,
	}
}
