package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/boddenberg/leadchat-go/internal/config"
	"github.com/boddenberg/leadchat-go/internal/domain"
	"github.com/boddenberg/leadchat-go/internal/service"
)

func TestClassifyPage(t *testing.T) {
	cases := map[string]domain.PageType{
		"":                                     domain.PageHome,
		"/":                                    domain.PageHome,
		"https://northwind.studio/":            domain.PageHome,
		"https://northwind.studio/pricing":     domain.PagePricing,
		"/Pricing/":                            domain.PagePricing,
		"/blog/how-we-ship?utm_source=x":       domain.PageBlog,
		"/services/web-apps":                   domain.PageServices,
		"/contact#form":                        domain.PageContact,
		"/about":                               domain.PageAbout,
		"/case-studies/fintech":                domain.PageCaseStudies,
		"/legal/privacy":                       domain.PageDefault,
		"::not a url::":                        domain.PageDefault,
		"https://northwind.studio/unknown/dir": domain.PageDefault,
	}
	for in, want := range cases {
		assert.Equal(t, want, service.ClassifyPage(in), "url %q", in)
	}
}

func TestTriggerEngine_EveryPageTypeHasARule(t *testing.T) {
	e := service.NewTriggerEngine(nil)
	def := e.Rules(domain.PageDefault)

	for _, pt := range []domain.PageType{
		domain.PageHome, domain.PagePricing, domain.PageServices, domain.PageBlog,
		domain.PageContact, domain.PageAbout, domain.PageCaseStudies, domain.PageDefault,
	} {
		assert.Greater(t, e.Rules(pt).DelaySeconds, 0, "page %s", pt)
	}
	assert.Equal(t, def, e.Rules(domain.PageType("landing-2024")))
}

func TestTriggerEngine_Override(t *testing.T) {
	e := service.NewTriggerEngine(&config.TriggerRulesOverride{
		Default: &domain.TriggerRule{DelaySeconds: 90},
		Pages: map[domain.PageType]domain.TriggerRule{
			domain.PagePricing: {DelaySeconds: 5, EnableExitIntent: false},
		},
	})

	assert.Equal(t, domain.TriggerRule{DelaySeconds: 5}, e.Rules(domain.PagePricing))
	assert.Equal(t, 90, e.Rules(domain.PageType("nope")).DelaySeconds)
	assert.Equal(t, 60, e.Rules(domain.PageBlog).DelaySeconds, "untouched rules keep built-in values")
}

func TestTriggerEngine_CurrentContext(t *testing.T) {
	e := service.NewTriggerEngine(nil)

	ctx := e.CurrentContext("/pricing", 12*time.Second, domain.EngagementState{HasEngaged: true})
	assert.Equal(t, domain.PagePricing, ctx.PageType)
	assert.Equal(t, 12*time.Second, ctx.TimeOnPage)
	assert.True(t, ctx.PreviouslyEngaged)
}
