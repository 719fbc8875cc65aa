package templates_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/leadchat-go/internal/infra/email/templates"
)

func fullProps() templates.LeadProps {
	return templates.LeadProps{
		SiteName:    "Northwind Studio",
		SiteURL:     "https://northwind.studio",
		CalendarURL: "https://cal.com/northwind/intro",
		Name:        "Ada",
		Email:       "ada@example.com",
		Company:     "Analytical Engines",
		ProjectType: "web-app",
		BudgetRange: "$50k+",
		Timeline:    "asap",
		Score:       85,
		Tier:        "high-value",
	}
}

func TestVisitorConfirmation_VariantsDiffer(t *testing.T) {
	p := fullProps()

	std, err := templates.VisitorConfirmation(templates.VariantStandard, p)
	require.NoError(t, err)
	qual, err := templates.VisitorConfirmation(templates.VariantQualified, p)
	require.NoError(t, err)
	high, err := templates.VisitorConfirmation(templates.VariantHighValue, p)
	require.NoError(t, err)

	assert.NotEqual(t, std.Subject, qual.Subject)
	assert.NotEqual(t, qual.Subject, high.Subject)
	assert.Contains(t, high.HTML, "within one business day")
	assert.Contains(t, high.HTML, "Book a call")
	assert.Contains(t, qual.HTML, "Book a call")
	assert.NotContains(t, std.HTML, "Book a call")

	for _, r := range []*templates.Rendered{std, qual, high} {
		assert.Contains(t, r.HTML, "Hi Ada")
		assert.Contains(t, r.HTML, "$50k+")
		assert.Contains(t, r.HTML, "web-app")
	}
}

func TestVisitorConfirmation_OmitsMissingOptionalFields(t *testing.T) {
	p := templates.LeadProps{SiteName: "Northwind Studio", Name: "Ada", Email: "ada@example.com"}

	r, err := templates.VisitorConfirmation(templates.VariantStandard, p)
	require.NoError(t, err)

	assert.NotContains(t, r.HTML, "Budget")
	assert.NotContains(t, r.HTML, "Timeline")
	assert.NotContains(t, r.HTML, "Project type")
	assert.NotContains(t, r.HTML, "Here's what you shared")
	assert.NotContains(t, r.HTML, "<no value>")
}

func TestVisitorConfirmation_RequiresName(t *testing.T) {
	_, err := templates.VisitorConfirmation(templates.VariantStandard, templates.LeadProps{})
	assert.Error(t, err)
}

func TestInternalAlert_IncludesTranscriptAndScore(t *testing.T) {
	p := fullProps()
	p.Transcript = []templates.TranscriptLine{
		{Role: "user", Content: "We need a marketplace"},
		{Role: "assistant", Content: "Great, tell me more"},
	}

	r, err := templates.InternalAlert(p)
	require.NoError(t, err)
	assert.Contains(t, r.Subject, "85/100")
	assert.Contains(t, r.HTML, "We need a marketplace")
	assert.Contains(t, r.HTML, "Analytical Engines")
	assert.NotContains(t, r.HTML, "Phone")
}

func TestHighValueAlert_IsDistinct(t *testing.T) {
	p := fullProps()

	internal, err := templates.InternalAlert(p)
	require.NoError(t, err)
	alert, err := templates.HighValueAlert(p)
	require.NoError(t, err)

	assert.NotEqual(t, internal.Subject, alert.Subject)
	assert.True(t, strings.Contains(alert.Subject, "HIGH-VALUE"))
	assert.Contains(t, alert.HTML, "Immediate action")
}

func TestTemplates_EscapeUserInput(t *testing.T) {
	p := fullProps()
	p.Name = `<script>alert("x")</script>`

	r, err := templates.InternalAlert(p)
	require.NoError(t, err)
	assert.NotContains(t, r.HTML, "<script>")
}

func TestDigest(t *testing.T) {
	r, err := templates.Digest(templates.DigestProps{
		SiteName: "Northwind Studio",
		Date:     "2026-03-01",
		Sessions: 40, Conversations: 12, Leads: 3, QualifiedLeads: 2, HighValueLeads: 1,
		AverageScore: 61.5,
		TopLeads:     []templates.DigestLead{{Name: "Ada", Email: "ada@example.com", Score: 85, Tier: "high-value"}},
	})
	require.NoError(t, err)
	assert.Contains(t, r.Subject, "3 leads")
	assert.Contains(t, r.HTML, "61.5")
	assert.Contains(t, r.HTML, "Ada")

	empty, err := templates.Digest(templates.DigestProps{SiteName: "Northwind Studio", Date: "2026-03-02"})
	require.NoError(t, err)
	assert.Contains(t, empty.HTML, "No leads captured.")
	assert.NotContains(t, empty.HTML, "Average score")
}
