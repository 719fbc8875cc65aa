package templates

import (
	"fmt"
	"html/template"
)

// Variant names the visitor confirmation copy.
type Variant string

const (
	VariantStandard  Variant = "standard"
	VariantQualified Variant = "qualified"
	VariantHighValue Variant = "high-value"
)

// LeadProps are the slots shared by every lead email. Name is required; the
// rest are optional.
type LeadProps struct {
	SiteName    string
	SiteURL     string
	CalendarURL string

	Name        string
	Email       string
	Company     string
	Phone       string
	ProjectType string
	Industry    string
	BudgetRange string
	Timeline    string

	Score      int
	Tier       string
	SessionID  string
	AdminURL   string
	Transcript []TranscriptLine
}

// TranscriptLine is one message quoted in the internal alert.
type TranscriptLine struct {
	Role    string
	Content string
}

// Rendered is a finished email.
type Rendered struct {
	Subject string
	HTML    string
}

func (p LeadProps) projectRows() []Row {
	return rows(
		Row{"Project type", p.ProjectType},
		Row{"Budget", p.BudgetRange},
		Row{"Timeline", p.Timeline},
	)
}

func (p LeadProps) contactRows() []Row {
	return rows(
		Row{"Name", p.Name},
		Row{"Email", p.Email},
		Row{"Company", p.Company},
		Row{"Phone", p.Phone},
		Row{"Industry", p.Industry},
		Row{"Project type", p.ProjectType},
		Row{"Budget", p.BudgetRange},
		Row{"Timeline", p.Timeline},
	)
}

var visitorTemplate = template.Must(template.New("visitor").Parse(detailsTable + `
<p>Hi {{.Name}},</p>
{{if eq .Variant "high-value"}}<p>Thanks for telling us about your project. It looks like a strong fit, so a senior member of our team will reach out <strong>within one business day</strong>.</p>
{{else if eq .Variant "qualified"}}<p>Thanks for reaching out! We've reviewed your details and would love to learn more. Expect to hear from us within two business days.</p>
{{else}}<p>Thanks for getting in touch with {{.SiteName}}. We've received your message and will follow up soon.</p>
{{end}}
{{with .Rows}}<p>Here's what you shared with us:</p>{{template "details" .}}{{end}}
{{if and .CalendarURL (ne .Variant "standard")}}<p><a href="{{.CalendarURL}}" style="display: inline-block; padding: 12px 24px; background: #2563eb; color: #ffffff; border-radius: 6px; text-decoration: none; font-weight: bold;">Book a call</a></p>
{{else if .SiteURL}}<p>In the meantime, take a look at <a href="{{.SiteURL}}">our recent work</a>.</p>
{{end}}
<p>Talk soon,<br>The {{.SiteName}} team</p>`))

// VisitorConfirmation renders the visitor email for the given variant.
func VisitorConfirmation(variant Variant, p LeadProps) (*Rendered, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("visitor confirmation: name is required")
	}
	content, err := render(visitorTemplate, struct {
		LeadProps
		Variant string
		Rows    []Row
	}{p, string(variant), p.projectRows()})
	if err != nil {
		return nil, err
	}

	subject := fmt.Sprintf("Thanks for reaching out to %s", p.SiteName)
	accent := "#2563eb"
	switch variant {
	case VariantHighValue:
		subject = fmt.Sprintf("%s, let's talk about your project", p.Name)
		accent = "#7c3aed"
	case VariantQualified:
		subject = fmt.Sprintf("Next steps with %s", p.SiteName)
	}

	html, err := layout(LayoutProps{
		Preheader: "We received your project details.",
		Title:     subject,
		Accent:    accent,
		Content:   content,
		Footer:    p.SiteName,
	})
	if err != nil {
		return nil, err
	}
	return &Rendered{Subject: subject, HTML: html}, nil
}

var internalTemplate = template.Must(template.New("internal").Parse(detailsTable + `
<h2 style="margin-top: 0;">New lead: {{.Name}}</h2>
<p>Score <strong>{{.Score}}/100</strong> ({{.Tier}})</p>
{{template "details" .Rows}}
{{with .Transcript}}<h3>Conversation</h3>
{{range .}}<p style="margin: 4px 0;"><strong>{{.Role}}:</strong> {{.Content}}</p>
{{end}}{{end}}
{{with .AdminURL}}<p><a href="{{.}}">Open in admin</a></p>{{end}}`))

// InternalAlert renders the sales-inbox notification sent for every lead.
func InternalAlert(p LeadProps) (*Rendered, error) {
	content, err := render(internalTemplate, struct {
		LeadProps
		Rows []Row
	}{p, p.contactRows()})
	if err != nil {
		return nil, err
	}
	subject := fmt.Sprintf("New lead: %s (%d/100, %s)", p.Name, p.Score, p.Tier)
	html, err := layout(LayoutProps{Title: subject, Content: content, Footer: p.SiteName + " lead pipeline"})
	if err != nil {
		return nil, err
	}
	return &Rendered{Subject: subject, HTML: html}, nil
}

var highValueTemplate = template.Must(template.New("highvalue").Parse(detailsTable + `
<h2 style="margin-top: 0; color: #b91c1c;">Immediate action: high-value lead</h2>
<p><strong>{{.Name}}</strong> scored <strong>{{.Score}}/100</strong>. Reach out today.</p>
{{template "details" .Rows}}
{{with .Email}}<p><a href="mailto:{{.}}" style="display: inline-block; padding: 12px 24px; background: #b91c1c; color: #ffffff; border-radius: 6px; text-decoration: none; font-weight: bold;">Reply to {{.}}</a></p>{{end}}
{{with .AdminURL}}<p><a href="{{.}}">Open in admin</a></p>{{end}}`))

// HighValueAlert renders the separate urgent alert for high-value leads.
func HighValueAlert(p LeadProps) (*Rendered, error) {
	content, err := render(highValueTemplate, struct {
		LeadProps
		Rows []Row
	}{p, p.contactRows()})
	if err != nil {
		return nil, err
	}
	subject := fmt.Sprintf("🔥 HIGH-VALUE LEAD: %s (%d/100)", p.Name, p.Score)
	html, err := layout(LayoutProps{
		Preheader: "Immediate follow-up recommended.",
		Title:     subject,
		Accent:    "#b91c1c",
		Content:   content,
		Footer:    p.SiteName + " lead pipeline",
	})
	if err != nil {
		return nil, err
	}
	return &Rendered{Subject: subject, HTML: html}, nil
}
