package templates

import (
	"fmt"
	"html/template"
)

// DigestProps summarize one day of the funnel.
type DigestProps struct {
	SiteName       string
	Date           string
	Sessions       int
	Conversations  int
	Leads          int
	QualifiedLeads int
	HighValueLeads int
	AverageScore   float64
	TopLeads       []DigestLead
}

// DigestLead is one row of the digest's lead table.
type DigestLead struct {
	Name  string
	Email string
	Score int
	Tier  string
}

var digestTemplate = template.Must(template.New("digest").Parse(`
<h2 style="margin-top: 0;">Daily chat digest · {{.Date}}</h2>
<table role="presentation" cellpadding="6" cellspacing="0" style="border-collapse: collapse;">
<tr><td>Sessions</td><td><strong>{{.Sessions}}</strong></td></tr>
<tr><td>Conversations</td><td><strong>{{.Conversations}}</strong></td></tr>
<tr><td>Leads</td><td><strong>{{.Leads}}</strong></td></tr>
<tr><td>Qualified or better</td><td><strong>{{.QualifiedLeads}}</strong></td></tr>
<tr><td>High-value</td><td><strong>{{.HighValueLeads}}</strong></td></tr>
{{if .Leads}}<tr><td>Average score</td><td><strong>{{printf "%.1f" .AverageScore}}</strong></td></tr>{{end}}
</table>
{{with .TopLeads}}<h3>Top leads</h3>
<ul>{{range .}}<li>{{.Name}}{{with .Email}} &lt;{{.}}&gt;{{end}}: {{.Score}}/100 ({{.Tier}})</li>{{end}}</ul>
{{else}}<p>No leads captured.</p>{{end}}`))

// Digest renders the daily funnel summary.
func Digest(p DigestProps) (*Rendered, error) {
	content, err := render(digestTemplate, p)
	if err != nil {
		return nil, err
	}
	subject := fmt.Sprintf("%s chat digest for %s: %d leads", p.SiteName, p.Date, p.Leads)
	html, err := layout(LayoutProps{Title: subject, Content: content, Footer: p.SiteName})
	if err != nil {
		return nil, err
	}
	return &Rendered{Subject: subject, HTML: html}, nil
}
