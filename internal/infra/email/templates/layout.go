// Package templates renders notification emails from typed props. Optional
// fields left empty are omitted from the output, never rendered as blanks.
package templates

import (
	"bytes"
	"fmt"
	"html/template"
)

// LayoutProps wraps rendered content in the shared email shell.
type LayoutProps struct {
	Preheader string
	Title     string
	Accent    string // header bar color
	Content   template.HTML
	Footer    string
}

var layoutTemplate = template.Must(template.New("layout").Parse(`<!doctype html>
<html lang="en">
  <head>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <meta http-equiv="Content-Type" content="text/html; charset=UTF-8">
    <title>{{.Title}}</title>
  </head>
  <body style="font-family: Helvetica, sans-serif; font-size: 16px; line-height: 1.4; background-color: #f4f5f6; margin: 0; padding: 0;">
    {{with .Preheader}}<span style="display: none; max-height: 0; overflow: hidden;">{{.}}</span>{{end}}
    <table role="presentation" border="0" cellpadding="0" cellspacing="0" width="100%" style="background-color: #f4f5f6;">
      <tr>
        <td align="center" style="padding: 24px 8px;">
          <table role="presentation" border="0" cellpadding="0" cellspacing="0" width="600" style="max-width: 600px; background: #ffffff; border: 1px solid #eaebed; border-radius: 12px;">
            <tr><td style="height: 6px; background-color: {{.Accent}}; border-radius: 12px 12px 0 0;"></td></tr>
            <tr>
              <td style="padding: 24px;">
                {{.Content}}
              </td>
            </tr>
          </table>
          {{with .Footer}}<p style="color: #9a9ea6; font-size: 13px; margin-top: 16px;">{{.}}</p>{{end}}
        </td>
      </tr>
    </table>
  </body>
</html>`))

// Row is one label/value line of a detail table.
type Row struct {
	Label string
	Value string
}

// rows keeps only the rows whose value is set.
func rows(all ...Row) []Row {
	out := make([]Row, 0, len(all))
	for _, r := range all {
		if r.Value != "" {
			out = append(out, r)
		}
	}
	return out
}

func layout(props LayoutProps) (string, error) {
	if props.Accent == "" {
		props.Accent = "#2563eb"
	}
	var buf bytes.Buffer
	if err := layoutTemplate.Execute(&buf, props); err != nil {
		return "", fmt.Errorf("render layout: %w", err)
	}
	return buf.String(), nil
}

func render(t *template.Template, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return template.HTML(buf.String()), nil
}

// detailsTable is shared by the lead templates.
const detailsTable = `{{define "details"}}{{if .}}<table role="presentation" cellpadding="6" cellspacing="0" style="border-collapse: collapse; margin: 8px 0 16px;">
{{range .}}<tr><td style="color: #6b7280; padding-right: 16px;">{{.Label}}</td><td><strong>{{.Value}}</strong></td></tr>
{{end}}</table>{{end}}{{end}}`
