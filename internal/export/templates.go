package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var issueTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/issue.html")
	if err != nil {
		// Fallback to built-in template if file not found
		issueTemplate = template.Must(template.New("issue").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	issueTemplate = template.Must(template.New("issue").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for issue template rendering
type TemplateData struct {
	Title       string
	Description string
	Status      string
	Priority    string
	Reporter    string
	Assignee    string
	Tags        []string
	DueDate     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	History     []TemplateChange
}

// TemplateChange holds one audit entry for template rendering
type TemplateChange struct {
	Field     string
	OldValue  string
	NewValue  string
	Actor     string
	CreatedAt time.Time
}

// RenderIssueHTML renders the issue template with provided data
func RenderIssueHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := issueTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .change { background: #f5f5f5; padding: 0.5rem 1rem; margin: 0.5rem 0; border-left: 3px solid #333; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.Status}} | {{.Priority}} | {{.Reporter}}{{if .Assignee}} &rarr; {{.Assignee}}{{end}}{{if .DueDate}} | due {{.DueDate}}{{end}}</div>
  {{if .Description}}<p>{{.Description}}</p>{{end}}
  {{if .History}}
  <h2>History</h2>
  {{range .History}}<div class="change"><strong>{{.Field}}</strong>: {{.OldValue}} &rarr; {{.NewValue}} ({{.Actor}}, {{formatDate .CreatedAt "Jan 2, 2006"}})</div>{{end}}
  {{end}}
</body>
</html>`
