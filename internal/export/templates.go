package export

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

var documentTemplate = template.Must(template.New("document").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
}).Parse(documentHTML))

// TemplateData holds data for document template rendering
type TemplateData struct {
	Title     string
	FileID    string
	Version   string
	Branch    string
	UpdatedAt time.Time
	Preamble  template.HTML
	Sections  []TemplateSection
}

// TemplateSection is one header and its escaped body.
type TemplateSection struct {
	Level  int
	Header string
	Body   template.HTML
}

// Heading renders the header at its markdown level.
func (s TemplateSection) Heading() template.HTML {
	return template.HTML(fmt.Sprintf("<h%d>%s</h%d>", s.Level, template.HTMLEscapeString(s.Header), s.Level))
}

// RenderDocumentHTML renders the document template with provided data
func RenderDocumentHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderSection escapes section text and wraps it in a <pre> block.
func RenderSection(content string) string {
	return "<pre>" + sectionEscaper.Replace(content) + "</pre>"
}

var sectionEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#039;",
)

// buildTemplateData splits text at header lines. Text before the first
// header becomes the preamble.
func buildTemplateData(src Source) TemplateData {
	data := TemplateData{
		Title:     src.FileID,
		FileID:    src.FileID,
		Version:   src.Version,
		Branch:    src.Branch,
		UpdatedAt: src.UpdatedAt,
	}

	var preamble []string
	var body []string
	var current *TemplateSection
	flush := func() {
		if current == nil {
			return
		}
		current.Body = template.HTML(RenderSection(strings.Join(body, "\n")))
		data.Sections = append(data.Sections, *current)
		body = nil
	}

	for _, line := range strings.Split(src.Text, "\n") {
		if strings.HasPrefix(line, "#") {
			flush()
			level := len(line) - len(strings.TrimLeft(line, "#"))
			header := strings.TrimSpace(strings.TrimLeft(line, "#"))
			if len(data.Sections) == 0 && header != "" {
				data.Title = header
			}
			current = &TemplateSection{Level: min(level, 6), Header: header}
			continue
		}
		if current == nil {
			preamble = append(preamble, line)
			continue
		}
		body = append(body, line)
	}
	flush()

	if text := strings.TrimSpace(strings.Join(preamble, "\n")); text != "" {
		data.Preamble = template.HTML(RenderSection(text))
	}
	return data
}

const documentHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    pre { white-space: pre-wrap; font-family: inherit; }
  </style>
</head>
<body>
  <div class="meta">{{.FileID}}{{if .Branch}} | {{.Branch}}{{end}}{{if .Version}} | {{.Version}}{{end}}{{if not .UpdatedAt.IsZero}} | {{formatDate .UpdatedAt "Jan 2, 2006"}}{{end}}</div>
  {{if .Preamble}}<section class="preamble">{{.Preamble}}</section>{{end}}
  {{range .Sections}}<section>
    {{.Heading}}
    {{.Body}}
  </section>
  {{end}}
</body>
</html>`
