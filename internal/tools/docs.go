// ABOUTME: Long-form tool documentation embedded as markdown, rendered to HTML with goldmark.
// ABOUTME: Serves the /docs page and the `tools` subcommand.

package tools

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
)

//go:embed docs/*.md
var docsFS embed.FS

// Doc returns the markdown documentation for a tool, or "" when none exists.
func Doc(name string) string {
	data, err := docsFS.ReadFile("docs/" + name + ".md")
	if err != nil {
		return ""
	}
	return string(data)
}

// Markdown renders the whole catalog as one markdown document.
func (c *Catalog) Markdown() string {
	var b strings.Builder
	b.WriteString("# Instantly MCP tools\n\n")
	for _, info := range c.infos {
		fmt.Fprintf(&b, "## %s\n\n%s.\n\n", info.Name, info.Description)
		if doc := Doc(info.Name); doc != "" {
			b.WriteString(doc)
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "```json\n%s\n```\n\n", indentJSON(info.InputSchema))
	}
	return b.String()
}

var docsPage = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 52rem; margin: 2rem auto; padding: 0 1rem; line-height: 1.5; }
pre { background: #f4f4f5; padding: 0.75rem; overflow-x: auto; }
code { font-size: 0.9em; }
</style>
</head>
<body>
{{.Content}}
</body>
</html>
`))

// RenderHTML renders the catalog documentation as a standalone HTML page.
func (c *Catalog) RenderHTML(title string) ([]byte, error) {
	var body bytes.Buffer
	if err := goldmark.Convert([]byte(c.Markdown()), &body); err != nil {
		return nil, fmt.Errorf("converting tool docs: %w", err)
	}

	var page bytes.Buffer
	err := docsPage.Execute(&page, struct {
		Title   string
		Content template.HTML
	}{
		Title:   title,
		Content: template.HTML(body.String()),
	})
	if err != nil {
		return nil, fmt.Errorf("rendering docs page: %w", err)
	}
	return page.Bytes(), nil
}

func indentJSON(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
