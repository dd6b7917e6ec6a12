package report

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.Strikethrough),
	goldmark.WithRendererOptions(goldmarkhtml.WithHardWraps()),
)

// renderHTMLPage converts report markdown to a standalone styled HTML page.
func renderHTMLPage(title, md string) ([]byte, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(md), &body); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}

	var b strings.Builder
	b.WriteString("<!doctype html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("  <meta charset=\"utf-8\" />\n")
	b.WriteString("  <meta name=\"viewport\" content=\"width=device-width, initial-scale=1\" />\n")
	fmt.Fprintf(&b, "  <title>%s</title>\n", html.EscapeString(title))
	b.WriteString("  <style>\n" + reportCSS + "  </style>\n</head>\n<body>\n")
	b.WriteString("  <div class=\"doc\">\n")
	b.Write(body.Bytes())
	b.WriteString("\n  </div>\n</body>\n</html>\n")
	return []byte(b.String()), nil
}

const reportCSS = `    :root {
      --bg: #ffffff;
      --text: #0f172a;
      --muted: rgba(15, 23, 42, 0.70);
      --border: rgba(15, 23, 42, 0.14);
      --accent: #1d4ed8;
    }
    * { box-sizing: border-box; }
    body {
      margin: 0;
      background: var(--bg);
      color: var(--text);
      font: 15px/1.55 ui-sans-serif, system-ui, -apple-system, Segoe UI, Roboto, Helvetica, Arial;
      padding: 20px 18px 44px;
    }
    .doc { max-width: 980px; margin: 0 auto; }
    h1 { font-size: 22px; margin: 0 0 10px; letter-spacing: 0.2px; }
    h2 { font-size: 16px; margin: 18px 0 10px; }
    h3 { font-size: 14px; margin: 14px 0 8px; color: var(--accent); }
    p { margin: 8px 0; }
    ul { margin: 8px 0 8px 20px; padding: 0; }
    li { margin: 6px 0; }
    hr { border: 0; border-top: 1px solid var(--border); margin: 16px 0; }
    em { color: var(--muted); }
`
