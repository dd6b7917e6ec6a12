package watch

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type pageRule struct {
	ID      string
	Threads []UnrepliedThread
}

// writeUnrepliedPage renders <root>/watch/unreplied.html with the threads
// the watcher just flagged, newest first within each rule.
func writeUnrepliedPage(root string, ruleOrder []string, byRule map[string][]UnrepliedThread) (string, error) {
	dir := filepath.Join(root, "watch")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create watch directory: %w", err)
	}
	path := filepath.Join(dir, "unreplied.html")

	var rules []pageRule
	for _, id := range ruleOrder {
		threads := append([]UnrepliedThread(nil), byRule[id]...)
		sort.Slice(threads, func(i, j int) bool { return threads[i].DateUTC > threads[j].DateUTC })
		for i := range threads {
			if strings.TrimSpace(threads[i].Subject) == "" {
				threads[i].Subject = "(no subject)"
			}
			if strings.TrimSpace(threads[i].Sender) == "" {
				threads[i].Sender = "(unknown sender)"
			}
		}
		rules = append(rules, pageRule{ID: id, Threads: threads})
	}

	var b strings.Builder
	if err := unrepliedTemplate.Execute(&b, rules); err != nil {
		return "", fmt.Errorf("render watch page: %w", err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

var unrepliedTemplate = template.Must(template.New("unreplied").Parse(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>MailTriage Watch: Unreplied</title>
    <style>
      :root {
        --bg: #0b1020;
        --panel: rgba(17, 26, 51, 0.9);
        --text: #e8ecff;
        --muted: rgba(232, 236, 255, 0.7);
        --border: rgba(232, 236, 255, 0.16);
      }
      html, body { height: 100%; }
      body {
        margin: 0;
        color: var(--text);
        background: radial-gradient(1100px 500px at 20% 0%, rgba(125, 159, 255, 0.35), transparent 70%),
                    radial-gradient(900px 500px at 95% 15%, rgba(79, 255, 202, 0.18), transparent 60%),
                    var(--bg);
        font: 14px/1.35 ui-sans-serif, system-ui, -apple-system, Segoe UI, Roboto, Helvetica, Arial;
      }
      header {
        position: sticky;
        top: 0;
        backdrop-filter: blur(10px);
        border-bottom: 1px solid var(--border);
        padding: 16px 18px;
      }
      header h1 { margin: 0; font-size: 16px; letter-spacing: 0.2px; }
      header p { margin: 6px 0 0; color: var(--muted); }
      main { max-width: 1100px; margin: 0 auto; padding: 14px 18px 42px; }
      .rule {
        background: var(--panel);
        border: 1px solid var(--border);
        border-radius: 14px;
        padding: 14px;
        margin: 12px 0;
        box-shadow: 0 20px 70px rgba(0,0,0,0.35);
      }
      .rule h2 { margin: 0 0 10px; font-size: 15px; }
      table { width: 100%; border-collapse: collapse; }
      thead th {
        text-align: left;
        font-size: 12px;
        color: var(--muted);
        border-bottom: 1px solid var(--border);
        padding: 8px 8px;
      }
      tbody td {
        border-bottom: 1px solid rgba(232,236,255,0.08);
        padding: 10px 8px;
        vertical-align: top;
      }
      tbody tr:last-child td { border-bottom: none; }
      .subj { font-weight: 650; }
      .dt, .tid {
        font: 12px/1.35 ui-monospace, SFMono-Regular, Menlo, Monaco, Consolas, "Liberation Mono", "Courier New", monospace;
        color: var(--muted);
        white-space: nowrap;
      }
      .tid { max-width: 360px; overflow: hidden; text-overflow: ellipsis; }
      .empty {
        background: var(--panel);
        border: 1px solid var(--border);
        border-radius: 14px;
        padding: 14px;
        margin: 12px 0;
        color: var(--muted);
      }
    </style>
  </head>
  <body>
    <header>
      <h1>MailTriage Watch: Unreplied</h1>
      <p>This page is updated by the scheduled watcher when it finds threads that may need a reply.</p>
    </header>
    <main>
      {{- range .}}
      <section class="rule">
        <h2>{{.ID}}</h2>
        <table>
          <thead>
            <tr><th>Subject</th><th>From</th><th>Date (UTC)</th><th>Thread</th></tr>
          </thead>
          <tbody>
            {{- range .Threads}}
            <tr><td class="subj">{{.Subject}}</td><td>{{.Sender}}</td><td class="dt">{{.DateUTC}}</td><td class="tid">{{.ThreadID}}</td></tr>
            {{- end}}
          </tbody>
        </table>
      </section>
      {{- else}}
      <div class="empty">No unreplied threads found.</div>
      {{- end}}
    </main>
  </body>
</html>
`))
