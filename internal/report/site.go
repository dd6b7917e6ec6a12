package report

import (
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// defaultVisibleDays is how many recent reports the index shows before the
// "Show all" toggle. MAILTRIAGE_VIEW_DAYS overrides it.
const defaultVisibleDays = 14

var reportPathRe = regexp.MustCompile(`^(\d{4})/(\d{2})/(\d{2})\.html$`)

type indexEntry struct {
	Label   string
	RelPath string
	Extra   bool
}

// WriteSiteIndex writes a static index.html under root listing every report
// page, newest first. No server is required; reports load in an iframe.
func WriteSiteIndex(root string) error {
	entries, err := scanReports(root)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Label > entries[j].Label })

	limit := visibleDays()
	for i := range entries {
		entries[i].Extra = limit > 0 && i >= limit
	}
	visible := len(entries)
	if limit > 0 && limit < visible {
		visible = limit
	}

	defaultPath := ""
	if len(entries) > 0 {
		defaultPath = entries[0].RelPath
	}
	hasExtras := len(entries) > visible

	var b strings.Builder
	err = indexTemplate.Execute(&b, map[string]any{
		"Entries":     entries,
		"Total":       len(entries),
		"Visible":     visible,
		"HasExtras":   hasExtras,
		"DefaultPath": defaultPath,
	})
	if err != nil {
		return fmt.Errorf("render site index: %w", err)
	}
	path := filepath.Join(root, "index.html")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if defaultPath != "" {
		if err := writeLatestPointer(root, defaultPath); err != nil {
			return err
		}
	}
	return nil
}

// writeLatestPointer writes latest.html redirecting to the newest report, so
// bookmarks and notification links always open the current day.
func writeLatestPointer(root, relPath string) error {
	doc := fmt.Sprintf(`<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta http-equiv="refresh" content="0; url=%s" />
  <title>MailTriage</title>
</head>
<body>
  <a href="%s">Latest report</a>
</body>
</html>
`, relPath, relPath)
	path := filepath.Join(root, "latest.html")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// scanReports finds YYYY/MM/DD.html pages under root, skipping local state.
func scanReports(root string) ([]indexEntry, error) {
	var out []indexEntry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".mailtriage" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		m := reportPathRe.FindStringSubmatch(rel)
		if m == nil {
			return nil
		}
		out = append(out, indexEntry{
			Label:   fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3]),
			RelPath: rel,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan reports: %w", err)
	}
	return out, nil
}

func visibleDays() int {
	raw := strings.TrimSpace(os.Getenv("MAILTRIAGE_VIEW_DAYS"))
	if raw == "" {
		return defaultVisibleDays
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return defaultVisibleDays
	}
	return n
}

var indexTemplate = template.Must(template.New("index").Parse(`<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>MailTriage</title>
  <style>
    :root {
      --bg: #0b1020;
      --panel: rgba(17, 26, 51, 0.92);
      --text: #e8ecff;
      --muted: rgba(232, 236, 255, 0.72);
      --border: rgba(232, 236, 255, 0.16);
      --accent: #7d9fff;
    }
    * { box-sizing: border-box; }
    html, body { height: 100%; }
    body {
      margin: 0;
      color: var(--text);
      background: radial-gradient(1100px 500px at 20% 0%, rgba(125,159,255,0.35), transparent 70%),
                  radial-gradient(900px 500px at 95% 15%, rgba(79,255,207,0.18), transparent 60%),
                  var(--bg);
      font: 14px/1.4 ui-sans-serif, system-ui, -apple-system, Segoe UI, Roboto, Helvetica, Arial;
    }
    .app { display: grid; grid-template-columns: 320px 1fr; height: 100%; }
    .side {
      border-right: 1px solid var(--border);
      background: var(--panel);
      padding: 14px 12px;
      overflow: auto;
    }
    .brand {
      display: flex;
      align-items: baseline;
      justify-content: space-between;
      padding: 6px 6px 10px;
      border-bottom: 1px solid var(--border);
      margin-bottom: 10px;
    }
    .brand h1 { font-size: 16px; margin: 0; letter-spacing: 0.2px; }
    .brand .meta {
      color: var(--muted);
      font-size: 12px;
      display: flex;
      gap: 10px;
      align-items: center;
    }
    .toggle {
      border: 1px solid var(--border);
      background: rgba(0,0,0,0.10);
      color: var(--text);
      border-radius: 10px;
      padding: 6px 8px;
      font-weight: 650;
      cursor: pointer;
      font-size: 12px;
    }
    .toggle:hover { background: rgba(0,0,0,0.16); }
    .list { display: flex; flex-direction: column; gap: 4px; padding: 2px; }
    .item {
      display: block;
      padding: 10px 10px;
      border-radius: 10px;
      text-decoration: none;
      color: var(--text);
      border: 1px solid transparent;
    }
    .item:hover { border-color: var(--border); background: rgba(0,0,0,0.12); }
    .item.active { border-color: rgba(125,159,255,0.45); background: rgba(125,159,255,0.10); }
    .main { padding: 0; overflow: hidden; }
    iframe { width: 100%; height: 100%; border: 0; background: white; }
    .empty {
      height: 100%;
      display: grid;
      place-items: center;
      color: var(--muted);
      padding: 24px;
    }
    @media (max-width: 900px) {
      .app { grid-template-columns: 1fr; grid-template-rows: 260px 1fr; }
      .side { border-right: 0; border-bottom: 1px solid var(--border); }
    }
  </style>
</head>
<body>
  <div class="app">
    <aside class="side">
      <div class="brand">
        <h1>MailTriage</h1>
        <div class="meta">
          <span id="count">{{.Visible}} of {{.Total}} days</span>
          <button id="toggle" class="toggle" type="button" style="display:{{if .HasExtras}}inline-flex{{else}}none{{end}};">Show all</button>
        </div>
      </div>
      <nav class="list" id="list">
        {{- range .Entries}}
        <a class="item{{if .Extra}} extra{{end}}" href="#{{.RelPath}}" data-path="{{.RelPath}}"{{if .Extra}} style="display:none;"{{end}}>{{.Label}}</a>
        {{- else}}
        <div class="empty">No reports yet.</div>
        {{- end}}
      </nav>
    </aside>
    <main class="main">
      <div id="empty" class="empty" style="display:none;">Select a report.</div>
      <iframe id="frame" title="Report"></iframe>
    </main>
  </div>
  <script>
    const list = document.getElementById('list');
    const frame = document.getElementById('frame');
    const empty = document.getElementById('empty');
    const defaultPath = {{.DefaultPath}};
    const toggle = document.getElementById('toggle');
    const count = document.getElementById('count');
    const total = {{.Total}};
    const visibleCount = {{.Visible}};
    let showAll = false;

    function setExtrasVisible(on) {
      const extras = list.querySelectorAll('a.item.extra');
      extras.forEach(a => a.style.display = on ? 'block' : 'none');
      showAll = on;
      if (toggle) toggle.textContent = on ? 'Show recent' : 'Show all';
      if (count) count.textContent = (on ? total : visibleCount) + ' of ' + total + ' days';
    }

    if (toggle) {
      toggle.addEventListener('click', () => setExtrasVisible(!showAll));
    }

    function setActive(path) {
      const links = list.querySelectorAll('a.item');
      links.forEach(a => a.classList.toggle('active', a.dataset.path === path));
    }

    function loadFromHash() {
      let path = (location.hash || '').replace(/^#/, '');
      if (!path) path = defaultPath;
      if (!path) {
        frame.style.display = 'none';
        empty.style.display = 'grid';
        return;
      }

      const link = list.querySelector('a.item[data-path="' + CSS.escape(path) + '"]');
      if (link && link.classList.contains('extra')) {
        setExtrasVisible(true);
      }

      frame.style.display = 'block';
      empty.style.display = 'none';
      frame.src = path;
      setActive(path);
    }

    window.addEventListener('hashchange', loadFromHash);
    setExtrasVisible(false);
    loadFromHash();
  </script>
</body>
</html>
`))
