package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"mailtriage/internal/config"
	"mailtriage/internal/rules"
	"mailtriage/internal/store"
	"mailtriage/internal/timewindow"
)

func testConfig(t *testing.T, root string) *config.Config {
	t.Helper()
	return &config.Config{
		Output: config.OutputConfig{Root: root},
		Time:   config.TimeConfig{Timezone: "Europe/Berlin", WorkdayStart: "09:00"},
		Rules: config.RulesConfig{
			HighPrioritySenders: []string{"boss@example.com"},
			Suppress: config.PatternRules{
				Subjects: []string{"out of office"},
			},
			ArrivalOnly: config.PatternRules{
				Senders: []string{"noreply@"},
			},
		},
	}
}

func newHighPriorityClassifier(t *testing.T, senders ...string) *rules.Classifier {
	t.Helper()
	return rules.NewClassifier(config.RulesConfig{HighPrioritySenders: senders})
}

func newTestRenderer(t *testing.T) (*Renderer, *store.Store, string) {
	t.Helper()
	root := t.TempDir()
	st, err := store.Open(filepath.Join(root, ".mailtriage", "state.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Init("Europe/Berlin", "09:00"); err != nil {
		t.Fatalf("init store: %v", err)
	}
	r, err := NewRenderer(st, testConfig(t, root))
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	return r, st, root
}

func mustInsert(t *testing.T, st *store.Store, msgs ...store.Message) {
	t.Helper()
	err := st.WithTx(func(tx *store.Tx) error {
		for _, m := range msgs {
			if err := tx.UpsertAccount(store.Account{ID: m.AccountID, PrimaryAddress: "me@example.com"}); err != nil {
				return err
			}
			if _, err := tx.InsertMessage(m); err != nil {
				return err
			}
			participants := append([]string{m.SenderEmail}, m.To...)
			if err := tx.UpsertThread(m.ThreadID, m.DateUTC, m.Inbound, m.Outbound, participants); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("insert messages: %v", err)
	}
}

func msg(id, thread, senderName, senderEmail, subject, text string, at time.Time, outbound bool) store.Message {
	sender := senderEmail
	if senderName != "" {
		sender = senderName + " <" + senderEmail + ">"
	}
	return store.Message{
		MessageID:   id,
		AccountID:   "work",
		Folder:      "INBOX",
		DateUTC:     at,
		Sender:      sender,
		SenderEmail: senderEmail,
		To:          []string{"me@example.com"},
		Subject:     subject,
		Inbound:     !outbound,
		Outbound:    outbound,
		NewText:     text,
		ThreadID:    thread,
	}
}

func testWindow() timewindow.Window {
	return timewindow.Window{
		LabelDate: "2026-03-02",
		StartUTC:  time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		EndUTC:    time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC),
	}
}

func TestBuildClassifiesAndGroups(t *testing.T) {
	r, st, _ := newTestRenderer(t)
	w := testWindow()
	base := w.StartUTC.Add(time.Hour)

	mustInsert(t, st,
		msg("<b1@x>", "t-boss", "The Boss", "boss@example.com", "Numbers", "Need the Q1 numbers", base, false),
		msg("<n1@x>", "t-plan", "Alice", "alice@example.com", "Planning", "Can we move the sync?", base.Add(time.Minute), false),
		msg("<n2@x>", "t-plan", "Carol", "carol@example.com", "Re: Planning", "Works for me", base.Add(2*time.Minute), false),
		msg("<a1@x>", "t-ci", "CI", "noreply@ci.example.com", "Build passed", "all green", base.Add(3*time.Minute), false),
		msg("<s1@x>", "t-ooo", "Dave", "dave@example.com", "Out of Office", "back next week", base.Add(4*time.Minute), false),
	)

	rep, err := r.Build(w)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if rep.Summary.TotalMessages != 5 {
		t.Errorf("total messages = %d, want 5", rep.Summary.TotalMessages)
	}
	if rep.Summary.ActionableMessages != 2 {
		t.Errorf("actionable = %d, want 2", rep.Summary.ActionableMessages)
	}

	if len(rep.HighPriority) != 1 {
		t.Fatalf("high priority groups = %d, want 1", len(rep.HighPriority))
	}
	hp := rep.HighPriority[0]
	if hp.SenderEmail != "boss@example.com" || hp.SenderDisplay != "The Boss" {
		t.Errorf("hp group = %q / %q", hp.SenderDisplay, hp.SenderEmail)
	}

	if len(rep.Threads) != 1 {
		t.Fatalf("threads = %d, want 1", len(rep.Threads))
	}
	var ids []string
	for _, e := range rep.Threads[0].Messages {
		ids = append(ids, e.MessageID)
	}
	if diff := cmp.Diff([]string{"<n1@x>", "<n2@x>"}, ids); diff != "" {
		t.Errorf("thread messages mismatch (-want +got):\n%s", diff)
	}

	if len(rep.ArrivalOnly) != 1 || rep.ArrivalOnly[0].Subject != "Build passed" {
		t.Errorf("arrival_only = %+v", rep.ArrivalOnly)
	}
}

func TestBuildExcludesHighPriorityThreadFromNormal(t *testing.T) {
	r, st, _ := newTestRenderer(t)
	w := testWindow()
	base := w.StartUTC.Add(time.Hour)

	// Same thread holds one boss message and one normal follow-up. The
	// follow-up must not surface again under Other Messages.
	mustInsert(t, st,
		msg("<b1@x>", "t-mix", "The Boss", "boss@example.com", "Launch", "Go or no go?", base, false),
		msg("<n1@x>", "t-mix", "Alice", "alice@example.com", "Re: Launch", "Go from my side", base.Add(time.Minute), false),
	)

	rep, err := r.Build(w)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(rep.Threads) != 0 {
		t.Errorf("threads = %d, want 0", len(rep.Threads))
	}
	if len(rep.HighPriority) != 1 {
		t.Errorf("high priority groups = %d, want 1", len(rep.HighPriority))
	}
}

func TestBuildSuppressesRepliedThread(t *testing.T) {
	r, st, _ := newTestRenderer(t)
	w := testWindow()
	base := w.StartUTC.Add(time.Hour)

	mustInsert(t, st,
		msg("<n1@x>", "t-done", "Alice", "alice@example.com", "Invoice", "Please confirm", base, false),
		msg("<n2@x>", "t-done", "Me", "me@example.com", "Re: Invoice", "Confirmed", base.Add(time.Minute), true),
		msg("<n3@x>", "t-open", "Bob", "bob@example.com", "Contract", "Draft attached", base.Add(2*time.Minute), false),
	)

	rep, err := r.Build(w)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(rep.Threads) != 1 {
		t.Fatalf("threads = %d, want 1", len(rep.Threads))
	}
	if rep.Threads[0].ThreadID != "t-open" {
		t.Errorf("surviving thread = %q, want t-open", rep.Threads[0].ThreadID)
	}
}

func TestBuildHighPriorityGroupsSortedAndReplySuppressed(t *testing.T) {
	r, st, _ := newTestRenderer(t)
	r.classifier = newHighPriorityClassifier(t, "amy@example.com", "zed@example.com")
	w := testWindow()
	base := w.StartUTC.Add(time.Hour)

	// Amy's thread was answered from the account. The reply classifies as a
	// normal message, so suppression has to come from the thread aggregate,
	// not from the group's own messages.
	mustInsert(t, st,
		msg("<z1@x>", "t-zed", "Zed", "zed@example.com", "A", "a", base, false),
		msg("<a1@x>", "t-amy", "Amy", "amy@example.com", "B", "b", base.Add(time.Minute), false),
		msg("<a2@x>", "t-amy", "Me", "me@example.com", "Re: B", "done", base.Add(2*time.Minute), true),
	)

	rep, err := r.Build(w)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(rep.HighPriority) != 1 {
		t.Fatalf("high priority groups = %d, want 1 (amy replied, zed pending)", len(rep.HighPriority))
	}
	if rep.HighPriority[0].SenderEmail != "zed@example.com" {
		t.Errorf("group sender = %q", rep.HighPriority[0].SenderEmail)
	}
}

func TestBuildHighPriorityGroupsSortedByEmail(t *testing.T) {
	r, st, _ := newTestRenderer(t)
	r.classifier = newHighPriorityClassifier(t, "amy@example.com", "zed@example.com")
	w := testWindow()
	base := w.StartUTC.Add(time.Hour)

	mustInsert(t, st,
		msg("<z1@x>", "t-zed", "Zed", "zed@example.com", "A", "a", base, false),
		msg("<a1@x>", "t-amy", "Amy", "amy@example.com", "B", "b", base.Add(time.Minute), false),
	)

	rep, err := r.Build(w)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var emails []string
	for _, g := range rep.HighPriority {
		emails = append(emails, g.SenderEmail)
	}
	if diff := cmp.Diff([]string{"amy@example.com", "zed@example.com"}, emails); diff != "" {
		t.Errorf("group order mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderWindowWritesArtifacts(t *testing.T) {
	r, st, root := newTestRenderer(t)
	w := testWindow()

	mustInsert(t, st,
		msg("<n1@x>", "t-plan", "Alice", "alice@example.com", "Planning", "Can we move the sync?\nIdeally to Thursday.", w.StartUTC.Add(time.Hour), false),
	)

	out, err := r.RenderWindow(w)
	if err != nil {
		t.Fatalf("render window: %v", err)
	}

	// Window starts 2026-03-02 09:00 Berlin time, so files land under 03/02.
	wantJSON := filepath.Join(root, "2026", "03", "02.json")
	if out.JSONPath != wantJSON {
		t.Errorf("json path = %q, want %q", out.JSONPath, wantJSON)
	}

	data, err := os.ReadFile(out.JSONPath)
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if rep.WindowStartUTC != "2026-03-02T08:00:00Z" {
		t.Errorf("window_start_utc = %q", rep.WindowStartUTC)
	}

	md, err := os.ReadFile(out.MarkdownPath)
	if err != nil {
		t.Fatalf("read markdown: %v", err)
	}
	text := string(md)
	for _, want := range []string{
		"# MailTriage — 2026-03-02 (09:00–09:00)",
		"_Timezone: Europe/Berlin_",
		"## Other Messages",
		"### Planning",
		"- **10:00 — Alice <alice@example.com>**",
		"  - Can we move the sync?",
		"## Summary",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("markdown missing %q\n%s", want, text)
		}
	}

	htmlDoc, err := os.ReadFile(out.HTMLPath)
	if err != nil {
		t.Fatalf("read html: %v", err)
	}
	if !strings.Contains(string(htmlDoc), "<h2>Other Messages</h2>") {
		t.Errorf("html missing rendered heading:\n%s", htmlDoc)
	}

	if _, err := os.Stat(filepath.Join(root, "index.html")); err != nil {
		t.Errorf("site index not written: %v", err)
	}
}

func TestRenderWindowDeterministic(t *testing.T) {
	r, st, _ := newTestRenderer(t)
	w := testWindow()
	base := w.StartUTC.Add(time.Hour)

	mustInsert(t, st,
		msg("<b1@x>", "t1", "Boss", "boss@example.com", "One", "x", base, false),
		msg("<n1@x>", "t2", "Alice", "alice@example.com", "Two", "y", base.Add(time.Minute), false),
	)

	first, err := r.RenderWindow(w)
	if err != nil {
		t.Fatalf("first render: %v", err)
	}
	a, err := os.ReadFile(first.JSONPath)
	if err != nil {
		t.Fatalf("read first: %v", err)
	}
	second, err := r.RenderWindow(w)
	if err != nil {
		t.Fatalf("second render: %v", err)
	}
	b, err := os.ReadFile(second.JSONPath)
	if err != nil {
		t.Fatalf("read second: %v", err)
	}
	if diff := cmp.Diff(string(a), string(b)); diff != "" {
		t.Errorf("re-render changed output (-first +second):\n%s", diff)
	}
}

func TestWriteSiteIndex(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{"2026/03/01.html", "2026/03/02.html", "2026/02/28.html"} {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("<html></html>"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// State and stray files stay out of the index.
	stray := filepath.Join(root, ".mailtriage", "2026", "03", "03.html")
	if err := os.MkdirAll(filepath.Dir(stray), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stray, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := WriteSiteIndex(root); err != nil {
		t.Fatalf("write index: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "index.html"))
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	text := string(data)
	for _, want := range []string{"2026-03-02", "2026-03-01", "2026-02-28"} {
		if !strings.Contains(text, want) {
			t.Errorf("index missing %q", want)
		}
	}
	if strings.Contains(text, "2026-03-03") {
		t.Error("index picked up report inside state directory")
	}
	if strings.Index(text, "2026-03-02") > strings.Index(text, "2026-03-01") {
		t.Error("index not newest-first")
	}

	latest, err := os.ReadFile(filepath.Join(root, "latest.html"))
	if err != nil {
		t.Fatalf("read latest pointer: %v", err)
	}
	if !strings.Contains(string(latest), "2026/03/02.html") {
		t.Errorf("latest pointer not aimed at newest report:\n%s", latest)
	}
}
