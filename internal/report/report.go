// Package report renders deterministic per-window triage reports as JSON,
// markdown, and HTML under the configured output root.
package report

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"mailtriage/internal/config"
	"mailtriage/internal/extract"
	"mailtriage/internal/rules"
	"mailtriage/internal/store"
	"mailtriage/internal/timewindow"
)

// Report is the JSON artifact for one window. Field order and slice order
// are deterministic so identical inputs produce identical bytes.
type Report struct {
	WindowStartUTC string              `json:"window_start_utc"`
	WindowEndUTC   string              `json:"window_end_utc"`
	Timezone       string              `json:"timezone"`
	Summary        Summary             `json:"summary"`
	HighPriority   []HighPriorityGroup `json:"high_priority"`
	Threads        []ThreadGroup       `json:"threads"`
	ArrivalOnly    []Arrival           `json:"arrival_only"`
}

// Summary counts what the window contained.
type Summary struct {
	TotalMessages      int `json:"total_messages"`
	ActionableMessages int `json:"actionable_messages"`
	Threads            int `json:"threads"`
}

// HighPriorityGroup is all messages from one high-priority sender.
type HighPriorityGroup struct {
	SenderEmail   string        `json:"sender_email"`
	SenderDisplay string        `json:"sender_display,omitempty"`
	Messages      []ReportEntry `json:"messages"`
}

// ThreadGroup is one actionable thread with its window messages.
type ThreadGroup struct {
	ThreadID     string        `json:"thread_id"`
	Participants []string      `json:"participants"`
	Messages     []ReportEntry `json:"messages"`
}

// ReportEntry is one message line in a report.
type ReportEntry struct {
	MessageID    string   `json:"message_id"`
	From         string   `json:"from"`
	To           []string `json:"to,omitempty"`
	Cc           []string `json:"cc,omitempty"`
	Subject      string   `json:"subject"`
	Excerpt      []string `json:"excerpt,omitempty"`
	TimestampUTC string   `json:"timestamp_utc"`
}

// Arrival is one FYI-only message.
type Arrival struct {
	From         string `json:"from"`
	Subject      string `json:"subject"`
	TimestampUTC string `json:"timestamp_utc"`
}

// Outputs holds the paths written for one window.
type Outputs struct {
	JSONPath     string
	MarkdownPath string
	HTMLPath     string
}

// Option is a functional option for Renderer.
type Option func(*Renderer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Renderer) { r.logger = logger }
}

// Renderer renders windows from the store into the report tree.
type Renderer struct {
	store      *store.Store
	classifier *rules.Classifier
	root       string
	tz         *time.Location
	tzName     string
	logger     *slog.Logger
}

// NewRenderer builds a Renderer for the configured output root and timezone.
func NewRenderer(st *store.Store, cfg *config.Config, opts ...Option) (*Renderer, error) {
	tz, err := time.LoadLocation(cfg.Time.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Time.Timezone, err)
	}
	r := &Renderer{
		store:      st,
		classifier: rules.NewClassifier(cfg.Rules),
		root:       cfg.Output.Root,
		tz:         tz,
		tzName:     cfg.Time.Timezone,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RenderWindow renders one window to <root>/YYYY/MM/DD.{json,md,html}, where
// the date is the local date of the window start. It also refreshes the site
// index and the latest-report pointer.
func (r *Renderer) RenderWindow(w timewindow.Window) (Outputs, error) {
	rep, err := r.Build(w)
	if err != nil {
		return Outputs{}, err
	}

	localStart := w.StartUTC.In(r.tz)
	dir := filepath.Join(r.root, localStart.Format("2006"), localStart.Format("01"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Outputs{}, fmt.Errorf("create report directory: %w", err)
	}
	day := localStart.Format("02")

	out := Outputs{
		JSONPath:     filepath.Join(dir, day+".json"),
		MarkdownPath: filepath.Join(dir, day+".md"),
		HTMLPath:     filepath.Join(dir, day+".html"),
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return Outputs{}, fmt.Errorf("encode report JSON: %w", err)
	}
	if err := os.WriteFile(out.JSONPath, append(data, '\n'), 0o644); err != nil {
		return Outputs{}, fmt.Errorf("write %s: %w", out.JSONPath, err)
	}

	label := r.windowLabel(w)
	md := r.renderMarkdown(rep, label)
	if err := os.WriteFile(out.MarkdownPath, []byte(md), 0o644); err != nil {
		return Outputs{}, fmt.Errorf("write %s: %w", out.MarkdownPath, err)
	}

	htmlDoc, err := renderHTMLPage(label, md)
	if err != nil {
		return Outputs{}, err
	}
	if err := os.WriteFile(out.HTMLPath, htmlDoc, 0o644); err != nil {
		return Outputs{}, fmt.Errorf("write %s: %w", out.HTMLPath, err)
	}

	if err := WriteSiteIndex(r.root); err != nil {
		return Outputs{}, err
	}

	r.logger.Info("window rendered", "date", w.LabelDate,
		"json", out.JSONPath, "html", out.HTMLPath)
	return out, nil
}

func (r *Renderer) windowLabel(w timewindow.Window) string {
	start := w.StartUTC.In(r.tz)
	end := w.EndUTC.In(r.tz)
	return fmt.Sprintf("%s (%s–%s)", start.Format("2006-01-02"),
		start.Format("15:04"), end.Format("15:04"))
}

// Build assembles the Report for a window without writing anything.
func (r *Renderer) Build(w timewindow.Window) (*Report, error) {
	messages, err := r.store.MessagesInWindow(w.StartUTC, w.EndUTC)
	if err != nil {
		return nil, err
	}

	var threadIDs []string
	for _, m := range messages {
		threadIDs = append(threadIDs, m.ThreadID)
	}
	threads, err := r.store.ThreadsByID(threadIDs)
	if err != nil {
		return nil, err
	}

	// A thread is high priority if any window message in it comes from a
	// high-priority sender, regardless of how that message classifies.
	hpThreadIDs := map[string]bool{}
	for _, m := range messages {
		if m.ThreadID != "" && r.classifier.IsHighPrioritySender(m.SenderEmail) {
			hpThreadIDs[m.ThreadID] = true
		}
	}

	var hpMsgs, normalMsgs, arrivalMsgs []store.Message
	for _, m := range messages {
		switch r.classifier.Classify(m.Sender, m.SenderEmail, m.Subject) {
		case rules.ClassSuppress:
			continue
		case rules.ClassHighPriority:
			hpMsgs = append(hpMsgs, m)
		case rules.ClassArrivalOnly:
			arrivalMsgs = append(arrivalMsgs, m)
		default:
			normalMsgs = append(normalMsgs, m)
		}
	}

	// Group normal messages by thread in first-seen order. Threads touched
	// by a high-priority sender are excluded outright so their messages
	// never show twice.
	grouped := map[string][]store.Message{}
	var threadOrder []string
	for _, m := range normalMsgs {
		if m.ThreadID == "" || hpThreadIDs[m.ThreadID] {
			continue
		}
		if _, ok := grouped[m.ThreadID]; !ok {
			threadOrder = append(threadOrder, m.ThreadID)
		}
		grouped[m.ThreadID] = append(grouped[m.ThreadID], m)
	}

	var threadGroups []ThreadGroup
	for _, tid := range threadOrder {
		msgs := grouped[tid]
		if th, ok := threads[tid]; ok && alreadyReplied(th) {
			continue
		}
		participants := threads[tid].Participants
		if participants == nil {
			participants = []string{}
		}
		tg := ThreadGroup{ThreadID: tid, Participants: participants}
		for _, m := range msgs {
			tg.Messages = append(tg.Messages, entryFor(m))
		}
		threadGroups = append(threadGroups, tg)
	}

	hpGroups := buildHighPriorityGroups(hpMsgs, threads)
	if hpGroups == nil {
		hpGroups = []HighPriorityGroup{}
	}
	if threadGroups == nil {
		threadGroups = []ThreadGroup{}
	}

	rep := &Report{
		WindowStartUTC: store.FormatTime(w.StartUTC),
		WindowEndUTC:   store.FormatTime(w.EndUTC),
		Timezone:       r.tzName,
		Summary: Summary{
			TotalMessages:      len(messages),
			ActionableMessages: len(hpGroups) + len(threadGroups),
			Threads:            len(threadGroups),
		},
		HighPriority: hpGroups,
		Threads:      threadGroups,
		ArrivalOnly:  []Arrival{},
	}
	for _, m := range arrivalMsgs {
		rep.ArrivalOnly = append(rep.ArrivalOnly, Arrival{
			From:         m.Sender,
			Subject:      m.Subject,
			TimestampUTC: store.FormatTime(m.DateUTC),
		})
	}
	return rep, nil
}

// alreadyReplied reports that the thread's newest outbound message is at or
// after its newest inbound one. Timestamps compare as strings; the stored
// layout makes that equivalent to temporal order.
func alreadyReplied(th store.Thread) bool {
	return th.LastOutboundUTC != "" && th.LastInboundUTC != "" &&
		th.LastOutboundUTC >= th.LastInboundUTC
}

// buildHighPriorityGroups groups high-priority messages by sender email,
// sorted by email for stable output. Reply suppression looks at the thread
// aggregates, not the window messages: an outbound reply sent from the
// account lands in the same thread but never in the group itself.
func buildHighPriorityGroups(msgs []store.Message, threads map[string]store.Thread) []HighPriorityGroup {
	byEmail := map[string][]store.Message{}
	for _, m := range msgs {
		byEmail[m.SenderEmail] = append(byEmail[m.SenderEmail], m)
	}

	emails := make([]string, 0, len(byEmail))
	for email := range byEmail {
		emails = append(emails, email)
	}
	sort.Strings(emails)

	var out []HighPriorityGroup
	for _, email := range emails {
		group := byEmail[email]
		if groupReplied(group, threads) {
			continue
		}
		g := HighPriorityGroup{
			SenderEmail:   email,
			SenderDisplay: displayName(group[0].Sender, email),
		}
		for _, m := range group {
			g.Messages = append(g.Messages, entryFor(m))
		}
		out = append(out, g)
	}
	return out
}

// groupReplied aggregates the newest inbound and outbound timestamps across
// the threads the group's messages belong to, then applies the same replied
// test used for thread groups.
func groupReplied(msgs []store.Message, threads map[string]store.Thread) bool {
	var lastIn, lastOut string
	seen := map[string]bool{}
	for _, m := range msgs {
		if m.ThreadID == "" || seen[m.ThreadID] {
			continue
		}
		seen[m.ThreadID] = true
		th, ok := threads[m.ThreadID]
		if !ok {
			continue
		}
		if th.LastInboundUTC > lastIn {
			lastIn = th.LastInboundUTC
		}
		if th.LastOutboundUTC > lastOut {
			lastOut = th.LastOutboundUTC
		}
	}
	return lastOut != "" && lastIn != "" && lastOut >= lastIn
}

// displayName strips the "<email>" tail from a stored sender string.
func displayName(sender, email string) string {
	suffix := " <" + email + ">"
	if len(sender) > len(suffix) && sender[len(sender)-len(suffix):] == suffix {
		return sender[:len(sender)-len(suffix)]
	}
	return ""
}

func entryFor(m store.Message) ReportEntry {
	return ReportEntry{
		MessageID:    m.MessageID,
		From:         m.Sender,
		To:           m.To,
		Cc:           m.Cc,
		Subject:      m.Subject,
		Excerpt:      extract.Excerpt(m.NewText, 3),
		TimestampUTC: store.FormatTime(m.DateUTC),
	}
}
