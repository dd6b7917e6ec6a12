// Package watch flags inbound threads that have waited too long for a reply
// and raises desktop notifications for them.
package watch

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mailtriage/internal/config"
	"mailtriage/internal/notify"
	"mailtriage/internal/store"
	"mailtriage/internal/textutil"
)

// maxItemsInNotification caps how many subjects one notification lists.
const maxItemsInNotification = 5

// maxSubjectRunes keeps a single subject line from flooding the popup.
const maxSubjectRunes = 80

// UnrepliedThread is one thread whose newest message is an unanswered
// inbound message addressed to a watched mailbox.
type UnrepliedThread struct {
	ThreadID string
	DateUTC  string
	Sender   string
	Subject  string
}

// Option is a functional option for Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithNotifier overrides the notifier. Used by tests and by the
// notifications.enabled flag.
func WithNotifier(n notify.Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// Runner evaluates the unreplied rules against the store.
type Runner struct {
	store    *store.Store
	cfg      config.WatchConfig
	root     string
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewRunner builds a watch runner over the configured output root.
func NewRunner(st *store.Store, cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		store:    st,
		cfg:      cfg.Watch,
		root:     cfg.Output.Root,
		notifier: notify.ForConfig(cfg.Notifications.Enabled),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run evaluates every enabled rule once and returns how many threads were
// notified about. Notification delivery is best effort: a failed delivery is
// logged and the state still records the attempt so the cooldown holds.
func (r *Runner) Run() (int, error) {
	if !r.cfg.Unreplied.Enabled {
		return 0, nil
	}
	now := r.now().UTC()

	total := 0
	notifiedByRule := map[string][]UnrepliedThread{}
	var ruleOrder []string

	for _, rule := range r.cfg.Unreplied.Rules {
		if len(rule.TargetAddresses) == 0 {
			continue
		}
		candidates, err := r.findUnreplied(rule, now)
		if err != nil {
			return total, fmt.Errorf("rule %s: %w", rule.ID, err)
		}

		toNotify, err := r.filterCooldown(rule, candidates, now)
		if err != nil {
			return total, fmt.Errorf("rule %s: %w", rule.ID, err)
		}
		if len(toNotify) == 0 {
			continue
		}

		if err := r.recordNotified(rule.ID, toNotify, now); err != nil {
			return total, fmt.Errorf("rule %s: %w", rule.ID, err)
		}

		total += len(toNotify)
		notifiedByRule[rule.ID] = toNotify
		ruleOrder = append(ruleOrder, rule.ID)

		if err := r.notifier.Notify("MailTriage", notificationBody(rule, toNotify)); err != nil {
			r.logger.Warn("notification delivery failed", "rule", rule.ID, "error", err)
		}
	}

	if total > 0 {
		if path, err := writeUnrepliedPage(r.root, ruleOrder, notifiedByRule); err != nil {
			r.logger.Warn("watch page not written", "error", err)
		} else {
			r.logger.Info("watch page updated", "path", path, "threads", total)
		}
	}
	return total, nil
}

// findUnreplied returns, oldest first, the threads whose first inbound
// message to a watched address is also the thread's newest message and has
// sat unanswered past the rule's threshold.
func (r *Runner) findUnreplied(rule config.UnrepliedRuleConfig, now time.Time) ([]UnrepliedThread, error) {
	if rule.LookbackDays <= 0 || rule.UnrepliedAfterMinutes <= 0 {
		return nil, nil
	}
	cutoff := now.AddDate(0, 0, -rule.LookbackDays)
	candidates, err := r.store.UnrepliedCandidates(cutoff, rule.TargetAddresses)
	if err != nil {
		return nil, err
	}

	minAge := time.Duration(rule.UnrepliedAfterMinutes) * time.Minute
	var out []UnrepliedThread
	for _, c := range candidates {
		if now.Sub(c.DateUTC) < minAge {
			continue
		}
		out = append(out, UnrepliedThread{
			ThreadID: c.ThreadID,
			DateUTC:  store.FormatTime(c.DateUTC),
			Sender:   c.Sender,
			Subject:  c.Subject,
		})
	}
	return out, nil
}

// filterCooldown drops threads already notified within the rule's cooldown.
func (r *Runner) filterCooldown(rule config.UnrepliedRuleConfig, candidates []UnrepliedThread, now time.Time) ([]UnrepliedThread, error) {
	cooldownMin := rule.NotifyCooldownMinutes
	if cooldownMin < 1 {
		cooldownMin = 60
	}
	cooldown := time.Duration(cooldownMin) * time.Minute

	var out []UnrepliedThread
	for _, t := range candidates {
		st, err := r.store.GetTriageState(t.ThreadID, entityType(rule.ID))
		if err == nil {
			last, perr := store.ParseTime(st.UpdatedUTC)
			if perr == nil && now.Sub(last) < cooldown {
				continue
			}
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *Runner) recordNotified(ruleID string, threads []UnrepliedThread, now time.Time) error {
	return r.store.WithTx(func(tx *store.Tx) error {
		for _, t := range threads {
			state, err := json.Marshal(map[string]string{
				"status":   "open",
				"date_utc": t.DateUTC,
				"sender":   t.Sender,
				"subject":  t.Subject,
			})
			if err != nil {
				return err
			}
			err = tx.SetTriageState(store.TriageState{
				EntityID:   t.ThreadID,
				EntityType: entityType(ruleID),
				State:      string(state),
				UpdatedUTC: store.FormatTime(now),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func entityType(ruleID string) string {
	return "watch_unreplied:" + ruleID
}

// notificationBody lists the newest few subjects under a per-rule headline.
func notificationBody(rule config.UnrepliedRuleConfig, threads []UnrepliedThread) string {
	lines := []string{fmt.Sprintf("[%s] %d thread(s) may need a reply (SLA %dm).",
		rule.ID, len(threads), rule.UnrepliedAfterMinutes)}

	start := 0
	if len(threads) > maxItemsInNotification {
		start = len(threads) - maxItemsInNotification
	}
	for i := len(threads) - 1; i >= start; i-- {
		t := threads[i]
		subject := textutil.TruncateRunes(t.Subject, maxSubjectRunes)
		if strings.TrimSpace(subject) == "" {
			subject = "(no subject)"
		}
		lines = append(lines, fmt.Sprintf("- %s (%s)", subject, t.Sender))
	}
	return strings.Join(lines, "\n")
}
