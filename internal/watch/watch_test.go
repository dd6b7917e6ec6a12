package watch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mailtriage/internal/config"
	"mailtriage/internal/store"
)

type fakeNotifier struct {
	titles []string
	bodies []string
	err    error
}

func (f *fakeNotifier) Notify(title, body string) error {
	f.titles = append(f.titles, title)
	f.bodies = append(f.bodies, body)
	return f.err
}

func testConfig(root string) *config.Config {
	return &config.Config{
		Output:        config.OutputConfig{Root: root},
		Time:          config.TimeConfig{Timezone: "UTC", WorkdayStart: "09:00"},
		Notifications: config.NotificationsConfig{Enabled: true},
		Watch: config.WatchConfig{
			Unreplied: config.UnrepliedWatchConfig{
				Enabled: true,
				Rules: []config.UnrepliedRuleConfig{{
					ID:                    "support",
					TargetAddresses:       []string{"me@example.com"},
					UnrepliedAfterMinutes: 60,
					LookbackDays:          14,
					NotifyCooldownMinutes: 120,
				}},
			},
		},
	}
}

func newTestRunner(t *testing.T, now time.Time) (*Runner, *store.Store, *fakeNotifier, string) {
	t.Helper()
	root := t.TempDir()
	st, err := store.Open(filepath.Join(root, ".mailtriage", "state.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Init("UTC", "09:00"); err != nil {
		t.Fatalf("init store: %v", err)
	}
	fn := &fakeNotifier{}
	r := NewRunner(st, testConfig(root),
		WithNotifier(fn),
		WithClock(func() time.Time { return now }),
	)
	return r, st, fn, root
}

func insertInbound(t *testing.T, st *store.Store, id, thread, sender, subject string, at time.Time) {
	t.Helper()
	err := st.WithTx(func(tx *store.Tx) error {
		if err := tx.UpsertAccount(store.Account{ID: "work", PrimaryAddress: "me@example.com"}); err != nil {
			return err
		}
		_, err := tx.InsertMessage(store.Message{
			MessageID:   id,
			AccountID:   "work",
			Folder:      "INBOX",
			DateUTC:     at,
			Sender:      sender,
			SenderEmail: strings.ToLower(sender),
			To:          []string{"me@example.com"},
			Subject:     subject,
			Inbound:     true,
			ThreadID:    thread,
		})
		if err != nil {
			return err
		}
		return tx.UpsertThread(thread, at, true, false, []string{sender, "me@example.com"})
	})
	if err != nil {
		t.Fatalf("insert message: %v", err)
	}
}

func TestRunNotifiesStaleThread(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	r, st, fn, root := newTestRunner(t, now)

	insertInbound(t, st, "<old@x>", "t-old", "alice@example.com", "Quote request", now.Add(-3*time.Hour))
	insertInbound(t, st, "<new@x>", "t-new", "bob@example.com", "Quick one", now.Add(-10*time.Minute))

	n, err := r.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n != 1 {
		t.Fatalf("notified = %d, want 1 (only the stale thread)", n)
	}
	if len(fn.bodies) != 1 {
		t.Fatalf("notifications sent = %d, want 1", len(fn.bodies))
	}
	body := fn.bodies[0]
	if !strings.Contains(body, "[support] 1 thread(s) may need a reply (SLA 60m).") {
		t.Errorf("headline missing:\n%s", body)
	}
	if !strings.Contains(body, "Quote request") {
		t.Errorf("subject missing:\n%s", body)
	}

	page, err := os.ReadFile(filepath.Join(root, "watch", "unreplied.html"))
	if err != nil {
		t.Fatalf("watch page: %v", err)
	}
	if !strings.Contains(string(page), "Quote request") {
		t.Error("watch page missing flagged thread")
	}
}

func TestRunCooldownSuppressesRepeat(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	r, st, fn, _ := newTestRunner(t, now)
	insertInbound(t, st, "<old@x>", "t-old", "alice@example.com", "Quote request", now.Add(-3*time.Hour))

	if n, err := r.Run(); err != nil || n != 1 {
		t.Fatalf("first run = %d, %v", n, err)
	}
	if n, err := r.Run(); err != nil || n != 0 {
		t.Fatalf("second run inside cooldown = %d, %v", n, err)
	}
	if len(fn.bodies) != 1 {
		t.Fatalf("notifications = %d, want 1", len(fn.bodies))
	}

	// A third run past the cooldown fires again.
	later := NewRunner(st, testConfig(t.TempDir()),
		WithNotifier(fn),
		WithClock(func() time.Time { return now.Add(3 * time.Hour) }),
	)
	if n, err := later.Run(); err != nil || n != 1 {
		t.Fatalf("run after cooldown = %d, %v", n, err)
	}
}

func TestRunRepliedThreadNotFlagged(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	r, st, fn, _ := newTestRunner(t, now)

	insertInbound(t, st, "<q@x>", "t-q", "alice@example.com", "Question", now.Add(-4*time.Hour))
	err := st.WithTx(func(tx *store.Tx) error {
		_, err := tx.InsertMessage(store.Message{
			MessageID:   "<r@x>",
			AccountID:   "work",
			Folder:      "Sent",
			DateUTC:     now.Add(-2 * time.Hour),
			Sender:      "me@example.com",
			SenderEmail: "me@example.com",
			To:          []string{"alice@example.com"},
			Subject:     "Re: Question",
			Outbound:    true,
			ThreadID:    "t-q",
		})
		return err
	})
	if err != nil {
		t.Fatalf("insert reply: %v", err)
	}

	n, err := r.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n != 0 || len(fn.bodies) != 0 {
		t.Errorf("notified = %d (bodies %d), want 0", n, len(fn.bodies))
	}
}

func TestRunDisabled(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	r, st, fn, _ := newTestRunner(t, now)
	r.cfg.Unreplied.Enabled = false
	insertInbound(t, st, "<old@x>", "t-old", "alice@example.com", "Quote request", now.Add(-3*time.Hour))

	n, err := r.Run()
	if err != nil || n != 0 || len(fn.bodies) != 0 {
		t.Errorf("disabled watch ran: n=%d err=%v notifications=%d", n, err, len(fn.bodies))
	}
}

func TestRunNotificationFailureStillRecordsState(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	r, st, fn, _ := newTestRunner(t, now)
	fn.err = os.ErrPermission
	insertInbound(t, st, "<old@x>", "t-old", "alice@example.com", "Quote request", now.Add(-3*time.Hour))

	n, err := r.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n != 1 {
		t.Fatalf("notified = %d, want 1", n)
	}
	if _, err := st.GetTriageState("t-old", "watch_unreplied:support"); err != nil {
		t.Errorf("cooldown state not recorded: %v", err)
	}
}

func TestNotificationBodyCapsItems(t *testing.T) {
	rule := config.UnrepliedRuleConfig{ID: "support", UnrepliedAfterMinutes: 60}
	var threads []UnrepliedThread
	for i := 0; i < 8; i++ {
		threads = append(threads, UnrepliedThread{
			Subject: string(rune('A' + i)),
			Sender:  "x@example.com",
		})
	}
	body := notificationBody(rule, threads)
	if !strings.Contains(body, "8 thread(s)") {
		t.Errorf("headline wrong:\n%s", body)
	}
	if got := strings.Count(body, "- "); got != maxItemsInNotification {
		t.Errorf("listed items = %d, want %d", got, maxItemsInNotification)
	}
}

func TestNotificationBodyTruncatesLongSubjects(t *testing.T) {
	rule := config.UnrepliedRuleConfig{ID: "support", UnrepliedAfterMinutes: 60}
	long := strings.Repeat("subject ", 30)
	body := notificationBody(rule, []UnrepliedThread{{Subject: long, Sender: "x@example.com"}})

	if strings.Contains(body, long) {
		t.Errorf("long subject not truncated:\n%s", body)
	}
	if !strings.Contains(body, "...") {
		t.Errorf("truncated subject missing ellipsis:\n%s", body)
	}
}
