package cmd

import (
	"testing"

	"mailtriage/internal/config"
)

func TestResolveWindows(t *testing.T) {
	cfg = &config.Config{
		Time: config.TimeConfig{Timezone: "UTC", WorkdayStart: "09:00"},
	}

	windows, err := resolveWindows(3, "")
	if err != nil {
		t.Fatalf("days only: %v", err)
	}
	if len(windows) != 3 {
		t.Errorf("windows = %d, want 3", len(windows))
	}

	windows, err = resolveWindows(1, "2026-03-02")
	if err != nil {
		t.Fatalf("date only: %v", err)
	}
	if len(windows) != 1 || windows[0].LabelDate != "2026-03-02" {
		t.Errorf("windows = %+v", windows)
	}

	if _, err := resolveWindows(3, "2026-03-02"); err == nil {
		t.Error("days and date together should be rejected")
	}
}
