package timewindow

import (
	"errors"
	"testing"
	"time"

	"mailtriage/internal/config"
)

func mustLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

func TestComputeExplicitDate(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	windows, err := Compute(now, "Europe/Berlin", "09:00", 1, "2025-03-10")
	if err != nil {
		t.Fatalf("Compute() failed: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("got %d windows, want 1", len(windows))
	}

	w := windows[0]
	if w.LabelDate != "2025-03-10" {
		t.Errorf("LabelDate = %q", w.LabelDate)
	}
	// Berlin is UTC+1 in March (before the DST switch on 2025-03-30).
	wantStart := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	if !w.StartUTC.Equal(wantStart) {
		t.Errorf("StartUTC = %v, want %v", w.StartUTC, wantStart)
	}
	if got := w.EndUTC.Sub(w.StartUTC); got != 24*time.Hour {
		t.Errorf("window length = %v, want 24h", got)
	}
}

func TestComputeDaysContiguousOldestFirst(t *testing.T) {
	now := time.Date(2025, 6, 15, 20, 0, 0, 0, time.UTC)
	windows, err := Compute(now, "UTC", "09:00", 3, "")
	if err != nil {
		t.Fatalf("Compute() failed: %v", err)
	}
	if len(windows) != 3 {
		t.Fatalf("got %d windows, want 3", len(windows))
	}

	wantLabels := []string{"2025-06-13", "2025-06-14", "2025-06-15"}
	for i, w := range windows {
		if w.LabelDate != wantLabels[i] {
			t.Errorf("windows[%d].LabelDate = %q, want %q", i, w.LabelDate, wantLabels[i])
		}
	}

	// Strictly increasing and contiguous: each window ends where the next begins.
	for i := 1; i < len(windows); i++ {
		if !windows[i-1].EndUTC.Equal(windows[i].StartUTC) {
			t.Errorf("gap between windows %d and %d: %v != %v",
				i-1, i, windows[i-1].EndUTC, windows[i].StartUTC)
		}
	}
}

func TestComputeNoOverlap(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 0, 0, 0, time.UTC)
	windows, err := Compute(now, "America/New_York", "08:30", 5, "")
	if err != nil {
		t.Fatalf("Compute() failed: %v", err)
	}
	for i := 1; i < len(windows); i++ {
		if windows[i].StartUTC.Before(windows[i-1].EndUTC) {
			t.Errorf("windows %d and %d overlap", i-1, i)
		}
	}
}

func TestContainsHalfOpen(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	windows, err := Compute(now, "UTC", "09:00", 1, "")
	if err != nil {
		t.Fatalf("Compute() failed: %v", err)
	}
	w := windows[0]

	if !w.Contains(w.StartUTC) {
		t.Error("start boundary should be inside the window")
	}
	if w.Contains(w.EndUTC) {
		t.Error("end boundary should be outside the window")
	}
	if w.Contains(w.StartUTC.Add(-time.Second)) {
		t.Error("instant before start should be outside")
	}
	if !w.Contains(w.EndUTC.Add(-time.Second)) {
		t.Error("instant just before end should be inside")
	}
}

func TestComputeInvalidInputs(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name                  string
		tz, start, date       string
		days                  int
	}{
		{"zero days", "UTC", "09:00", "", 0},
		{"negative days", "UTC", "09:00", "", -2},
		{"bad workday start", "UTC", "25:00", "", 1},
		{"bad timezone", "Nowhere/Nope", "09:00", "", 1},
		{"bad date", "UTC", "09:00", "2025-13-40", 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compute(now, tc.tz, tc.start, tc.days, tc.date)
			if !errors.Is(err, config.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestComputeLocalDayBoundary(t *testing.T) {
	// 01:30 local on June 16 in Tokyo; "today" must be Tokyo's date, not UTC's.
	loc := mustLocation(t, "Asia/Tokyo")
	now := time.Date(2025, 6, 16, 1, 30, 0, 0, loc)

	windows, err := Compute(now, "Asia/Tokyo", "09:00", 1, "")
	if err != nil {
		t.Fatalf("Compute() failed: %v", err)
	}
	if windows[0].LabelDate != "2025-06-16" {
		t.Errorf("LabelDate = %q, want 2025-06-16", windows[0].LabelDate)
	}
}
