// Package timewindow computes the 24-hour triage windows that drive
// ingestion and reporting.
package timewindow

import (
	"fmt"
	"time"

	"mailtriage/internal/config"
)

// Window is a half-open [StartUTC, EndUTC) interval covering exactly one
// workday, labeled by the local calendar date of its start.
type Window struct {
	LabelDate string // YYYY-MM-DD in the local calendar
	StartUTC  time.Time
	EndUTC    time.Time
}

// Contains reports whether ts falls inside the window.
func (w Window) Contains(ts time.Time) bool {
	return !ts.Before(w.StartUTC) && ts.Before(w.EndUTC)
}

// Compute returns the windows to process, oldest first.
//
// With an explicit date ("YYYY-MM-DD") it returns one window starting at
// that local date's workday start. Otherwise it returns days windows ending
// with the one anchored to today relative to now.
func Compute(now time.Time, tzName, workdayStart string, days int, date string) ([]Window, error) {
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", config.ErrInvalidConfig, tzName, err)
	}
	hh, mm, err := config.ParseWorkdayStart(workdayStart)
	if err != nil {
		return nil, err
	}

	if date != "" {
		day, err := time.ParseInLocation("2006-01-02", date, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: date %q: %v", config.ErrInvalidConfig, date, err)
		}
		return []Window{windowForDay(day, loc, hh, mm)}, nil
	}

	if days <= 0 {
		return nil, fmt.Errorf("%w: days must be >= 1, got %d", config.ErrInvalidConfig, days)
	}

	today := now.In(loc)
	windows := make([]Window, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		windows = append(windows, windowForDay(day, loc, hh, mm))
	}
	return windows, nil
}

// windowForDay anchors a 24-hour window to the workday start on the local
// calendar day of d.
func windowForDay(d time.Time, loc *time.Location, hh, mm int) Window {
	start := time.Date(d.Year(), d.Month(), d.Day(), hh, mm, 0, 0, loc)
	end := start.Add(24 * time.Hour)
	return Window{
		LabelDate: start.Format("2006-01-02"),
		StartUTC:  start.UTC(),
		EndUTC:    end.UTC(),
	}
}
