package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mailtriage/internal/ingest"
	"mailtriage/internal/report"
	"mailtriage/internal/scheduler"
	"mailtriage/internal/store"
	"mailtriage/internal/timewindow"
	"mailtriage/internal/watch"
)

var watchOnce bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the scheduled triage cycle",
	Long: `Run the triage cycle on the configured cron schedule: ingest the
recent windows, re-render their reports, and evaluate the unreplied rules,
notifying about threads that have sat unanswered too long. With --once the
cycle runs a single time and exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if watchOnce {
			return runCycle(cmd.Context(), st)
		}

		sched, err := scheduler.New(cfg.Watch.Schedule, func(ctx context.Context) error {
			return runCycle(ctx, st)
		})
		if err != nil {
			return err
		}
		sched.WithLogger(logger).Start()

		<-cmd.Context().Done()
		<-sched.Stop().Done()
		return cmd.Context().Err()
	},
}

// runCycle performs one scheduled pass: ingest the lookback windows, render
// each of them, then evaluate the unreplied rules.
func runCycle(ctx context.Context, st *store.Store) error {
	days := cfg.Watch.IngestLookbackDays
	if days < 1 {
		days = 1
	}
	windows, err := timewindow.Compute(time.Now(), cfg.Time.Timezone, cfg.Time.WorkdayStart, days, "")
	if err != nil {
		return err
	}

	runner := ingest.NewRunner(st, cfg, ingest.WithLogger(logger))
	renderer, err := report.NewRenderer(st, cfg, report.WithLogger(logger))
	if err != nil {
		return err
	}
	for _, w := range windows {
		if err := runner.IngestWindow(ctx, w); err != nil {
			return fmt.Errorf("ingest window %s: %w", w.LabelDate, err)
		}
		if _, err := renderer.RenderWindow(w); err != nil {
			return fmt.Errorf("render window %s: %w", w.LabelDate, err)
		}
	}

	notified, err := watch.NewRunner(st, cfg, watch.WithLogger(logger)).Run()
	if err != nil {
		return fmt.Errorf("unreplied watch: %w", err)
	}
	if notified > 0 {
		logger.Info("unreplied watch raised alerts", "threads", notified)
	}
	return nil
}

func init() {
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "run one cycle and exit")
	rootCmd.AddCommand(watchCmd)
}
