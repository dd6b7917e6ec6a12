package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mailtriage/internal/ingest"
	"mailtriage/internal/report"
	"mailtriage/internal/timewindow"
)

var (
	runDays int
	runDate string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Ingest recent mail and render triage reports",
	Long: `Fetch messages from every configured account, store them in the local
state database, and render one report per window. By default only today's
window is processed; --days processes the trailing N windows and --date
reprocesses a single past day.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		windows, err := resolveWindows(runDays, runDate)
		if err != nil {
			return err
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		runner := ingest.NewRunner(st, cfg, ingest.WithLogger(logger))
		renderer, err := report.NewRenderer(st, cfg, report.WithLogger(logger))
		if err != nil {
			return err
		}

		for _, w := range windows {
			if err := runner.IngestWindow(cmd.Context(), w); err != nil {
				return fmt.Errorf("ingest window %s: %w", w.LabelDate, err)
			}
			out, err := renderer.RenderWindow(w)
			if err != nil {
				return fmt.Errorf("render window %s: %w", w.LabelDate, err)
			}
			fmt.Printf("%s  %s\n", w.LabelDate, out.HTMLPath)
		}
		return nil
	},
}

// resolveWindows turns the --days/--date flags into concrete windows.
func resolveWindows(days int, date string) ([]timewindow.Window, error) {
	if date != "" && days != 1 {
		return nil, fmt.Errorf("--days and --date are mutually exclusive")
	}
	if date != "" {
		days = 0
	}
	return timewindow.Compute(time.Now(), cfg.Time.Timezone, cfg.Time.WorkdayStart, days, date)
}

func init() {
	runCmd.Flags().IntVar(&runDays, "days", 1, "number of trailing windows to process")
	runCmd.Flags().StringVar(&runDate, "date", "", "process a single local date (YYYY-MM-DD)")
	rootCmd.AddCommand(runCmd)
}
