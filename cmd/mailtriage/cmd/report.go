package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"mailtriage/internal/report"
)

var (
	reportDays int
	reportDate string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Re-render reports from already ingested mail",
	Long: `Render reports for the selected windows from the state database
without contacting any IMAP server. Rendering is deterministic: the same
stored messages and rules always produce byte-identical output, so past
days can be regenerated after a rule change.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		windows, err := resolveWindows(reportDays, reportDate)
		if err != nil {
			return err
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		renderer, err := report.NewRenderer(st, cfg, report.WithLogger(logger))
		if err != nil {
			return err
		}
		for _, w := range windows {
			out, err := renderer.RenderWindow(w)
			if err != nil {
				return fmt.Errorf("render window %s: %w", w.LabelDate, err)
			}
			fmt.Printf("%s  %s\n", w.LabelDate, out.HTMLPath)
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().IntVar(&reportDays, "days", 1, "number of trailing windows to render")
	reportCmd.Flags().StringVar(&reportDate, "date", "", "render a single local date (YYYY-MM-DD)")
	rootCmd.AddCommand(reportCmd)
}
