package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"mailtriage/internal/config"
	"mailtriage/internal/store"
)

var (
	cfgFile string
	verbose bool
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mailtriage",
	Short: "Local-first mailbox triage",
	Long: `mailtriage pulls recent mail from IMAP accounts into a local SQLite
database, groups it into threads, classifies it against sender and subject
rules, and writes deterministic per-day triage reports as JSON, markdown,
and HTML. A scheduled watcher flags inbound threads that have waited too
long for a reply.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))
		slog.SetDefault(logger)

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return nil
	},
}

// Execute runs the root command with a background context.
// Prefer ExecuteContext for signal-aware execution.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with the given context,
// enabling graceful shutdown when the context is cancelled.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// openStore opens the state database under the output root, creates the
// schema on first use, and refuses to touch a database whose schema does
// not match this build.
func openStore() (*store.Store, error) {
	s, err := store.Open(cfg.StateDBPath())
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	if err := s.Init(cfg.Time.Timezone, cfg.Time.WorkdayStart); err != nil {
		s.Close()
		return nil, fmt.Errorf("init state database: %w", err)
	}
	if err := s.VerifySchema(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}
