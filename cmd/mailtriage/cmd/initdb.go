package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"mailtriage/internal/store"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Initialize the state database schema",
	Long: `Create the state database under the output root with the frozen v1
schema. Safe to run multiple times; an existing database is verified
against this build's schema instead of being recreated.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		fmt.Printf("Database: %s\n", cfg.StateDBPath())
		fmt.Printf("  Schema hash: %s\n", store.SchemaHash())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initDBCmd)
}
