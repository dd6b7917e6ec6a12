package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mailtriage/internal/secrets"
)

var setupCredentialsCmd = &cobra.Command{
	Use:   "setup-credentials <reference>",
	Short: "Store IMAP credentials in the OS keyring",
	Long: `Prompt for a username and password and store them in the OS keyring
under the given reference, for accounts configured with the "keyring"
secrets provider. Credentials are read from stdin and stored only in the
keyring, never in the config file or the state database.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reference := strings.TrimSpace(args[0])
		if reference == "" {
			return fmt.Errorf("reference must not be empty")
		}

		reader := bufio.NewReader(os.Stdin)
		username, err := prompt(reader, "Username: ")
		if err != nil {
			return err
		}
		password, err := prompt(reader, "Password: ")
		if err != nil {
			return err
		}
		if username == "" || password == "" {
			return fmt.Errorf("username and password must not be empty")
		}

		provider := &secrets.KeyringProvider{}
		err = provider.Store(reference, secrets.Credentials{
			Username: username,
			Password: password,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Stored credentials for %q in the OS keyring.\n", reference)
		return nil
	},
}

func prompt(reader *bufio.Reader, label string) (string, error) {
	fmt.Print(label)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func init() {
	rootCmd.AddCommand(setupCredentialsCmd)
}
