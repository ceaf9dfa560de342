package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/crypto"
)

// secretBytes yields a 64-character secret, well above config.MinSecretLength.
const secretBytes = 48

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a random server secret",
	Long: `Generate a random secret suitable for ENCRYPTION_SECRET or SESSION_SECRET.

Changing ENCRYPTION_SECRET makes every stored credential unreadable.`,
	Args: cobra.NoArgs,
	RunE: runKeygen,
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}

func runKeygen(_ *cobra.Command, _ []string) error {
	secret, err := crypto.GenerateTokenString(secretBytes)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, secret)
	return nil
}
