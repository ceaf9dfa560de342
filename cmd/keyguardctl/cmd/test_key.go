package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/logging"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/provider"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/validation"
)

var testKeyCmd = &cobra.Command{
	Use:   "test-key",
	Short: "Check a provider key without storing it",
	Long: `Read a provider key from the terminal (input is hidden) or from stdin
and run the same live check the service runs before saving a key.

The key is never printed or stored.`,
	Args: cobra.NoArgs,
	RunE: runTestKey,
}

func init() {
	testKeyCmd.Flags().String("base-url", "https://api.mistral.ai", "provider base URL")
	testKeyCmd.Flags().String("model", "mistral-small-latest", "model used for the check")
	testKeyCmd.Flags().Duration("timeout", 10*time.Second, "validation timeout")

	viper.BindPFlag("provider_base_url", testKeyCmd.Flags().Lookup("base-url"))         //nolint:errcheck // flag exists
	viper.BindPFlag("provider_chat_model", testKeyCmd.Flags().Lookup("model"))          //nolint:errcheck // flag exists
	viper.BindPFlag("provider_validation_timeout", testKeyCmd.Flags().Lookup("timeout")) //nolint:errcheck // flag exists

	rootCmd.AddCommand(testKeyCmd)
}

func runTestKey(cmd *cobra.Command, _ []string) error {
	key, err := readKey(os.Stdin)
	if err != nil {
		return fmt.Errorf("failed to read key: %w", err)
	}
	if err := validation.APIKey(key); err != nil {
		Error("%v", err)
		return fmt.Errorf("key rejected")
	}

	client := provider.NewClient(provider.Config{
		BaseURL:           viper.GetString("provider_base_url"),
		ChatModel:         viper.GetString("provider_chat_model"),
		ValidationTimeout: viper.GetDuration("provider_validation_timeout"),
	}, nil)

	if isVerbose() {
		Info("Checking key %s against %s", Dim("%s", logging.MaskKey(key)), viper.GetString("provider_base_url"))
	}

	result := client.Validate(cmd.Context(), key)
	if !result.Valid {
		Error("Key is not usable: %s", result.Reason)
		return fmt.Errorf("key rejected")
	}

	Success("Key is valid")
	return nil
}

// readKey prompts with echo disabled on a terminal and reads one line otherwise.
func readKey(in *os.File) (string, error) {
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Provider key: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	return readLine(in)
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
