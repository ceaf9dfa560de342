// Package cmd provides the CLI commands for keyguardctl.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	envFile string
	verbose bool
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "keyguardctl",
	Short: "Operator tooling for the MediScribe credential service",
	Long: `keyguardctl helps operators prepare and check a credential service deployment.

Examples:
  keyguardctl keygen                 Generate an ENCRYPTION_SECRET
  keyguardctl check-config           Validate the environment
  keyguardctl test-key               Check a provider key without storing it
  keyguardctl migrate                Apply PostgreSQL migrations`,
	SilenceUsage:      true,
	PersistentPreRunE: loadEnvFile,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file exported before running the command")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")) //nolint:errcheck // flag exists
	viper.AutomaticEnv()
}

// loadEnvFile exports every key of --env-file into the process environment.
// Variables already set in the environment win.
func loadEnvFile(_ *cobra.Command, _ []string) error {
	if envFile == "" {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read %s: %w", envFile, err)
	}

	for _, key := range v.AllKeys() {
		name := strings.ToUpper(key)
		if _, ok := os.LookupEnv(name); ok {
			continue
		}
		if err := os.Setenv(name, v.GetString(key)); err != nil {
			return err
		}
	}
	if isVerbose() {
		Info("Loaded %d variables from %s", len(v.AllKeys()), envFile)
	}
	return nil
}

// isVerbose returns whether verbose mode is enabled.
func isVerbose() bool {
	if verbose {
		return true
	}
	return viper.GetBool("verbose")
}
