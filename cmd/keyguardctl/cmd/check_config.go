package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/config"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the service configuration",
	Long: `Load the configuration the server would load from the environment and
report the first problem found. Exits non-zero when the server would refuse
to start.`,
	Args: cobra.NoArgs,
	RunE: runCheckConfig,
}

func init() {
	rootCmd.AddCommand(checkConfigCmd)
}

func runCheckConfig(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			Error("%s %s", cfgErr.Key, cfgErr.Reason)
		} else {
			Error("%v", err)
		}
		return fmt.Errorf("configuration is invalid")
	}

	Success("Configuration is valid")
	PrintKeyValue("Environment", cfg.Security.Environment)
	PrintKeyValue("Listen", cfg.ServerAddr())
	PrintKeyValue("Store", cfg.Store.Driver)
	PrintKeyValue("Provider", fmt.Sprintf("%s (%s)", cfg.Provider.Name, cfg.Provider.BaseURL))

	if cfg.Redis.URL == "" {
		Warning("REDIS_URL not set, sessions stay in memory and do not survive restarts")
	}
	if cfg.Auth.URL == "" {
		Warning("AUTH_URL not set, every authenticated route answers 503")
	}
	if isVerbose() {
		for _, origin := range cfg.AllowedOrigins() {
			PrintKeyValue("Origin", origin)
		}
		PrintKeyValue("General limit", tierString(cfg.RateLimit.General))
		PrintKeyValue("API limit", tierString(cfg.RateLimit.API))
		PrintKeyValue("Strict limit", tierString(cfg.RateLimit.Strict))
	}
	return nil
}

func tierString(t config.RateLimitTier) string {
	return fmt.Sprintf("%d per %s", t.Requests, t.Window)
}
