package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply PostgreSQL migrations",
	Long: `Apply every pending migration to the database named by DATABASE_URL.
Already-applied migrations are skipped. The server also migrates on start.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().String("database-url", "", "PostgreSQL URL (default $DATABASE_URL)")
	viper.BindPFlag("database_url", migrateCmd.Flags().Lookup("database-url")) //nolint:errcheck // flag exists

	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	url := viper.GetString("database_url")
	if url == "" {
		Error("DATABASE_URL is not set")
		return fmt.Errorf("no database configured")
	}

	pool, err := store.NewPool(cmd.Context(), store.PoolConfig{URL: url, MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := store.RunMigrations(pool); err != nil {
		return err
	}

	Success("Migrations applied")
	return nil
}
