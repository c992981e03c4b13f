package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ramiqadoumi/go-countdown/internal/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the completion history schema",
	Long: `Connect to PostgreSQL and apply the embedded schema migrations.

Reads the DSN from --postgres-dsn flag, POSTGRES_DSN env var, or config file.`,
	PreRun: func(cmd *cobra.Command, _ []string) {
		bindFlag("postgres_dsn", cmd.Flags(), "postgres-dsn")
	},
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().String("postgres-dsn", "", "PostgreSQL connection string")
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	dsn := viper.GetString("postgres_dsn")
	if dsn == "" {
		return errors.New("postgres_dsn is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		return err
	}
	defer pool.Close()

	out := cmd.OutOrStdout()
	if err := postgres.Migrate(ctx, pool, func(f string) { fmt.Fprintf(out, "applied %s\n", f) }); err != nil {
		return err
	}
	fmt.Fprintln(out, "migrations complete")
	return nil
}
