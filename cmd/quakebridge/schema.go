package quakebridge

import (
	"time"

	pg "github.com/edgeflare/quakebridge/pkg/pgx"
	"github.com/edgeflare/quakebridge/pkg/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create the telemetry tables if they do not exist",
	Long: `Creates the alerts, magnitude and "heartbeat rate" tables and their timestamp indexes
in the configured schema. Existing tables are left untouched.`,
	RunE: runSchema,
}

func runSchema(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	pool, err := pg.Connect(ctx, pg.Pool{
		Name:       "schema",
		ConnString: cfg.Postgres.ConnString,
		MaxConns:   1,
		MaxElapsed: cfg.Postgres.ConnectTimeout,
	}, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	start := time.Now()
	if err := telemetry.EnsureSchema(ctx, pool, cfg.Postgres.Schema); err != nil {
		return err
	}
	logger.Info("telemetry tables ready", zap.String("schema", cfg.Postgres.Schema), zap.Duration("took", time.Since(start)))
	return nil
}
