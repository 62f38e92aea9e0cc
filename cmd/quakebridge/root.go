// Package quakebridge is the command-line entry point of the bridge.
package quakebridge

import (
	"fmt"
	"os"
	"strings"

	"github.com/edgeflare/quakebridge/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	cfgFile string
	v       = config.New()
	cfg     *config.Config
	logger  = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "quakebridge",
	Short: "Bridge earthquake sensor telemetry from MQTT into PostgreSQL and live dashboards",
	Long: `quakebridge subscribes to the earthquake alert, magnitude and heartbeat topics of an MQTT
broker, stores every reading in PostgreSQL, pushes live events to browsers over WebSocket
and serves the stored history over a small JSON API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		used, err := config.ReadFile(v, cfgFile)
		if err != nil {
			return err
		}
		if cfg, err = config.Decode(v); err != nil {
			return err
		}
		if logger, err = newLogger(cfg.Log); err != nil {
			return err
		}
		if used != "" {
			logger.Info("using config file", zap.String("path", used))
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		if versionFlag, _ := cmd.Flags().GetBool("version"); versionFlag {
			fmt.Fprintln(cmd.OutOrStdout(), config.Version)
			return nil
		}
		return cmd.Help()
	},
}

func Main() {
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/quakebridge.yaml or ./quakebridge.yaml)")
	pf.StringP("log-level", "L", "info", "log at this level (debug, info, warn, error, none)")
	pf.StringP("postgres.connString", "c", "", "PostgreSQL connection string")
	pf.String("postgres.schema", "", "schema holding the telemetry tables")
	rootCmd.Flags().BoolP("version", "v", false, "Print the version number")

	_ = v.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = v.BindPFlag("postgres.connString", pf.Lookup("postgres.connString"))
	_ = v.BindPFlag("postgres.schema", pf.Lookup("postgres.schema"))

	rootCmd.AddCommand(serveCmd, schemaCmd)
}

// newLogger builds the process logger. Development mode and debug level both switch to the
// human-readable console encoder.
func newLogger(c config.LogConfig) (*zap.Logger, error) {
	if strings.EqualFold(c.Level, "none") {
		return zap.NewNop(), nil
	}
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}

	zc := zap.NewProductionConfig()
	if c.Development || level == zapcore.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
