package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rsclarke/msamon/internal/config"
	"github.com/rsclarke/msamon/internal/logging"
)

var (
	logger *zap.Logger
	cfg    *config.Config
)

var rootFlags struct {
	configPath string
}

var rootCmd = &cobra.Command{
	Use:   "msamon",
	Short: "Health monitor for HP MSA storage controllers",
	Long: `msamon polls the management API of an HP MSA storage controller,
caches session keys between runs, records component health and
sends an alert when a component reports a fault.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(rootFlags.configPath)
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.Log)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logging.Sync(logger)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.configPath, "config", getEnv("MSAMON_CONFIG", ""), "path to YAML config file")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
