package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parismobility/velocast/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "velocast",
	Short: "Paris bicycle traffic forecasting pipeline",
	Long:  "Ingests hourly bike counter data and Open-Meteo weather, engineers features, trains a gradient-boosted regressor, and serves run results.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
