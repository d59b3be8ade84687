package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/daru-lab/jeonseguard/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "jeonseguard",
	Short: "Jeonse deposit fraud risk assessment",
	Long:  "Resolves Korean lot-number addresses, gathers price and registry data, and scores jeonse contracts for deposit-fraud risk.",
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
