package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/daru-lab/jeonseguard/internal/address"
)

var collectCmd = &cobra.Command{
	Use:   "collect <district-code>",
	Short: "Fetch recent trade and lease records for a district",
	Long:  "Pulls the recent year-month window of sale and jeonse records for a 5-digit district code from the national price API into the local store.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		districtCode := args[0]
		if len(districtCode) != 5 {
			return eris.Errorf("district code must be 5 digits, got %q", districtCode)
		}

		env, err := initPipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if env.Collector == nil {
			return eris.New("collect.service_key is not configured")
		}

		key := address.ParcelKey{DistrictCode: districtCode}
		if err := env.Collector.Collect(cmd.Context(), key); err != nil {
			return err
		}
		zap.L().Info("collection complete", zap.String("district", districtCode))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(collectCmd)
}
