package main

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/daru-lab/jeonseguard/internal/assess"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <address> <deposit-manwon>",
	Short: "Assess one jeonse contract and print the result as JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		deposit, err := strconv.ParseFloat(args[1], 64)
		if err != nil || deposit <= 0 {
			return eris.Errorf("deposit must be a positive number of manwon, got %q", args[1])
		}

		env, err := initPipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Service.Assess(cmd.Context(), assess.Request{
			Address:       args[0],
			DepositManwon: deposit,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}
