package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/daru-lab/jeonseguard/internal/address"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <address>",
	Short: "Resolve a lot-number address to its parcel key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resolver := address.NewResolver(&address.CSVTableLoader{
			Path: cfg.Address.TablePath,
			UTF8: cfg.Address.TableUTF8,
		})

		key, err := resolver.Resolve(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]string{
			"normalized":  address.Normalize(args[0]),
			"pnu":         key.PNU(),
			"raw":         key.Raw(),
			"address_key": key.AddressKey(),
		})
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}
