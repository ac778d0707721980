package cli

import (
	"github.com/spf13/cobra"
)

var (
	checkCoins   []string
	checkProfile string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one manual processing pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Check(cmd.Context(), checkCoins, checkProfile)
	},
}

func init() {
	checkCmd.Flags().StringSliceVar(&checkCoins, "coins", nil, "Symbols to process (defaults to the configured monitored set)")
	checkCmd.Flags().StringVar(&checkProfile, "profile", "manual", "Classification profile (production or manual)")
}
