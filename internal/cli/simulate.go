package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	simulateSymbol   string
	simulateCurrent  float64
	simulatePrevious float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Simulate a sentiment change and trigger the alert path",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateSymbol == "" {
			return errors.New("--symbol must be provided")
		}
		if simulateCurrent < 0 || simulateCurrent > 100 {
			return errors.New("--current must be within [0,100]")
		}
		if simulatePrevious > 100 {
			return errors.New("--previous must be within [0,100]")
		}

		return getApp().SimulateAlert(cmd.Context(), simulateSymbol, simulateCurrent, simulatePrevious)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSymbol, "symbol", "", "Symbol to simulate")
	simulateCmd.Flags().Float64Var(&simulateCurrent, "current", 0, "Current sentiment score (0-100)")
	simulateCmd.Flags().Float64Var(&simulatePrevious, "previous", -1, "Previous sentiment score; negative means no history")
}
