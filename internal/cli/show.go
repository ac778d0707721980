package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"sentiment-alerts/internal/app"
)

var (
	showLimit int
	showJobs  bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent observations or processing jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit: showLimit,
			Jobs:  showJobs,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of rows to display")
	showCmd.Flags().BoolVar(&showJobs, "jobs", false, "Show processing jobs instead of observations")
}
