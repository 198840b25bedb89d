package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ticket-drop-alerts/internal/app"
)

var (
	dropsHours int
)

var dropsCmd = &cobra.Command{
	Use:   "drops",
	Short: "Display recently detected price drops",
	RunE: func(cmd *cobra.Command, args []string) error {
		if dropsHours <= 0 {
			return fmt.Errorf("--hours must be greater than zero")
		}

		opts := app.DropsOptions{
			Hours: dropsHours,
		}

		return getApp().Drops(cmd.Context(), opts)
	},
}

func init() {
	dropsCmd.Flags().IntVar(&dropsHours, "hours", 24, "Look-back window in hours")
}
