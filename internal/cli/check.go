package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ticket-drop-alerts/internal/app"
)

var (
	checkEvent string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a one-off price check for a tracked event",
	RunE: func(cmd *cobra.Command, args []string) error {
		if checkEvent == "" {
			return fmt.Errorf("--event must be provided")
		}

		opts := app.CheckOptions{
			Event: checkEvent,
		}

		return getApp().Check(cmd.Context(), opts)
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkEvent, "event", "", "Name of the tracked event")
}
