package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ticket-drop-alerts/internal/app"
)

var (
	showEvent   string
	showSection string
	showLimit   int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent price snapshots for an event",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showEvent == "" {
			return fmt.Errorf("--event must be provided")
		}
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Event:   showEvent,
			Section: showSection,
			Limit:   showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showEvent, "event", "", "Name of the tracked event")
	showCmd.Flags().StringVar(&showSection, "section", "", "Restrict output to one section")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of snapshots to display")
}
