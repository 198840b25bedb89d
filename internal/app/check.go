package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"ticket-drop-alerts/internal/storage"
)

// Check runs an immediate check of one tracked event and prints the outcome.
func (a *App) Check(ctx context.Context, opts CheckOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot check")
	}
	defer closeStore()

	event, err := store.GetEventByName(ctx, opts.Event)
	if err != nil {
		if errors.Is(err, storage.ErrEventNotFound) {
			return fmt.Errorf("event %q is not tracked; register it first", opts.Event)
		}
		return err
	}

	mon := a.newMonitor(store, nil)
	result := mon.CheckEvent(ctx, event)
	if result.Failed() {
		return fmt.Errorf("check failed (%s): %s", result.Cause, result.Error)
	}

	fmt.Fprintf(os.Stdout, "checked %s: %d snapshots, %d drops", event.Name, result.Snapshots, len(result.Drops))
	if result.SkippedQuotes > 0 {
		fmt.Fprintf(os.Stdout, " (%d malformed quotes skipped)", result.SkippedQuotes)
	}
	fmt.Fprintln(os.Stdout)

	for _, drop := range result.Drops {
		fmt.Fprintf(os.Stdout, "  %s: $%s -> $%s (%s%% off)\n",
			drop.Section,
			drop.OldPrice.StringFixed(2),
			drop.NewPrice.StringFixed(2),
			drop.DropPct.StringFixed(2),
		)
	}

	return nil
}
