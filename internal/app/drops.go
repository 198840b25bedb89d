package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Drops prints recent price drops across all tracked events.
func (a *App) Drops(ctx context.Context, opts DropsOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot list drops")
	}
	defer closeStore()

	since := time.Now().UTC().Add(-time.Duration(opts.Hours) * time.Hour)
	drops, err := store.ListDropsSince(ctx, since)
	if err != nil {
		return err
	}
	if len(drops) == 0 {
		fmt.Fprintln(os.Stdout, "no drops found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Detected (UTC)\tEvent\tSection\tOld\tNew\tDrop%")

	for _, drop := range drops {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			drop.DetectedAt.UTC().Format(time.RFC3339),
			drop.EventName,
			drop.Section,
			drop.OldPrice.StringFixed(2),
			drop.NewPrice.StringFixed(2),
			drop.DropPct.StringFixed(2),
		)
	}

	writer.Flush()
	return nil
}
