package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints recent snapshots for one tracked event.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show snapshots")
	}
	defer closeStore()

	event, err := store.GetEventByName(ctx, opts.Event)
	if err != nil {
		return err
	}

	snapshots, err := store.ListHistory(ctx, event.ID, opts.Section, opts.Limit)
	if err != nil {
		return err
	}
	if len(snapshots) == 0 {
		fmt.Fprintln(os.Stdout, "no snapshots found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Observed (UTC)\tSection\tRow\tPrice\tAvailable\tSource")

	for _, snapshot := range snapshots {
		row := ""
		if snapshot.Row != nil {
			row = sanitizeInline(*snapshot.Row)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%t\t%s\n",
			snapshot.ObservedAt.UTC().Format(time.RFC3339),
			snapshot.Section,
			row,
			snapshot.Price.StringFixed(2),
			snapshot.Available,
			snapshot.Source,
		)
	}

	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
