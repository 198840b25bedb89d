package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"ticket-drop-alerts/internal/storage"
)

// Export renders one event's price history as CSV and/or a per-section PNG chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	defer closeStore()

	event, err := store.GetEventByName(ctx, opts.Event)
	if err != nil {
		return err
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-30 * 24 * time.Hour)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	snapshots, err := store.ListSnapshotsBetween(ctx, event.ID, opts.Section, from, to)
	if err != nil {
		return err
	}
	if len(snapshots) == 0 {
		a.Logger.Info().Msg("no snapshots found for export window")
		return nil
	}

	downsampled := downsampleSnapshots(snapshots, opts.MaxPoints)
	a.Logger.Info().Int("total", len(snapshots)).Int("exported", len(downsampled)).Msg("exporting snapshots")

	if opts.CSVPath != "" {
		if err := writeSnapshotsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSnapshotsPNG(opts.PNGPath, event.Name, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleSnapshots(snapshots []storage.PriceSnapshot, max int) []storage.PriceSnapshot {
	if max <= 0 || len(snapshots) <= max {
		return snapshots
	}

	result := make([]storage.PriceSnapshot, 0, max)
	step := float64(len(snapshots)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(snapshots) {
			idx = len(snapshots) - 1
		}
		result = append(result, snapshots[idx])
	}
	return result
}

func writeSnapshotsCSV(path string, snapshots []storage.PriceSnapshot) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"observed_at", "section", "row", "price", "available", "source"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, snapshot := range snapshots {
		row := ""
		if snapshot.Row != nil {
			row = *snapshot.Row
		}
		available := "false"
		if snapshot.Available {
			available = "true"
		}
		record := []string{
			snapshot.ObservedAt.Format(time.RFC3339),
			snapshot.Section,
			row,
			snapshot.Price.String(),
			available,
			snapshot.Source,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeSnapshotsPNG(path, eventName string, snapshots []storage.PriceSnapshot) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	bySection := make(map[string][]storage.PriceSnapshot)
	for _, snapshot := range snapshots {
		bySection[snapshot.Section] = append(bySection[snapshot.Section], snapshot)
	}

	sections := make([]string, 0, len(bySection))
	for section := range bySection {
		sections = append(sections, section)
	}
	sort.Strings(sections)

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "$%.2f")
	}

	series := make([]chart.Series, 0, len(sections))
	for _, section := range sections {
		points := bySection[section]
		x := make([]time.Time, len(points))
		y := make([]float64, len(points))
		for i, snapshot := range points {
			x[i] = snapshot.ObservedAt
			y[i] = snapshot.Price.InexactFloat64()
		}
		series = append(series, chart.TimeSeries{
			Name:    "Section " + section,
			XValues: x,
			YValues: y,
		})
	}

	graph := chart.Chart{
		Title:  eventName,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price (USD)",
			ValueFormatter: priceFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
