package monitor

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-drop-alerts/internal/alerting"
	"ticket-drop-alerts/internal/fetcher"
	"ticket-drop-alerts/internal/storage"
)

type fakeStore struct {
	events    []storage.TrackedEvent
	snapshots map[int64][]storage.PriceSnapshot
	drops     map[int64][]storage.PriceDropRecord
	commitErr map[int64]error
	listErr   error
}

func newFakeStore(events ...storage.TrackedEvent) *fakeStore {
	return &fakeStore{
		events:    events,
		snapshots: make(map[int64][]storage.PriceSnapshot),
		drops:     make(map[int64][]storage.PriceDropRecord),
		commitErr: make(map[int64]error),
	}
}

func (s *fakeStore) CreateEvent(_ context.Context, event storage.TrackedEvent) (storage.TrackedEvent, error) {
	event.ID = int64(len(s.events) + 1)
	s.events = append(s.events, event)
	return event, nil
}

func (s *fakeStore) ListTrackedEvents(context.Context) ([]storage.TrackedEvent, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.events, nil
}

func (s *fakeStore) GetEventByName(_ context.Context, name string) (storage.TrackedEvent, error) {
	for _, event := range s.events {
		if event.Name == name {
			return event, nil
		}
	}
	return storage.TrackedEvent{}, storage.ErrEventNotFound
}

func (s *fakeStore) LatestSnapshots(_ context.Context, eventID int64) (map[string]storage.PriceSnapshot, error) {
	latest := make(map[string]storage.PriceSnapshot)
	for _, snapshot := range s.snapshots[eventID] {
		prior, ok := latest[snapshot.Section]
		if !ok || snapshot.ObservedAt.After(prior.ObservedAt) {
			latest[snapshot.Section] = snapshot
		}
	}
	return latest, nil
}

func (s *fakeStore) CommitCheckResult(_ context.Context, eventID int64, snapshots []storage.PriceSnapshot, drops []storage.PriceDropRecord, _ time.Time) error {
	if err := s.commitErr[eventID]; err != nil {
		return err
	}
	s.snapshots[eventID] = append(s.snapshots[eventID], snapshots...)
	s.drops[eventID] = append(s.drops[eventID], drops...)
	return nil
}

func (s *fakeStore) ListHistory(_ context.Context, eventID int64, section string, limit int) ([]storage.PriceSnapshot, error) {
	history := make([]storage.PriceSnapshot, 0)
	for _, snapshot := range s.snapshots[eventID] {
		if section == "" || snapshot.Section == section {
			history = append(history, snapshot)
		}
	}
	sort.Slice(history, func(i, j int) bool { return history[i].ObservedAt.After(history[j].ObservedAt) })
	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}
	return history, nil
}

func (s *fakeStore) ListSnapshotsBetween(_ context.Context, eventID int64, section string, from, to time.Time) ([]storage.PriceSnapshot, error) {
	out := make([]storage.PriceSnapshot, 0)
	for _, snapshot := range s.snapshots[eventID] {
		if section != "" && snapshot.Section != section {
			continue
		}
		if snapshot.ObservedAt.Before(from) || !snapshot.ObservedAt.Before(to) {
			continue
		}
		out = append(out, snapshot)
	}
	return out, nil
}

func (s *fakeStore) ListDropsSince(_ context.Context, since time.Time) ([]storage.EventDrop, error) {
	out := make([]storage.EventDrop, 0)
	for eventID, drops := range s.drops {
		var name string
		for _, event := range s.events {
			if event.ID == eventID {
				name = event.Name
			}
		}
		for _, drop := range drops {
			if !drop.DetectedAt.Before(since) {
				out = append(out, storage.EventDrop{PriceDropRecord: drop, EventName: name})
			}
		}
	}
	return out, nil
}

type fakeFetcher struct {
	quotes map[string][]fetcher.RawQuote
	errs   map[string]error
	calls  []string
}

func (f *fakeFetcher) FetchQuotes(_ context.Context, eventURL string) ([]fetcher.RawQuote, error) {
	f.calls = append(f.calls, eventURL)
	if err := f.errs[eventURL]; err != nil {
		return nil, err
	}
	return f.quotes[eventURL], nil
}

type fakeNotifier struct {
	notes []alerting.Notification
}

func (n *fakeNotifier) Notify(_ context.Context, note alerting.Notification) error {
	n.notes = append(n.notes, note)
	return nil
}

func quoteAt(section string, price float64, at time.Time) fetcher.RawQuote {
	return fetcher.RawQuote{
		Section:    section,
		Price:      decimal.NewFromFloat(price),
		Available:  true,
		Source:     "Toyota Center",
		ObservedAt: at,
	}
}

func event(id int64, name, url string) storage.TrackedEvent {
	return storage.TrackedEvent{ID: id, Name: name, Venue: "Toyota Center", URL: url}
}

func newTestMonitor(store *fakeStore, quotes *fakeFetcher, notifier alerting.Notifier, opts Options) *Monitor {
	return New(store, store, quotes, notifier, nil, nil, zerolog.Nop(), opts)
}

func TestRunCycleEndToEndDropThenIdempotent(t *testing.T) {
	now := time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)
	store := newFakeStore(event(1, "Concert A", "https://vendor/a"))
	store.snapshots[1] = []storage.PriceSnapshot{{
		EventID: 1, Section: "101", Price: decimal.NewFromFloat(120.00), ObservedAt: now.Add(-time.Hour),
	}}

	quotes := &fakeFetcher{quotes: map[string][]fetcher.RawQuote{
		"https://vendor/a": {quoteAt("101", 95.00, now), quoteAt("202", 60.00, now)},
	}}

	mon := newTestMonitor(store, quotes, nil, Options{})

	report, err := mon.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.EventsChecked)
	assert.Equal(t, 0, report.EventsFailed)
	assert.Equal(t, 1, report.DropsDetected)

	require.Len(t, store.drops[1], 1)
	drop := store.drops[1][0]
	assert.Equal(t, "101", drop.Section)
	assert.Equal(t, "20.83", drop.DropPct.StringFixed(2))
	assert.Len(t, store.snapshots[1], 3)

	// Second pass with unchanged vendor data: snapshots accumulate, no new drops.
	report, err = mon.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.DropsDetected)
	assert.Len(t, store.drops[1], 1)
	assert.Len(t, store.snapshots[1], 5)
}

func TestRunCycleIsolatesScrapeFailure(t *testing.T) {
	now := time.Now().UTC()
	store := newFakeStore(
		event(1, "Concert A", "https://vendor/a"),
		event(2, "Concert B", "https://vendor/b"),
		event(3, "Concert C", "https://vendor/c"),
	)
	quotes := &fakeFetcher{
		quotes: map[string][]fetcher.RawQuote{
			"https://vendor/a": {quoteAt("101", 90, now)},
			"https://vendor/c": {quoteAt("110", 45, now)},
		},
		errs: map[string]error{"https://vendor/b": errors.New("anti-bot block")},
	}

	mon := newTestMonitor(store, quotes, nil, Options{})
	report, err := mon.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.EventsChecked)
	assert.Equal(t, 1, report.EventsFailed)
	assert.Len(t, quotes.calls, 3, "failure must not skip subsequent events")

	require.Len(t, report.Results, 3)
	assert.Equal(t, CauseScrape, report.Results[1].Cause)
	assert.Contains(t, report.Results[1].Error, "anti-bot block")
}

func TestRunCycleCommitFailureIsStorageCause(t *testing.T) {
	now := time.Now().UTC()
	store := newFakeStore(event(1, "Concert A", "https://vendor/a"))
	store.commitErr[1] = errors.New("connection reset")

	quotes := &fakeFetcher{quotes: map[string][]fetcher.RawQuote{
		"https://vendor/a": {quoteAt("101", 90, now)},
	}}

	mon := newTestMonitor(store, quotes, nil, Options{})
	report, err := mon.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.EventsFailed)
	assert.Equal(t, CauseStorage, report.Results[0].Cause)
	assert.Empty(t, store.snapshots[1], "failed commit must leave no partial writes")
}

func TestRunCycleAllMalformedBatchIsDataFailure(t *testing.T) {
	store := newFakeStore(event(1, "Concert A", "https://vendor/a"))
	quotes := &fakeFetcher{quotes: map[string][]fetcher.RawQuote{
		"https://vendor/a": {
			{Section: "", Price: decimal.NewFromInt(40)},
			{Section: "101", Price: decimal.NewFromInt(-1)},
		},
	}}

	mon := newTestMonitor(store, quotes, nil, Options{})
	report, err := mon.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.EventsFailed)
	assert.Equal(t, CauseData, report.Results[0].Cause)
	assert.Equal(t, 2, report.Results[0].SkippedQuotes)
}

func TestRunCycleEmptyQuoteBatchSucceeds(t *testing.T) {
	store := newFakeStore(event(1, "Concert A", "https://vendor/a"))
	quotes := &fakeFetcher{quotes: map[string][]fetcher.RawQuote{}}

	mon := newTestMonitor(store, quotes, nil, Options{})
	report, err := mon.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.EventsChecked)
	assert.Equal(t, 0, report.EventsFailed)
}

func TestNotifierThreshold(t *testing.T) {
	now := time.Now().UTC()
	store := newFakeStore(event(1, "Concert A", "https://vendor/a"))
	store.snapshots[1] = []storage.PriceSnapshot{
		{EventID: 1, Section: "101", Price: decimal.NewFromFloat(120.00), ObservedAt: now.Add(-time.Hour)},
		{EventID: 1, Section: "202", Price: decimal.NewFromFloat(60.00), ObservedAt: now.Add(-time.Hour)},
	}
	quotes := &fakeFetcher{quotes: map[string][]fetcher.RawQuote{
		"https://vendor/a": {
			quoteAt("101", 95.00, now), // 20.83% off
			quoteAt("202", 58.00, now), // 3.33% off
		},
	}}

	notifier := &fakeNotifier{}
	mon := newTestMonitor(store, quotes, notifier, Options{MinDropPct: decimal.NewFromInt(10)})

	report, err := mon.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.DropsDetected, "both drops are recorded regardless of alert threshold")

	require.Len(t, notifier.notes, 1)
	assert.Equal(t, "101", notifier.notes[0].Section)
	assert.Equal(t, "Concert A", notifier.notes[0].EventName)
}

func TestReportsHistoryRetained(t *testing.T) {
	store := newFakeStore(event(1, "Concert A", "https://vendor/a"))
	quotes := &fakeFetcher{quotes: map[string][]fetcher.RawQuote{}}
	mon := newTestMonitor(store, quotes, nil, Options{ReportHistory: 2})

	for i := 0; i < 5; i++ {
		_, err := mon.RunCycle(context.Background())
		require.NoError(t, err)
	}

	assert.Len(t, mon.Reports(), 2)
}

func TestRunCycleDrainsAtEventBoundary(t *testing.T) {
	now := time.Now().UTC()
	store := newFakeStore(
		event(1, "Concert A", "https://vendor/a"),
		event(2, "Concert B", "https://vendor/b"),
	)
	quotes := &fakeFetcher{quotes: map[string][]fetcher.RawQuote{
		"https://vendor/a": {quoteAt("101", 90, now)},
		"https://vendor/b": {quoteAt("101", 90, now)},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mon := newTestMonitor(store, quotes, nil, Options{})
	report, err := mon.RunCycle(ctx)
	require.NoError(t, err)

	assert.True(t, report.Drained)
	assert.Empty(t, quotes.calls, "no event starts after stop is observed")
}
