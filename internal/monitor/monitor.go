// Package monitor drives the per-cycle check of all tracked events: fetch
// quotes, reconcile against stored history, commit each event's batch
// atomically, and report the outcome.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ticket-drop-alerts/internal/alerting"
	"ticket-drop-alerts/internal/detector"
	"ticket-drop-alerts/internal/fetcher"
	"ticket-drop-alerts/internal/metrics"
	"ticket-drop-alerts/internal/storage"
)

const defaultReportHistory = 64

// Options tune monitor behaviour.
type Options struct {
	// EventTimeout bounds one event's scrape-and-commit; zero means no bound.
	EventTimeout time.Duration
	// MinDropPct suppresses notifications for drops below this percentage.
	MinDropPct decimal.Decimal
	// LockKey enables a postgres advisory lock around scheduled cycles when
	// non-zero, so process replicas never scrape concurrently.
	LockKey int64
	// ReportHistory caps the in-memory cycle report log.
	ReportHistory int
}

// Monitor owns the monitoring cycle across all tracked events.
type Monitor struct {
	events   storage.EventStore
	history  storage.HistoryStore
	quotes   fetcher.QuoteFetcher
	notifier alerting.Notifier
	locker   storage.AdvisoryLocker
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	opts     Options

	mu      sync.Mutex
	reports []CycleReport
}

// New constructs a Monitor. notifier, locker, and metrics may be nil.
func New(events storage.EventStore, history storage.HistoryStore, quotes fetcher.QuoteFetcher, notifier alerting.Notifier, locker storage.AdvisoryLocker, m *metrics.Metrics, logger zerolog.Logger, opts Options) *Monitor {
	if opts.ReportHistory <= 0 {
		opts.ReportHistory = defaultReportHistory
	}
	return &Monitor{
		events:   events,
		history:  history,
		quotes:   quotes,
		notifier: notifier,
		locker:   locker,
		metrics:  m,
		logger:   logger.With().Str("component", "monitor").Logger(),
		opts:     opts,
	}
}

// Tick runs one scheduled cycle, guarded by the advisory lock when one is
// configured. Scheduler drives this on every interval fire.
func (m *Monitor) Tick(ctx context.Context) error {
	if m.opts.LockKey != 0 && m.locker != nil {
		unlock, acquired, err := m.locker.TryAdvisoryLock(ctx, m.opts.LockKey)
		if err != nil {
			return fmt.Errorf("acquire advisory lock: %w", err)
		}
		if !acquired {
			m.logger.Debug().Msg("skip cycle because advisory lock held elsewhere")
			return nil
		}
		defer unlock()
	}

	_, err := m.RunCycle(ctx)
	return err
}

// RunCycle checks every tracked event once. Individual event failures are
// absorbed into the report; only a failure to list the events themselves is
// returned. Cancellation is observed between events, never mid-event.
func (m *Monitor) RunCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{StartedAt: time.Now().UTC()}

	if m.metrics != nil {
		m.metrics.CyclesTotal.Inc()
		m.metrics.CycleInFlight.Set(1)
		defer m.metrics.CycleInFlight.Set(0)
		timer := time.Now()
		defer func() {
			m.metrics.CycleDurationSecs.Observe(time.Since(timer).Seconds())
		}()
	}

	events, err := m.events.ListTrackedEvents(ctx)
	if err != nil {
		return report, fmt.Errorf("list tracked events: %w", err)
	}

	for _, event := range events {
		if ctx.Err() != nil {
			m.logger.Info().Int("remaining", len(events)-len(report.Results)).Msg("cycle draining; remaining events deferred to next tick")
			report.Drained = true
			break
		}

		result := m.CheckEvent(ctx, event)
		report.Results = append(report.Results, result)

		if result.Failed() {
			report.EventsFailed++
			if m.metrics != nil {
				m.metrics.EventsFailed.WithLabelValues(string(result.Cause)).Inc()
			}
			m.logger.Error().Err(result.Err).
				Str("event", event.Name).
				Str("cause", string(result.Cause)).
				Msg("event check failed")
			continue
		}

		report.EventsChecked++
		report.DropsDetected += len(result.Drops)
		if m.metrics != nil {
			m.metrics.EventsChecked.Inc()
			m.metrics.SnapshotsWritten.Add(float64(result.Snapshots))
			m.metrics.DropsDetected.Add(float64(len(result.Drops)))
		}
	}

	report.FinishedAt = time.Now().UTC()
	m.recordReport(report)

	m.logger.Info().
		Int("checked", report.EventsChecked).
		Int("failed", report.EventsFailed).
		Int("drops", report.DropsDetected).
		Msg("cycle complete")

	return report, nil
}

// CheckEvent performs one event's scrape, reconcile, and commit. The event
// runs on a context detached from cycle cancellation: stopping the scheduler
// drains at event boundaries and never aborts a scrape in flight.
func (m *Monitor) CheckEvent(ctx context.Context, event storage.TrackedEvent) EventResult {
	result := EventResult{EventID: event.ID, EventName: event.Name}

	eventCtx := context.WithoutCancel(ctx)
	if m.opts.EventTimeout > 0 {
		var cancel context.CancelFunc
		eventCtx, cancel = context.WithTimeout(eventCtx, m.opts.EventTimeout)
		defer cancel()
	}

	quotes, err := m.quotes.FetchQuotes(eventCtx, event.URL)
	if err != nil {
		return result.failed(CauseScrape, fmt.Errorf("fetch quotes: %w", err))
	}

	prior, err := m.history.LatestSnapshots(eventCtx, event.ID)
	if err != nil {
		return result.failed(CauseStorage, fmt.Errorf("load latest snapshots: %w", err))
	}

	detectedAt := time.Now().UTC()
	reconciled := detector.Reconcile(event.ID, prior, quotes, detectedAt)
	result.SkippedQuotes = reconciled.Malformed

	if len(reconciled.Snapshots) == 0 && reconciled.Malformed > 0 {
		return result.failed(CauseData, fmt.Errorf("all %d quotes malformed", reconciled.Malformed))
	}

	if err := m.history.CommitCheckResult(eventCtx, event.ID, reconciled.Snapshots, reconciled.Drops, detectedAt); err != nil {
		return result.failed(CauseStorage, fmt.Errorf("commit check result: %w", err))
	}

	result.Snapshots = len(reconciled.Snapshots)
	result.Drops = reconciled.Drops

	for _, drop := range reconciled.Drops {
		m.logger.Info().
			Str("event", event.Name).
			Str("section", drop.Section).
			Str("old_price", drop.OldPrice.StringFixed(2)).
			Str("new_price", drop.NewPrice.StringFixed(2)).
			Str("drop_pct", drop.DropPct.StringFixed(2)).
			Msg("price drop detected")
		m.notifyDrop(eventCtx, event, drop)
	}

	return result
}

func (m *Monitor) notifyDrop(ctx context.Context, event storage.TrackedEvent, drop storage.PriceDropRecord) {
	if m.notifier == nil {
		return
	}
	if drop.DropPct.LessThan(m.opts.MinDropPct) {
		return
	}

	note := alerting.Notification{
		EventName:  event.Name,
		Venue:      event.Venue,
		Section:    drop.Section,
		OldPrice:   drop.OldPrice,
		NewPrice:   drop.NewPrice,
		DropPct:    drop.DropPct,
		DetectedAt: drop.DetectedAt,
		EventURL:   event.URL,
	}
	if err := m.notifier.Notify(ctx, note); err != nil {
		m.logger.Error().Err(err).Str("event", event.Name).Str("section", drop.Section).Msg("failed to dispatch drop alert")
	}
}

func (m *Monitor) recordReport(report CycleReport) {
	for i := range report.Results {
		if report.Results[i].Err != nil {
			report.Results[i].Error = report.Results[i].Err.Error()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, report)
	if len(m.reports) > m.opts.ReportHistory {
		m.reports = m.reports[len(m.reports)-m.opts.ReportHistory:]
	}
}

// Reports returns the retained cycle reports, newest last.
func (m *Monitor) Reports() []CycleReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CycleReport, len(m.reports))
	copy(out, m.reports)
	return out
}

func (r EventResult) failed(cause FailureCause, err error) EventResult {
	r.Cause = cause
	r.Err = err
	r.Error = err.Error()
	return r
}
