// Package detector reconciles freshly observed ticket quotes against the most
// recently stored price per (event, section) key and derives drop records.
package detector

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ticket-drop-alerts/internal/fetcher"
	"ticket-drop-alerts/internal/storage"
)

var hundred = decimal.NewFromInt(100)

// Result carries the writes a reconcile pass produced. Snapshot and drop
// ordering follows quote insertion order.
type Result struct {
	Snapshots []storage.PriceSnapshot
	Drops     []storage.PriceDropRecord
	Malformed int
}

// Reconcile compares each quote against the prior latest snapshot for its
// section and emits one snapshot per valid quote plus a drop record whenever
// the new price is strictly below the prior one.
//
// Every quote compares against the stored prior only, never against earlier
// quotes in the same batch: duplicate section keys (e.g. two rows listed in
// one section) each diff against the same prior value. A section with no
// prior snapshot bootstraps with a snapshot and no drop. A prior price of
// zero yields a snapshot only; no division is attempted.
func Reconcile(eventID int64, priorLatest map[string]storage.PriceSnapshot, quotes []fetcher.RawQuote, detectedAt time.Time) Result {
	result := Result{
		Snapshots: make([]storage.PriceSnapshot, 0, len(quotes)),
		Drops:     make([]storage.PriceDropRecord, 0),
	}

	for _, quote := range quotes {
		section := strings.TrimSpace(quote.Section)
		if section == "" || quote.Price.IsNegative() {
			result.Malformed++
			continue
		}

		if prior, ok := priorLatest[section]; ok && quote.Price.LessThan(prior.Price) && prior.Price.IsPositive() {
			dropPct := prior.Price.Sub(quote.Price).Div(prior.Price).Mul(hundred)
			result.Drops = append(result.Drops, storage.PriceDropRecord{
				EventID:    eventID,
				Section:    section,
				OldPrice:   prior.Price,
				NewPrice:   quote.Price,
				DropPct:    dropPct.Round(2),
				DetectedAt: detectedAt,
			})
		}

		observedAt := quote.ObservedAt
		if observedAt.IsZero() {
			observedAt = detectedAt
		}

		snapshot := storage.PriceSnapshot{
			EventID:    eventID,
			Section:    section,
			Price:      quote.Price,
			Available:  quote.Available,
			Source:     quote.Source,
			ObservedAt: observedAt,
		}
		if quote.Row != "" {
			row := quote.Row
			snapshot.Row = &row
		}
		result.Snapshots = append(result.Snapshots, snapshot)
	}

	return result
}
