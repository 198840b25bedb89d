package detector

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-drop-alerts/internal/fetcher"
	"ticket-drop-alerts/internal/storage"
)

var detectedAt = time.Date(2025, 3, 14, 18, 30, 0, 0, time.UTC)

func priorOf(prices map[string]float64) map[string]storage.PriceSnapshot {
	prior := make(map[string]storage.PriceSnapshot, len(prices))
	for section, price := range prices {
		prior[section] = storage.PriceSnapshot{
			EventID:    1,
			Section:    section,
			Price:      decimal.NewFromFloat(price),
			ObservedAt: detectedAt.Add(-time.Hour),
		}
	}
	return prior
}

func quote(section string, price float64) fetcher.RawQuote {
	return fetcher.RawQuote{
		Section:    section,
		Price:      decimal.NewFromFloat(price),
		Available:  true,
		Source:     "Toyota Center",
		ObservedAt: detectedAt,
	}
}

func TestReconcileDetectsDrop(t *testing.T) {
	result := Reconcile(1, priorOf(map[string]float64{"101": 120.00}), []fetcher.RawQuote{
		quote("101", 95.00),
		quote("202", 60.00),
	}, detectedAt)

	require.Len(t, result.Snapshots, 2)
	require.Len(t, result.Drops, 1)

	drop := result.Drops[0]
	assert.Equal(t, "101", drop.Section)
	assert.True(t, drop.OldPrice.Equal(decimal.NewFromFloat(120.00)), "old price %s", drop.OldPrice)
	assert.True(t, drop.NewPrice.Equal(decimal.NewFromFloat(95.00)), "new price %s", drop.NewPrice)
	assert.Equal(t, "20.83", drop.DropPct.StringFixed(2))

	assert.Equal(t, "101", result.Snapshots[0].Section)
	assert.Equal(t, "202", result.Snapshots[1].Section)
	assert.Equal(t, detectedAt, result.Snapshots[0].ObservedAt)
}

func TestReconcileEqualOrHigherPriceIsNotADrop(t *testing.T) {
	prior := priorOf(map[string]float64{"101": 95.00})

	for name, price := range map[string]float64{"equal": 95.00, "higher": 140.00} {
		t.Run(name, func(t *testing.T) {
			result := Reconcile(1, prior, []fetcher.RawQuote{quote("101", price)}, detectedAt)
			require.Len(t, result.Snapshots, 1)
			assert.Empty(t, result.Drops)
		})
	}
}

func TestReconcileBootstrapSection(t *testing.T) {
	result := Reconcile(1, map[string]storage.PriceSnapshot{}, []fetcher.RawQuote{quote("410", 28.50)}, detectedAt)

	require.Len(t, result.Snapshots, 1)
	assert.Empty(t, result.Drops)
	assert.True(t, result.Snapshots[0].Price.Equal(decimal.NewFromFloat(28.50)))
}

func TestReconcileZeroPriorNeverDivides(t *testing.T) {
	result := Reconcile(1, priorOf(map[string]float64{"101": 0}), []fetcher.RawQuote{quote("101", 0)}, detectedAt)

	require.Len(t, result.Snapshots, 1)
	assert.Empty(t, result.Drops)
}

func TestReconcileDuplicateSectionComparesAgainstSamePrior(t *testing.T) {
	// Two listings for section 101 in one batch: both diff against the
	// stored prior of 120, not against each other.
	result := Reconcile(1, priorOf(map[string]float64{"101": 120.00}), []fetcher.RawQuote{
		quote("101", 95.00),
		quote("101", 100.00),
	}, detectedAt)

	require.Len(t, result.Snapshots, 2)
	require.Len(t, result.Drops, 2)
	assert.Equal(t, "20.83", result.Drops[0].DropPct.StringFixed(2))
	assert.Equal(t, "16.67", result.Drops[1].DropPct.StringFixed(2))
}

func TestReconcileSkipsMalformedQuotes(t *testing.T) {
	bad := fetcher.RawQuote{Section: "113", Price: decimal.NewFromInt(-5), Available: true}
	result := Reconcile(1, nil, []fetcher.RawQuote{
		{Section: "  ", Price: decimal.NewFromInt(40)},
		bad,
		quote("202", 60.00),
	}, detectedAt)

	assert.Equal(t, 2, result.Malformed)
	require.Len(t, result.Snapshots, 1)
	assert.Equal(t, "202", result.Snapshots[0].Section)
}

func TestReconcileRowCollapsesIntoSectionKey(t *testing.T) {
	row := quote("101", 80.00)
	row.Row = "F"
	result := Reconcile(1, priorOf(map[string]float64{"101": 120.00}), []fetcher.RawQuote{row}, detectedAt)

	require.Len(t, result.Drops, 1)
	require.NotNil(t, result.Snapshots[0].Row)
	assert.Equal(t, "F", *result.Snapshots[0].Row)
}
