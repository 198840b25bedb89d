package fetcher

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RawQuote is one vendor-reported section price as delivered by the scrape
// service. Row may be empty; section-level pricing is the dedup granularity.
type RawQuote struct {
	Section    string
	Row        string
	Price      decimal.Decimal
	Available  bool
	Source     string
	ObservedAt time.Time
}

// QuoteFetcher retrieves the current ticket quotes for one event page.
type QuoteFetcher interface {
	FetchQuotes(ctx context.Context, eventURL string) ([]RawQuote, error)
}
