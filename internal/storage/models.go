package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// TrackedEvent identifies one monitored event at the venue.
type TrackedEvent struct {
	ID            int64
	Name          string
	Venue         string
	URL           string
	CreatedAt     time.Time
	LastCheckedAt *time.Time
}

// PriceSnapshot is one observed section quote at one point in time.
// Snapshots are append-only; "latest" for an (event, section) key is the
// maximum by ObservedAt.
type PriceSnapshot struct {
	ID         int64
	EventID    int64
	Section    string
	Row        *string
	Price      decimal.Decimal
	Available  bool
	Source     string
	ObservedAt time.Time
}

// PriceDropRecord captures a detected decrease between two consecutive
// snapshots for the same (event, section) key.
type PriceDropRecord struct {
	ID         int64
	EventID    int64
	Section    string
	OldPrice   decimal.Decimal
	NewPrice   decimal.Decimal
	DropPct    decimal.Decimal
	DetectedAt time.Time
}
