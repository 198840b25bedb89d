package monitor

import (
	"time"

	"ticket-drop-alerts/internal/storage"
)

// FailureCause classifies why one event's check failed.
type FailureCause string

const (
	// CauseScrape marks a collaborator failure while fetching quotes.
	CauseScrape FailureCause = "scrape"
	// CauseStorage marks a read or commit failure against the history store.
	CauseStorage FailureCause = "storage"
	// CauseData marks a batch in which every quote was malformed.
	CauseData FailureCause = "data"
)

// EventResult is the structured outcome of one event's check. Failures are
// carried here for the caller to surface; the cycle never aborts on them.
type EventResult struct {
	EventID       int64                     `json:"event_id"`
	EventName     string                    `json:"event_name"`
	Snapshots     int                       `json:"snapshots"`
	Drops         []storage.PriceDropRecord `json:"drops"`
	SkippedQuotes int                       `json:"skipped_quotes"`
	Cause         FailureCause              `json:"cause,omitempty"`
	Err           error                     `json:"-"`
	Error         string                    `json:"error,omitempty"`
}

// Failed reports whether the check produced no durable result.
func (r EventResult) Failed() bool {
	return r.Cause != ""
}

// CycleReport summarises one full pass over the tracked events. It feeds
// observability only; control flow never branches on it.
type CycleReport struct {
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	EventsChecked int           `json:"events_checked"`
	EventsFailed  int           `json:"events_failed"`
	DropsDetected int           `json:"drops_detected"`
	Drained       bool          `json:"drained,omitempty"`
	Results       []EventResult `json:"results"`
}
