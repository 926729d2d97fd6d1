package logging

import "time"

// #region decision-entry
// DecisionEntry is a single row in the feedback_decisions table: what happened
// to one feedback event.
type DecisionEntry struct {
	ID          int64
	UserID      string
	EventID     string
	Kind        string
	TargetField string
	Direction   float64
	Confidence  float64
	Decision    string // "commit" | "no_op" | "drop" | "deferred"
	Reason      string
	Version     int64  // state version after the event
	RecordID    string // empty unless committed
	// EventJSON is the serialized event, kept for deterministic replay.
	EventJSON string
	CreatedAt time.Time
}

// #endregion decision-entry

// #region filter
// Filter narrows ListDecisions.
type Filter struct {
	UserID   string
	Decision string // empty = any
	Limit    int    // <= 0 = all
}

// #endregion filter
