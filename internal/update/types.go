package update

import (
	"time"

	"github.com/danielpatrickdp/persona-state/internal/state"
)

// #region feedback-event
// FeedbackEvent is one classified piece of evidence about a single field.
// It is produced by the classifier and consumed once by the engine.
type FeedbackEvent struct {
	ID          string
	Kind        state.FeedbackKind
	TargetField string
	Direction   float64 // [-1, 1]
	Confidence  float64 // [0, 1]
	// SourceContext is free-form text copied into the resulting record's rationale.
	SourceContext string
	// Label carries the payload for signal-log and bucket-set fields.
	Label      string
	ObservedAt time.Time
	// SampleID links an outcome event to the ledger sample it was scored from.
	SampleID int64 `json:",omitempty"`
}

// #endregion feedback-event

// #region decision
const (
	ActionCommit   = "commit"
	ActionNoOp     = "no_op"
	ActionDrop     = "drop"
	ActionDeferred = "deferred"
)

// Decision records what the engine decided for one event.
type Decision struct {
	Action string // "commit" | "no_op" | "drop" | "deferred"
	Reason string
}

// #endregion decision

// #region update-config
// UpdateConfig holds the engine's tunables.
type UpdateConfig struct {
	// EnumThreshold is the accumulated pressure needed to move an enum one step.
	// Above 1 so that no single event can flip a category.
	EnumThreshold float64
	// FatigueRetention caps the fatigue signal log.
	FatigueRetention int
}

// DefaultUpdateConfig returns the documented defaults.
func DefaultUpdateConfig() UpdateConfig {
	return UpdateConfig{
		EnumThreshold:    2.5,
		FatigueRetention: 30,
	}
}

// #endregion update-config

// #region update-result
// UpdateResult bundles everything returned by Apply. Record is nil unless the
// decision is a commit.
type UpdateResult struct {
	NewState state.PersonaState
	Record   *state.UpdateRecord
	Decision Decision
	Event    FeedbackEvent
	Err      error
}

// Committed reports whether the event produced a record.
func (r UpdateResult) Committed() bool {
	return r.Decision.Action == ActionCommit
}

// #endregion update-result
