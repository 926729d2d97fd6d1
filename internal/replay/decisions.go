package replay

import (
	"fmt"

	"github.com/danielpatrickdp/persona-state/internal/logging"
	"github.com/danielpatrickdp/persona-state/internal/update"
)

// #region decision-log

// LoggedRun is the replayable part of a user's decision log.
type LoggedRun struct {
	Events   []update.FeedbackEvent
	Expected []FixtureExpectedResult
	// Skipped counts entries with no serialized event, such as deferrals.
	Skipped int
}

// FromDecisions rebuilds the event stream recorded in the decision log, with
// the action the live store took for each event.
func FromDecisions(entries []logging.DecisionEntry) (LoggedRun, error) {
	var run LoggedRun
	for _, e := range entries {
		if e.EventJSON == "" || e.Decision == update.ActionDeferred {
			run.Skipped++
			continue
		}
		ev, err := DecodeLoggedEvent(e.EventJSON)
		if err != nil {
			return LoggedRun{}, fmt.Errorf("decision %d: %w", e.ID, err)
		}
		run.Events = append(run.Events, ev)
		run.Expected = append(run.Expected, FixtureExpectedResult{EventID: ev.ID, Action: e.Decision})
	}
	return run, nil
}

// ExportFixture turns a logged run into a fixture that starts from the
// defaults and pins the recorded actions and final version.
func ExportFixture(userID, description string, entries []logging.DecisionEntry) (*Fixture, error) {
	run, err := FromDecisions(entries)
	if err != nil {
		return nil, err
	}
	f := &Fixture{
		Description:     description,
		UserID:          userID,
		Events:          make([]FixtureEvent, len(run.Events)),
		ExpectedResults: run.Expected,
	}
	for i, ev := range run.Events {
		f.Events[i] = FixtureEvent{
			ID:            ev.ID,
			Kind:          string(ev.Kind),
			TargetField:   ev.TargetField,
			Direction:     ev.Direction,
			Confidence:    ev.Confidence,
			SourceContext: ev.SourceContext,
			Label:         ev.Label,
			ObservedAt:    ev.ObservedAt,
		}
	}
	for _, exp := range run.Expected {
		if exp.Action == ActionCommit {
			f.ExpectedVersion++
		}
	}
	return f, nil
}

// #endregion decision-log
