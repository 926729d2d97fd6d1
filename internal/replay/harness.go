// Package replay re-runs recorded feedback events through the update engine and
// gate in memory, so a change to tunables can be checked against real history.
package replay

import (
	"fmt"
	"time"

	"github.com/danielpatrickdp/persona-state/internal/gate"
	"github.com/danielpatrickdp/persona-state/internal/state"
	"github.com/danielpatrickdp/persona-state/internal/update"
)

// #region types

// epoch stamps events recorded without a timestamp, so replays are reproducible.
var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Replay actions.
const (
	ActionCommit     = "commit"
	ActionGateReject = "gate_reject"
	ActionDrop       = "drop"
	ActionNoOp       = "no_op"
)

// ReplayConfig bundles update and gate configs for a replay run.
type ReplayConfig struct {
	UpdateConfig update.UpdateConfig
	GateConfig   gate.GateConfig
	DriftCaps    map[string]float64 // per-path overrides, "topic_affinity.*" for topics
}

// DefaultReplayConfig returns the production defaults.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		UpdateConfig: update.DefaultUpdateConfig(),
		GateConfig:   gate.DefaultGateConfig(),
	}
}

// Schema builds the schema the run uses.
func (c ReplayConfig) Schema() (*state.Schema, error) {
	schema := state.DefaultSchema()
	for path, driftCap := range c.DriftCaps {
		var err error
		if schema, err = schema.WithDriftCap(path, driftCap); err != nil {
			return nil, fmt.Errorf("drift cap %s: %w", path, err)
		}
	}
	return schema, nil
}

// ReplayResult captures the outcome of replaying one event.
type ReplayResult struct {
	EventID string
	Action  string
	Reason  string

	UpdateDecision update.Decision
	// GateDecision is nil unless the engine proposed a commit.
	GateDecision *gate.GateDecision
	Record       *state.UpdateRecord

	FinalVersion int64
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalEvents int
	Commits     int
	GateRejects int
	Drops       int
	NoOps       int
	FinalState  state.PersonaState
}

// #endregion types

// #region replay

// Replay applies events in order: update, then gate, then commit or reject.
// It touches no storage and is deterministic for a given input.
func Replay(start state.PersonaState, events []update.FeedbackEvent, config ReplayConfig) ([]ReplayResult, state.PersonaState, error) {
	schema, err := config.Schema()
	if err != nil {
		return nil, start, err
	}
	clock := epoch
	engine := update.NewEngine(schema, config.UpdateConfig).WithClock(func() time.Time { return clock })
	gateInst := gate.NewGate(schema, config.GateConfig)

	current := start.Clone()
	results := make([]ReplayResult, 0, len(events))
	for _, ev := range events {
		if !ev.ObservedAt.IsZero() {
			clock = ev.ObservedAt
		}
		res, _ := engine.Apply(current, ev)

		r := ReplayResult{EventID: ev.ID, UpdateDecision: res.Decision, Reason: res.Decision.Reason}
		switch res.Decision.Action {
		case update.ActionNoOp:
			r.Action = ActionNoOp
		case update.ActionDrop:
			r.Action = ActionDrop
		default:
			decision := gateInst.Evaluate(current, res.NewState, []state.UpdateRecord{*res.Record})
			r.GateDecision = &decision
			if decision.Vetoed {
				r.Action, r.Reason = ActionGateReject, decision.Reason
				break
			}
			current = res.NewState
			r.Action = ActionCommit
			r.Record = res.Record
		}
		r.FinalVersion = current.Version
		results = append(results, r)
	}
	return results, current, nil
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult, finalState state.PersonaState) ReplaySummary {
	s := ReplaySummary{
		TotalEvents: len(results),
		FinalState:  finalState,
	}
	for _, r := range results {
		switch r.Action {
		case ActionCommit:
			s.Commits++
		case ActionGateReject:
			s.GateRejects++
		case ActionDrop:
			s.Drops++
		case ActionNoOp:
			s.NoOps++
		}
	}
	return s
}

// #endregion replay
