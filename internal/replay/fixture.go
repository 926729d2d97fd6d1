package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/danielpatrickdp/persona-state/internal/gate"
	"github.com/danielpatrickdp/persona-state/internal/state"
	"github.com/danielpatrickdp/persona-state/internal/update"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	UserID          string                  `json:"user_id"`
	StartState      json.RawMessage         `json:"start_state,omitempty"` // overlaid on the defaults
	Config          FixtureConfig           `json:"config"`
	Events          []FixtureEvent          `json:"events"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
	ExpectedVersion int64                   `json:"expected_version"`
	ExpectedFinal   map[string]string       `json:"expected_final"` // path -> rendered value
}

// FixtureEvent mirrors update.FeedbackEvent with JSON tags.
type FixtureEvent struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	TargetField   string    `json:"target_field"`
	Direction     float64   `json:"direction"`
	Confidence    float64   `json:"confidence"`
	SourceContext string    `json:"source_context,omitempty"`
	Label         string    `json:"label,omitempty"`
	ObservedAt    time.Time `json:"observed_at"`
}

// FixtureExpectedResult captures the expected action per event.
type FixtureExpectedResult struct {
	EventID string `json:"event_id"`
	Action  string `json:"action"`
}

// FixtureConfig holds the tunables a fixture pins. Zero values take defaults.
type FixtureConfig struct {
	EnumThreshold    float64            `json:"enum_threshold,omitempty"`
	FatigueRetention int                `json:"fatigue_retention,omitempty"`
	DriftTolerance   float64            `json:"drift_tolerance,omitempty"`
	DriftCaps        map[string]float64 `json:"drift_caps,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if f.UserID == "" {
		return nil, fmt.Errorf("fixture %s: user_id is required", path)
	}
	return &f, nil
}

// ToStartState overlays the fixture's start state on the defaults.
func (f *Fixture) ToStartState() (state.PersonaState, error) {
	st := state.Default(f.UserID)
	if len(f.StartState) > 0 {
		if err := json.Unmarshal(f.StartState, &st); err != nil {
			return state.PersonaState{}, fmt.Errorf("parse start_state: %w", err)
		}
		st.UserID = f.UserID
	}
	return st, nil
}

// ToEvents converts fixture events to domain events.
func (f *Fixture) ToEvents() []update.FeedbackEvent {
	out := make([]update.FeedbackEvent, len(f.Events))
	for i, fe := range f.Events {
		out[i] = fe.ToEvent()
	}
	return out
}

// ToEvent converts a FixtureEvent to a domain event.
func (fe FixtureEvent) ToEvent() update.FeedbackEvent {
	return update.FeedbackEvent{
		ID:            fe.ID,
		Kind:          state.FeedbackKind(fe.Kind),
		TargetField:   fe.TargetField,
		Direction:     fe.Direction,
		Confidence:    fe.Confidence,
		SourceContext: fe.SourceContext,
		Label:         fe.Label,
		ObservedAt:    fe.ObservedAt,
	}
}

// ToReplayConfig converts a FixtureConfig to a domain ReplayConfig.
func (fc FixtureConfig) ToReplayConfig() ReplayConfig {
	cfg := DefaultReplayConfig()
	if fc.EnumThreshold > 0 {
		cfg.UpdateConfig.EnumThreshold = fc.EnumThreshold
	}
	if fc.FatigueRetention > 0 {
		cfg.UpdateConfig.FatigueRetention = fc.FatigueRetention
	}
	if fc.DriftTolerance > 0 {
		cfg.GateConfig = gate.GateConfig{DriftTolerance: fc.DriftTolerance}
	}
	cfg.DriftCaps = fc.DriftCaps
	return cfg
}

// DecodeLoggedEvent parses an event serialized into the decision log.
func DecodeLoggedEvent(data string) (update.FeedbackEvent, error) {
	var ev update.FeedbackEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return update.FeedbackEvent{}, fmt.Errorf("decode logged event: %w", err)
	}
	return ev, nil
}

// #endregion fixture-loader

// #region fixture-check

// Check compares a replay against the fixture's expectations and returns one
// message per mismatch.
func (f *Fixture) Check(results []ReplayResult, final state.PersonaState) []string {
	var out []string
	if len(f.ExpectedResults) > 0 && len(results) != len(f.ExpectedResults) {
		out = append(out, fmt.Sprintf("expected %d results, got %d", len(f.ExpectedResults), len(results)))
	}
	for i, exp := range f.ExpectedResults {
		if i >= len(results) {
			break
		}
		got := results[i]
		if got.EventID != exp.EventID {
			out = append(out, fmt.Sprintf("event %d: expected id=%s, got %s", i, exp.EventID, got.EventID))
		}
		if got.Action != exp.Action {
			out = append(out, fmt.Sprintf("event %d (%s): expected action=%s, got %s (reason: %s)", i, exp.EventID, exp.Action, got.Action, got.Reason))
		}
	}
	if f.ExpectedVersion > 0 && final.Version != f.ExpectedVersion {
		out = append(out, fmt.Sprintf("expected final version %d, got %d", f.ExpectedVersion, final.Version))
	}
	for path, want := range f.ExpectedFinal {
		got, ok := renderField(final, path)
		if !ok {
			out = append(out, fmt.Sprintf("%s: not present in final state", path))
			continue
		}
		if got != want {
			out = append(out, fmt.Sprintf("%s: expected %s, got %s", path, want, got))
		}
	}
	return out
}

func renderField(st state.PersonaState, path string) (string, bool) {
	if v, ok := st.Category(path); ok {
		return v, true
	}
	if v, ok := st.Number(path); ok {
		return state.FormatNumber(v), true
	}
	return "", false
}

// #endregion fixture-check
