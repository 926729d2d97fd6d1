package update

import (
	"fmt"
	"math"
	"sort"
	"time"

	apperrors "github.com/danielpatrickdp/persona-state/internal/errors"
	"github.com/danielpatrickdp/persona-state/internal/state"
	"github.com/google/uuid"
)

// recordNamespace seeds deterministic record IDs so replaying the same events
// yields the same history.
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("persona-state.update-record"))

// RecordID derives the record ID for a user's version.
func RecordID(userID string, version int64) string {
	return uuid.NewSHA1(recordNamespace, []byte(fmt.Sprintf("%s/%d", userID, version))).String()
}

// #region engine
// Engine applies bounded, explainable deltas to a PersonaState. It holds no
// per-user state; Apply is a pure function of its inputs and the clock.
type Engine struct {
	schema *state.Schema
	config UpdateConfig
	now    func() time.Time
}

// NewEngine creates an engine. A nil schema uses state.DefaultSchema.
func NewEngine(schema *state.Schema, config UpdateConfig) *Engine {
	if schema == nil {
		schema = state.DefaultSchema()
	}
	if config.EnumThreshold <= 0 {
		config.EnumThreshold = DefaultUpdateConfig().EnumThreshold
	}
	if config.FatigueRetention <= 0 {
		config.FatigueRetention = DefaultUpdateConfig().FatigueRetention
	}
	return &Engine{schema: schema, config: config, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the clock used when an event carries no ObservedAt.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Schema returns the schema the engine resolves paths against.
func (e *Engine) Schema() *state.Schema {
	return e.schema
}

// #endregion engine

// #region apply
// Apply computes the state that results from one event. The input state is never
// mutated. A non-nil error always comes with a drop decision and the unchanged state.
func (e *Engine) Apply(old state.PersonaState, ev FeedbackEvent) (UpdateResult, error) {
	res := UpdateResult{NewState: old, Event: ev}

	direction := sanitize(ev.Direction, -1, 1)
	confidence := sanitize(ev.Confidence, 0, 1)
	magnitude := direction * confidence
	if magnitude == 0 {
		res.Decision = Decision{Action: ActionNoOp, Reason: "zero magnitude"}
		return res, nil
	}
	if !ev.Kind.Valid() {
		return drop(res, apperrors.InvalidArgument(fmt.Sprintf("unknown feedback kind %q", ev.Kind)))
	}

	spec, err := e.schema.Lookup(ev.TargetField)
	if err != nil {
		return drop(res, err)
	}
	if ev.Kind == state.KindTemporal && spec.Path != state.PathFatigueSignals {
		res.Decision = Decision{Action: ActionNoOp, Reason: "temporal feedback only feeds the fatigue log"}
		return res, nil
	}

	next := old.Clone()
	ts := ev.ObservedAt
	if ts.IsZero() {
		ts = e.now()
	}

	var ch change
	switch spec.Type {
	case state.FieldContinuous:
		ch = e.applyContinuous(&next, spec, magnitude)
	case state.FieldInteger:
		ch = e.applyInteger(&next, spec, magnitude)
	case state.FieldCounter:
		ch = e.applyCounter(&next, spec, magnitude)
	case state.FieldEnum:
		ch = e.applyEnum(&next, spec, magnitude)
	case state.FieldSignalLog:
		ch = e.applySignalLog(&next, ev, magnitude, ts)
	case state.FieldBucketSet:
		ch, err = e.applyBucketSet(&next, ev, magnitude)
		if err != nil {
			return drop(res, err)
		}
	default:
		return drop(res, apperrors.UnknownField(spec.Path))
	}
	if ch.noop != "" {
		res.Decision = Decision{Action: ActionNoOp, Reason: ch.noop}
		return res, nil
	}

	if v := fieldViolation(e.schema, next, spec.Path); v != nil {
		return drop(res, apperrors.RangeViolation(v.Path, v.Value, v.Reason))
	}

	next.Version = old.Version + 1
	next.UpdatedAt = ts
	rec := state.UpdateRecord{
		ID:        RecordID(old.UserID, next.Version),
		Version:   next.Version,
		Timestamp: ts,
		FieldPath: spec.Path,
		OldValue:  ch.oldValue,
		NewValue:  ch.newValue,
		Delta:     ch.delta,
		Kind:      ev.Kind,
		EventID:   ev.ID,
		Rationale: rationale(ev, confidence, magnitude, spec.Path, ch),
	}
	next.History = append(next.History, rec)

	res.NewState = next
	res.Record = &next.History[len(next.History)-1]
	res.Decision = Decision{Action: ActionCommit, Reason: fmt.Sprintf("%s %s -> %s", spec.Path, ch.oldValue, ch.newValue)}
	return res, nil
}

// ApplyBatch applies events in order, each against the state left by the previous
// one. Dropped events are reported in their result and do not stop the batch.
func (e *Engine) ApplyBatch(old state.PersonaState, events []FeedbackEvent) (state.PersonaState, []UpdateResult) {
	cur := old
	results := make([]UpdateResult, 0, len(events))
	for _, ev := range events {
		res, err := e.Apply(cur, ev)
		res.Err = err
		results = append(results, res)
		cur = res.NewState
	}
	return cur, results
}

func drop(res UpdateResult, err error) (UpdateResult, error) {
	res.Decision = Decision{Action: ActionDrop, Reason: err.Error()}
	res.Err = err
	return res, err
}

// #endregion apply

// #region field-kinds
// change describes one field transition, or why there was none.
type change struct {
	oldValue string
	newValue string
	delta    float64
	note     string
	noop     string
}

func (e *Engine) applyContinuous(next *state.PersonaState, spec state.FieldSpec, magnitude float64) change {
	oldV, present := next.Number(spec.Path)
	if !present {
		oldV = spec.Default
	}
	newV := spec.Clamp(oldV + magnitude*spec.DriftCap)
	if present && newV == oldV {
		return change{noop: "already at bound " + state.FormatNumber(oldV)}
	}
	// A topic driven to the floor keeps its key, so the next event starts
	// from 0 and not from the default.
	next.SetNumber(spec.Path, newV)
	return change{oldValue: state.FormatNumber(oldV), newValue: state.FormatNumber(newV), delta: newV - oldV}
}

func (e *Engine) applyInteger(next *state.PersonaState, spec state.FieldSpec, magnitude float64) change {
	oldV, _ := next.Number(spec.Path)
	maxStep := math.Max(1, math.Floor(spec.DriftCap))

	p := pressureOf(next, spec.Path) + magnitude*spec.DriftCap
	steps := math.Trunc(p)
	steps = math.Max(-maxStep, math.Min(maxStep, steps))
	p -= steps

	newV := spec.Clamp(oldV + steps)
	if newV == oldV && steps != 0 {
		return change{noop: "already at bound " + state.FormatNumber(oldV)}
	}
	next.SetNumber(spec.Path, newV)
	setPressure(next, spec.Path, p)

	ch := change{oldValue: state.FormatNumber(oldV), newValue: state.FormatNumber(newV), delta: newV - oldV}
	if newV == oldV {
		ch.note = "pressure " + state.FormatNumber(p)
	}
	return ch
}

func (e *Engine) applyCounter(next *state.PersonaState, spec state.FieldSpec, magnitude float64) change {
	if magnitude < 0 {
		return change{noop: "counters only increase"}
	}
	oldV, _ := next.Number(spec.Path)
	newV := spec.Clamp(oldV + 1)
	if newV == oldV {
		return change{noop: "counter at maximum"}
	}
	next.SetNumber(spec.Path, newV)
	return change{oldValue: state.FormatNumber(oldV), newValue: state.FormatNumber(newV), delta: newV - oldV}
}

func (e *Engine) applyEnum(next *state.PersonaState, spec state.FieldSpec, magnitude float64) change {
	cur, _ := next.Category(spec.Path)
	idx := spec.EnumIndex(cur)
	if idx < 0 {
		idx = spec.EnumIndex(spec.DefaultCategory)
	}

	p := pressureOf(next, spec.Path) + magnitude*spec.DriftCap
	step := 0
	if math.Abs(p) >= e.config.EnumThreshold {
		if p > 0 {
			step = 1
		} else {
			step = -1
		}
		p = 0
	}
	newIdx := idx + step
	if newIdx < 0 {
		newIdx = 0
	}
	if newIdx >= len(spec.Enum) {
		newIdx = len(spec.Enum) - 1
	}
	if newIdx == idx && p == pressureOf(next, spec.Path) {
		return change{noop: "category unchanged"}
	}
	// Pressure below the threshold is hidden state, so it commits a record
	// even when the category holds.
	next.SetCategory(spec.Path, spec.Enum[newIdx])
	setPressure(next, spec.Path, p)

	ch := change{oldValue: cur, newValue: spec.Enum[newIdx], delta: float64(newIdx - idx)}
	if newIdx == idx {
		ch.note = "pressure " + state.FormatNumber(p) + "/" + state.FormatNumber(e.config.EnumThreshold)
	}
	return ch
}

func (e *Engine) applySignalLog(next *state.PersonaState, ev FeedbackEvent, magnitude float64, ts time.Time) change {
	if magnitude < 0 {
		return change{noop: "signal log is append-only"}
	}
	log := next.EnergyCadence.EngagementFatigueSignals
	before := len(log)
	signal := ev.Label
	if signal == "" {
		signal = "fatigue"
	}
	log = append(log, state.FatigueSignal{Timestamp: ts, Signal: signal, Kind: ev.Kind})
	if n := e.config.FatigueRetention; len(log) > n {
		log = append([]state.FatigueSignal(nil), log[len(log)-n:]...)
	}
	next.EnergyCadence.EngagementFatigueSignals = log
	return change{
		oldValue: fmt.Sprintf("%d signals", before),
		newValue: fmt.Sprintf("%d signals", len(log)),
		delta:    1,
		note:     signal,
	}
}

func (e *Engine) applyBucketSet(next *state.PersonaState, ev FeedbackEvent, magnitude float64) (change, error) {
	bucket, ok := state.NormalizeBucket(ev.Label)
	if !ok {
		return change{}, apperrors.InvalidArgument(fmt.Sprintf("invalid time bucket %q", ev.Label))
	}
	set := next.EnergyCadence.PreferredPostingTimes
	idx := sort.SearchStrings(set, bucket)
	present := idx < len(set) && set[idx] == bucket

	oldValue := joinBuckets(set)
	switch {
	case magnitude > 0 && !present:
		set = append(set, bucket)
		sort.Strings(set)
	case magnitude < 0 && present:
		set = append(set[:idx:idx], set[idx+1:]...)
	default:
		return change{noop: "bucket set unchanged"}, nil
	}
	next.EnergyCadence.PreferredPostingTimes = set
	return change{oldValue: oldValue, newValue: joinBuckets(set), delta: math.Copysign(1, magnitude), note: bucket}, nil
}

// #endregion field-kinds

// #region helpers
func sanitize(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}

func pressureOf(st *state.PersonaState, path string) float64 {
	return st.Pressure[path]
}

func setPressure(st *state.PersonaState, path string, p float64) {
	if p == 0 {
		delete(st.Pressure, path)
		return
	}
	if st.Pressure == nil {
		st.Pressure = map[string]float64{}
	}
	st.Pressure[path] = p
}

func joinBuckets(set []string) string {
	if len(set) == 0 {
		return "[]"
	}
	return fmt.Sprint(set)
}

// fieldViolation re-validates the touched field only. Problems in other fields
// are left to the gate, which vetoes the whole candidate.
func fieldViolation(schema *state.Schema, st state.PersonaState, path string) *state.Violation {
	for _, v := range schema.Validate(st) {
		if v.Path == path {
			return &v
		}
	}
	return nil
}

func rationale(ev FeedbackEvent, confidence, magnitude float64, path string, ch change) string {
	s := fmt.Sprintf("%s feedback (confidence %.2f, magnitude %+.2f) moved %s from %s to %s",
		ev.Kind, confidence, magnitude, path, ch.oldValue, ch.newValue)
	if ch.note != "" {
		s += " [" + ch.note + "]"
	}
	if ev.SourceContext != "" {
		s += ": " + ev.SourceContext
	}
	return s
}

// #endregion helpers
