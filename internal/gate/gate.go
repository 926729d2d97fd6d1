package gate

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/persona-state/internal/state"
)

// #region gate
// Gate is the last check before a candidate state is persisted. It re-verifies
// the engine's invariants against the whole candidate rather than trusting them.
type Gate struct {
	schema *state.Schema
	config GateConfig
}

// NewGate creates a gate. A nil schema uses state.DefaultSchema.
func NewGate(schema *state.Schema, config GateConfig) *Gate {
	if schema == nil {
		schema = state.DefaultSchema()
	}
	return &Gate{schema: schema, config: config}
}

// Evaluate checks a candidate produced from old by applying records.
func (g *Gate) Evaluate(old, proposed state.PersonaState, records []state.UpdateRecord) GateDecision {
	var vetoes []VetoSignal
	var checks []Check

	// 1. Every field in range
	violations := g.schema.Validate(proposed)
	for _, v := range violations {
		vetoes = append(vetoes, VetoSignal{Type: VetoRange, Path: v.Path, Reason: v.String()})
	}
	checks = append(checks, Check{Name: "schema", Pass: len(violations) == 0})

	// 2. Version advanced by exactly one per record
	wantVersion := old.Version + int64(len(records))
	versionOK := proposed.Version == wantVersion
	if !versionOK {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoVersion,
			Path:   "version",
			Reason: fmt.Sprintf("version %d, expected %d", proposed.Version, wantVersion),
		})
	}
	for i, r := range records {
		if r.Version != old.Version+int64(i)+1 {
			versionOK = false
			vetoes = append(vetoes, VetoSignal{
				Type:   VetoVersion,
				Path:   r.FieldPath,
				Reason: fmt.Sprintf("record %d carries version %d", i, r.Version),
			})
		}
	}
	checks = append(checks, Check{Name: "version", Pass: versionOK})

	// 3. History only appended to
	historyOK := historyExtends(old.History, proposed.History, records)
	if !historyOK {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoHistory,
			Path:   "history",
			Reason: fmt.Sprintf("history %d entries, expected %d + %d appended", len(proposed.History), len(old.History), len(records)),
		})
	}
	checks = append(checks, Check{Name: "history", Pass: historyOK})

	// 4. Each record within its field's drift cap
	driftOK := true
	for _, r := range records {
		spec, err := g.schema.Lookup(r.FieldPath)
		if err != nil {
			driftOK = false
			vetoes = append(vetoes, VetoSignal{Type: VetoField, Path: r.FieldPath, Reason: err.Error()})
			continue
		}
		if !spec.Numeric() && spec.Type != state.FieldEnum {
			continue
		}
		if math.Abs(r.Delta) > spec.DriftCap+g.config.DriftTolerance {
			driftOK = false
			vetoes = append(vetoes, VetoSignal{
				Type:   VetoDrift,
				Path:   r.FieldPath,
				Reason: fmt.Sprintf("delta %.4f exceeds cap %.4f", r.Delta, spec.DriftCap),
			})
		}
	}
	checks = append(checks, Check{Name: "drift", Pass: driftOK})

	if len(vetoes) > 0 {
		return GateDecision{
			Action:      "reject",
			Reason:      fmt.Sprintf("hard veto: %s", vetoes[0].Reason),
			Vetoed:      true,
			VetoSignals: vetoes,
			Checks:      checks,
		}
	}
	return GateDecision{
		Action: "commit",
		Reason: fmt.Sprintf("passed gate: %d records", len(records)),
		Checks: checks,
	}
}

// #endregion gate

// #region helpers
// historyExtends reports whether next is prev followed by exactly added.
func historyExtends(prev, next []state.UpdateRecord, added []state.UpdateRecord) bool {
	if len(next) != len(prev)+len(added) {
		return false
	}
	for i := range prev {
		if next[i].ID != prev[i].ID {
			return false
		}
	}
	for i, r := range added {
		if next[len(prev)+i].ID != r.ID {
			return false
		}
	}
	return true
}

// #endregion helpers
