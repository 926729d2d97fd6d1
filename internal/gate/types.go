package gate

// #region veto-type
// VetoType enumerates hard veto categories.
type VetoType string

const (
	VetoRange   VetoType = "range_violation"
	VetoDrift   VetoType = "drift_cap_exceeded"
	VetoVersion VetoType = "version_not_monotonic"
	VetoHistory VetoType = "history_rewritten"
	VetoField   VetoType = "unknown_field"
)

// #endregion veto-type

// #region veto-signal
// VetoSignal represents a detected hard veto condition.
type VetoSignal struct {
	Type   VetoType
	Path   string
	Reason string
}

// #endregion veto-signal

// #region gate-config
// GateConfig holds tolerances for gate decisions.
type GateConfig struct {
	// DriftTolerance absorbs float rounding when comparing a record's delta to its cap.
	DriftTolerance float64
}

// DefaultGateConfig returns the default tolerances.
func DefaultGateConfig() GateConfig {
	return GateConfig{DriftTolerance: 1e-9}
}

// #endregion gate-config

// #region gate-check
// Check captures a single validation check result.
type Check struct {
	Name string
	Pass bool
}

// #endregion gate-check

// #region gate-decision
// GateDecision is the output of the gate evaluation.
type GateDecision struct {
	Action      string // "commit" | "reject"
	Reason      string
	Vetoed      bool
	VetoSignals []VetoSignal
	Checks      []Check
}

// #endregion gate-decision
