package state

import (
	"math"
	"sort"
	"strings"

	apperrors "github.com/danielpatrickdp/persona-state/internal/errors"
)

// #region field-paths
// Dotted field paths into PersonaState.
const (
	TopicPrefix = "topic_affinity."

	PathSentenceLength      = "tone_style.sentence_length"
	PathQuestionFrequency   = "tone_style.question_frequency"
	PathHumorFrequency      = "tone_style.humor_frequency"
	PathEmotionalIntensity  = "tone_style.emotional_intensity"
	PathFormality           = "tone_style.formality"
	PathContrarianTolerance = "tone_style.contrarian_tolerance"
	PathCertaintyLevel      = "tone_style.certainty_level"

	PathLikesBaseline        = "engagement_behavior.likes_per_day_baseline"
	PathRepliesBaseline      = "engagement_behavior.replies_per_day_baseline"
	PathFollowAfterReply     = "engagement_behavior.follow_after_reply_tendency"
	PathEarlyEngagement      = "engagement_behavior.early_engagement_tendency"
	PathReplyDepthPreference = "engagement_behavior.reply_depth_preference"

	PathHotTakesComfort    = "risk_sensitivity.hot_takes_comfort"
	PathSafeVsExperimental = "risk_sensitivity.safe_vs_experimental"
	PathChallengeOthers    = "risk_sensitivity.challenge_others_tendency"

	PathPostsTolerance        = "energy_cadence.posts_per_day_tolerance"
	PathFollowsTolerance      = "energy_cadence.follows_per_day_tolerance"
	PathConsistencyPreference = "energy_cadence.consistency_preference"
	PathFatigueSignals        = "energy_cadence.engagement_fatigue_signals"
	PathPostingTimes          = "energy_cadence.preferred_posting_times"

	PathApprovals  = "learning_totals.approvals"
	PathRejections = "learning_totals.rejections"
	PathEdits      = "learning_totals.edits"
)

// TopicPath builds the normalized path for a topic.
func TopicPath(topic string) string {
	return TopicPrefix + NormalizeTopic(topic)
}

// #endregion field-paths

// #region field-spec
// FieldType selects how the update engine moves a field.
type FieldType int

const (
	FieldContinuous FieldType = iota // clamped real in [Min, Max]
	FieldInteger                     // whole steps, sub-step movement kept as pressure
	FieldEnum                        // ordered categories, pressure then snap
	FieldCounter                     // monotonic tally, +1 per positive event
	FieldSignalLog                   // append-only fatigue records
	FieldBucketSet                   // unordered set of hour buckets
)

func (t FieldType) String() string {
	switch t {
	case FieldContinuous:
		return "continuous"
	case FieldInteger:
		return "integer"
	case FieldEnum:
		return "enum"
	case FieldCounter:
		return "counter"
	case FieldSignalLog:
		return "signal_log"
	case FieldBucketSet:
		return "bucket_set"
	}
	return "unknown"
}

// FieldSpec declares the type, valid range, default and drift cap of one field path.
type FieldSpec struct {
	Path            string
	Type            FieldType
	Min             float64
	Max             float64
	Enum            []string
	Default         float64
	DefaultCategory string
	// DriftCap is the largest change one update may apply. For enums it is one step.
	DriftCap float64
}

// Numeric reports whether the field holds a number.
func (f FieldSpec) Numeric() bool {
	return f.Type == FieldContinuous || f.Type == FieldInteger || f.Type == FieldCounter
}

// Clamp restricts v to [Min, Max]. NaN clamps to Min.
func (f FieldSpec) Clamp(v float64) float64 {
	if math.IsNaN(v) || v < f.Min {
		return f.Min
	}
	if v > f.Max {
		return f.Max
	}
	return v
}

// EnumIndex returns the position of v in Enum, or -1.
func (f FieldSpec) EnumIndex(v string) int {
	for i, e := range f.Enum {
		if e == v {
			return i
		}
	}
	return -1
}

// #endregion field-spec

// #region schema
// DefaultDriftFraction is the share of a field's range one update may move it.
const DefaultDriftFraction = 0.1

// Schema is the canonical catalog of persona fields.
type Schema struct {
	fields map[string]FieldSpec
	topic  FieldSpec
}

// NewSchema builds a schema. A zero DriftCap is filled with the default:
// 10% of range for numeric fields, one step for enums and counters.
func NewSchema(topic FieldSpec, specs ...FieldSpec) *Schema {
	s := &Schema{fields: make(map[string]FieldSpec, len(specs)), topic: withDefaultCap(topic)}
	for _, f := range specs {
		s.fields[f.Path] = withDefaultCap(f)
	}
	return s
}

func withDefaultCap(f FieldSpec) FieldSpec {
	if f.DriftCap > 0 {
		return f
	}
	switch f.Type {
	case FieldContinuous, FieldInteger:
		f.DriftCap = (f.Max - f.Min) * DefaultDriftFraction
	default:
		f.DriftCap = 1
	}
	return f
}

// WithDriftCap returns a copy of the schema with one field's drift cap overridden.
// The topic wildcard is addressed as "topic_affinity.*".
func (s *Schema) WithDriftCap(path string, driftCap float64) (*Schema, error) {
	out := &Schema{fields: make(map[string]FieldSpec, len(s.fields)), topic: s.topic}
	for k, v := range s.fields {
		out.fields[k] = v
	}
	if path == TopicPrefix+"*" {
		out.topic.DriftCap = driftCap
		return out, nil
	}
	f, ok := out.fields[path]
	if !ok {
		return nil, apperrors.UnknownField(path)
	}
	f.DriftCap = driftCap
	out.fields[path] = f
	return out, nil
}

// Lookup resolves a dotted path. Topic paths are normalized; the returned spec
// carries the normalized path.
func (s *Schema) Lookup(path string) (FieldSpec, error) {
	if strings.HasPrefix(path, TopicPrefix) {
		topic := NormalizeTopic(strings.TrimPrefix(path, TopicPrefix))
		if topic == "" {
			return FieldSpec{}, apperrors.UnknownField(path)
		}
		f := s.topic
		f.Path = TopicPrefix + topic
		return f, nil
	}
	f, ok := s.fields[path]
	if !ok {
		return FieldSpec{}, apperrors.UnknownField(path)
	}
	return f, nil
}

// Fields lists the fixed (non-topic) fields sorted by path.
func (s *Schema) Fields() []FieldSpec {
	out := make([]FieldSpec, 0, len(s.fields))
	for _, f := range s.fields {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Topic returns the FieldSpec shared by every topic_affinity key.
func (s *Schema) Topic() FieldSpec {
	return s.topic
}

// #endregion schema

// #region default-schema
var (
	sentenceLengths     = []string{"short", "medium", "long"}
	intensities         = []string{"low", "moderate", "high"}
	formalities         = []string{"casual", "neutral", "formal"}
	certaintyLevels     = []string{"tentative", "balanced", "assertive"}
	replyDepths         = []string{"short", "medium", "deep"}
	counterMax          = float64(math.MaxInt32)
	defaultSchemaFields = []FieldSpec{
		{Path: PathSentenceLength, Type: FieldEnum, Enum: sentenceLengths, DefaultCategory: "medium"},
		{Path: PathQuestionFrequency, Type: FieldContinuous, Max: 1, Default: 0.4},
		{Path: PathHumorFrequency, Type: FieldContinuous, Max: 1, Default: 0.2},
		{Path: PathEmotionalIntensity, Type: FieldEnum, Enum: intensities, DefaultCategory: "moderate"},
		{Path: PathFormality, Type: FieldEnum, Enum: formalities, DefaultCategory: "casual"},
		{Path: PathContrarianTolerance, Type: FieldContinuous, Max: 1, Default: 0.5},
		{Path: PathCertaintyLevel, Type: FieldEnum, Enum: certaintyLevels, DefaultCategory: "balanced"},

		{Path: PathLikesBaseline, Type: FieldContinuous, Max: 200, Default: 20},
		{Path: PathRepliesBaseline, Type: FieldContinuous, Max: 50, Default: 5},
		{Path: PathFollowAfterReply, Type: FieldContinuous, Max: 1, Default: 0.3},
		{Path: PathEarlyEngagement, Type: FieldContinuous, Max: 1, Default: 0.7},
		{Path: PathReplyDepthPreference, Type: FieldEnum, Enum: replyDepths, DefaultCategory: "medium"},

		{Path: PathHotTakesComfort, Type: FieldContinuous, Max: 1, Default: 0.4},
		{Path: PathSafeVsExperimental, Type: FieldContinuous, Max: 1, Default: 0.6},
		{Path: PathChallengeOthers, Type: FieldContinuous, Max: 1, Default: 0.5},

		{Path: PathPostsTolerance, Type: FieldInteger, Min: 1, Max: 20, Default: 2},
		{Path: PathFollowsTolerance, Type: FieldInteger, Min: 1, Max: 20, Default: 2},
		{Path: PathConsistencyPreference, Type: FieldContinuous, Max: 1, Default: 0.5},
		{Path: PathFatigueSignals, Type: FieldSignalLog},
		{Path: PathPostingTimes, Type: FieldBucketSet},

		{Path: PathApprovals, Type: FieldCounter, Max: counterMax},
		{Path: PathRejections, Type: FieldCounter, Max: counterMax},
		{Path: PathEdits, Type: FieldCounter, Max: counterMax},
	}
)

// DefaultSchema returns the persona schema with documented ranges and defaults.
func DefaultSchema() *Schema {
	topic := FieldSpec{Path: TopicPrefix + "*", Type: FieldContinuous, Max: 1, Default: 0.5}
	return NewSchema(topic, defaultSchemaFields...)
}

// #endregion default-schema

// #region validate
// Validate checks every field of st against the schema and returns all violations.
func (s *Schema) Validate(st PersonaState) []Violation {
	var out []Violation
	for topic, v := range st.TopicAffinity {
		path := TopicPrefix + topic
		if NormalizeTopic(topic) != topic || topic == "" {
			out = append(out, Violation{Path: path, Value: FormatNumber(v), Reason: "topic key not normalized"})
		}
		if r := checkRange(s.topic, v); r != "" {
			out = append(out, Violation{Path: path, Value: FormatNumber(v), Reason: r})
		}
	}
	for _, f := range s.Fields() {
		switch f.Type {
		case FieldContinuous, FieldInteger, FieldCounter:
			v, _ := st.Number(f.Path)
			if r := checkRange(f, v); r != "" {
				out = append(out, Violation{Path: f.Path, Value: FormatNumber(v), Reason: r})
			}
		case FieldEnum:
			v, _ := st.Category(f.Path)
			if f.EnumIndex(v) < 0 {
				out = append(out, Violation{Path: f.Path, Value: v, Reason: "not one of " + strings.Join(f.Enum, "|")})
			}
		case FieldBucketSet:
			for _, b := range st.EnergyCadence.PreferredPostingTimes {
				if nb, ok := NormalizeBucket(b); !ok || nb != b {
					out = append(out, Violation{Path: f.Path, Value: b, Reason: "invalid time bucket"})
				}
			}
		}
	}
	for path, p := range st.Pressure {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			out = append(out, Violation{Path: path, Value: FormatNumber(p), Reason: "pressure not finite"})
		}
	}
	if st.Version < 0 {
		out = append(out, Violation{Path: "version", Value: FormatNumber(float64(st.Version)), Reason: "negative version"})
	}
	return out
}

func checkRange(f FieldSpec, v float64) string {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return "not finite"
	case v < f.Min:
		return "below min " + FormatNumber(f.Min)
	case v > f.Max:
		return "above max " + FormatNumber(f.Max)
	case (f.Type == FieldInteger || f.Type == FieldCounter) && v != math.Trunc(v):
		return "not integral"
	}
	return ""
}

// #endregion validate
