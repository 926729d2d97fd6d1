package state

import (
	"sort"
	"time"
)

// #region feedback-kind
// FeedbackKind classifies the evidence behind an update.
type FeedbackKind string

const (
	KindExplicit   FeedbackKind = "explicit"
	KindBehavioral FeedbackKind = "behavioral"
	KindTemporal   FeedbackKind = "temporal"
	KindOutcome    FeedbackKind = "outcome"
)

// Valid reports whether k is one of the four known kinds.
func (k FeedbackKind) Valid() bool {
	switch k {
	case KindExplicit, KindBehavioral, KindTemporal, KindOutcome:
		return true
	}
	return false
}

// #endregion feedback-kind

// #region persona-state
// PersonaState is the structured, versioned representation of one user's persona.
// It is owned by the persona store and mutated only through the update engine.
type PersonaState struct {
	UserID             string             `json:"user_id"`
	TopicAffinity      map[string]float64 `json:"topic_affinity"`
	ToneStyle          ToneStyle          `json:"tone_style"`
	EngagementBehavior EngagementBehavior `json:"engagement_behavior"`
	RiskSensitivity    RiskSensitivity    `json:"risk_sensitivity"`
	EnergyCadence      EnergyCadence      `json:"energy_cadence"`
	LearningTotals     LearningTotals     `json:"learning_totals"`

	// Pressure accumulates sub-step movement for enum and integer fields, keyed by path.
	Pressure map[string]float64 `json:"pressure,omitempty"`

	Version   int64          `json:"version"`
	History   []UpdateRecord `json:"history,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ToneStyle mixes continuous scores and enumerated categories.
type ToneStyle struct {
	SentenceLength      string  `json:"sentence_length"`
	QuestionFrequency   float64 `json:"question_frequency"`
	HumorFrequency      float64 `json:"humor_frequency"`
	EmotionalIntensity  string  `json:"emotional_intensity"`
	Formality           string  `json:"formality"`
	ContrarianTolerance float64 `json:"contrarian_tolerance"`
	CertaintyLevel      string  `json:"certainty_level"`
}

// EngagementBehavior holds per-day rates and [0,1] tendencies.
type EngagementBehavior struct {
	LikesPerDayBaseline      float64 `json:"likes_per_day_baseline"`
	RepliesPerDayBaseline    float64 `json:"replies_per_day_baseline"`
	FollowAfterReplyTendency float64 `json:"follow_after_reply_tendency"`
	EarlyEngagementTendency  float64 `json:"early_engagement_tendency"`
	ReplyDepthPreference     string  `json:"reply_depth_preference"`
}

// RiskSensitivity holds [0,1] comfort scores.
type RiskSensitivity struct {
	HotTakesComfort         float64 `json:"hot_takes_comfort"`
	SafeVsExperimental      float64 `json:"safe_vs_experimental"`
	ChallengeOthersTendency float64 `json:"challenge_others_tendency"`
}

// EnergyCadence holds tolerances, a fatigue signal log and preferred posting buckets.
type EnergyCadence struct {
	PostsPerDayTolerance     int             `json:"posts_per_day_tolerance"`
	FollowsPerDayTolerance   int             `json:"follows_per_day_tolerance"`
	ConsistencyPreference    float64         `json:"consistency_preference"`
	EngagementFatigueSignals []FatigueSignal `json:"engagement_fatigue_signals"`
	PreferredPostingTimes    []string        `json:"preferred_posting_times"`
}

// FatigueSignal is one observed sign of engagement fatigue.
type FatigueSignal struct {
	Timestamp time.Time    `json:"timestamp"`
	Signal    string       `json:"signal"`
	Kind      FeedbackKind `json:"kind"`
}

// LearningTotals counts explicit feedback received.
type LearningTotals struct {
	Approvals  int `json:"approvals"`
	Rejections int `json:"rejections"`
	Edits      int `json:"edits"`
}

// #endregion persona-state

// #region update-record
// UpdateRecord is the audit entry for exactly one committed field change.
// Values are rendered with FormatNumber so records survive any storage format.
type UpdateRecord struct {
	ID        string       `json:"id"`
	Version   int64        `json:"version"`
	Timestamp time.Time    `json:"timestamp"`
	FieldPath string       `json:"field_path"`
	OldValue  string       `json:"old_value"`
	NewValue  string       `json:"new_value"`
	Delta     float64      `json:"delta"`
	Kind      FeedbackKind `json:"kind"`
	EventID   string       `json:"event_id,omitempty"`
	Rationale string       `json:"rationale"`
}

// #endregion update-record

// #region violation
// Violation describes one schema check failure.
type Violation struct {
	Path   string
	Value  string
	Reason string
}

func (v Violation) String() string {
	return v.Path + "=" + v.Value + ": " + v.Reason
}

// #endregion violation

// #region clone
// Clone returns a deep copy safe to mutate independently.
func (p PersonaState) Clone() PersonaState {
	out := p
	out.TopicAffinity = make(map[string]float64, len(p.TopicAffinity))
	for k, v := range p.TopicAffinity {
		out.TopicAffinity[k] = v
	}
	if p.Pressure != nil {
		out.Pressure = make(map[string]float64, len(p.Pressure))
		for k, v := range p.Pressure {
			out.Pressure[k] = v
		}
	}
	out.EnergyCadence.EngagementFatigueSignals = append([]FatigueSignal(nil), p.EnergyCadence.EngagementFatigueSignals...)
	out.EnergyCadence.PreferredPostingTimes = append([]string(nil), p.EnergyCadence.PreferredPostingTimes...)
	out.History = append([]UpdateRecord(nil), p.History...)
	return out
}

// Topics returns topic keys ordered by affinity descending, then name.
func (p PersonaState) Topics() []string {
	keys := make([]string, 0, len(p.TopicAffinity))
	for k := range p.TopicAffinity {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := p.TopicAffinity[keys[i]], p.TopicAffinity[keys[j]]
		if a != b {
			return a > b
		}
		return keys[i] < keys[j]
	})
	return keys
}

// #endregion clone
