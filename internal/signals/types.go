package signals

import (
	"context"
	"time"

	"github.com/danielpatrickdp/persona-state/internal/outcome"
)

// #region outcome-interface

// OutcomeRecorder abstracts the outcome tracker so the classifier can be tested
// without a ledger.
type OutcomeRecorder interface {
	Record(ctx context.Context, s outcome.Sample) ([]outcome.Evaluation, error)
	Settle(ctx context.Context, userID string, ids []int64) error
}

// #endregion outcome-interface

// #region observation

// ObservationKind names the raw interaction a feature reports.
type ObservationKind string

const (
	ObserveApproval  ObservationKind = "approval"
	ObserveRejection ObservationKind = "rejection"
	ObserveEdit      ObservationKind = "edit"
	ObserveLike      ObservationKind = "like"
	ObserveRetweet   ObservationKind = "retweet"
	ObserveReply     ObservationKind = "reply"
	ObserveFollow    ObservationKind = "follow"
	ObserveOutcome   ObservationKind = "outcome"
	ObserveTiming    ObservationKind = "timing"
)

// Observation is one raw interaction reported by an external feature.
// Only the fields relevant to Kind are read.
type Observation struct {
	UserID string
	Kind   ObservationKind
	Topics []string

	// edit
	Original string
	Edited   string

	// outcome
	PostID   string
	Likes    int
	Replies  int
	Retweets int

	// RepliesToday is the reply count from the activity log, for reply observations.
	RepliesToday int

	// temporal context, applicable to any kind
	Latency   time.Duration
	Hesitated bool

	Context    string
	ObservedAt time.Time
}

// #endregion observation

// #region config

// ClassifierConfig holds confidence levels and thresholds per feedback source.
type ClassifierConfig struct {
	ExplicitConfidence   float64
	EditConfidence       float64
	BehavioralConfidence float64
	TemporalConfidence   float64

	TopicApprovalDirection float64 // magnitude for approval/rejection on topics
	QuestionDirection      float64 // magnitude for question-count edits
	EditShrinkRatio        float64 // edited/original word ratio below which sentences shorten
	EditGrowRatio          float64 // ratio above which sentences lengthen
	AffinityFloor          float64 // minimum like/retweet direction
	FollowDirection        float64

	SlowDecision time.Duration
	FastDecision time.Duration
	SlowFactor   float64
	FastFactor   float64
}

// DefaultClassifierConfig returns the documented defaults.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		ExplicitConfidence:   0.9,
		EditConfidence:       1.0,
		BehavioralConfidence: 0.5,
		TemporalConfidence:   0.3,

		TopicApprovalDirection: 0.5,
		QuestionDirection:      0.5,
		EditShrinkRatio:        0.8,
		EditGrowRatio:          1.2,
		AffinityFloor:          0.1,
		FollowDirection:        0.5,

		SlowDecision: 300 * time.Second,
		FastDecision: 5 * time.Second,
		SlowFactor:   0.5,
		FastFactor:   1.25,
	}
}

// #endregion config
