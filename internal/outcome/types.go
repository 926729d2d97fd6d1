package outcome

import (
	"context"
	"time"
)

// #region sample
// Sample is one post's engagement, recorded once the numbers are in.
type Sample struct {
	ID         int64
	UserID     string
	PostID     string
	Topics     []string
	Likes      int
	Replies    int
	Retweets   int
	Score      float64
	ObservedAt time.Time
	// Evaluated is set once the sample has produced feedback.
	Evaluated bool
}

// Score weights engagement: likes + 2*replies + 3*retweets.
func Score(likes, replies, retweets int) float64 {
	return float64(likes + 2*replies + 3*retweets)
}

// #endregion sample

// #region ledger
// Ledger persists outcome samples per user.
type Ledger interface {
	// Add stores a sample. A pending sample for the same post is refreshed in
	// place, so retrying an observation does not count the post twice.
	Add(ctx context.Context, s Sample) (Sample, error)
	// Samples returns every sample for the user, oldest first.
	Samples(ctx context.Context, userID string) ([]Sample, error)
	MarkEvaluated(ctx context.Context, userID string, ids []int64) error
}

// #endregion ledger

// #region config
// TrackerConfig holds the significance parameters for outcome feedback.
type TrackerConfig struct {
	MinSamples int     // samples required before any outcome feedback is released
	Window     int     // most recent samples forming the baseline (0 = all)
	ZScale     float64 // |z| that maps to full confidence
}

// DefaultTrackerConfig returns the documented defaults.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MinSamples: 5,
		Window:     50,
		ZScale:     2,
	}
}

// #endregion config

// #region evaluation
// Baseline summarizes a user's typical post score.
type Baseline struct {
	N      int
	Mean   float64
	StdDev float64
}

// Evaluation is a sample scored against the baseline.
type Evaluation struct {
	Sample     Sample
	Z          float64
	Direction  float64 // sign of Z
	Confidence float64 // clamp(|Z| / ZScale, 0, 1)
}

// #endregion evaluation
