package outcome

import (
	"context"
	"fmt"
	"math"
	"sync"

	apperrors "github.com/danielpatrickdp/persona-state/internal/errors"
)

// #region tracker
// Tracker defers outcome samples until the user has enough history for a
// meaningful baseline, then releases every pending sample at once.
type Tracker struct {
	ledger Ledger
	config TrackerConfig
	locks  sync.Map // userID -> *sync.Mutex
}

// NewTracker creates a tracker over a ledger.
func NewTracker(ledger Ledger, config TrackerConfig) *Tracker {
	if config.MinSamples <= 0 {
		config.MinSamples = DefaultTrackerConfig().MinSamples
	}
	if config.ZScale <= 0 {
		config.ZScale = DefaultTrackerConfig().ZScale
	}
	return &Tracker{ledger: ledger, config: config}
}

// Record stores a sample and evaluates all pending samples once MinSamples exist.
// Below the minimum it returns an InsufficientSample error; the sample is kept.
// Evaluated samples stay pending until Settle, so a caller whose commit fails
// gets them again on the next Record.
func (t *Tracker) Record(ctx context.Context, s Sample) ([]Evaluation, error) {
	mu := t.lockFor(s.UserID)
	mu.Lock()
	defer mu.Unlock()

	s.Score = Score(s.Likes, s.Replies, s.Retweets)
	if _, err := t.ledger.Add(ctx, s); err != nil {
		return nil, fmt.Errorf("record outcome sample: %w", err)
	}
	all, err := t.ledger.Samples(ctx, s.UserID)
	if err != nil {
		return nil, fmt.Errorf("load outcome samples: %w", err)
	}
	if len(all) < t.config.MinSamples {
		return nil, apperrors.InsufficientSample(len(all), t.config.MinSamples)
	}

	window := all
	if t.config.Window > 0 && len(window) > t.config.Window {
		window = window[len(window)-t.config.Window:]
	}
	base := ComputeBaseline(window)

	var evals []Evaluation
	for _, p := range all {
		if p.Evaluated {
			continue
		}
		evals = append(evals, t.evaluate(p, base))
	}
	return evals, nil
}

// Settle marks samples as consumed once their feedback is committed.
func (t *Tracker) Settle(ctx context.Context, userID string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	mu := t.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()
	if err := t.ledger.MarkEvaluated(ctx, userID, ids); err != nil {
		return fmt.Errorf("settle outcome samples: %w", err)
	}
	return nil
}

func (t *Tracker) lockFor(userID string) *sync.Mutex {
	mu, _ := t.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (t *Tracker) evaluate(s Sample, base Baseline) Evaluation {
	ev := Evaluation{Sample: s}
	if base.StdDev == 0 {
		return ev
	}
	ev.Z = (s.Score - base.Mean) / base.StdDev
	ev.Direction = math.Copysign(1, ev.Z)
	if ev.Z == 0 {
		ev.Direction = 0
	}
	ev.Confidence = math.Min(1, math.Abs(ev.Z)/t.config.ZScale)
	return ev
}

// #endregion tracker

// #region baseline
// ComputeBaseline returns the mean and population standard deviation of scores.
func ComputeBaseline(samples []Sample) Baseline {
	b := Baseline{N: len(samples)}
	if b.N == 0 {
		return b
	}
	var sum float64
	for _, s := range samples {
		sum += s.Score
	}
	b.Mean = sum / float64(b.N)
	var sq float64
	for _, s := range samples {
		d := s.Score - b.Mean
		sq += d * d
	}
	b.StdDev = math.Sqrt(sq / float64(b.N))
	return b
}

// #endregion baseline
