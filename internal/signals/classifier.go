package signals

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/danielpatrickdp/persona-state/internal/outcome"
	"github.com/danielpatrickdp/persona-state/internal/state"
	"github.com/danielpatrickdp/persona-state/internal/update"
	"github.com/google/uuid"
)

// #region classifier

// Classifier turns raw observations into typed feedback events.
type Classifier struct {
	outcomes     OutcomeRecorder
	config       ClassifierConfig
	topicDefault float64
	now          func() time.Time
	newID        func() string
}

// NewClassifier creates a Classifier. outcomes may be nil, in which case outcome
// observations classify as malformed.
func NewClassifier(outcomes OutcomeRecorder, config ClassifierConfig) *Classifier {
	return &Classifier{
		outcomes:     outcomes,
		config:       config,
		topicDefault: state.DefaultSchema().Topic().Default,
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
	}
}

// WithClock replaces the clock used for observations without a timestamp.
func (c *Classifier) WithClock(now func() time.Time) *Classifier {
	c.now = now
	return c
}

// WithIDs replaces the event ID generator.
func (c *Classifier) WithIDs(newID func() string) *Classifier {
	c.newID = newID
	return c
}

// #endregion classifier

// #region classify

// Classify maps one observation to zero or more events against the current
// snapshot. Malformed input yields a single zero-confidence event, never an
// error. The only error is an outcome deferral or a ledger failure.
func (c *Classifier) Classify(ctx context.Context, current state.PersonaState, obs Observation) (events []update.FeedbackEvent, err error) {
	defer func() {
		if r := recover(); r != nil {
			events, err = c.finish([]update.FeedbackEvent{malformed(fmt.Sprintf("classifier panic: %v", r))}, obs), nil
		}
	}()

	var evs []update.FeedbackEvent
	var problem string
	switch obs.Kind {
	case ObserveApproval, ObserveRejection:
		evs, problem = c.verdict(obs)
	case ObserveEdit:
		evs, problem = c.edit(obs)
	case ObserveLike, ObserveRetweet:
		evs, problem = c.affinity(current, obs)
	case ObserveReply:
		evs = c.reply(current, obs)
	case ObserveFollow:
		evs = []update.FeedbackEvent{c.behavioral(state.PathFollowAfterReply, c.config.FollowDirection, "followed after reply")}
	case ObserveOutcome:
		evs, problem, err = c.outcome(ctx, obs)
		if err != nil {
			return nil, err
		}
	case ObserveTiming:
	default:
		problem = fmt.Sprintf("unknown observation kind %q", obs.Kind)
	}
	if problem != "" {
		return c.finish([]update.FeedbackEvent{malformed(problem)}, obs), nil
	}
	return c.finish(c.temporal(evs, obs), obs), nil
}

// finish stamps IDs, timestamps and context onto every event.
func (c *Classifier) finish(evs []update.FeedbackEvent, obs Observation) []update.FeedbackEvent {
	ts := obs.ObservedAt
	if ts.IsZero() {
		ts = c.now()
	}
	for i := range evs {
		evs[i].ID = c.newID()
		evs[i].ObservedAt = ts
		if obs.Context != "" {
			if evs[i].SourceContext == "" {
				evs[i].SourceContext = obs.Context
			} else {
				evs[i].SourceContext += " (" + obs.Context + ")"
			}
		}
	}
	return evs
}

func malformed(reason string) update.FeedbackEvent {
	return update.FeedbackEvent{
		Kind:          state.KindExplicit,
		Confidence:    0,
		SourceContext: "malformed observation: " + reason,
	}
}

// #endregion classify

// #region explicit

func (c *Classifier) verdict(obs Observation) ([]update.FeedbackEvent, string) {
	direction, counter, label := c.config.TopicApprovalDirection, state.PathApprovals, "approved"
	if obs.Kind == ObserveRejection {
		direction, counter, label = -c.config.TopicApprovalDirection, state.PathRejections, "rejected"
	}
	evs := []update.FeedbackEvent{c.explicit(counter, 1, c.config.ExplicitConfidence, label)}
	for _, t := range normalizeTopics(obs.Topics) {
		evs = append(evs, c.explicit(state.TopicPrefix+t, direction, c.config.ExplicitConfidence, label+" content on "+t))
	}
	return evs, ""
}

func (c *Classifier) edit(obs Observation) ([]update.FeedbackEvent, string) {
	original := strings.Fields(obs.Original)
	if len(original) == 0 {
		return nil, "edit without original text"
	}
	edited := strings.Fields(obs.Edited)
	conf := c.config.EditConfidence

	evs := []update.FeedbackEvent{c.explicit(state.PathEdits, 1, conf, "edited draft")}

	ratio := float64(len(edited)) / float64(len(original))
	switch {
	case ratio < c.config.EditShrinkRatio:
		evs = append(evs, c.explicit(state.PathSentenceLength, -1, conf, fmt.Sprintf("shortened draft to %.0f%%", ratio*100)))
	case ratio > c.config.EditGrowRatio:
		evs = append(evs, c.explicit(state.PathSentenceLength, 1, conf, fmt.Sprintf("lengthened draft to %.0f%%", ratio*100)))
	}

	before, after := strings.Count(obs.Original, "?"), strings.Count(obs.Edited, "?")
	switch {
	case after > before:
		evs = append(evs, c.explicit(state.PathQuestionFrequency, c.config.QuestionDirection, conf, "added questions"))
	case after < before:
		evs = append(evs, c.explicit(state.PathQuestionFrequency, -c.config.QuestionDirection, conf, "removed questions"))
	}
	return evs, ""
}

func (c *Classifier) explicit(path string, direction, confidence float64, why string) update.FeedbackEvent {
	return update.FeedbackEvent{
		Kind:          state.KindExplicit,
		TargetField:   path,
		Direction:     direction,
		Confidence:    confidence,
		SourceContext: why,
	}
}

// #endregion explicit

// #region behavioral

// affinity reinforces each topic by how far it sits from full affinity, so
// likes on already-favored topics move them less.
func (c *Classifier) affinity(current state.PersonaState, obs Observation) ([]update.FeedbackEvent, string) {
	topics := normalizeTopics(obs.Topics)
	if len(topics) == 0 {
		return nil, string(obs.Kind) + " without topics"
	}
	evs := make([]update.FeedbackEvent, 0, len(topics))
	for _, t := range topics {
		aff, ok := current.TopicAffinity[t]
		if !ok {
			aff = c.topicDefault
		}
		dir := math.Max(1-aff, c.config.AffinityFloor)
		evs = append(evs, c.behavioral(state.TopicPrefix+t, dir, fmt.Sprintf("%s on %s", obs.Kind, t)))
	}
	return evs, ""
}

// reply moves the reply baseline toward today's observed count.
func (c *Classifier) reply(current state.PersonaState, obs Observation) []update.FeedbackEvent {
	baseline := current.EngagementBehavior.RepliesPerDayBaseline
	dev := (float64(obs.RepliesToday) - baseline) / math.Max(baseline, 1)
	dev = math.Max(-1, math.Min(1, dev))
	return []update.FeedbackEvent{c.behavioral(state.PathRepliesBaseline, dev,
		fmt.Sprintf("%d replies today vs baseline %s", obs.RepliesToday, state.FormatNumber(baseline)))}
}

func (c *Classifier) behavioral(path string, direction float64, why string) update.FeedbackEvent {
	return update.FeedbackEvent{
		Kind:          state.KindBehavioral,
		TargetField:   path,
		Direction:     direction,
		Confidence:    c.config.BehavioralConfidence,
		SourceContext: why,
	}
}

// #endregion behavioral

// #region temporal

// temporal scales the other events by decision speed and adds a fatigue signal
// when the user hesitated.
func (c *Classifier) temporal(evs []update.FeedbackEvent, obs Observation) []update.FeedbackEvent {
	factor := 1.0
	signal := ""
	switch {
	case obs.Hesitated:
		factor, signal = c.config.SlowFactor, "hesitation"
	case obs.Latency >= c.config.SlowDecision:
		factor, signal = c.config.SlowFactor, "slow_decision"
	case obs.Latency > 0 && obs.Latency <= c.config.FastDecision:
		factor = c.config.FastFactor
	}
	if factor != 1 {
		for i := range evs {
			evs[i].Confidence = math.Min(1, evs[i].Confidence*factor)
		}
	}
	if signal != "" {
		evs = append(evs, update.FeedbackEvent{
			Kind:          state.KindTemporal,
			TargetField:   state.PathFatigueSignals,
			Direction:     1,
			Confidence:    c.config.TemporalConfidence,
			Label:         signal,
			SourceContext: fmt.Sprintf("decision took %s", obs.Latency.Round(time.Second)),
		})
	}
	return evs
}

// #endregion temporal

// #region outcome

func (c *Classifier) outcome(ctx context.Context, obs Observation) ([]update.FeedbackEvent, string, error) {
	if c.outcomes == nil {
		return nil, "outcome tracking disabled", nil
	}
	if obs.Likes < 0 || obs.Replies < 0 || obs.Retweets < 0 {
		return nil, "negative engagement counts", nil
	}
	evals, err := c.outcomes.Record(ctx, outcome.Sample{
		UserID:     obs.UserID,
		PostID:     obs.PostID,
		Topics:     normalizeTopics(obs.Topics),
		Likes:      obs.Likes,
		Replies:    obs.Replies,
		Retweets:   obs.Retweets,
		ObservedAt: obs.ObservedAt,
	})
	if err != nil {
		return nil, "", err
	}
	var evs []update.FeedbackEvent
	for _, ev := range evals {
		for _, t := range ev.Sample.Topics {
			evs = append(evs, update.FeedbackEvent{
				Kind:          state.KindOutcome,
				TargetField:   state.TopicPrefix + t,
				Direction:     ev.Direction,
				Confidence:    ev.Confidence,
				SourceContext: fmt.Sprintf("post %s scored %s (z=%.2f)", ev.Sample.PostID, state.FormatNumber(ev.Sample.Score), ev.Z),
				SampleID:      ev.Sample.ID,
			})
		}
	}
	return evs, "", nil
}

// Settle marks the outcome samples behind committed events as consumed. Until
// then the samples stay pending and are released again on the next outcome.
func (c *Classifier) Settle(ctx context.Context, userID string, events []update.FeedbackEvent) error {
	if c.outcomes == nil {
		return nil
	}
	seen := map[int64]bool{}
	var ids []int64
	for _, e := range events {
		if e.SampleID == 0 || seen[e.SampleID] {
			continue
		}
		seen[e.SampleID] = true
		ids = append(ids, e.SampleID)
	}
	if len(ids) == 0 {
		return nil
	}
	return c.outcomes.Settle(ctx, userID, ids)
}

// #endregion outcome

// #region helpers

// normalizeTopics normalizes and de-duplicates topics, keeping first-seen order.
func normalizeTopics(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		t := state.NormalizeTopic(r)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// #endregion helpers
