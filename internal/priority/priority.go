// Package priority merges candidate actions into one ranked, explained list.
package priority

import (
	"fmt"
	"slices"
	"time"

	"github.com/danielpatrickdp/persona-state/internal/state"
)

// #region types

// UrgencyClass groups actions by how soon they go stale.
type UrgencyClass string

const (
	ClassReadyToPublish UrgencyClass = "ready_to_publish"
	ClassReply          UrgencyClass = "reply_opportunity"
	ClassSuggestion     UrgencyClass = "engagement_suggestion"
)

// AngleChallenge marks a reply that pushes back on the author.
const AngleChallenge = "challenge"

// challengeFloor is the challenge_others_tendency below which challenge replies are dropped.
const challengeFloor = 0.3

// Action is one candidate produced by an external generator.
type Action struct {
	ID          string
	Kind        string
	Class       UrgencyClass
	ScheduledAt time.Time     // ready-to-publish only
	Age         time.Duration // reply opportunities only
	Topics      []string
	Angle       string
	Affinity    float64 // predicted topic match
	Rationale   string
}

// #endregion types

// #region rank

func classOrder(c UrgencyClass) int {
	switch c {
	case ClassReadyToPublish:
		return 0
	case ClassReply:
		return 1
	case ClassSuggestion:
		return 2
	}
	return 3
}

// Rank orders candidates by urgency class, then by the class's secondary key.
// Ties keep insertion order. The input slice is not modified.
func Rank(candidates []Action) []Action {
	out := slices.Clone(candidates)
	slices.SortStableFunc(out, compare)
	for i := range out {
		if out[i].Rationale == "" {
			out[i].Rationale = rationale(out[i])
		}
	}
	return out
}

func compare(a, b Action) int {
	ca, cb := classOrder(a.Class), classOrder(b.Class)
	if ca != cb {
		return ca - cb
	}
	switch a.Class {
	case ClassReadyToPublish:
		return a.ScheduledAt.Compare(b.ScheduledAt)
	case ClassReply:
		// older first
		switch {
		case a.Age > b.Age:
			return -1
		case a.Age < b.Age:
			return 1
		}
	case ClassSuggestion:
		switch {
		case a.Affinity > b.Affinity:
			return -1
		case a.Affinity < b.Affinity:
			return 1
		}
	}
	return 0
}

// RankFor predicts affinity from the persona's topic map, drops challenge
// replies for risk-averse users, then ranks.
func RankFor(st state.PersonaState, candidates []Action) []Action {
	topicDefault := state.DefaultSchema().Topic().Default
	kept := make([]Action, 0, len(candidates))
	for _, a := range candidates {
		if a.Angle == AngleChallenge && st.RiskSensitivity.ChallengeOthersTendency < challengeFloor {
			continue
		}
		if len(a.Topics) > 0 {
			a.Affinity = predictAffinity(st, a.Topics, topicDefault)
		}
		kept = append(kept, a)
	}
	return Rank(kept)
}

// predictAffinity averages the affinity of the action's topics. Unknown topics
// count at the schema default.
func predictAffinity(st state.PersonaState, topics []string, topicDefault float64) float64 {
	var sum float64
	var n int
	for _, raw := range topics {
		t := state.NormalizeTopic(raw)
		if t == "" {
			continue
		}
		v, ok := st.TopicAffinity[t]
		if !ok {
			v = topicDefault
		}
		sum += v
		n++
	}
	if n == 0 {
		return topicDefault
	}
	return sum / float64(n)
}

func rationale(a Action) string {
	switch a.Class {
	case ClassReadyToPublish:
		return fmt.Sprintf("scheduled for %s", a.ScheduledAt.UTC().Format("2006-01-02 15:04 UTC"))
	case ClassReply:
		return fmt.Sprintf("reply window open for %s", a.Age.Round(time.Minute))
	case ClassSuggestion:
		return fmt.Sprintf("predicted topic affinity %s", state.FormatNumber(a.Affinity))
	}
	return "unclassified action"
}

// #endregion rank
