package state

import (
	"math"
	"strconv"
	"strings"
)

// #region accessors
type numberField struct {
	get func(*PersonaState) float64
	set func(*PersonaState, float64)
}

type categoryField struct {
	get func(*PersonaState) string
	set func(*PersonaState, string)
}

var numberFields = map[string]numberField{
	PathQuestionFrequency: {
		func(p *PersonaState) float64 { return p.ToneStyle.QuestionFrequency },
		func(p *PersonaState, v float64) { p.ToneStyle.QuestionFrequency = v },
	},
	PathHumorFrequency: {
		func(p *PersonaState) float64 { return p.ToneStyle.HumorFrequency },
		func(p *PersonaState, v float64) { p.ToneStyle.HumorFrequency = v },
	},
	PathContrarianTolerance: {
		func(p *PersonaState) float64 { return p.ToneStyle.ContrarianTolerance },
		func(p *PersonaState, v float64) { p.ToneStyle.ContrarianTolerance = v },
	},
	PathLikesBaseline: {
		func(p *PersonaState) float64 { return p.EngagementBehavior.LikesPerDayBaseline },
		func(p *PersonaState, v float64) { p.EngagementBehavior.LikesPerDayBaseline = v },
	},
	PathRepliesBaseline: {
		func(p *PersonaState) float64 { return p.EngagementBehavior.RepliesPerDayBaseline },
		func(p *PersonaState, v float64) { p.EngagementBehavior.RepliesPerDayBaseline = v },
	},
	PathFollowAfterReply: {
		func(p *PersonaState) float64 { return p.EngagementBehavior.FollowAfterReplyTendency },
		func(p *PersonaState, v float64) { p.EngagementBehavior.FollowAfterReplyTendency = v },
	},
	PathEarlyEngagement: {
		func(p *PersonaState) float64 { return p.EngagementBehavior.EarlyEngagementTendency },
		func(p *PersonaState, v float64) { p.EngagementBehavior.EarlyEngagementTendency = v },
	},
	PathHotTakesComfort: {
		func(p *PersonaState) float64 { return p.RiskSensitivity.HotTakesComfort },
		func(p *PersonaState, v float64) { p.RiskSensitivity.HotTakesComfort = v },
	},
	PathSafeVsExperimental: {
		func(p *PersonaState) float64 { return p.RiskSensitivity.SafeVsExperimental },
		func(p *PersonaState, v float64) { p.RiskSensitivity.SafeVsExperimental = v },
	},
	PathChallengeOthers: {
		func(p *PersonaState) float64 { return p.RiskSensitivity.ChallengeOthersTendency },
		func(p *PersonaState, v float64) { p.RiskSensitivity.ChallengeOthersTendency = v },
	},
	PathPostsTolerance: {
		func(p *PersonaState) float64 { return float64(p.EnergyCadence.PostsPerDayTolerance) },
		func(p *PersonaState, v float64) { p.EnergyCadence.PostsPerDayTolerance = int(math.Round(v)) },
	},
	PathFollowsTolerance: {
		func(p *PersonaState) float64 { return float64(p.EnergyCadence.FollowsPerDayTolerance) },
		func(p *PersonaState, v float64) { p.EnergyCadence.FollowsPerDayTolerance = int(math.Round(v)) },
	},
	PathConsistencyPreference: {
		func(p *PersonaState) float64 { return p.EnergyCadence.ConsistencyPreference },
		func(p *PersonaState, v float64) { p.EnergyCadence.ConsistencyPreference = v },
	},
	PathApprovals: {
		func(p *PersonaState) float64 { return float64(p.LearningTotals.Approvals) },
		func(p *PersonaState, v float64) { p.LearningTotals.Approvals = int(math.Round(v)) },
	},
	PathRejections: {
		func(p *PersonaState) float64 { return float64(p.LearningTotals.Rejections) },
		func(p *PersonaState, v float64) { p.LearningTotals.Rejections = int(math.Round(v)) },
	},
	PathEdits: {
		func(p *PersonaState) float64 { return float64(p.LearningTotals.Edits) },
		func(p *PersonaState, v float64) { p.LearningTotals.Edits = int(math.Round(v)) },
	},
}

var categoryFields = map[string]categoryField{
	PathSentenceLength: {
		func(p *PersonaState) string { return p.ToneStyle.SentenceLength },
		func(p *PersonaState, v string) { p.ToneStyle.SentenceLength = v },
	},
	PathEmotionalIntensity: {
		func(p *PersonaState) string { return p.ToneStyle.EmotionalIntensity },
		func(p *PersonaState, v string) { p.ToneStyle.EmotionalIntensity = v },
	},
	PathFormality: {
		func(p *PersonaState) string { return p.ToneStyle.Formality },
		func(p *PersonaState, v string) { p.ToneStyle.Formality = v },
	},
	PathCertaintyLevel: {
		func(p *PersonaState) string { return p.ToneStyle.CertaintyLevel },
		func(p *PersonaState, v string) { p.ToneStyle.CertaintyLevel = v },
	},
	PathReplyDepthPreference: {
		func(p *PersonaState) string { return p.EngagementBehavior.ReplyDepthPreference },
		func(p *PersonaState, v string) { p.EngagementBehavior.ReplyDepthPreference = v },
	},
}

// Number reads a numeric field. For topics the second result is false when the
// key is absent.
func (p *PersonaState) Number(path string) (float64, bool) {
	if strings.HasPrefix(path, TopicPrefix) {
		v, ok := p.TopicAffinity[strings.TrimPrefix(path, TopicPrefix)]
		return v, ok
	}
	f, ok := numberFields[path]
	if !ok {
		return 0, false
	}
	return f.get(p), true
}

// SetNumber writes a numeric field. Integer fields are rounded. The path must
// already be normalized.
func (p *PersonaState) SetNumber(path string, v float64) bool {
	if strings.HasPrefix(path, TopicPrefix) {
		if p.TopicAffinity == nil {
			p.TopicAffinity = map[string]float64{}
		}
		p.TopicAffinity[strings.TrimPrefix(path, TopicPrefix)] = v
		return true
	}
	f, ok := numberFields[path]
	if !ok {
		return false
	}
	f.set(p, v)
	return true
}

// Category reads an enumerated field.
func (p *PersonaState) Category(path string) (string, bool) {
	f, ok := categoryFields[path]
	if !ok {
		return "", false
	}
	return f.get(p), true
}

// SetCategory writes an enumerated field.
func (p *PersonaState) SetCategory(path, v string) bool {
	f, ok := categoryFields[path]
	if !ok {
		return false
	}
	f.set(p, v)
	return true
}

// #endregion accessors

// #region format
// FormatNumber renders v with at most four decimals and no trailing zeros.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(math.Round(v*1e4)/1e4, 'f', -1, 64)
}

// #endregion format
