package state

import "time"

// DefaultTopics seeds topic_affinity for users who skip onboarding.
var DefaultTopics = []string{
	"saas", "ai", "startups", "product", "distribution",
	"operations", "online_business", "money", "personal_reflections", "humor",
}

// Default returns the documented starting state at version 0.
func Default(userID string) PersonaState {
	topics := make(map[string]float64, len(DefaultTopics))
	for _, t := range DefaultTopics {
		topics[t] = 0.5
	}
	return PersonaState{
		UserID:        userID,
		TopicAffinity: topics,
		ToneStyle: ToneStyle{
			SentenceLength:      "medium",
			QuestionFrequency:   0.4,
			HumorFrequency:      0.2,
			EmotionalIntensity:  "moderate",
			Formality:           "casual",
			ContrarianTolerance: 0.5,
			CertaintyLevel:      "balanced",
		},
		EngagementBehavior: EngagementBehavior{
			LikesPerDayBaseline:      20,
			RepliesPerDayBaseline:    5,
			FollowAfterReplyTendency: 0.3,
			EarlyEngagementTendency:  0.7,
			ReplyDepthPreference:     "medium",
		},
		RiskSensitivity: RiskSensitivity{
			HotTakesComfort:         0.4,
			SafeVsExperimental:      0.6,
			ChallengeOthersTendency: 0.5,
		},
		EnergyCadence: EnergyCadence{
			PostsPerDayTolerance:     2,
			FollowsPerDayTolerance:   2,
			ConsistencyPreference:    0.5,
			EngagementFatigueSignals: []FatigueSignal{},
			PreferredPostingTimes:    []string{"09:00", "17:00"},
		},
		Pressure:  map[string]float64{},
		UpdatedAt: time.Time{},
	}
}
