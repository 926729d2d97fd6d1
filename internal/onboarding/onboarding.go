// Package onboarding derives a user's initial persona from observed history.
package onboarding

import (
	"context"
	"math"
	"strings"

	apperrors "github.com/danielpatrickdp/persona-state/internal/errors"
	"github.com/danielpatrickdp/persona-state/internal/state"
)

// #region types

// History is the activity pulled for a new user by an external collaborator.
type History struct {
	Posts       []string           // the user's own posts, newest first
	PostDays    int                // days the posts span
	Replies     int                // replies sent over ReplyDays
	ReplyDays   int
	Likes       int // likes given over ReplyDays
	TopicWeight map[string]float64 // topic weights extracted from liked posts
}

// Config bounds the derived baselines.
type Config struct {
	ToneSample     int // posts used for tone analysis
	MinReplies     int
	MaxReplies     int
	MinLikes       int
	MaxLikes       int
	MinPosts       int
	MaxPosts       int
	ShortSentence  float64 // average words below this are short
	MediumSentence float64
	FormalMarkers  []string
}

// DefaultConfig returns the documented bounds.
func DefaultConfig() Config {
	return Config{
		ToneSample:     30,
		MinReplies:     1,
		MaxReplies:     20,
		MinLikes:       5,
		MaxLikes:       100,
		MinPosts:       1,
		MaxPosts:       5,
		ShortSentence:  10,
		MediumSentence: 20,
		FormalMarkers:  []string{"please", "thank you", "appreciate", "regards"},
	}
}

// ToneAnalysis is the tone read from a user's posts.
type ToneAnalysis struct {
	AvgSentenceWords  float64
	SentenceLength    string
	QuestionFrequency float64
	Formality         string
}

// Creator commits an initial persona.
type Creator interface {
	Create(ctx context.Context, userID string, initial state.PersonaState) (state.PersonaState, error)
}

// #endregion types

// #region analyze

// Analyzer builds initial persona states.
type Analyzer struct {
	config Config
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(config Config) *Analyzer {
	return &Analyzer{config: config}
}

// Initial returns the default persona adjusted by the user's history. Fields
// the history says nothing about keep their defaults.
func (a *Analyzer) Initial(userID string, h History) state.PersonaState {
	st := state.Default(userID)

	for raw, w := range h.TopicWeight {
		t := state.NormalizeTopic(raw)
		if t == "" || math.IsNaN(w) {
			continue
		}
		st.TopicAffinity[t] = math.Max(0, math.Min(1, w))
	}

	if tone, ok := a.Tone(h.Posts); ok {
		st.ToneStyle.SentenceLength = tone.SentenceLength
		st.ToneStyle.QuestionFrequency = tone.QuestionFrequency
		st.ToneStyle.Formality = tone.Formality
	}

	if h.Replies > 0 {
		st.EngagementBehavior.RepliesPerDayBaseline = float64(clampInt(h.Replies/days(h.ReplyDays, 30), a.config.MinReplies, a.config.MaxReplies))
	}
	if h.Likes > 0 {
		st.EngagementBehavior.LikesPerDayBaseline = float64(clampInt(h.Likes/days(h.ReplyDays, 30), a.config.MinLikes, a.config.MaxLikes))
	}
	if len(h.Posts) > 0 {
		st.EnergyCadence.PostsPerDayTolerance = clampInt(len(h.Posts)/days(h.PostDays, 60), a.config.MinPosts, a.config.MaxPosts)
	}
	return st
}

// Tone reads sentence length, question frequency and formality from posts.
// ok is false when there is nothing to read.
func (a *Analyzer) Tone(posts []string) (ToneAnalysis, bool) {
	if len(posts) > a.config.ToneSample {
		posts = posts[:a.config.ToneSample]
	}
	if len(posts) == 0 {
		return ToneAnalysis{}, false
	}

	var sentences, words, questions int
	for _, p := range posts {
		for _, s := range strings.Split(p, ".") {
			if n := len(strings.Fields(s)); n > 0 {
				sentences++
				words += n
			}
		}
		if strings.Contains(p, "?") {
			questions++
		}
	}

	out := ToneAnalysis{
		SentenceLength:    "medium",
		QuestionFrequency: float64(questions) / float64(len(posts)),
		Formality:         "casual",
	}
	if sentences > 0 {
		out.AvgSentenceWords = float64(words) / float64(sentences)
		switch {
		case out.AvgSentenceWords < a.config.ShortSentence:
			out.SentenceLength = "short"
		case out.AvgSentenceWords < a.config.MediumSentence:
			out.SentenceLength = "medium"
		default:
			out.SentenceLength = "long"
		}
	}
	joined := strings.ToLower(strings.Join(posts, " "))
	for _, m := range a.config.FormalMarkers {
		if strings.Contains(joined, m) {
			out.Formality = "formal"
			break
		}
	}
	return out, true
}

// #endregion analyze

// #region onboard

// Onboard analyzes history and commits the initial persona.
func (a *Analyzer) Onboard(ctx context.Context, c Creator, userID string, h History) (state.PersonaState, error) {
	if userID == "" {
		return state.PersonaState{}, apperrors.InvalidArgument("user id is required")
	}
	return c.Create(ctx, userID, a.Initial(userID, h))
}

// #endregion onboard

func days(n, fallback int) int {
	if n <= 0 {
		return fallback
	}
	return n
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
