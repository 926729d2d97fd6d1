// Package explain renders a persona and its change log as readable text for
// content generators and the inspection CLI.
package explain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/danielpatrickdp/persona-state/internal/state"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// #region language

var supportedTags = []language.Tag{
	language.English,
	language.MustParse("pt-BR"),
}

var tagMatcher = language.NewMatcher(supportedTags)

// Default returns the default language tag.
func Default() language.Tag {
	return language.English
}

// ResolveTag picks the closest supported language for value, falling back to English.
func ResolveTag(value string) language.Tag {
	parsed, err := language.Parse(strings.TrimSpace(value))
	if err != nil {
		return Default()
	}
	_, idx, conf := tagMatcher.Match(parsed)
	if conf == language.No {
		return Default()
	}
	return supportedTags[idx]
}

// #endregion language

// #region renderer

// Renderer formats persona text in one language.
type Renderer struct {
	p *message.Printer
}

// NewRenderer creates a renderer for the given language (e.g. "en", "pt-BR").
func NewRenderer(lang string) *Renderer {
	return &Renderer{p: message.NewPrinter(ResolveTag(lang))}
}

// Summary lists the persona's learned preferences, topics strongest first.
func (r *Renderer) Summary(st state.PersonaState) string {
	var b strings.Builder
	line := func(key string, args ...any) {
		b.WriteString(r.p.Sprintf(key, args...))
		b.WriteByte('\n')
	}
	pct := func(key string, v float64) { line(key, v*100) }

	line("PERSONA %s (version %d)", st.UserID, st.Version)

	line("TOPIC AFFINITY:")
	topics := make([]string, 0, len(st.TopicAffinity))
	for t := range st.TopicAffinity {
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool {
		a, c := st.TopicAffinity[topics[i]], st.TopicAffinity[topics[j]]
		if a != c {
			return a > c
		}
		return topics[i] < topics[j]
	})
	for _, t := range topics {
		line("- %s: %.1f%%", t, st.TopicAffinity[t]*100)
	}

	line("TONE & STYLE:")
	line("- Sentence length: %s", st.ToneStyle.SentenceLength)
	pct("- Question frequency: %.1f%%", st.ToneStyle.QuestionFrequency)
	pct("- Humor frequency: %.1f%%", st.ToneStyle.HumorFrequency)
	line("- Emotional intensity: %s", st.ToneStyle.EmotionalIntensity)
	line("- Formality: %s", st.ToneStyle.Formality)
	pct("- Contrarian tolerance: %.1f%%", st.ToneStyle.ContrarianTolerance)
	line("- Certainty level: %s", st.ToneStyle.CertaintyLevel)

	line("ENGAGEMENT BEHAVIOR:")
	line("- Likes per day: %.1f", st.EngagementBehavior.LikesPerDayBaseline)
	line("- Replies per day: %.1f", st.EngagementBehavior.RepliesPerDayBaseline)
	pct("- Early engagement tendency: %.1f%%", st.EngagementBehavior.EarlyEngagementTendency)

	line("RISK SENSITIVITY:")
	pct("- Hot takes comfort: %.1f%%", st.RiskSensitivity.HotTakesComfort)
	pct("- Safe vs experimental: %.1f%%", st.RiskSensitivity.SafeVsExperimental)
	pct("- Challenge others tendency: %.1f%%", st.RiskSensitivity.ChallengeOthersTendency)

	line("ENERGY:")
	line("- Posts per day: %d", st.EnergyCadence.PostsPerDayTolerance)
	line("- Follows per day: %d", st.EnergyCadence.FollowsPerDayTolerance)
	if len(st.EnergyCadence.PreferredPostingTimes) > 0 {
		line("- Preferred posting times: %s", strings.Join(st.EnergyCadence.PreferredPostingTimes, ", "))
	}
	return b.String()
}

// ChangeLog renders update records, one line each, in the order given.
func (r *Renderer) ChangeLog(records []state.UpdateRecord) string {
	if len(records) == 0 {
		return r.p.Sprintf("No changes yet.") + "\n"
	}
	var b strings.Builder
	for _, rec := range records {
		b.WriteString(fmt.Sprintf("v%d %s %s: %s -> %s (%s)",
			rec.Version, rec.Timestamp.UTC().Format("2006-01-02 15:04"), rec.FieldPath, rec.OldValue, rec.NewValue, rec.Kind))
		if rec.Rationale != "" {
			b.WriteString("\n    ")
			b.WriteString(rec.Rationale)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// #endregion renderer
