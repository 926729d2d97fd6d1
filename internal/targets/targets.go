// Package targets derives daily action quotas from persona state and recent activity.
package targets

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/danielpatrickdp/persona-state/internal/activity"
	"github.com/danielpatrickdp/persona-state/internal/state"
)

// #region types

// Config tunes fatigue and momentum.
type Config struct {
	FatigueWindow    time.Duration
	FatigueThreshold int     // signals tolerated before targets shrink
	FatigueStep      float64 // reduction per signal over the threshold
	MomentumDays     int
	WeekdayWeeks     int     // same-weekday samples looked back over
	WeekdayWeight    float64 // share of the weekday ratio in the multiplier
	MinMultiplier    float64
	MaxMultiplier    float64
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		FatigueWindow:    72 * time.Hour,
		FatigueThreshold: 2,
		FatigueStep:      0.25,
		MomentumDays:     7,
		WeekdayWeeks:     4,
		WeekdayWeight:    0.3,
		MinMultiplier:    0.5,
		MaxMultiplier:    1.5,
	}
}

// DailyTargets are the action quotas for one day.
type DailyTargets struct {
	Day            time.Time
	Posts          int
	Replies        int
	Likes          int
	Follows        int
	Multiplier     float64
	FatigueFactor  float64
	FatigueSignals int
	Rationale      string
}

// Total sums every quota.
func (d DailyTargets) Total() int {
	return d.Posts + d.Replies + d.Likes + d.Follows
}

// For returns the quota for one action kind.
func (d DailyTargets) For(k activity.Kind) int {
	switch k {
	case activity.KindPost:
		return d.Posts
	case activity.KindReply:
		return d.Replies
	case activity.KindLike:
		return d.Likes
	case activity.KindFollow:
		return d.Follows
	}
	return 0
}

// Progress is completion against a day's targets.
type Progress struct {
	Targets    DailyTargets
	Completed  activity.Counts
	Remaining  activity.Counts
	Percentage float64
}

// #endregion types

// #region calculator

// Calculator computes targets. It is stateless and safe for concurrent use.
type Calculator struct {
	config Config
}

// NewCalculator creates a calculator.
func NewCalculator(config Config) *Calculator {
	return &Calculator{config: config}
}

var defaultCalculator = NewCalculator(DefaultConfig())

// ComputeFor returns targets for the day containing at with the default config.
func ComputeFor(st state.PersonaState, recent []activity.Record, at time.Time) DailyTargets {
	return defaultCalculator.ComputeFor(st, recent, at)
}

// ComputeFor returns targets for the day containing at.
func (c *Calculator) ComputeFor(st state.PersonaState, recent []activity.Record, at time.Time) DailyTargets {
	base := baseline(st)
	signals := c.recentFatigue(st, at)
	factor := c.fatigueFactor(signals)
	mult, week, weekday, hasActivity := c.multiplier(base, recent, at)

	scale := mult * factor
	if factor < 1 {
		// fatigue caps every quota at its unadjusted baseline
		scale = math.Min(scale, 1)
	}
	t := DailyTargets{
		Day:            dayStart(at),
		Posts:          scaled(base.posts, scale),
		Replies:        scaled(base.replies, scale),
		Likes:          scaled(base.likes, scale),
		Follows:        scaled(base.follows, scale),
		Multiplier:     mult,
		FatigueFactor:  factor,
		FatigueSignals: signals,
	}
	t.Rationale = c.rationale(t, week, weekday, hasActivity)
	return t
}

// Progress reports completion against the targets for their day.
func (t DailyTargets) Progress(today []activity.Record) Progress {
	completed := activity.CountOn(today, t.Day)
	remaining := activity.Counts{}
	for _, k := range []activity.Kind{activity.KindPost, activity.KindReply, activity.KindLike, activity.KindFollow} {
		remaining[k] = max(0, t.For(k)-completed[k])
	}
	p := Progress{Targets: t, Completed: completed, Remaining: remaining}
	if total := t.Total(); total > 0 {
		p.Percentage = math.Min(100, float64(completed.Total())/float64(total)*100)
	}
	return p
}

// #endregion calculator

// #region fatigue

func (c *Calculator) recentFatigue(st state.PersonaState, at time.Time) int {
	from := at.Add(-c.config.FatigueWindow)
	n := 0
	for _, s := range st.EnergyCadence.EngagementFatigueSignals {
		if s.Timestamp.After(from) && !s.Timestamp.After(at) {
			n++
		}
	}
	return n
}

func (c *Calculator) fatigueFactor(signals int) float64 {
	excess := signals - c.config.FatigueThreshold
	if excess <= 0 {
		return 1
	}
	return clamp(1-c.config.FatigueStep*float64(excess), 0, 1)
}

// #endregion fatigue

// #region momentum

// multiplier blends the completion ratio of the prior week with that of the
// same weekday in earlier weeks. Days before the first recorded action do not
// count, so a new user is not read as idle.
func (c *Calculator) multiplier(base quotas, recent []activity.Record, at time.Time) (mult, week, weekday float64, ok bool) {
	perDay := base.total()
	today := dayStart(at)
	first, found := firstDay(recent)
	if !found || perDay <= 0 || !first.Before(today) {
		return 1, 0, 0, false
	}

	weekFrom := today.AddDate(0, 0, -c.config.MomentumDays)
	if first.After(weekFrom) {
		weekFrom = first
	}
	days := int(today.Sub(weekFrom).Hours() / 24)
	done := activity.CountBetween(recent, weekFrom, today).Total()
	week = float64(done) / (perDay * float64(days))
	combined := week

	var sameDays int
	var sameDone int
	for w := 1; w <= c.config.WeekdayWeeks; w++ {
		d := today.AddDate(0, 0, -7*w)
		if d.Before(first) {
			break
		}
		sameDays++
		sameDone += activity.CountBetween(recent, d, d.AddDate(0, 0, 1)).Total()
	}
	if sameDays > 0 {
		weekday = float64(sameDone) / (perDay * float64(sameDays))
		combined = (1-c.config.WeekdayWeight)*week + c.config.WeekdayWeight*weekday
	}
	mult = clamp(0.5+combined/2, c.config.MinMultiplier, c.config.MaxMultiplier)
	return mult, week, weekday, true
}

// #endregion momentum

// #region helpers

type quotas struct {
	posts, replies, likes, follows float64
}

func (q quotas) total() float64 {
	return q.posts + q.replies + q.likes + q.follows
}

func baseline(st state.PersonaState) quotas {
	return quotas{
		posts:   float64(st.EnergyCadence.PostsPerDayTolerance),
		replies: st.EngagementBehavior.RepliesPerDayBaseline,
		likes:   st.EngagementBehavior.LikesPerDayBaseline,
		follows: float64(st.EnergyCadence.FollowsPerDayTolerance),
	}
}

func scaled(v, scale float64) int {
	return int(math.Max(0, math.Round(v*scale)))
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func firstDay(recs []activity.Record) (time.Time, bool) {
	var first time.Time
	for i, r := range recs {
		if i == 0 || r.Timestamp.Before(first) {
			first = r.Timestamp
		}
	}
	return dayStart(first), len(recs) > 0
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func (c *Calculator) rationale(t DailyTargets, week, weekday float64, hasActivity bool) string {
	var reasons []string
	if t.FatigueFactor < 1 {
		reasons = append(reasons, fmt.Sprintf("reduced to %.0f%% for %d fatigue signals in the last %s",
			t.FatigueFactor*100, t.FatigueSignals, c.config.FatigueWindow))
	}
	if hasActivity {
		reasons = append(reasons, fmt.Sprintf("momentum x%.2f (week %.0f%%, weekday %.0f%%)", t.Multiplier, week*100, weekday*100))
	}
	if len(reasons) == 0 {
		return "targets based on your persona baseline"
	}
	return strings.Join(reasons, "; ")
}

// #endregion helpers
