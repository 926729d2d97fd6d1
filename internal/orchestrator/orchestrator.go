// Package orchestrator runs observations through classification, update and
// persistence, and answers the read-side questions built on the persona.
package orchestrator

// #region imports
import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/danielpatrickdp/persona-state/internal/activity"
	apperrors "github.com/danielpatrickdp/persona-state/internal/errors"
	"github.com/danielpatrickdp/persona-state/internal/explain"
	"github.com/danielpatrickdp/persona-state/internal/onboarding"
	"github.com/danielpatrickdp/persona-state/internal/persona"
	"github.com/danielpatrickdp/persona-state/internal/priority"
	"github.com/danielpatrickdp/persona-state/internal/signals"
	"github.com/danielpatrickdp/persona-state/internal/state"
	"github.com/danielpatrickdp/persona-state/internal/targets"
)

// #endregion

// lookback covers the momentum week plus four same-weekday samples.
const lookback = 29 * 24 * time.Hour

// #region orchestrator-struct

// Orchestrator is the top-level coordinator between collaborators and the
// persona store.
type Orchestrator struct {
	store      *persona.Store
	classifier *signals.Classifier
	activity   ActivityLog
	targets    *targets.Calculator
	onboarder  *onboarding.Analyzer
	lang       string
	logger     *slog.Logger
	now        func() time.Time
}

// #endregion

// #region constructor

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithTargets replaces the targets calculator.
func WithTargets(c *targets.Calculator) Option {
	return func(o *Orchestrator) { o.targets = c }
}

// WithOnboarding replaces the onboarding analyzer.
func WithOnboarding(a *onboarding.Analyzer) Option {
	return func(o *Orchestrator) { o.onboarder = a }
}

// WithLanguage sets the explanation language used when a request names none.
func WithLanguage(lang string) Option {
	return func(o *Orchestrator) { o.lang = lang }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates a fully wired orchestrator. activity may be nil, in which case
// actions are not tracked and targets ignore momentum.
func New(store *persona.Store, classifier *signals.Classifier, activity ActivityLog, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:      store,
		classifier: classifier,
		activity:   activity,
		targets:    targets.NewCalculator(targets.DefaultConfig()),
		onboarder:  onboarding.NewAnalyzer(onboarding.DefaultConfig()),
		lang:       "en",
		logger:     slog.Default(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Store exposes the persona store for read-only callers.
func (o *Orchestrator) Store() *persona.Store {
	return o.store
}

// #endregion

// #region observe

// Observe classifies one observation against the current snapshot and commits
// the resulting events. Engagement observations are also tracked as activity.
// A deferred outcome is logged and reported, not returned as an error.
// Activity and outcome samples are settled only after the commit, so a caller
// may retry an observation that failed with a persistence error.
func (o *Orchestrator) Observe(ctx context.Context, obs signals.Observation) (ObserveResult, error) {
	if obs.UserID == "" {
		return ObserveResult{}, apperrors.InvalidArgument("user id is required")
	}
	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = o.now()
	}

	kind, tracked := activityKind(obs.Kind)
	tracked = tracked && o.activity != nil
	if obs.Kind == signals.ObserveReply && obs.RepliesToday == 0 && o.activity != nil {
		n, err := o.repliesOn(ctx, obs.UserID, obs.ObservedAt)
		if err != nil {
			return ObserveResult{}, err
		}
		// this reply is logged after the commit
		obs.RepliesToday = n + 1
	}

	current, err := o.store.Get(ctx, obs.UserID)
	if err != nil {
		return ObserveResult{}, err
	}

	var res ObserveResult
	events, err := o.classifier.Classify(ctx, current, obs)
	if errors.Is(err, apperrors.ErrInsufficientSample) {
		o.store.LogDeferred(ctx, obs.UserID, string(state.KindOutcome), err.Error())
		o.logger.InfoContext(ctx, "outcome deferred", "user_id", obs.UserID, "post_id", obs.PostID, "reason", err.Error())
		res.Deferred = true
		return res, nil
	}
	if err != nil {
		return ObserveResult{}, err
	}
	res.Events = events

	out, err := o.store.Update(ctx, obs.UserID, events...)
	if err != nil {
		o.logger.ErrorContext(ctx, "persona update failed", "user_id", obs.UserID, "kind", obs.Kind, "code", apperrors.GetCode(err), "err", err)
		return ObserveResult{}, err
	}
	res.Outcome = out

	// The commit stands either way; a failure here is logged, not returned,
	// so the caller does not retry a committed observation.
	wctx := context.WithoutCancel(ctx)
	if err := o.classifier.Settle(wctx, obs.UserID, events); err != nil {
		o.logger.ErrorContext(ctx, "settle outcome samples failed", "user_id", obs.UserID, "err", err)
	}
	if tracked {
		rec, err := o.activity.Add(wctx, activity.Record{UserID: obs.UserID, Kind: kind, Ref: obs.PostID, Timestamp: obs.ObservedAt})
		if err != nil {
			o.logger.ErrorContext(ctx, "record activity failed", "user_id", obs.UserID, "kind", kind, "err", err)
		} else {
			res.Activity = &rec
		}
	}

	o.logger.InfoContext(ctx, "observation applied",
		"user_id", obs.UserID, "kind", obs.Kind, "events", len(events),
		"committed", out.Committed(), "version", out.State.Version)
	return res, nil
}

func (o *Orchestrator) repliesOn(ctx context.Context, userID string, at time.Time) (int, error) {
	y, m, d := at.UTC().Date()
	recs, err := o.activity.Since(ctx, userID, time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
	if err != nil {
		return 0, apperrors.Persistence("load activity", err)
	}
	return activity.CountOn(recs, at)[activity.KindReply], nil
}

func activityKind(k signals.ObservationKind) (activity.Kind, bool) {
	switch k {
	case signals.ObserveReply:
		return activity.KindReply, true
	case signals.ObserveLike:
		return activity.KindLike, true
	case signals.ObserveFollow:
		return activity.KindFollow, true
	}
	return "", false
}

// #endregion

// #region record-activity

// RecordActivity tracks an action the user completed outside an observation,
// such as publishing a post.
func (o *Orchestrator) RecordActivity(ctx context.Context, rec activity.Record) (activity.Record, error) {
	if rec.UserID == "" {
		return activity.Record{}, apperrors.InvalidArgument("user id is required")
	}
	if !rec.Kind.Valid() {
		return activity.Record{}, apperrors.InvalidArgument("unknown activity kind " + string(rec.Kind))
	}
	if o.activity == nil {
		return activity.Record{}, apperrors.InvalidArgument("activity tracking disabled")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = o.now()
	}
	out, err := o.activity.Add(ctx, rec)
	if err != nil {
		return activity.Record{}, apperrors.Persistence("record activity", err)
	}
	return out, nil
}

// #endregion

// #region targets

// Targets computes the targets for the day containing at, with progress.
func (o *Orchestrator) Targets(ctx context.Context, userID string, at time.Time) (TargetsReport, error) {
	if at.IsZero() {
		at = o.now()
	}
	st, err := o.store.Get(ctx, userID)
	if err != nil {
		return TargetsReport{}, err
	}
	var recent []activity.Record
	if o.activity != nil {
		recent, err = o.activity.Since(ctx, userID, at.Add(-lookback))
		if err != nil {
			return TargetsReport{}, apperrors.Persistence("load activity", err)
		}
	}
	t := o.targets.ComputeFor(st, recent, at)
	return TargetsReport{Targets: t, Progress: t.Progress(recent)}, nil
}

// #endregion

// #region rank

// Rank orders candidate actions for the user.
func (o *Orchestrator) Rank(ctx context.Context, userID string, candidates []priority.Action) ([]priority.Action, error) {
	st, err := o.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return priority.RankFor(st, candidates), nil
}

// #endregion

// #region onboard

// Onboard derives and stores the user's initial persona from their history.
func (o *Orchestrator) Onboard(ctx context.Context, userID string, h onboarding.History) (state.PersonaState, error) {
	st, err := o.onboarder.Onboard(ctx, o.store, userID, h)
	if err != nil {
		return state.PersonaState{}, err
	}
	o.logger.InfoContext(ctx, "user onboarded", "user_id", userID, "topics", len(st.TopicAffinity),
		"sentence_length", st.ToneStyle.SentenceLength)
	return st, nil
}

// #endregion

// #region explain

// Explain renders the persona and its most recent changes in lang, or in the
// configured language when lang is empty.
func (o *Orchestrator) Explain(ctx context.Context, userID, lang string, limit int) (Explanation, error) {
	st, err := o.store.Get(ctx, userID)
	if err != nil {
		return Explanation{}, err
	}
	recs, err := o.store.History(ctx, userID, limit)
	if err != nil {
		return Explanation{}, err
	}
	if lang == "" {
		lang = o.lang
	}
	r := explain.NewRenderer(lang)
	return Explanation{Summary: r.Summary(st), ChangeLog: r.ChangeLog(recs)}, nil
}

// #endregion
