// Package persona owns every user's persona state: it serializes writers per
// user, gates candidates before they are persisted and publishes committed
// snapshots atomically to readers.
package persona

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	apperrors "github.com/danielpatrickdp/persona-state/internal/errors"
	"github.com/danielpatrickdp/persona-state/internal/gate"
	"github.com/danielpatrickdp/persona-state/internal/logging"
	"github.com/danielpatrickdp/persona-state/internal/state"
	"github.com/danielpatrickdp/persona-state/internal/update"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// #region interfaces

// Repository persists snapshots and records. state.Store and pgstore.Store
// implement it.
type Repository interface {
	Load(ctx context.Context, userID string) (state.PersonaState, error)
	Create(ctx context.Context, st state.PersonaState) error
	Commit(ctx context.Context, next state.PersonaState, records []state.UpdateRecord) error
	History(ctx context.Context, userID string, limit int) ([]state.UpdateRecord, error)
	PruneHistory(ctx context.Context, userID string, keepRecent int, keepOutcome bool) (int64, error)
}

// DecisionLogger receives one entry per processed event.
type DecisionLogger interface {
	LogDecision(ctx context.Context, entry logging.DecisionEntry) error
}

// #endregion interfaces

// #region types

// RetentionPolicy selects which records survive Prune.
type RetentionPolicy struct {
	KeepRecent  int
	KeepOutcome bool
}

// UpdateOutcome is the result of one Update call.
type UpdateOutcome struct {
	State   state.PersonaState
	Results []update.UpdateResult
}

// Committed counts events that produced a record.
func (o UpdateOutcome) Committed() int {
	n := 0
	for _, r := range o.Results {
		if r.Committed() {
			n++
		}
	}
	return n
}

// slot holds one user's writer lock and latest committed snapshot.
type slot struct {
	mu   sync.Mutex
	snap atomic.Pointer[state.PersonaState]
	// stored is set once the repository holds a row for the user. Guarded by mu.
	stored bool
}

// #endregion types

// #region store

// Store is the single owner of persona state.
type Store struct {
	repo      Repository
	engine    *update.Engine
	gate      *gate.Gate
	decisions DecisionLogger
	logger    *slog.Logger
	tracer    trace.Tracer

	slots sync.Map // userID -> *slot
}

// Option configures a Store.
type Option func(*Store)

// WithDecisionLog records every event decision.
func WithDecisionLog(l DecisionLogger) Option {
	return func(s *Store) { s.decisions = l }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithGate replaces the default gate.
func WithGate(g *gate.Gate) Option {
	return func(s *Store) { s.gate = g }
}

// NewStore creates a Store over repo using engine for all mutations.
func NewStore(repo Repository, engine *update.Engine, opts ...Option) *Store {
	s := &Store{
		repo:   repo,
		engine: engine,
		logger: slog.Default(),
		tracer: otel.Tracer("github.com/danielpatrickdp/persona-state/internal/persona"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.gate == nil {
		s.gate = gate.NewGate(engine.Schema(), gate.DefaultGateConfig())
	}
	return s
}

// Engine returns the update engine the store mutates through.
func (s *Store) Engine() *update.Engine {
	return s.engine
}

func (s *Store) slotFor(userID string) *slot {
	v, _ := s.slots.LoadOrStore(userID, &slot{})
	return v.(*slot)
}

// #endregion store

// #region read

// Get returns the latest committed snapshot. A user who was never onboarded
// gets the documented defaults at version 0; nothing is persisted.
func (s *Store) Get(ctx context.Context, userID string) (state.PersonaState, error) {
	if userID == "" {
		return state.PersonaState{}, apperrors.InvalidArgument("user id is required")
	}
	sl := s.slotFor(userID)
	if p := sl.snap.Load(); p != nil {
		return p.Clone(), nil
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	cur, err := s.current(ctx, userID, sl)
	if err != nil {
		return state.PersonaState{}, err
	}
	return cur.Clone(), nil
}

// current returns the cached snapshot, loading it on first use. Caller holds sl.mu.
func (s *Store) current(ctx context.Context, userID string, sl *slot) (*state.PersonaState, error) {
	if p := sl.snap.Load(); p != nil {
		return p, nil
	}
	st, err := s.repo.Load(ctx, userID)
	if errors.Is(err, apperrors.ErrNotFound) {
		st = state.Default(userID)
	} else if err != nil {
		return nil, apperrors.Persistence("load "+userID, err)
	} else {
		sl.stored = true
	}
	sl.snap.Store(&st)
	return &st, nil
}

// History returns up to limit most recent records in version order.
func (s *Store) History(ctx context.Context, userID string, limit int) ([]state.UpdateRecord, error) {
	recs, err := s.repo.History(ctx, userID, limit)
	if err != nil {
		return nil, apperrors.Persistence("history "+userID, err)
	}
	return recs, nil
}

// #endregion read

// #region create

// Create stores an onboarding snapshot as the user's starting point.
func (s *Store) Create(ctx context.Context, userID string, initial state.PersonaState) (state.PersonaState, error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := s.tracer.Start(ctx, "persona.Create", trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()

	if userID == "" {
		return state.PersonaState{}, apperrors.InvalidArgument("user id is required")
	}
	sl := s.slotFor(userID)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	cur, err := s.current(ctx, userID, sl)
	if err != nil {
		return state.PersonaState{}, spanErr(span, err)
	}
	if cur.Version > 0 || sl.stored {
		return state.PersonaState{}, spanErr(span, apperrors.InvalidArgument(fmt.Sprintf("user %s already has state at version %d", userID, cur.Version)))
	}

	st := initial.Clone()
	st.UserID = userID
	st.Version = 0
	st.History = nil
	if vs := s.engine.Schema().Validate(st); len(vs) > 0 {
		return state.PersonaState{}, spanErr(span, apperrors.InvalidArgument("initial state invalid: "+vs[0].String()))
	}
	if err := s.repo.Create(ctx, st); err != nil {
		return state.PersonaState{}, spanErr(span, apperrors.Persistence("create "+userID, err))
	}
	sl.stored = true
	sl.snap.Store(&st)
	s.logger.InfoContext(ctx, "persona created", "user_id", userID, "topics", len(st.TopicAffinity))
	return st.Clone(), nil
}

// #endregion create

// #region update

// Update applies events in order as one commit. Writers for the same user are
// serialized; other users proceed independently. The commit runs detached from
// ctx cancellation so an abandoned caller cannot half-apply it. On a persistence
// failure the candidate is discarded and the previous snapshot stays current.
func (s *Store) Update(ctx context.Context, userID string, events ...update.FeedbackEvent) (UpdateOutcome, error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := s.tracer.Start(ctx, "persona.Update", trace.WithAttributes(
		attribute.String("user_id", userID),
		attribute.Int("events", len(events)),
	))
	defer span.End()

	if userID == "" {
		return UpdateOutcome{}, spanErr(span, apperrors.InvalidArgument("user id is required"))
	}
	sl := s.slotFor(userID)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	cur, err := s.current(ctx, userID, sl)
	if err != nil {
		return UpdateOutcome{}, spanErr(span, err)
	}

	next, results := s.engine.ApplyBatch(*cur, events)
	var records []state.UpdateRecord
	for _, r := range results {
		if r.Committed() {
			records = append(records, *r.Record)
		}
		if r.Err != nil {
			s.logger.WarnContext(ctx, "feedback dropped", "user_id", userID, "target", r.Event.TargetField, "err", r.Err)
		}
	}
	if len(records) == 0 {
		s.logDecisions(ctx, userID, results, cur.Version)
		return UpdateOutcome{State: cur.Clone(), Results: results}, nil
	}

	decision := s.gate.Evaluate(*cur, next, records)
	if decision.Vetoed {
		s.logger.ErrorContext(ctx, "gate rejected candidate", "user_id", userID, "reason", decision.Reason)
		v := decision.VetoSignals[0]
		return UpdateOutcome{State: cur.Clone(), Results: results},
			spanErr(span, apperrors.RangeViolation(v.Path, string(v.Type), v.Reason))
	}

	if err := s.repo.Commit(ctx, next, records); err != nil {
		s.logger.ErrorContext(ctx, "persist failed", "user_id", userID, "version", next.Version, "err", err)
		return UpdateOutcome{State: cur.Clone(), Results: results}, spanErr(span, apperrors.Persistence("commit "+userID, err))
	}
	committed := next.Clone()
	sl.stored = true
	sl.snap.Store(&committed)

	s.logDecisions(ctx, userID, results, next.Version)
	span.SetAttributes(attribute.Int64("version", next.Version), attribute.Int("records", len(records)))
	s.logger.DebugContext(ctx, "persona updated", "user_id", userID, "version", next.Version, "records", len(records))
	return UpdateOutcome{State: next.Clone(), Results: results}, nil
}

// LogDeferred records events that were held back before reaching the engine.
func (s *Store) LogDeferred(ctx context.Context, userID, kind, reason string) {
	if s.decisions == nil {
		return
	}
	entry := logging.DecisionEntry{UserID: userID, Kind: kind, Decision: update.ActionDeferred, Reason: reason}
	if p := s.slotFor(userID).snap.Load(); p != nil {
		entry.Version = p.Version
	}
	if err := s.decisions.LogDecision(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "decision log failed", "user_id", userID, "err", err)
	}
}

func (s *Store) logDecisions(ctx context.Context, userID string, results []update.UpdateResult, finalVersion int64) {
	if s.decisions == nil {
		return
	}
	for _, r := range results {
		entry := logging.DecisionEntry{
			UserID:      userID,
			EventID:     r.Event.ID,
			Kind:        string(r.Event.Kind),
			TargetField: r.Event.TargetField,
			Direction:   r.Event.Direction,
			Confidence:  r.Event.Confidence,
			Decision:    r.Decision.Action,
			Reason:      r.Decision.Reason,
			Version:     finalVersion,
		}
		if r.Record != nil {
			entry.RecordID = r.Record.ID
			entry.Version = r.Record.Version
		}
		if b, err := json.Marshal(r.Event); err == nil {
			entry.EventJSON = string(b)
		}
		if err := s.decisions.LogDecision(ctx, entry); err != nil {
			s.logger.WarnContext(ctx, "decision log failed", "user_id", userID, "err", err)
		}
	}
}

// #endregion update

// #region prune

// Prune applies a retention policy to a user's history. Version and current
// values are untouched.
func (s *Store) Prune(ctx context.Context, userID string, policy RetentionPolicy) (int64, error) {
	ctx = context.WithoutCancel(ctx)
	sl := s.slotFor(userID)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	n, err := s.repo.PruneHistory(ctx, userID, policy.KeepRecent, policy.KeepOutcome)
	if err != nil {
		return 0, apperrors.Persistence("prune "+userID, err)
	}
	if p := sl.snap.Load(); p != nil {
		hist, err := s.repo.History(ctx, userID, 0)
		if err != nil {
			// Drop the cache so the next access reloads from the repository.
			sl.snap.Store(nil)
			return n, apperrors.Persistence("reload history "+userID, err)
		}
		next := p.Clone()
		next.History = hist
		sl.snap.Store(&next)
	}
	s.logger.InfoContext(ctx, "history pruned", "user_id", userID, "deleted", n)
	return n, nil
}

// #endregion prune

// #region helpers
func spanErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// #endregion helpers
