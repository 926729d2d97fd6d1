package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danielpatrickdp/persona-state/internal/activity"
	apperrors "github.com/danielpatrickdp/persona-state/internal/errors"
	"github.com/danielpatrickdp/persona-state/internal/logging"
	"github.com/danielpatrickdp/persona-state/internal/onboarding"
	"github.com/danielpatrickdp/persona-state/internal/outcome"
	"github.com/danielpatrickdp/persona-state/internal/persona"
	"github.com/danielpatrickdp/persona-state/internal/priority"
	"github.com/danielpatrickdp/persona-state/internal/signals"
	"github.com/danielpatrickdp/persona-state/internal/state"
	"github.com/danielpatrickdp/persona-state/internal/update"
)

// #region helpers

var testNow = time.Date(2026, 5, 14, 15, 0, 0, 0, time.UTC)

type harness struct {
	orch      *Orchestrator
	decisions *logging.DecisionLog
	ledger    *outcome.SQLiteLedger
	acts      *activity.Store
}

// failOnceRepo fails commits while armed.
type failOnceRepo struct {
	*persona.MemoryRepository
	armed bool
}

func (f *failOnceRepo) Commit(ctx context.Context, next state.PersonaState, records []state.UpdateRecord) error {
	if f.armed {
		f.armed = false
		return errors.New("disk unavailable")
	}
	return f.MemoryRepository.Commit(ctx, next, records)
}

func setupOrchestrator(t *testing.T) harness {
	return setupWithRepo(t, nil)
}

// setupWithRepo wires an orchestrator over a temp SQLite file. A nil repo
// keeps snapshots in the same file.
func setupWithRepo(t *testing.T, repo persona.Repository) harness {
	t.Helper()
	db, err := state.NewStore(filepath.Join(t.TempDir(), "persona.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if repo == nil {
		repo = db
	}

	decisions, err := logging.NewDecisionLog(db.DB())
	if err != nil {
		t.Fatalf("decision log: %v", err)
	}
	acts, err := activity.NewStore(db.DB())
	if err != nil {
		t.Fatalf("activity store: %v", err)
	}
	ledger, err := outcome.NewSQLiteLedger(db.DB())
	if err != nil {
		t.Fatalf("outcome ledger: %v", err)
	}

	store := persona.NewStore(repo, update.NewEngine(nil, update.DefaultUpdateConfig()), persona.WithDecisionLog(decisions))
	classifier := signals.NewClassifier(outcome.NewTracker(ledger, outcome.DefaultTrackerConfig()), signals.DefaultClassifierConfig())
	orch := New(store, classifier, acts, WithClock(func() time.Time { return testNow }))
	return harness{orch: orch, decisions: decisions, ledger: ledger, acts: acts}
}

// #endregion

// #region observe-tests

func TestObserveApprovalCommits(t *testing.T) {
	h := setupOrchestrator(t)
	ctx := context.Background()

	res, err := h.orch.Observe(ctx, signals.Observation{UserID: "u1", Kind: signals.ObserveApproval, Topics: []string{"AI", "SaaS"}})
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if len(res.Events) != 3 || res.Outcome.Committed() != 3 {
		t.Fatalf("expected 3 committed events, got %d events %d committed", len(res.Events), res.Outcome.Committed())
	}
	if res.Activity != nil {
		t.Fatal("approvals are not tracked as activity")
	}

	st, _ := h.orch.Store().Get(ctx, "u1")
	if st.Version != 3 || st.TopicAffinity["ai"] <= 0.5 || st.LearningTotals.Approvals != 1 {
		t.Fatalf("unexpected state after approval: version=%d ai=%f approvals=%d", st.Version, st.TopicAffinity["ai"], st.LearningTotals.Approvals)
	}

	entries, err := h.decisions.ListDecisions(ctx, logging.Filter{UserID: "u1"})
	if err != nil {
		t.Fatalf("ListDecisions: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 decision rows, got %d", len(entries))
	}
}

func TestObserveLikeTracksActivity(t *testing.T) {
	h := setupOrchestrator(t)
	ctx := context.Background()

	res, err := h.orch.Observe(ctx, signals.Observation{UserID: "u1", Kind: signals.ObserveLike, Topics: []string{"rust"}, PostID: "p1"})
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if res.Activity == nil || res.Activity.Kind != activity.KindLike || res.Activity.Ref != "p1" {
		t.Fatalf("expected like activity, got %+v", res.Activity)
	}
	report, err := h.orch.Targets(ctx, "u1", testNow)
	if err != nil {
		t.Fatalf("Targets: %v", err)
	}
	if report.Progress.Completed[activity.KindLike] != 1 {
		t.Fatalf("expected like counted in progress, got %+v", report.Progress.Completed)
	}
}

func TestObserveReplyUsesTodaysCount(t *testing.T) {
	h := setupOrchestrator(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		if _, err := h.orch.RecordActivity(ctx, activity.Record{UserID: "u1", Kind: activity.KindReply, Timestamp: testNow.Add(-time.Duration(i+1) * time.Minute)}); err != nil {
			t.Fatalf("RecordActivity: %v", err)
		}
	}
	res, err := h.orch.Observe(ctx, signals.Observation{UserID: "u1", Kind: signals.ObserveReply})
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if len(res.Events) != 1 || res.Events[0].Direction <= 0 {
		t.Fatalf("expected a positive reply deviation, got %+v", res.Events)
	}
	if res.Outcome.State.EngagementBehavior.RepliesPerDayBaseline <= 5 {
		t.Fatalf("expected replies baseline to rise, got %f", res.Outcome.State.EngagementBehavior.RepliesPerDayBaseline)
	}
}

func TestObserveOutcomeDefersThenCommits(t *testing.T) {
	h := setupOrchestrator(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		res, err := h.orch.Observe(ctx, signals.Observation{UserID: "u1", Kind: signals.ObserveOutcome, PostID: fmt.Sprintf("p%d", i), Topics: []string{"ai"}, Likes: 10})
		if err != nil {
			t.Fatalf("Observe %d: %v", i, err)
		}
		if !res.Deferred {
			t.Fatalf("sample %d: expected deferral", i)
		}
	}
	deferred, _ := h.decisions.ListDecisions(ctx, logging.Filter{UserID: "u1", Decision: update.ActionDeferred})
	if len(deferred) != 4 {
		t.Fatalf("expected 4 deferred rows, got %d", len(deferred))
	}

	res, err := h.orch.Observe(ctx, signals.Observation{UserID: "u1", Kind: signals.ObserveOutcome, PostID: "viral", Topics: []string{"saas"}, Likes: 100})
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if res.Deferred || res.Outcome.State.TopicAffinity["saas"] <= 0.5 {
		t.Fatalf("expected outcome to lift saas, got %+v", res.Outcome.State.TopicAffinity)
	}
}

func TestObserveOutcomeRetryAfterPersistenceFailure(t *testing.T) {
	repo := &failOnceRepo{MemoryRepository: persona.NewMemoryRepository()}
	h := setupWithRepo(t, repo)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		obs := signals.Observation{UserID: "u1", Kind: signals.ObserveOutcome, PostID: fmt.Sprintf("p%d", i), Topics: []string{"ai"}, Likes: 10}
		if _, err := h.orch.Observe(ctx, obs); err != nil {
			t.Fatalf("Observe %d: %v", i, err)
		}
	}

	viral := signals.Observation{UserID: "u1", Kind: signals.ObserveOutcome, PostID: "viral", Topics: []string{"saas"}, Likes: 100}
	repo.armed = true
	if _, err := h.orch.Observe(ctx, viral); !errors.Is(err, apperrors.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}

	res, err := h.orch.Observe(ctx, viral)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(res.Events) != 5 || res.Outcome.Committed() != 5 {
		t.Fatalf("expected all 5 pending outcomes committed, got %d events %d committed", len(res.Events), res.Outcome.Committed())
	}
	if res.Outcome.State.Version != 5 {
		t.Fatalf("expected version 5, got %d", res.Outcome.State.Version)
	}

	samples, err := h.ledger.Samples(ctx, "u1")
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(samples) != 5 {
		t.Fatalf("expected 5 samples without duplicates, got %d", len(samples))
	}
	for _, s := range samples {
		if !s.Evaluated {
			t.Fatalf("sample %s left pending after commit", s.PostID)
		}
	}
}

func TestObserveLikeRetryLogsActivityOnce(t *testing.T) {
	repo := &failOnceRepo{MemoryRepository: persona.NewMemoryRepository(), armed: true}
	h := setupWithRepo(t, repo)
	ctx := context.Background()

	like := signals.Observation{UserID: "u1", Kind: signals.ObserveLike, Topics: []string{"rust"}, PostID: "p1"}
	if _, err := h.orch.Observe(ctx, like); !errors.Is(err, apperrors.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	recs, _ := h.acts.Since(ctx, "u1", testNow.Add(-time.Hour))
	if len(recs) != 0 {
		t.Fatalf("failed observation logged %d activity rows", len(recs))
	}

	res, err := h.orch.Observe(ctx, like)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res.Activity == nil {
		t.Fatal("expected activity recorded on success")
	}
	recs, _ = h.acts.Since(ctx, "u1", testNow.Add(-time.Hour))
	if len(recs) != 1 {
		t.Fatalf("expected 1 activity row, got %d", len(recs))
	}
}

func TestObserveMalformedIsNoOp(t *testing.T) {
	h := setupOrchestrator(t)
	res, err := h.orch.Observe(context.Background(), signals.Observation{UserID: "u1", Kind: "shrug"})
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if res.Outcome.Committed() != 0 || res.Outcome.State.Version != 0 {
		t.Fatalf("expected no commit, got %+v", res.Outcome)
	}
}

func TestObserveRequiresUser(t *testing.T) {
	h := setupOrchestrator(t)
	_, err := h.orch.Observe(context.Background(), signals.Observation{Kind: signals.ObserveLike})
	if !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

// #endregion

// #region read-side-tests

func TestRecordActivityRejectsUnknownKind(t *testing.T) {
	h := setupOrchestrator(t)
	_, err := h.orch.RecordActivity(context.Background(), activity.Record{UserID: "u1", Kind: "dm"})
	if !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestTargetsForFreshUser(t *testing.T) {
	h := setupOrchestrator(t)
	report, err := h.orch.Targets(context.Background(), "u1", time.Time{})
	if err != nil {
		t.Fatalf("Targets: %v", err)
	}
	if report.Targets.Likes != 20 || report.Targets.Posts != 2 || report.Progress.Percentage != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestRankUsesPersona(t *testing.T) {
	h := setupOrchestrator(t)
	ctx := context.Background()
	if _, err := h.orch.Observe(ctx, signals.Observation{UserID: "u1", Kind: signals.ObserveApproval, Topics: []string{"ai"}}); err != nil {
		t.Fatalf("Observe: %v", err)
	}
	got, err := h.orch.Rank(ctx, "u1", []priority.Action{
		{ID: "other", Class: priority.ClassSuggestion, Topics: []string{"gardening"}},
		{ID: "ai", Class: priority.ClassSuggestion, Topics: []string{"ai"}},
	})
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if got[0].ID != "ai" {
		t.Fatalf("expected ai suggestion first, got %s", got[0].ID)
	}
}

// #endregion

// #region onboard-tests

func TestOnboardThenObserve(t *testing.T) {
	h := setupOrchestrator(t)
	ctx := context.Background()

	st, err := h.orch.Onboard(ctx, "u1", onboarding.History{
		Posts:       []string{"Thank you all for the support. I appreciate every reply."},
		Likes:       1500,
		ReplyDays:   30,
		TopicWeight: map[string]float64{"Indie Hackers": 0.8},
	})
	if err != nil {
		t.Fatalf("Onboard: %v", err)
	}
	if st.Version != 0 || st.ToneStyle.Formality != "formal" || st.EngagementBehavior.LikesPerDayBaseline != 50 {
		t.Fatalf("unexpected initial persona %+v", st)
	}
	if _, ok := st.TopicAffinity["indie_hackers"]; !ok {
		t.Fatalf("expected normalized topic, got %v", st.TopicAffinity)
	}

	res, err := h.orch.Observe(ctx, signals.Observation{UserID: "u1", Kind: signals.ObserveApproval, Topics: []string{"indie_hackers"}})
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if res.Outcome.State.ToneStyle.Formality != "formal" || res.Outcome.State.Version != 2 {
		t.Fatalf("observation should build on the onboarded persona, got %+v", res.Outcome.State)
	}

	if _, err := h.orch.Onboard(ctx, "u1", onboarding.History{}); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Fatalf("expected re-onboarding to fail, got %v", err)
	}
}

func TestExplainRendersHistory(t *testing.T) {
	h := setupOrchestrator(t)
	ctx := context.Background()
	if _, err := h.orch.Observe(ctx, signals.Observation{UserID: "u1", Kind: signals.ObserveApproval, Topics: []string{"ai"}}); err != nil {
		t.Fatalf("Observe: %v", err)
	}

	out, err := h.orch.Explain(ctx, "u1", "pt-BR", 1)
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if !strings.Contains(out.Summary, "(versão 2)") {
		t.Fatalf("expected Portuguese summary, got %q", out.Summary)
	}
	if strings.Count(out.ChangeLog, "\n    ") != 1 || !strings.HasPrefix(out.ChangeLog, "v2 ") {
		t.Fatalf("expected only the latest change, got %q", out.ChangeLog)
	}
}

func TestExplainFallsBackToConfiguredLanguage(t *testing.T) {
	h := setupOrchestrator(t)
	WithLanguage("pt-BR")(h.orch)

	out, err := h.orch.Explain(context.Background(), "u1", "", 5)
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if !strings.Contains(out.Summary, "(versão 0)") {
		t.Fatalf("expected Portuguese summary, got %q", out.Summary)
	}
}

// #endregion
