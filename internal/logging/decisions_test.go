package logging

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// #region helpers
func setupLog(t *testing.T) *DecisionLog {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "decisions.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	l, err := NewDecisionLog(db)
	if err != nil {
		t.Fatalf("NewDecisionLog: %v", err)
	}
	return l
}

// #endregion helpers

// #region log-decision-tests
func TestLogDecision_RoundTrip(t *testing.T) {
	l := setupLog(t)
	ctx := context.Background()

	entry := DecisionEntry{
		UserID:      "u1",
		EventID:     "e1",
		Kind:        "explicit",
		TargetField: "topic_affinity.ai",
		Direction:   0.5,
		Confidence:  0.9,
		Decision:    "commit",
		Reason:      "topic_affinity.ai 0.5 -> 0.545",
		Version:     1,
		RecordID:    "r1",
		EventJSON:   `{"ID":"e1"}`,
		CreatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := l.LogDecision(ctx, entry); err != nil {
		t.Fatalf("LogDecision: %v", err)
	}

	got, err := l.ListDecisions(ctx, Filter{UserID: "u1"})
	if err != nil {
		t.Fatalf("ListDecisions: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	g := got[0]
	if g.EventID != "e1" || g.Decision != "commit" || g.Version != 1 || g.EventJSON != `{"ID":"e1"}` {
		t.Fatalf("unexpected entry %+v", g)
	}
	if !g.CreatedAt.Equal(entry.CreatedAt) {
		t.Fatalf("expected created_at %s, got %s", entry.CreatedAt, g.CreatedAt)
	}
}

func TestLogDecision_NullableFields(t *testing.T) {
	l := setupLog(t)
	ctx := context.Background()
	if err := l.LogDecision(ctx, DecisionEntry{UserID: "u1", Kind: "explicit", Decision: "no_op"}); err != nil {
		t.Fatalf("LogDecision: %v", err)
	}
	got, _ := l.ListDecisions(ctx, Filter{UserID: "u1"})
	if len(got) != 1 || got[0].EventID != "" || got[0].RecordID != "" {
		t.Fatalf("expected empty optional fields, got %+v", got)
	}
	if got[0].CreatedAt.IsZero() {
		t.Fatal("expected created_at defaulted")
	}
}

func TestListDecisions_FilterAndLimit(t *testing.T) {
	l := setupLog(t)
	ctx := context.Background()
	for i, d := range []string{"commit", "no_op", "commit", "drop", "commit"} {
		l.LogDecision(ctx, DecisionEntry{UserID: "u1", Kind: "behavioral", Decision: d, Version: int64(i)})
	}
	l.LogDecision(ctx, DecisionEntry{UserID: "u2", Kind: "behavioral", Decision: "commit"})

	commits, err := l.ListDecisions(ctx, Filter{UserID: "u1", Decision: "commit"})
	if err != nil {
		t.Fatalf("ListDecisions: %v", err)
	}
	if len(commits) != 3 {
		t.Fatalf("expected 3 commits, got %d", len(commits))
	}

	last2, _ := l.ListDecisions(ctx, Filter{UserID: "u1", Limit: 2})
	if len(last2) != 2 || last2[0].Version != 3 || last2[1].Version != 4 {
		t.Fatalf("expected last two in order, got %+v", last2)
	}
}

// #endregion log-decision-tests
