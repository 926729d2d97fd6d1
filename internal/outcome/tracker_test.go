package outcome

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	apperrors "github.com/danielpatrickdp/persona-state/internal/errors"
	_ "modernc.org/sqlite"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "outcome.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleIDs(evals []Evaluation) []int64 {
	ids := make([]int64, 0, len(evals))
	for _, e := range evals {
		ids = append(ids, e.Sample.ID)
	}
	return ids
}

func TestScoreWeights(t *testing.T) {
	if got := Score(10, 2, 1); got != 17 {
		t.Fatalf("expected 17, got %f", got)
	}
}

func TestComputeBaseline(t *testing.T) {
	b := ComputeBaseline([]Sample{{Score: 2}, {Score: 4}, {Score: 4}, {Score: 4}, {Score: 5}, {Score: 5}, {Score: 7}, {Score: 9}})
	if b.Mean != 5 || b.StdDev != 2 {
		t.Fatalf("expected mean 5 stddev 2, got %+v", b)
	}
	if empty := ComputeBaseline(nil); empty.N != 0 || empty.Mean != 0 {
		t.Fatalf("expected zero baseline, got %+v", empty)
	}
}

func runDeferral(t *testing.T, ledger Ledger) {
	ctx := context.Background()
	tr := NewTracker(ledger, DefaultTrackerConfig())

	likes := []int{10, 12, 8, 10}
	for i, l := range likes {
		evals, err := tr.Record(ctx, Sample{UserID: "u1", PostID: fmt.Sprintf("p%d", i), Topics: []string{"ai"}, Likes: l})
		if !errors.Is(err, apperrors.ErrInsufficientSample) {
			t.Fatalf("sample %d: expected insufficient sample, got %v", i, err)
		}
		if len(evals) != 0 {
			t.Fatalf("sample %d: expected no evaluations", i)
		}
	}

	evals, err := tr.Record(ctx, Sample{UserID: "u1", PostID: "hit", Topics: []string{"ai", "saas"}, Likes: 40})
	if err != nil {
		t.Fatalf("fifth sample: %v", err)
	}
	if len(evals) != 5 {
		t.Fatalf("expected all 5 pending samples released, got %d", len(evals))
	}
	last := evals[4]
	if last.Sample.PostID != "hit" || last.Direction != 1 {
		t.Fatalf("expected positive evaluation for the hit, got %+v", last)
	}
	if last.Confidence <= 0 || last.Confidence > 1 {
		t.Fatalf("confidence out of range: %f", last.Confidence)
	}
	if evals[0].Direction != -1 {
		t.Fatalf("expected below-baseline sample negative, got %+v", evals[0])
	}
	if err := tr.Settle(ctx, "u1", sampleIDs(evals)); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	evals, err = tr.Record(ctx, Sample{UserID: "u1", PostID: "next", Likes: 15})
	if err != nil {
		t.Fatalf("sixth sample: %v", err)
	}
	if len(evals) != 1 || evals[0].Sample.PostID != "next" {
		t.Fatalf("expected only the new sample evaluated, got %+v", evals)
	}

	// Other users start from scratch.
	if _, err := tr.Record(ctx, Sample{UserID: "u2", Likes: 100}); !errors.Is(err, apperrors.ErrInsufficientSample) {
		t.Fatalf("expected u2 deferred, got %v", err)
	}
}

func TestTrackerDefersThenReleasesMemory(t *testing.T) {
	runDeferral(t, NewMemoryLedger())
}

func TestTrackerDefersThenReleasesSQLite(t *testing.T) {
	ledger, err := NewSQLiteLedger(testDB(t))
	if err != nil {
		t.Fatalf("NewSQLiteLedger: %v", err)
	}
	runDeferral(t, ledger)
}

func TestSQLiteLedgerRoundTrip(t *testing.T) {
	ctx := context.Background()
	ledger, err := NewSQLiteLedger(testDB(t))
	if err != nil {
		t.Fatalf("NewSQLiteLedger: %v", err)
	}
	added, err := ledger.Add(ctx, Sample{UserID: "u1", PostID: "p1", Topics: []string{"saas", "ai"}, Likes: 3, Replies: 1, Score: 5})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if added.ID == 0 {
		t.Fatal("expected assigned id")
	}
	if err := ledger.MarkEvaluated(ctx, "u1", []int64{added.ID}); err != nil {
		t.Fatalf("MarkEvaluated: %v", err)
	}
	got, err := ledger.Samples(ctx, "u1")
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(got) != 1 || !got[0].Evaluated || len(got[0].Topics) != 2 || got[0].Score != 5 {
		t.Fatalf("unexpected samples %+v", got)
	}
}

func TestFlatBaselineGivesZeroConfidence(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(NewMemoryLedger(), TrackerConfig{MinSamples: 2})
	tr.Record(ctx, Sample{UserID: "u", Likes: 5})
	evals, err := tr.Record(ctx, Sample{UserID: "u", Likes: 5})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	for _, e := range evals {
		if e.Confidence != 0 || e.Direction != 0 {
			t.Fatalf("expected zero evaluation, got %+v", e)
		}
	}
}

func runUnsettledRetry(t *testing.T, ledger Ledger) {
	ctx := context.Background()
	tr := NewTracker(ledger, DefaultTrackerConfig())
	for i := 0; i < 4; i++ {
		tr.Record(ctx, Sample{UserID: "u1", PostID: fmt.Sprintf("p%d", i), Topics: []string{"ai"}, Likes: 10 + i})
	}

	first, err := tr.Record(ctx, Sample{UserID: "u1", PostID: "hit", Topics: []string{"saas"}, Likes: 40})
	if err != nil || len(first) != 5 {
		t.Fatalf("expected 5 evaluations, got %d (%v)", len(first), err)
	}

	// the commit failed and nothing was settled: the retry sees every sample again
	retry, err := tr.Record(ctx, Sample{UserID: "u1", PostID: "hit", Topics: []string{"saas"}, Likes: 40})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(retry) != 5 {
		t.Fatalf("expected the same 5 pending samples, got %d", len(retry))
	}
	all, _ := ledger.Samples(ctx, "u1")
	if len(all) != 5 {
		t.Fatalf("retry duplicated the post: %d samples", len(all))
	}

	if err := tr.Settle(ctx, "u1", sampleIDs(retry)); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	next, err := tr.Record(ctx, Sample{UserID: "u1", PostID: "later", Likes: 12})
	if err != nil || len(next) != 1 {
		t.Fatalf("expected only the new sample after settling, got %d (%v)", len(next), err)
	}
}

func TestUnsettledSamplesSurviveRetryMemory(t *testing.T) {
	runUnsettledRetry(t, NewMemoryLedger())
}

func TestUnsettledSamplesSurviveRetrySQLite(t *testing.T) {
	ledger, err := NewSQLiteLedger(testDB(t))
	if err != nil {
		t.Fatalf("NewSQLiteLedger: %v", err)
	}
	runUnsettledRetry(t, ledger)
}
