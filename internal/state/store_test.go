package state

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/danielpatrickdp/persona-state/internal/errors"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func record(version int64, path string, kind FeedbackKind) UpdateRecord {
	return UpdateRecord{
		ID:        "r" + FormatNumber(float64(version)),
		Version:   version,
		Timestamp: time.Date(2026, 1, 1, 0, 0, int(version), 0, time.UTC),
		FieldPath: path,
		OldValue:  "0.5",
		NewValue:  "0.6",
		Delta:     0.1,
		Kind:      kind,
		Rationale: "test",
	}
}

func TestLoadMissingUser(t *testing.T) {
	s := tempDB(t)
	_, err := s.Load(context.Background(), "ghost")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateAndLoad(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	st := Default("u1")
	st.TopicAffinity["rust"] = 0.8

	if err := s.Create(ctx, st); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(ctx, st); err == nil {
		t.Fatal("expected duplicate create to fail")
	}

	got, err := s.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.TopicAffinity["rust"] != 0.8 {
		t.Fatalf("expected rust 0.8, got %f", got.TopicAffinity["rust"])
	}
	if got.ToneStyle.Formality != "casual" {
		t.Fatalf("expected casual, got %s", got.ToneStyle.Formality)
	}
	if len(got.History) != 0 {
		t.Fatalf("expected empty history, got %d", len(got.History))
	}
}

func TestCommitInsertsWhenNeverCreated(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	next := Default("u2")
	next.Version = 1
	next.TopicAffinity["ai"] = 0.6

	if err := s.Commit(ctx, next, []UpdateRecord{record(1, "topic_affinity.ai", KindExplicit)}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	got, err := s.Load(ctx, "u2")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Version != 1 || len(got.History) != 1 {
		t.Fatalf("expected version 1 with 1 record, got v%d/%d", got.Version, len(got.History))
	}
	if got.History[0].Kind != KindExplicit {
		t.Fatalf("expected explicit kind, got %s", got.History[0].Kind)
	}
}

func TestCommitRejectsStaleVersion(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	st := Default("u3")
	if err := s.Create(ctx, st); err != nil {
		t.Fatalf("Create: %v", err)
	}
	next := st.Clone()
	next.Version = 1
	if err := s.Commit(ctx, next, []UpdateRecord{record(1, PathHumorFrequency, KindBehavioral)}); err != nil {
		t.Fatalf("first commit: %v", err)
	}

	// Built from version 0 again: must conflict and leave version 1 intact.
	stale := st.Clone()
	stale.Version = 1
	if err := s.Commit(ctx, stale, []UpdateRecord{record(1, PathHumorFrequency, KindBehavioral)}); err == nil {
		t.Fatal("expected conflict")
	}
	got, _ := s.Load(ctx, "u3")
	if got.Version != 1 || len(got.History) != 1 {
		t.Fatalf("stale commit changed state: v%d/%d", got.Version, len(got.History))
	}
}

func TestHistoryLimitAndPrune(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	st := Default("u4")
	if err := s.Create(ctx, st); err != nil {
		t.Fatalf("Create: %v", err)
	}
	kinds := []FeedbackKind{KindOutcome, KindExplicit, KindBehavioral, KindExplicit, KindBehavioral}
	for i, k := range kinds {
		next := st.Clone()
		next.Version = int64(i + 1)
		if err := s.Commit(ctx, next, []UpdateRecord{record(int64(i+1), PathHumorFrequency, k)}); err != nil {
			t.Fatalf("Commit %d: %v", i, err)
		}
	}

	last2, err := s.History(ctx, "u4", 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(last2) != 2 || last2[0].Version != 4 || last2[1].Version != 5 {
		t.Fatalf("expected versions [4 5], got %+v", last2)
	}

	deleted, err := s.PruneHistory(ctx, "u4", 2, true)
	if err != nil {
		t.Fatalf("PruneHistory: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted, got %d", deleted)
	}
	all, _ := s.History(ctx, "u4", 0)
	if len(all) != 3 || all[0].Kind != KindOutcome {
		t.Fatalf("expected outcome record plus 2 recent, got %+v", all)
	}

	got, _ := s.Load(ctx, "u4")
	if got.Version != 5 {
		t.Fatalf("prune must not touch version, got %d", got.Version)
	}
}

func TestListUsers(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	for _, id := range []string{"b", "a"} {
		if err := s.Create(ctx, Default(id)); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 || users[0] != "a" {
		t.Fatalf("unexpected users %v", users)
	}
}
