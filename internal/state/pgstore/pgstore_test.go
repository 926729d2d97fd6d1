package pgstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	apperrors "github.com/danielpatrickdp/persona-state/internal/errors"
	"github.com/danielpatrickdp/persona-state/internal/state"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelRoundTripDropsHistory(t *testing.T) {
	st := state.Default("u1")
	st.Version = 4
	st.TopicAffinity["rust"] = 0.7
	st.History = []state.UpdateRecord{{ID: "r1", Version: 4}}

	m, err := modelFromState(st)
	require.NoError(t, err)
	assert.Equal(t, int64(4), m.Version)
	assert.NotContains(t, m.StateJSON, `"history"`)

	back, err := stateFromModel(m)
	require.NoError(t, err)
	assert.Equal(t, 0.7, back.TopicAffinity["rust"])
	assert.Empty(t, back.History)
	assert.Equal(t, "casual", back.ToneStyle.Formality)
}

func TestRecordMapping(t *testing.T) {
	ts := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	r := state.UpdateRecord{ID: "r1", Version: 2, Timestamp: ts, FieldPath: state.PathHumorFrequency,
		OldValue: "0.2", NewValue: "0.25", Delta: 0.05, Kind: state.KindBehavioral, EventID: "e", Rationale: "why"}
	assert.Equal(t, r, recordFromModel(recordModel("u1", r)))
}

// TestPostgresStore runs against a live database when PERSONA_TEST_POSTGRES_DSN is set.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("PERSONA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PERSONA_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	user := "pg-" + uuid.NewString()
	_, err = s.Load(ctx, user)
	require.True(t, errors.Is(err, apperrors.ErrNotFound))

	require.NoError(t, s.Create(ctx, state.Default(user)))

	cur := state.Default(user)
	for i := 1; i <= 3; i++ {
		next := cur.Clone()
		next.Version = int64(i)
		kind := state.KindBehavioral
		if i == 1 {
			kind = state.KindOutcome
		}
		rec := state.UpdateRecord{ID: uuid.NewString(), Version: next.Version, FieldPath: state.PathHumorFrequency,
			OldValue: "0.2", NewValue: "0.2", Kind: kind, Rationale: "test", Timestamp: time.Now().UTC()}
		require.NoError(t, s.Commit(ctx, next, []state.UpdateRecord{rec}))
		cur = next
	}

	stale := cur.Clone()
	require.Error(t, s.Commit(ctx, stale, []state.UpdateRecord{{ID: uuid.NewString(), Version: cur.Version}}))

	loaded, err := s.Load(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(3), loaded.Version)
	assert.Len(t, loaded.History, 3)

	n, err := s.PruneHistory(ctx, user, 1, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	hist, err := s.History(ctx, user, 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, state.KindOutcome, hist[0].Kind)
	assert.Equal(t, int64(3), hist[1].Version)
}
