package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danielpatrickdp/persona-state/internal/activity"
	"github.com/danielpatrickdp/persona-state/internal/logging"
	"github.com/danielpatrickdp/persona-state/internal/persona"
	"github.com/danielpatrickdp/persona-state/internal/state"
	"github.com/danielpatrickdp/persona-state/internal/update"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "persona.db")
	db, err := state.NewStore(path)
	require.NoError(t, err)
	defer db.Close()

	decisions, err := logging.NewDecisionLog(db.DB())
	require.NoError(t, err)
	store := persona.NewStore(db, update.NewEngine(nil, update.DefaultUpdateConfig()), persona.WithDecisionLog(decisions))
	_, err = store.Update(context.Background(), "u1",
		update.FeedbackEvent{ID: "ev-1", Kind: state.KindExplicit, TargetField: "topic_affinity.ai", Direction: 1, Confidence: 1},
		update.FeedbackEvent{ID: "ev-2", Kind: state.KindExplicit, TargetField: "tone_style.nope", Direction: 1, Confidence: 1},
	)
	require.NoError(t, err)

	acts, err := activity.NewStore(db.DB())
	require.NoError(t, err)
	_, err = acts.Add(context.Background(), activity.Record{UserID: "u1", Kind: activity.KindPost, Timestamp: time.Now().UTC()})
	require.NoError(t, err)
	return path
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestUsersAndState(t *testing.T) {
	db := seedDB(t)
	assert.Equal(t, "u1\n", run(t, "users", "--db", db))

	out := run(t, "state", "u1", "--db", db)
	assert.Contains(t, out, "PERSONA u1 (version 1)")
	assert.Contains(t, out, "- ai: 60.0%")
}

func TestStateJSON(t *testing.T) {
	db := seedDB(t)
	var st state.PersonaState
	require.NoError(t, json.Unmarshal([]byte(run(t, "state", "u1", "--db", db, "--json")), &st))
	assert.Equal(t, int64(1), st.Version)
	assert.Empty(t, st.History)
}

func TestHistoryAndDecisions(t *testing.T) {
	db := seedDB(t)
	out := run(t, "history", "u1", "--db", db)
	assert.True(t, strings.HasPrefix(out, "v1 "), out)
	assert.Contains(t, out, "topic_affinity.ai: 0.5 -> 0.6")

	out = run(t, "decisions", "u1", "--db", db)
	assert.Contains(t, out, "commit")
	assert.Contains(t, out, "drop")

	out = run(t, "decisions", "u1", "--db", db, "--decision", "drop")
	assert.NotContains(t, out, "commit ")
}

func TestTargets(t *testing.T) {
	db := seedDB(t)
	out := run(t, "targets", "u1", "--db", db)
	assert.Contains(t, out, "post           2          1          1")
}

func TestPrune(t *testing.T) {
	db := seedDB(t)
	assert.Equal(t, "deleted 1 records\n", run(t, "prune", "u1", "--db", db, "--keep", "0", "--keep-outcome=false"))
	assert.Equal(t, "No changes yet.\n", run(t, "history", "u1", "--db", db))
	assert.Contains(t, run(t, "state", "u1", "--db", db), "(version 1)")
}
