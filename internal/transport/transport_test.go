package transport

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/persona-state/internal/activity"
	apperrors "github.com/danielpatrickdp/persona-state/internal/errors"
	"github.com/danielpatrickdp/persona-state/internal/orchestrator"
	"github.com/danielpatrickdp/persona-state/internal/outcome"
	"github.com/danielpatrickdp/persona-state/internal/persona"
	"github.com/danielpatrickdp/persona-state/internal/signals"
	"github.com/danielpatrickdp/persona-state/internal/state"
	"github.com/danielpatrickdp/persona-state/internal/update"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
	_ "modernc.org/sqlite"
)

var testNow = time.Date(2026, 5, 14, 15, 0, 0, 0, time.UTC)

func startServer(t *testing.T) (*Client, *grpc.ClientConn) {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "activity.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	acts, err := activity.NewStore(db)
	require.NoError(t, err)

	store := persona.NewStore(persona.NewMemoryRepository(), update.NewEngine(nil, update.DefaultUpdateConfig()))
	classifier := signals.NewClassifier(outcome.NewTracker(outcome.NewMemoryLedger(), outcome.DefaultTrackerConfig()), signals.DefaultClassifierConfig())
	orch := orchestrator.New(store, classifier, acts, orchestrator.WithClock(func() time.Time { return testNow }))

	lis := bufconn.Listen(1 << 20)
	srv := NewServer(lis, NewService(orch), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewClientWithConn(conn), conn
}

func TestGetStateDefaults(t *testing.T) {
	c, _ := startServer(t)
	st, err := c.GetState(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", st.UserID)
	assert.Equal(t, int64(0), st.Version)
	assert.Equal(t, 20.0, st.EngagementBehavior.LikesPerDayBaseline)
	assert.Equal(t, "medium", st.ToneStyle.SentenceLength)
}

func TestApplyFeedbackRoundTrip(t *testing.T) {
	c, _ := startServer(t)
	ctx := context.Background()

	resp, err := c.ApplyFeedback(ctx, "u1",
		Event{ID: "e1", Kind: "explicit", TargetField: "topic_affinity.ai", Direction: 1, Confidence: 1},
		Event{ID: "e2", Kind: "explicit", TargetField: "tone_style.nope", Direction: 1, Confidence: 1},
	)
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, update.ActionCommit, resp.Results[0].Action)
	assert.NotEmpty(t, resp.Results[0].RecordID)
	assert.Equal(t, update.ActionDrop, resp.Results[1].Action)
	assert.Equal(t, int64(1), resp.State.Version)
	assert.InDelta(t, 0.6, resp.State.TopicAffinity["ai"], 1e-9)

	st, err := c.GetState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Version)

	recs, err := c.History(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "topic_affinity.ai", recs[0].FieldPath)
	assert.Equal(t, state.KindExplicit, recs[0].Kind)
}

func TestObserveAndDeferral(t *testing.T) {
	c, _ := startServer(t)
	ctx := context.Background()

	resp, err := c.Observe(ctx, Observation{UserID: "u1", Kind: "approval", Topics: []string{"SaaS"}, LatencyMS: 2000})
	require.NoError(t, err)
	assert.False(t, resp.Deferred)
	assert.Equal(t, int64(2), resp.State.Version)

	resp, err = c.Observe(ctx, Observation{UserID: "u1", Kind: "outcome", PostID: "p1", Topics: []string{"saas"}, Likes: 3})
	require.NoError(t, err)
	assert.True(t, resp.Deferred)
	assert.Equal(t, int64(2), resp.State.Version)
}

func TestActivityAndTargets(t *testing.T) {
	c, _ := startServer(t)
	ctx := context.Background()

	rec, err := c.RecordActivity(ctx, ActivityRequest{UserID: "u1", Kind: "post", Timestamp: testNow.Add(-time.Hour)})
	require.NoError(t, err)
	assert.NotZero(t, rec.ID)

	tg, err := c.Targets(ctx, "u1", testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, tg.Posts)
	assert.Equal(t, 1, tg.Completed["post"])
	assert.Equal(t, 1, tg.Remaining["post"])
	assert.InDelta(t, 100.0/29.0, tg.Percentage, 1e-9)

	_, err = c.RecordActivity(ctx, ActivityRequest{UserID: "u1", Kind: "dm"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument), "got %v", err)
}

func TestRankOverWire(t *testing.T) {
	c, _ := startServer(t)
	got, err := c.Rank(context.Background(), "u1", []Action{
		{ID: "s", Class: "engagement_suggestion", Topics: []string{"ai"}},
		{ID: "r", Class: "reply_opportunity", AgeSeconds: 7200},
		{ID: "p", Class: "ready_to_publish", ScheduledAt: testNow},
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"p", "r", "s"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, "reply window open for 2h0m0s", got[1].Rationale)
}

func TestOnboardThenExplain(t *testing.T) {
	c, _ := startServer(t)
	ctx := context.Background()

	st, err := c.Onboard(ctx, OnboardRequest{
		UserID:      "u1",
		Posts:       []string{"Ship it.", "Small teams win."},
		Replies:     300,
		ReplyDays:   30,
		Likes:       30,
		TopicWeight: map[string]float64{"AI": 0.9},
	})
	require.NoError(t, err)
	assert.Equal(t, 10.0, st.EngagementBehavior.RepliesPerDayBaseline)
	assert.Equal(t, 5.0, st.EngagementBehavior.LikesPerDayBaseline)
	assert.Equal(t, "short", st.ToneStyle.SentenceLength)

	_, err = c.Onboard(ctx, OnboardRequest{UserID: "u1"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument), "got %v", err)

	out, err := c.Explain(ctx, "u1", "en", 0)
	require.NoError(t, err)
	assert.Contains(t, out.Summary, "PERSONA u1 (version 0)")
	assert.Equal(t, "No changes yet.\n", out.ChangeLog)
}

func TestMissingUserIsInvalidArgument(t *testing.T) {
	c, _ := startServer(t)
	_, err := c.GetState(context.Background(), "")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument), "got %v", err)
}

func TestHealthServing(t *testing.T) {
	_, conn := startServer(t)
	resp, err := grpc_health_v1.NewHealthClient(conn).Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)
}
