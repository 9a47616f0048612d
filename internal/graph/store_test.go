package graph

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/hyogi/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "graph.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testNode(question string, ts time.Time) model.DecisionNode {
	winner := "postgres"
	return model.DecisionNode{
		ID:                uuid.New(),
		Question:          question,
		Timestamp:         ts,
		Consensus:         "Use postgres with logical replication.",
		WinningOption:     &winner,
		ConvergenceStatus: model.StatusConverged,
		Participants:      []string{"gpt-5@openai", "claude@anthropic"},
		TranscriptPath:    "transcripts/20260825_101500_db_choice.md",
		Metadata:          map[string]any{"mode": "conference"},
	}
}

func TestDecisionRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	node := testNode("Should we use postgres or mysql for the event store?", time.Now().UTC().Truncate(time.Second))
	require.NoError(t, store.InsertDecision(ctx, node))

	got, err := store.GetDecision(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, node.ID, got.ID)
	assert.Equal(t, node.Question, got.Question)
	assert.Equal(t, node.Consensus, got.Consensus)
	require.NotNil(t, got.WinningOption)
	assert.Equal(t, "postgres", *got.WinningOption)
	assert.Equal(t, model.StatusConverged, got.ConvergenceStatus)
	assert.Equal(t, node.Participants, got.Participants)
	assert.Equal(t, node.TranscriptPath, got.TranscriptPath)
	assert.Equal(t, "conference", got.Metadata["mode"])
	assert.True(t, node.Timestamp.Equal(got.Timestamp))
}

func TestGetDecisionNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetDecision(context.Background(), uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDuplicateDecisionRejected(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	node := testNode("Should we use postgres or mysql for the event store?", time.Now().UTC())
	require.NoError(t, store.InsertDecision(ctx, node))
	assert.Error(t, store.InsertDecision(ctx, node), "nodes are immutable, re-insert must fail")
}

func TestListRecentOrdersNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := range 5 {
		node := testNode("Question number "+string(rune('a'+i)), base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, store.InsertDecision(ctx, node))
		ids = append(ids, node.ID)
	}

	nodes, err := store.ListRecent(ctx, 3, 0)
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, ids[4], nodes[0].ID)
	assert.Equal(t, ids[3], nodes[1].ID)
	assert.Equal(t, ids[2], nodes[2].ID)

	// Offset pages past the newest.
	nodes, err = store.ListRecent(ctx, 3, 3)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, ids[1], nodes[0].ID)
}

func TestStancesRequireExistingDecision(t *testing.T) {
	store := openTestStore(t)

	err := store.InsertStances(context.Background(), []model.ParticipantStance{{
		DecisionID:    uuid.New(),
		Participant:   "gpt-5@openai",
		FinalPosition: "postgres",
	}})
	assert.Error(t, err, "foreign keys must reject orphan stances")
}

func TestStancesTransactional(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	node := testNode("Should we use postgres or mysql for the event store?", time.Now().UTC())
	require.NoError(t, store.InsertDecision(ctx, node))

	option := "postgres"
	confidence := 0.9
	rationale := "Operational familiarity."
	good := model.ParticipantStance{
		DecisionID:    node.ID,
		Participant:   "gpt-5@openai",
		VoteOption:    &option,
		Confidence:    &confidence,
		Rationale:     &rationale,
		FinalPosition: "Postgres, with logical replication for the read side.",
	}
	orphan := model.ParticipantStance{
		DecisionID:    uuid.New(),
		Participant:   "claude@anthropic",
		FinalPosition: "mysql",
	}

	require.Error(t, store.InsertStances(ctx, []model.ParticipantStance{good, orphan}))

	stances, err := store.StancesFor(ctx, node.ID)
	require.NoError(t, err)
	assert.Empty(t, stances, "failed batch must roll back entirely")

	require.NoError(t, store.InsertStances(ctx, []model.ParticipantStance{good}))
	stances, err = store.StancesFor(ctx, node.ID)
	require.NoError(t, err)
	require.Len(t, stances, 1)
	assert.Equal(t, "gpt-5@openai", stances[0].Participant)
	require.NotNil(t, stances[0].VoteOption)
	assert.Equal(t, "postgres", *stances[0].VoteOption)
	assert.InDelta(t, 0.9, *stances[0].Confidence, 1e-9)
}

func TestSimilarityEdges(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	source := testNode("Should we use postgres or mysql for the event store?", time.Now().UTC())
	near := testNode("Should we use postgres or sqlite for the event store?", time.Now().UTC().Add(-time.Hour))
	far := testNode("What color should the logo be?", time.Now().UTC().Add(-2*time.Hour))
	for _, n := range []model.DecisionNode{source, near, far} {
		require.NoError(t, store.InsertDecision(ctx, n))
	}

	now := time.Now().UTC()
	require.NoError(t, store.UpsertSimilarity(ctx, model.DecisionSimilarity{
		SourceID: source.ID, TargetID: near.ID, Score: 0.82, ComputedAt: now,
	}))
	require.NoError(t, store.UpsertSimilarity(ctx, model.DecisionSimilarity{
		SourceID: source.ID, TargetID: far.ID, Score: 0.55, ComputedAt: now,
	}))

	similar, err := store.SimilarTo(ctx, source.ID, 0.5, 10)
	require.NoError(t, err)
	require.Len(t, similar, 2)
	assert.Equal(t, near.ID, similar[0].Node.ID, "best match first")
	assert.InDelta(t, 0.82, similar[0].Score, 1e-9)

	similar, err = store.SimilarTo(ctx, source.ID, 0.7, 10)
	require.NoError(t, err)
	require.Len(t, similar, 1)

	// Replace refreshes the score in place.
	require.NoError(t, store.UpsertSimilarity(ctx, model.DecisionSimilarity{
		SourceID: source.ID, TargetID: near.ID, Score: 0.9, ComputedAt: now,
	}))
	similar, err = store.SimilarTo(ctx, source.ID, 0.85, 10)
	require.NoError(t, err)
	require.Len(t, similar, 1)
	assert.InDelta(t, 0.9, similar[0].Score, 1e-9)
}

func TestSelfEdgeRejected(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	node := testNode("Should we use postgres or mysql for the event store?", time.Now().UTC())
	require.NoError(t, store.InsertDecision(ctx, node))

	err := store.UpsertSimilarity(ctx, model.DecisionSimilarity{
		SourceID: node.ID, TargetID: node.ID, Score: 1, ComputedAt: time.Now().UTC(),
	})
	assert.Error(t, err)
}

func TestOutOfRangeScoreRejected(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	a := testNode("Should we use postgres or mysql for the event store?", time.Now().UTC())
	b := testNode("Should we use grpc or rest internally?", time.Now().UTC())
	require.NoError(t, store.InsertDecision(ctx, a))
	require.NoError(t, store.InsertDecision(ctx, b))

	err := store.UpsertSimilarity(ctx, model.DecisionSimilarity{
		SourceID: a.ID, TargetID: b.ID, Score: 1.5, ComputedAt: time.Now().UTC(),
	})
	assert.Error(t, err)
}

func TestHealthReport(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	old := testNode("Old decision about build caching strategy?", time.Now().UTC().Add(-48*time.Hour))
	fresh := testNode("Fresh decision about deployment cadence?", time.Now().UTC())
	require.NoError(t, store.InsertDecision(ctx, old))
	require.NoError(t, store.InsertDecision(ctx, fresh))
	require.NoError(t, store.InsertStances(ctx, []model.ParticipantStance{{
		DecisionID:    fresh.ID,
		Participant:   "gpt-5@openai",
		FinalPosition: "weekly releases",
	}}))

	report, err := store.Health(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Decisions)
	assert.Equal(t, int64(1), report.Stances)
	assert.Equal(t, int64(0), report.Similarities)
	assert.Equal(t, int64(0), report.OrphanStances)
	assert.Equal(t, int64(0), report.InvalidScores)
	assert.Equal(t, int64(1), report.RecentDecisions)
	assert.Greater(t, report.DBSizeBytes, int64(0))
	assert.True(t, report.Healthy())
}
