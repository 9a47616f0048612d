package deliberation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/hyogi/internal/adapter"
	"github.com/ashita-ai/hyogi/internal/config"
	"github.com/ashita-ai/hyogi/internal/graph"
	"github.com/ashita-ai/hyogi/internal/model"
	"github.com/ashita-ai/hyogi/internal/similarity"
	"github.com/ashita-ai/hyogi/internal/tools"
)

func testEngineConfig() config.Config {
	return config.Config{
		Deliberation: config.DeliberationConfig{
			ConvergenceDetection: config.ConvergenceConfig{
				Enabled:                     true,
				SemanticSimilarityThreshold: 0.85,
				DivergenceThreshold:         0.40,
				MinRoundsBeforeCheck:        2,
			},
			EarlyStopping: config.EarlyStoppingConfig{
				Enabled:   true,
				Threshold: 0.66,
			},
		},
	}
}

func twoParticipants() []model.Participant {
	return []model.Participant{
		{Backend: "alpha", Model: "m1"},
		{Backend: "beta", Model: "m2"},
	}
}

func newTestEngine(cfg config.Config, invokers ...*scriptedInvoker) *Engine {
	adapters := make(map[string]adapter.Invoker, len(invokers))
	for _, inv := range invokers {
		adapters[inv.name] = inv
	}
	return NewEngine(EngineOptions{
		Adapters: adapters,
		Scorer:   similarity.NewJaccard(),
		Config:   cfg,
		Logger:   testLogger(),
	})
}

func conferenceRequest(rounds int) model.DeliberateRequest {
	return model.DeliberateRequest{
		Question:     "Should we adopt the new storage layer?",
		Participants: twoParticipants(),
		Rounds:       rounds,
		Mode:         model.ModeConference,
	}
}

func TestEngineQuickModeForcesSingleRound(t *testing.T) {
	a := &scriptedInvoker{name: "alpha", replies: []string{"independent opinion from alpha"}}
	b := &scriptedInvoker{name: "beta", replies: []string{"independent opinion from beta"}}
	e := newTestEngine(testEngineConfig(), a, b)

	req := conferenceRequest(3)
	req.Mode = model.ModeQuick
	result, err := e.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, result.RoundsCompleted)
	assert.Len(t, result.FullDebate, 2)
	assert.Equal(t, model.ResultComplete, result.Status)
	assert.Equal(t, []string{"m1@alpha", "m2@beta"}, result.Participants)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
	assert.Empty(t, a.requests[0].Context, "no prior discussion on round 1")
	assert.Nil(t, result.VotingResult, "no votes were cast")
	assert.Nil(t, result.ConvergenceInfo, "no detector run and no votes")
}

func TestEnginePromptCarriesVotingInstructions(t *testing.T) {
	a := &scriptedInvoker{name: "alpha", replies: []string{"x"}}
	b := &scriptedInvoker{name: "beta", replies: []string{"y"}}
	e := newTestEngine(testEngineConfig(), a, b)

	req := conferenceRequest(1)
	_, err := e.Run(context.Background(), req)
	require.NoError(t, err)

	require.NotEmpty(t, a.requests)
	assert.Contains(t, a.requests[0].Prompt, req.Question)
	assert.Contains(t, a.requests[0].Prompt, "VOTE:")
	assert.Contains(t, a.requests[0].Prompt, "continue_debate")
}

func TestEngineRound2SeesRound1(t *testing.T) {
	a := &scriptedInvoker{name: "alpha", replies: []string{"opening position alpha", "closing position alpha"}}
	b := &scriptedInvoker{name: "beta", replies: []string{"opening position beta", "closing position beta"}}
	e := newTestEngine(testEngineConfig(), a, b)

	result, err := e.Run(context.Background(), conferenceRequest(2))
	require.NoError(t, err)
	assert.Equal(t, 2, result.RoundsCompleted)
	assert.Len(t, result.FullDebate, 4)

	require.Len(t, a.requests, 2)
	ctx2 := a.requests[1].Context
	assert.Contains(t, ctx2, "Previous discussion:")
	assert.Contains(t, ctx2, "Round 1 - m1@alpha (neutral): opening position alpha")
	assert.Contains(t, ctx2, "Round 1 - m2@beta (neutral): opening position beta")
	assert.NotContains(t, ctx2, "closing position", "round 2 context holds prior rounds only")
}

func TestEngineForwardsCallerContext(t *testing.T) {
	a := &scriptedInvoker{name: "alpha", replies: []string{"x"}}
	b := &scriptedInvoker{name: "beta", replies: []string{"y"}}
	e := newTestEngine(testEngineConfig(), a, b)

	req := conferenceRequest(1)
	req.Context = "we already migrated the billing service"
	_, err := e.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "we already migrated the billing service", a.requests[0].Context)
}

func TestEngineContainsAdapterFailure(t *testing.T) {
	a := &scriptedInvoker{name: "alpha", replies: []string{"works fine", "still fine"}}
	b := &scriptedInvoker{name: "beta", errs: []error{
		&model.BackendError{Backend: "beta", Msg: "model not found"},
		&model.BackendError{Backend: "beta", Msg: "model not found"},
	}}
	e := newTestEngine(testEngineConfig(), a, b)

	result, err := e.Run(context.Background(), conferenceRequest(2))
	require.NoError(t, err)

	assert.Equal(t, model.ResultPartial, result.Status)
	assert.Len(t, result.FullDebate, 4, "error slots still occupy their place")
	assert.Contains(t, result.FullDebate[1].Response, "[ERROR: backend:")
	assert.Contains(t, result.FullDebate[1].Response, "model not found")
}

func TestEngineTimeoutErrorKind(t *testing.T) {
	a := &scriptedInvoker{name: "alpha", replies: []string{"fine"}}
	b := &scriptedInvoker{name: "beta", errs: []error{
		&model.TimeoutError{Backend: "beta", Activity: true, Elapsed: "30s"},
	}}
	e := newTestEngine(testEngineConfig(), a, b)

	result, err := e.Run(context.Background(), conferenceRequest(1))
	require.NoError(t, err)
	assert.Contains(t, result.FullDebate[1].Response, "[ERROR: timeout:")
}

func TestEngineAllFailuresStatusFailed(t *testing.T) {
	boom := &model.BackendError{Backend: "x", Msg: "down"}
	a := &scriptedInvoker{name: "alpha", errs: []error{boom}}
	b := &scriptedInvoker{name: "beta", errs: []error{boom}}
	e := newTestEngine(testEngineConfig(), a, b)

	result, err := e.Run(context.Background(), conferenceRequest(1))
	require.NoError(t, err)
	assert.Equal(t, model.ResultFailed, result.Status)
}

func TestEngineMissingBackendBecomesErrorSlot(t *testing.T) {
	a := &scriptedInvoker{name: "alpha", replies: []string{"present"}}
	e := newTestEngine(testEngineConfig(), a)

	result, err := e.Run(context.Background(), conferenceRequest(1))
	require.NoError(t, err)
	assert.Equal(t, model.ResultPartial, result.Status)
	assert.Contains(t, result.FullDebate[1].Response, `no adapter configured for "beta"`)
}

func TestEngineModelControlledEarlyStop(t *testing.T) {
	stopVote := ` VOTE: {"option": "adopt", "confidence": 0.9, "rationale": "settled", "continue_debate": false}`
	a := &scriptedInvoker{name: "alpha", replies: []string{"I am done." + stopVote}}
	b := &scriptedInvoker{name: "beta", replies: []string{"Same here." + stopVote}}
	e := newTestEngine(testEngineConfig(), a, b)

	result, err := e.Run(context.Background(), conferenceRequest(3))
	require.NoError(t, err)

	assert.Equal(t, 1, result.RoundsCompleted)
	require.NotNil(t, result.VotingResult)
	assert.True(t, result.VotingResult.ConsensusReached)
	require.NotNil(t, result.VotingResult.WinningOption)
	assert.Equal(t, "adopt", *result.VotingResult.WinningOption)
	require.NotNil(t, result.ConvergenceInfo)
	assert.Equal(t, model.StatusUnanimousConsensus, result.ConvergenceInfo.Status)
}

func TestEngineEarlyStopRespectsMinRounds(t *testing.T) {
	stopVote := ` VOTE: {"option": "adopt", "confidence": 0.9, "rationale": "settled", "continue_debate": false}`
	// Distinct texts per round keep the convergence detector from
	// stopping first.
	a := &scriptedInvoker{name: "alpha", replies: []string{"alpha one two three." + stopVote, "delta epsilon zeta eta." + stopVote}}
	b := &scriptedInvoker{name: "beta", replies: []string{"beta four five six." + stopVote, "theta iota kappa mu." + stopVote}}

	cfg := testEngineConfig()
	cfg.Deliberation.EarlyStopping.RespectMinRounds = true
	e := newTestEngine(cfg, a, b)

	result, err := e.Run(context.Background(), conferenceRequest(3))
	require.NoError(t, err)
	assert.Equal(t, 2, result.RoundsCompleted)
	assert.Equal(t, 2, a.calls)
}

func TestEngineStopsOnConvergence(t *testing.T) {
	position := "the storage layer should be adopted incrementally"
	a := &scriptedInvoker{name: "alpha", replies: []string{position, position, position}}
	b := &scriptedInvoker{name: "beta", replies: []string{"migrate billing first then the rest", "migrate billing first then the rest"}}
	e := newTestEngine(testEngineConfig(), a, b)

	result, err := e.Run(context.Background(), conferenceRequest(3))
	require.NoError(t, err)

	assert.Equal(t, 2, result.RoundsCompleted)
	require.NotNil(t, result.ConvergenceInfo)
	assert.True(t, result.ConvergenceInfo.Detected)
	assert.Equal(t, model.StatusConverged, result.ConvergenceInfo.Status)
	require.NotNil(t, result.ConvergenceInfo.DetectionRound)
	assert.Equal(t, 2, *result.ConvergenceInfo.DetectionRound)
	assert.InDelta(t, 1.0, result.ConvergenceInfo.FinalSimilarity, 1e-9)
}

func TestEngineVoteTie(t *testing.T) {
	voteA := ` VOTE: {"option": "adopt", "confidence": 0.8, "rationale": "ready"}`
	voteB := ` VOTE: {"option": "defer", "confidence": 0.8, "rationale": "too risky"}`
	a := &scriptedInvoker{name: "alpha", replies: []string{"Adopt now." + voteA}}
	b := &scriptedInvoker{name: "beta", replies: []string{"Wait a quarter." + voteB}}
	e := newTestEngine(testEngineConfig(), a, b)

	result, err := e.Run(context.Background(), conferenceRequest(1))
	require.NoError(t, err)

	require.NotNil(t, result.VotingResult)
	assert.False(t, result.VotingResult.ConsensusReached)
	assert.Nil(t, result.VotingResult.WinningOption)
	assert.Equal(t, model.StatusTie, result.ConvergenceInfo.Status)
}

func TestEngineExecutesToolRequests(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("retention is 30 days"), 0o644))

	toolLine := fmt.Sprintf("Checking the notes.\nTOOL_REQUEST: {\"name\": \"read_file\", \"arguments\": {\"path\": %q}}", "notes.txt")
	a := &scriptedInvoker{name: "alpha", replies: []string{toolLine}}
	b := &scriptedInvoker{name: "beta", replies: []string{"no tools needed"}}

	adapters := map[string]adapter.Invoker{"alpha": a, "beta": b}
	e := NewEngine(EngineOptions{
		Adapters: adapters,
		Executor: tools.NewDefaultExecutor(testLogger()),
		Scorer:   similarity.NewJaccard(),
		Config:   testEngineConfig(),
		Logger:   testLogger(),
	})

	req := conferenceRequest(1)
	req.WorkingDir = dir
	result, err := e.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Contains(t, result.FullDebate[0].Response, "[Tool read_file]")
	assert.Contains(t, result.FullDebate[0].Response, "retention is 30 days")
}

func TestEngineGraphContextReachesRoundOne(t *testing.T) {
	dir := t.TempDir()
	store, err := graph.Open(filepath.Join(dir, "graph.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	winner := "adopt"
	prior := model.DecisionNode{
		ID:                uuid.New(),
		Question:          "Should we adopt the new storage layer?",
		Timestamp:         time.Now().UTC().Add(-time.Hour),
		Consensus:         "adopt the storage layer incrementally, billing first",
		WinningOption:     &winner,
		ConvergenceStatus: model.StatusUnanimousConsensus,
		Participants:      []string{"m1@alpha", "m2@beta"},
	}
	require.NoError(t, store.InsertDecision(context.Background(), prior))

	cfg := testEngineConfig()
	cfg.DecisionGraph = config.DecisionGraphConfig{
		Enabled:             true,
		ContextTokenBudget:  1500,
		TierBoundaries:      config.TierBoundaries{Strong: 0.75, Moderate: 0.60},
		QueryWindow:         1000,
		MaxContextDecisions: 3,
	}

	a := &scriptedInvoker{name: "alpha", replies: []string{"informed by history"}}
	b := &scriptedInvoker{name: "beta", replies: []string{"same conclusion"}}
	scorer := similarity.NewJaccard()
	e := NewEngine(EngineOptions{
		Adapters:  map[string]adapter.Invoker{"alpha": a, "beta": b},
		Scorer:    scorer,
		Retriever: graph.NewRetriever(store, scorer, cfg.DecisionGraph, testLogger()),
		Config:    cfg,
		Logger:    testLogger(),
	})

	req := conferenceRequest(1)
	req.Mode = model.ModeQuick
	_, err = e.Run(context.Background(), req)
	require.NoError(t, err)

	require.NotEmpty(t, a.requests)
	ctx1 := a.requests[0].Context
	assert.Contains(t, ctx1, "Relevant past decisions")
	assert.Contains(t, ctx1, "adopt the storage layer incrementally, billing first")
	assert.Contains(t, ctx1, "Winning option: adopt")
}

func TestEngineWritesTranscriptAndPersists(t *testing.T) {
	dir := t.TempDir()
	store, err := graph.Open(filepath.Join(dir, "graph.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := testEngineConfig()
	cfg.DecisionGraph = config.DecisionGraphConfig{
		Enabled:             true,
		ContextTokenBudget:  1500,
		TierBoundaries:      config.TierBoundaries{Strong: 0.75, Moderate: 0.60},
		QueryWindow:         1000,
		MaxContextDecisions: 3,
	}

	vote := ` VOTE: {"option": "adopt", "confidence": 0.9, "rationale": "ready", "continue_debate": false}`
	a := &scriptedInvoker{name: "alpha", replies: []string{"Adopt it." + vote}}
	b := &scriptedInvoker{name: "beta", replies: []string{"Agreed, adopt." + vote}}

	scorer := similarity.NewJaccard()
	e := NewEngine(EngineOptions{
		Adapters:    map[string]adapter.Invoker{"alpha": a, "beta": b},
		Scorer:      scorer,
		Retriever:   graph.NewRetriever(store, scorer, cfg.DecisionGraph, testLogger()),
		Store:       store,
		Transcripts: NewTranscriptWriter(filepath.Join(dir, "transcripts")),
		Config:      cfg,
		Logger:      testLogger(),
	})

	result, err := e.Run(context.Background(), conferenceRequest(1))
	require.NoError(t, err)

	require.NotEmpty(t, result.TranscriptPath)
	data, err := os.ReadFile(result.TranscriptPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Should we adopt the new storage layer?")

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestEngineRejectsInvalidRequest(t *testing.T) {
	e := newTestEngine(testEngineConfig())

	_, err := e.Run(context.Background(), model.DeliberateRequest{
		Question:     "too short",
		Participants: twoParticipants(),
		Rounds:       1,
		Mode:         model.ModeQuick,
	})
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestEngineSummaryPlaceholderWithoutSummarizer(t *testing.T) {
	a := &scriptedInvoker{name: "alpha", replies: []string{"the final considered position"}}
	b := &scriptedInvoker{name: "beta", replies: []string{"a different final position"}}
	e := newTestEngine(testEngineConfig(), a, b)

	result, err := e.Run(context.Background(), conferenceRequest(1))
	require.NoError(t, err)
	assert.Equal(t, "Summary unavailable", result.Summary.Consensus)
	assert.Equal(t, "a different final position", result.Summary.FinalRecommendation)
}
