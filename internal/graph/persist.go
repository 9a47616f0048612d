package graph

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/hyogi/internal/model"
	"github.com/ashita-ai/hyogi/internal/similarity"
)

const (
	// edgeThreshold is the minimum score worth persisting as an edge.
	edgeThreshold = 0.5
	// edgeWindow bounds how many prior decisions a new node is compared
	// against.
	edgeWindow = 100
)

// PersistDeliberation stores a finished deliberation as a decision
// node with stances and similarity edges. The node insert is the only
// hard failure; stances and edges are best-effort observability and
// their errors are logged, not returned.
func PersistDeliberation(ctx context.Context, store *Store, scorer similarity.Scorer, question string, result model.DeliberationResult, logger *slog.Logger) (uuid.UUID, error) {
	node := model.DecisionNode{
		ID:                uuid.New(),
		Question:          question,
		Timestamp:         time.Now().UTC(),
		Consensus:         result.Summary.Consensus,
		ConvergenceStatus: model.StatusUnknown,
		Participants:      result.Participants,
		TranscriptPath:    result.TranscriptPath,
		Metadata: map[string]any{
			"mode":             string(result.Mode),
			"rounds_completed": result.RoundsCompleted,
			"status":           string(result.Status),
		},
	}
	if result.ConvergenceInfo != nil {
		node.ConvergenceStatus = result.ConvergenceInfo.Status
	}
	if result.VotingResult != nil && result.VotingResult.WinningOption != nil {
		node.WinningOption = result.VotingResult.WinningOption
	}

	if err := store.InsertDecision(ctx, node); err != nil {
		return uuid.Nil, err
	}

	stances := buildStances(node.ID, result)
	if err := store.InsertStances(ctx, stances); err != nil {
		logger.Warn("failed to store participant stances", "decision_id", node.ID, "error", err)
	}

	persistEdges(ctx, store, scorer, node, logger)
	return node.ID, nil
}

// buildStances extracts each participant's final-round response and
// final-round vote, when one was cast.
func buildStances(decisionID uuid.UUID, result model.DeliberationResult) []model.ParticipantStance {
	finalRound := 0
	for _, rr := range result.FullDebate {
		if rr.Round > finalRound {
			finalRound = rr.Round
		}
	}
	if finalRound == 0 {
		return nil
	}

	finalVotes := make(map[string]model.Vote)
	if result.VotingResult != nil {
		for _, rv := range result.VotingResult.VotesByRound {
			if rv.Round == finalRound {
				finalVotes[rv.Participant] = rv.Vote
			}
		}
	}

	var stances []model.ParticipantStance
	for _, rr := range result.FullDebate {
		if rr.Round != finalRound {
			continue
		}
		st := model.ParticipantStance{
			DecisionID:    decisionID,
			Participant:   rr.Participant,
			FinalPosition: truncate(rr.Response, model.MaxFinalPositionLen),
		}
		if v, ok := finalVotes[rr.Participant]; ok {
			option, confidence, rationale := v.Option, v.Confidence, v.Rationale
			st.VoteOption = &option
			st.Confidence = &confidence
			st.Rationale = &rationale
		}
		stances = append(stances, st)
	}
	return stances
}

// persistEdges compares the new node against recent history and writes
// an edge for every sufficiently similar pair. Per-pair scoring
// failures are logged and skipped.
func persistEdges(ctx context.Context, store *Store, scorer similarity.Scorer, node model.DecisionNode, logger *slog.Logger) {
	recent, err := store.ListRecent(ctx, edgeWindow+1, 0)
	if err != nil {
		logger.Warn("failed to list recent decisions for similarity edges", "decision_id", node.ID, "error", err)
		return
	}

	now := time.Now().UTC()
	for _, prior := range recent {
		if prior.ID == node.ID {
			continue
		}
		score, err := scorer.Score(ctx, node.Question, prior.Question)
		if err != nil {
			logger.Warn("similarity scoring failed for edge", "source", node.ID, "target", prior.ID, "error", err)
			continue
		}
		if score < edgeThreshold {
			continue
		}
		edge := model.DecisionSimilarity{
			SourceID:   node.ID,
			TargetID:   prior.ID,
			Score:      score,
			ComputedAt: now,
		}
		if err := store.UpsertSimilarity(ctx, edge); err != nil {
			logger.Warn("failed to store similarity edge", "source", node.ID, "target", prior.ID, "error", err)
		}
	}
}

// truncate keeps at most max runes so a multibyte character is never
// split at the boundary.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
