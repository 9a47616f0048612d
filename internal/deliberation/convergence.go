package deliberation

import (
	"context"
	"log/slog"

	"github.com/ashita-ai/hyogi/internal/config"
	"github.com/ashita-ai/hyogi/internal/model"
	"github.com/ashita-ai/hyogi/internal/similarity"
)

// RoundSimilarity is the detector's verdict on one round transition.
type RoundSimilarity struct {
	Round          int
	PerParticipant map[string]float64
	Min            float64
	Avg            float64
	Status         model.ConvergenceStatus
}

// ConvergenceDetector compares each participant's response with their
// own response from the previous round. It is stateful across one
// deliberation: "refining" means the average similarity rose compared
// to the previous check.
type ConvergenceDetector struct {
	scorer  similarity.Scorer
	cfg     config.ConvergenceConfig
	logger  *slog.Logger
	prevAvg float64
}

func NewConvergenceDetector(scorer similarity.Scorer, cfg config.ConvergenceConfig, logger *slog.Logger) *ConvergenceDetector {
	return &ConvergenceDetector{scorer: scorer, cfg: cfg, logger: logger}
}

// Check scores each participant present in both rounds. Error slots
// are excluded: two identical failure messages would otherwise read as
// perfect agreement.
func (d *ConvergenceDetector) Check(ctx context.Context, round int, prev, curr []model.RoundResponse) RoundSimilarity {
	previous := make(map[string]string, len(prev))
	for _, r := range prev {
		if !isErrorSlot(r.Response) {
			previous[r.Participant] = r.Response
		}
	}

	result := RoundSimilarity{
		Round:          round,
		PerParticipant: make(map[string]float64),
		Status:         model.StatusUnknown,
	}

	var sum float64
	allConverged, allDiverged := true, true
	for _, r := range curr {
		before, ok := previous[r.Participant]
		if !ok || isErrorSlot(r.Response) {
			continue
		}
		score, err := d.scorer.Score(ctx, before, r.Response)
		if err != nil {
			d.logger.Warn("similarity scoring failed, participant skipped",
				"participant", r.Participant, "round", round, "error", err)
			continue
		}
		result.PerParticipant[r.Participant] = score
		sum += score
		if score < d.cfg.SemanticSimilarityThreshold {
			allConverged = false
		}
		if score > d.cfg.DivergenceThreshold {
			allDiverged = false
		}
	}

	n := len(result.PerParticipant)
	if n == 0 {
		return result
	}

	result.Avg = sum / float64(n)
	result.Min = 1.0
	for _, score := range result.PerParticipant {
		if score < result.Min {
			result.Min = score
		}
	}

	switch {
	case allConverged:
		result.Status = model.StatusConverged
	case allDiverged:
		result.Status = model.StatusImpasse
	case result.Avg > d.prevAvg:
		result.Status = model.StatusRefining
	default:
		result.Status = model.StatusDiverging
	}
	d.prevAvg = result.Avg

	d.logger.Debug("convergence check",
		"round", round,
		"status", result.Status,
		"min_similarity", result.Min,
		"avg_similarity", result.Avg,
		"participants_scored", n)
	return result
}
