package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/ashita-ai/hyogi/internal/model"
	"github.com/ashita-ai/hyogi/internal/similarity"
)

// Query defaults. Contradiction detection can only see pairs that have
// a stored similarity edge, so its floor is the edge threshold.
const (
	DefaultContradictionThreshold = 0.6
	evolutionThreshold            = 0.4
	evolutionLimit                = 50
	queryScanWindow               = 1000
)

// Contradiction is a pair of similar decisions that settled on
// different winning options.
type Contradiction struct {
	SourceID       uuid.UUID `json:"source_id"`
	TargetID       uuid.UUID `json:"target_id"`
	SourceQuestion string    `json:"source_question"`
	TargetQuestion string    `json:"target_question"`
	SourceOption   string    `json:"source_option"`
	TargetOption   string    `json:"target_option"`
	Similarity     float64   `json:"similarity"`
}

// Timeline traces how thinking around one decision evolved: the root
// plus its similar decisions in chronological order.
type Timeline struct {
	Root    model.DecisionNode     `json:"root"`
	Related []model.ScoredDecision `json:"related"`
}

// OptionCount is one entry in a participant's preference list.
type OptionCount struct {
	Option string `json:"option"`
	Count  int    `json:"count"`
}

// ParticipantStats aggregates one participant's voting behaviour.
type ParticipantStats struct {
	Decisions        int           `json:"decisions"`
	TotalVotes       int           `json:"total_votes"`
	AvgConfidence    float64       `json:"avg_confidence"`
	PreferredOptions []OptionCount `json:"preferred_options"`
}

// Analysis is the aggregate view over the whole decision graph.
type Analysis struct {
	TotalDecisions    int                             `json:"total_decisions"`
	TotalParticipants int                             `json:"total_participants"`
	VotingPatterns    map[string]ParticipantStats     `json:"voting_patterns"`
	ConvergenceStats  map[model.ConvergenceStatus]int `json:"convergence_stats"`
	Participation     map[string]int                  `json:"participation"`
}

// QueryEngine answers read-only questions about the decision graph.
type QueryEngine struct {
	store  *Store
	scorer similarity.Scorer
	logger *slog.Logger
}

func NewQueryEngine(store *Store, scorer similarity.Scorer, logger *slog.Logger) *QueryEngine {
	return &QueryEngine{store: store, scorer: scorer, logger: logger}
}

// FindSimilar scores the query text against recent decisions and
// returns those at or above threshold, best first.
func (q *QueryEngine) FindSimilar(ctx context.Context, queryText string, threshold float64, limit int) ([]model.ScoredDecision, error) {
	nodes, err := q.store.ListRecent(ctx, queryScanWindow, 0)
	if err != nil {
		return nil, err
	}

	var matches []model.ScoredDecision
	for _, node := range nodes {
		score, err := q.scorer.Score(ctx, queryText, node.Question)
		if err != nil {
			q.logger.Debug("scoring failed, candidate skipped", "decision_id", node.ID, "error", err)
			continue
		}
		if score >= threshold {
			matches = append(matches, model.ScoredDecision{Node: node, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// FindContradictions walks stored similarity edges and reports pairs
// whose winning options disagree. Scope, when set, keeps only pairs
// where either question mentions it.
func (q *QueryEngine) FindContradictions(ctx context.Context, scope string, threshold float64, limit int) ([]Contradiction, error) {
	if threshold <= 0 {
		threshold = DefaultContradictionThreshold
	}
	nodes, err := q.store.ListRecent(ctx, queryScanWindow, 0)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]model.DecisionNode, len(nodes))
	for _, node := range nodes {
		byID[node.ID] = node
	}

	var out []Contradiction
	seen := make(map[[2]uuid.UUID]bool)
	for _, node := range nodes {
		if node.WinningOption == nil {
			continue
		}
		similar, err := q.store.SimilarTo(ctx, node.ID, threshold, queryScanWindow)
		if err != nil {
			return nil, err
		}
		for _, sd := range similar {
			other, ok := byID[sd.Node.ID]
			if !ok {
				other = sd.Node
			}
			if other.WinningOption == nil || *other.WinningOption == *node.WinningOption {
				continue
			}
			key := pairKey(node.ID, other.ID)
			if seen[key] {
				continue
			}
			seen[key] = true
			if scope != "" &&
				!strings.Contains(strings.ToLower(node.Question), strings.ToLower(scope)) &&
				!strings.Contains(strings.ToLower(other.Question), strings.ToLower(scope)) {
				continue
			}
			out = append(out, Contradiction{
				SourceID:       node.ID,
				TargetID:       other.ID,
				SourceQuestion: node.Question,
				TargetQuestion: other.Question,
				SourceOption:   *node.WinningOption,
				TargetOption:   *other.WinningOption,
				Similarity:     sd.Score,
			})
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func pairKey(a, b uuid.UUID) [2]uuid.UUID {
	if strings.Compare(a.String(), b.String()) > 0 {
		a, b = b, a
	}
	return [2]uuid.UUID{a, b}
}

// TraceEvolution returns the decision plus its related decisions in
// chronological order, oldest first.
func (q *QueryEngine) TraceEvolution(ctx context.Context, id uuid.UUID) (Timeline, error) {
	root, err := q.store.GetDecision(ctx, id)
	if err != nil {
		return Timeline{}, fmt.Errorf("trace evolution: %w", err)
	}

	related, err := q.store.SimilarTo(ctx, id, evolutionThreshold, evolutionLimit)
	if err != nil {
		return Timeline{}, err
	}
	sort.SliceStable(related, func(i, j int) bool {
		return related[i].Node.Timestamp.Before(related[j].Node.Timestamp)
	})
	return Timeline{Root: root, Related: related}, nil
}

// Analyze aggregates voting and participation metrics over the graph.
// A non-empty participant restricts the voting patterns to that one
// participant; the totals always cover everything scanned.
func (q *QueryEngine) Analyze(ctx context.Context, participant string) (Analysis, error) {
	nodes, err := q.store.ListRecent(ctx, queryScanWindow, 0)
	if err != nil {
		return Analysis{}, err
	}

	analysis := Analysis{
		TotalDecisions:   len(nodes),
		VotingPatterns:   make(map[string]ParticipantStats),
		ConvergenceStats: make(map[model.ConvergenceStatus]int),
		Participation:    make(map[string]int),
	}

	type acc struct {
		decisions     int
		votes         int
		confidenceSum float64
		options       map[string]int
	}
	byParticipant := make(map[string]*acc)

	for _, node := range nodes {
		analysis.ConvergenceStats[node.ConvergenceStatus]++
		for _, p := range node.Participants {
			analysis.Participation[p]++
		}

		stances, err := q.store.StancesFor(ctx, node.ID)
		if err != nil {
			q.logger.Warn("stances unavailable, decision skipped in analysis",
				"decision_id", node.ID, "error", err)
			continue
		}
		for _, stance := range stances {
			a := byParticipant[stance.Participant]
			if a == nil {
				a = &acc{options: make(map[string]int)}
				byParticipant[stance.Participant] = a
			}
			a.decisions++
			if stance.VoteOption != nil {
				a.votes++
				a.options[*stance.VoteOption]++
				if stance.Confidence != nil {
					a.confidenceSum += *stance.Confidence
				}
			}
		}
	}

	analysis.TotalParticipants = len(analysis.Participation)
	for name, a := range byParticipant {
		if participant != "" && name != participant {
			continue
		}
		stats := ParticipantStats{
			Decisions:  a.decisions,
			TotalVotes: a.votes,
		}
		if a.votes > 0 {
			stats.AvgConfidence = a.confidenceSum / float64(a.votes)
		}
		for option, count := range a.options {
			stats.PreferredOptions = append(stats.PreferredOptions, OptionCount{Option: option, Count: count})
		}
		sort.Slice(stats.PreferredOptions, func(i, j int) bool {
			if stats.PreferredOptions[i].Count != stats.PreferredOptions[j].Count {
				return stats.PreferredOptions[i].Count > stats.PreferredOptions[j].Count
			}
			return stats.PreferredOptions[i].Option < stats.PreferredOptions[j].Option
		})
		analysis.VotingPatterns[name] = stats
	}
	return analysis, nil
}
