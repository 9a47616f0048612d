package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/ashita-ai/hyogi/internal/config"
	"github.com/ashita-ai/hyogi/internal/model"
	"github.com/ashita-ai/hyogi/internal/similarity"
)

// NoiseFloor is the minimum similarity for a past decision to appear
// in retrieved context at all. Below this, lexical overlap is mostly
// coincidence.
const NoiseFloor = 0.40

// Tier names for the context fidelity levels.
const (
	TierStrong   = "strong"
	TierModerate = "moderate"
	TierBrief    = "brief"
)

// ContextBlock is the formatted output of a retrieval: markdown for
// prompt injection plus accounting of what it cost.
type ContextBlock struct {
	Markdown   string         `json:"markdown"`
	TokensUsed int            `json:"tokens_used"`
	Tiers      map[string]int `json:"tiers"`
	Decisions  int            `json:"decisions"`
}

type scoredID struct {
	ID    uuid.UUID
	Score float64
}

// Retriever turns the decision graph into prompt context: given a new
// question, it finds the most similar past decisions and renders them
// as markdown under a token budget.
type Retriever struct {
	store  *Store
	scorer similarity.Scorer
	cfg    config.DecisionGraphConfig
	cache  *queryCache
	logger *slog.Logger
}

// NewRetriever builds a retriever over store using scorer.
func NewRetriever(store *Store, scorer similarity.Scorer, cfg config.DecisionGraphConfig, logger *slog.Logger) *Retriever {
	return &Retriever{
		store:  store,
		scorer: scorer,
		cfg:    cfg,
		cache:  newQueryCache(defaultCacheTTL, defaultCacheSize),
		logger: logger,
	}
}

// ContextFor retrieves context for question with the configured
// defaults. Retrieval never fails a deliberation: on any error the
// block is empty and the problem is logged.
func (r *Retriever) ContextFor(ctx context.Context, question string) ContextBlock {
	block, err := r.Retrieve(ctx, question, NoiseFloor, r.cfg.MaxContextDecisions)
	if err != nil {
		r.logger.Warn("decision graph retrieval failed, proceeding without context", "error", err)
		return ContextBlock{Tiers: map[string]int{}}
	}
	return block
}

// Retrieve runs the full pipeline: query cache, candidate scoring,
// tiered budget-aware formatting.
func (r *Retriever) Retrieve(ctx context.Context, question string, threshold float64, maxResults int) (ContextBlock, error) {
	if maxResults <= 0 {
		maxResults = 3
	}

	key := cacheKey{question: question, threshold: threshold, maxResults: maxResults}
	if ids, ok := r.cache.get(key); ok {
		return r.format(ctx, r.hydrate(ctx, ids))
	}

	candidates, err := r.store.ListRecent(ctx, r.cfg.QueryWindow, 0)
	if err != nil {
		return ContextBlock{}, err
	}

	var kept []model.ScoredDecision
	for _, node := range candidates {
		score, err := r.scorer.Score(ctx, question, node.Question)
		if err != nil {
			r.logger.Debug("similarity scoring failed for candidate", "decision_id", node.ID, "error", err)
			continue
		}
		if score >= threshold {
			kept = append(kept, model.ScoredDecision{Node: node, Score: score})
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	if len(kept) > maxResults {
		kept = kept[:maxResults]
	}

	cached := make([]scoredID, 0, len(kept))
	for _, sd := range kept {
		cached = append(cached, scoredID{ID: sd.Node.ID, Score: sd.Score})
	}
	r.cache.put(key, cached)

	return r.format(ctx, kept)
}

// InvalidateCache clears the query cache. Called after every graph
// write; content-addressed embedding vectors stay valid.
func (r *Retriever) InvalidateCache() {
	r.cache.clear()
}

// CacheStats exposes query-cache counters for the maintenance surface.
func (r *Retriever) CacheStats() CacheStats {
	return r.cache.stats()
}

// hydrate resolves cached id/score pairs back into nodes. A missing
// node means it was deleted between caching and now; skip it.
func (r *Retriever) hydrate(ctx context.Context, ids []scoredID) []model.ScoredDecision {
	out := make([]model.ScoredDecision, 0, len(ids))
	for _, cached := range ids {
		node, err := r.store.GetDecision(ctx, cached.ID)
		if err != nil {
			r.logger.Debug("cached decision no longer present", "decision_id", cached.ID, "error", err)
			continue
		}
		out = append(out, model.ScoredDecision{Node: node, Score: cached.Score})
	}
	return out
}

// format renders scored decisions as tiered markdown, stopping before
// the estimated token total would exceed the budget. Tokens are
// estimated as bytes/4.
func (r *Retriever) format(ctx context.Context, decisions []model.ScoredDecision) (ContextBlock, error) {
	block := ContextBlock{Tiers: map[string]int{}}
	if len(decisions) == 0 {
		return block, nil
	}

	budget := r.cfg.ContextTokenBudget
	var b strings.Builder
	header := "## Relevant past decisions\n\n"
	b.WriteString(header)
	used := len(header) / 4

	for _, sd := range decisions {
		tier := r.tierFor(sd.Score)
		section, err := r.renderSection(ctx, sd, tier)
		if err != nil {
			r.logger.Debug("failed to render decision section", "decision_id", sd.Node.ID, "error", err)
			continue
		}
		cost := len(section) / 4
		if used+cost > budget {
			break
		}
		b.WriteString(section)
		used += cost
		block.Tiers[tier]++
		block.Decisions++
	}

	if block.Decisions == 0 {
		return ContextBlock{Tiers: map[string]int{}}, nil
	}
	block.Markdown = b.String()
	block.TokensUsed = used
	return block, nil
}

func (r *Retriever) tierFor(score float64) string {
	switch {
	case score >= r.cfg.TierBoundaries.Strong:
		return TierStrong
	case score >= r.cfg.TierBoundaries.Moderate:
		return TierModerate
	default:
		return TierBrief
	}
}

func (r *Retriever) renderSection(ctx context.Context, sd model.ScoredDecision, tier string) (string, error) {
	node := sd.Node
	winner := "none"
	if node.WinningOption != nil {
		winner = *node.WinningOption
	}

	switch tier {
	case TierBrief:
		return fmt.Sprintf("- %s -> %s\n", node.Question, winner), nil

	case TierModerate:
		var b strings.Builder
		fmt.Fprintf(&b, "### %s (similarity %.2f)\n", node.Question, sd.Score)
		fmt.Fprintf(&b, "- Outcome: %s\n", node.Consensus)
		fmt.Fprintf(&b, "- Winning option: %s\n\n", winner)
		return b.String(), nil

	default: // strong
		var b strings.Builder
		fmt.Fprintf(&b, "### %s (similarity %.2f)\n", node.Question, sd.Score)
		fmt.Fprintf(&b, "- Decided: %s (%s)\n", model.Timestamp(node.Timestamp), node.ConvergenceStatus)
		fmt.Fprintf(&b, "- Outcome: %s\n", node.Consensus)
		fmt.Fprintf(&b, "- Winning option: %s\n", winner)
		fmt.Fprintf(&b, "- Participants: %s\n", strings.Join(node.Participants, ", "))

		stances, err := r.store.StancesFor(ctx, node.ID)
		if err != nil {
			return "", err
		}
		if len(stances) > 0 {
			b.WriteString("- Stances:\n")
			for _, st := range stances {
				line := "  - " + st.Participant
				if st.VoteOption != nil {
					line += ": voted " + *st.VoteOption
					if st.Confidence != nil {
						line += fmt.Sprintf(" (confidence %.2f)", *st.Confidence)
					}
				}
				if st.Rationale != nil && *st.Rationale != "" {
					line += " - " + *st.Rationale
				}
				b.WriteString(line + "\n")
			}
		}
		b.WriteString("\n")
		return b.String(), nil
	}
}
