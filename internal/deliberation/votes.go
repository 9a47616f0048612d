// Package deliberation implements the multi-round debate engine: round
// orchestration, vote extraction and tallying, convergence detection,
// summaries, and transcript output.
package deliberation

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ashita-ai/hyogi/internal/model"
	"github.com/ashita-ai/hyogi/internal/similarity"
)

// VotingInstructions is appended to the question before every
// invocation so participants know the exact ballot format.
const VotingInstructions = `

When you have formed a position, cast a structured vote on its own line:
VOTE: {"option": "<your chosen option>", "confidence": 0.0-1.0, "rationale": "<one sentence>", "continue_debate": true|false}
Set "continue_debate" to false if another round would not change your position.`

// optionGroupThreshold is deliberately aggressive. Near-identical
// labels like "PostgreSQL" and "postgres" merge; anything looser
// starts collapsing genuinely distinct options.
const optionGroupThreshold = 0.85

var voteMarkerPattern = regexp.MustCompile(`VOTE:\s*\{`)

// ParseVote extracts the first well-formed vote marker from a response.
// A missing or malformed vote is not an error: the participant simply
// did not cast one this round.
func ParseVote(text string) (model.Vote, bool) {
	loc := voteMarkerPattern.FindStringIndex(text)
	if loc == nil {
		return model.Vote{}, false
	}
	payload := text[loc[1]-1:]

	// continue_debate defaults to true when omitted, so decode through
	// a pointer to tell "absent" from "false".
	var raw struct {
		Option         string  `json:"option"`
		Confidence     float64 `json:"confidence"`
		Rationale      string  `json:"rationale"`
		ContinueDebate *bool   `json:"continue_debate"`
	}
	dec := json.NewDecoder(strings.NewReader(payload))
	if err := dec.Decode(&raw); err != nil {
		return model.Vote{}, false
	}

	v := model.Vote{
		Option:         strings.TrimSpace(raw.Option),
		Confidence:     raw.Confidence,
		Rationale:      raw.Rationale,
		ContinueDebate: true,
	}
	if raw.ContinueDebate != nil {
		v.ContinueDebate = *raw.ContinueDebate
	}
	if err := v.Validate(); err != nil {
		return model.Vote{}, false
	}
	return v, true
}

// VoteAggregator tallies votes across rounds. With a Scorer set it
// additionally merges near-identical option labels; the zero value
// (and a nil Scorer) does exact-match tallying only.
type VoteAggregator struct {
	Scorer similarity.Scorer
	Logger *slog.Logger
}

// Aggregate folds every parsed vote into a VotingResult. Returns nil
// when no votes were cast. A single option with a strict maximum count
// wins; a tie for first place leaves WinningOption nil.
func (a VoteAggregator) Aggregate(ctx context.Context, votes []model.RoundVote) *model.VotingResult {
	if len(votes) == 0 {
		return nil
	}

	canonical := a.canonicalLabels(ctx, votes)
	tally := make(map[string]int, len(votes))
	for _, rv := range votes {
		tally[canonical[rv.Vote.Option]]++
	}

	var winner string
	best, runnersUp := 0, 0
	for option, count := range tally {
		switch {
		case count > best:
			best, runnersUp, winner = count, 0, option
		case count == best:
			runnersUp++
		}
	}

	result := &model.VotingResult{
		FinalTally:   tally,
		VotesByRound: votes,
	}
	if runnersUp == 0 {
		result.ConsensusReached = true
		result.WinningOption = &winner
	}
	return result
}

// canonicalLabels maps each distinct option label to its tally label.
// Without a scorer that is the identity; with one, labels scoring at or
// above the grouping threshold merge under the first-seen label.
func (a VoteAggregator) canonicalLabels(ctx context.Context, votes []model.RoundVote) map[string]string {
	canonical := make(map[string]string, len(votes))
	var seen []string
	for _, rv := range votes {
		option := rv.Vote.Option
		if _, done := canonical[option]; done {
			continue
		}
		canonical[option] = option
		if a.Scorer != nil {
			for _, prior := range seen {
				score, err := a.Scorer.Score(ctx, option, prior)
				if err != nil {
					if a.Logger != nil {
						a.Logger.Debug("vote option comparison failed",
							"option", option, "prior", prior, "error", err)
					}
					continue
				}
				if score >= optionGroupThreshold {
					canonical[option] = prior
					break
				}
			}
		}
		if canonical[option] == option {
			seen = append(seen, option)
		}
	}
	return canonical
}
