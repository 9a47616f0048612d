package model

import "fmt"

// Vote is the structured ballot a participant may embed in a response
// using the VOTE: marker. Votes are optional; absence is not an error.
type Vote struct {
	Option     string  `json:"option"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
	// ContinueDebate signals whether the participant wants further
	// rounds. Defaults to true when omitted.
	ContinueDebate bool `json:"continue_debate"`
}

// Validate enforces the wire contract: non-empty option, confidence in
// [0,1]. Callers treat a validation failure as "no vote cast".
func (v Vote) Validate() error {
	if v.Option == "" {
		return fmt.Errorf("vote: option must be a non-empty string")
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return fmt.Errorf("vote: confidence %v outside [0,1]", v.Confidence)
	}
	return nil
}

// RoundVote records who cast a vote and when.
type RoundVote struct {
	Round       int    `json:"round"`
	Participant string `json:"participant"`
	Vote        Vote   `json:"vote"`
}

// VotingResult aggregates all parsed votes across a deliberation.
type VotingResult struct {
	// FinalTally maps option label to total count over all rounds.
	FinalTally map[string]int `json:"final_tally"`
	// VotesByRound preserves every parsed vote in cast order.
	VotesByRound []RoundVote `json:"votes_by_round"`
	// ConsensusReached is true when a single option holds a strict
	// maximum. A tie leaves it false and WinningOption nil.
	ConsensusReached bool    `json:"consensus_reached"`
	WinningOption    *string `json:"winning_option"`
}
