// Package model defines the domain types shared across the engine, the
// decision graph, and the MCP surface: requests, responses, votes, and
// the error taxonomy.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects how many rounds a deliberation may run.
type Mode string

const (
	// ModeQuick runs a single round of independent opinions.
	ModeQuick Mode = "quick"
	// ModeConference runs multi-round deliberation where participants
	// see and respond to each other's prior positions.
	ModeConference Mode = "conference"
)

// Stance is a participant's assigned position on the question.
type Stance string

const (
	StanceNeutral Stance = "neutral"
	StanceFor     Stance = "for"
	StanceAgainst Stance = "against"
)

// Request validation limits.
const (
	MinQuestionLen  = 10
	MinParticipants = 2
	MinRounds       = 1
	MaxRounds       = 5
)

// Participant identifies one model taking part in a deliberation.
// Identity within a deliberation is the compound "model@backend".
type Participant struct {
	Backend string `json:"backend"`
	Model   string `json:"model"`
	Stance  Stance `json:"stance,omitempty"`
	// ReasoningEffort is an optional hint forwarded to backends that
	// support it (e.g. "low", "medium", "high").
	ReasoningEffort string `json:"reasoning_effort,omitempty"`
}

// ID returns the compound participant identifier used throughout
// results, transcripts, and the decision graph.
func (p Participant) ID() string {
	return p.Model + "@" + p.Backend
}

// DeliberateRequest is a validated request for one deliberation.
type DeliberateRequest struct {
	Question     string        `json:"question"`
	Participants []Participant `json:"participants"`
	Rounds       int           `json:"rounds"`
	Mode         Mode          `json:"mode"`
	Context      string        `json:"context,omitempty"`
	// WorkingDir scopes tool execution and is forwarded to backends
	// that accept a working directory.
	WorkingDir string `json:"working_directory,omitempty"`
}

// Validate checks the request against the documented limits. Backend
// membership in the configured set is checked at the MCP surface where
// the set is known.
func (r DeliberateRequest) Validate() error {
	if len(strings.TrimSpace(r.Question)) < MinQuestionLen {
		return &ValidationError{Field: "question", Reason: fmt.Sprintf("must be at least %d characters", MinQuestionLen)}
	}
	if len(r.Participants) < MinParticipants {
		return &ValidationError{Field: "participants", Reason: fmt.Sprintf("at least %d participants required, got %d", MinParticipants, len(r.Participants))}
	}
	if r.Rounds < MinRounds || r.Rounds > MaxRounds {
		return &ValidationError{Field: "rounds", Reason: fmt.Sprintf("must be in [%d..%d], got %d", MinRounds, MaxRounds, r.Rounds)}
	}
	switch r.Mode {
	case ModeQuick, ModeConference:
	default:
		return &ValidationError{Field: "mode", Reason: fmt.Sprintf("must be %q or %q, got %q", ModeQuick, ModeConference, r.Mode)}
	}
	for i, p := range r.Participants {
		if p.Backend == "" {
			return &ValidationError{Field: fmt.Sprintf("participants[%d].backend", i), Reason: "required"}
		}
		if p.Model == "" {
			return &ValidationError{Field: fmt.Sprintf("participants[%d].model", i), Reason: "required"}
		}
		switch p.Stance {
		case StanceNeutral, StanceFor, StanceAgainst, "":
		default:
			return &ValidationError{
				Field:  fmt.Sprintf("participants[%d].stance", i),
				Reason: fmt.Sprintf("must be neutral, for, or against, got %q", p.Stance),
			}
		}
	}
	return nil
}

// EffectiveRounds applies the mode: quick mode always runs one round.
func (r DeliberateRequest) EffectiveRounds() int {
	if r.Mode == ModeQuick {
		return 1
	}
	return r.Rounds
}

// RoundResponse is one participant's contribution in one round. The
// response text may carry embedded VOTE and TOOL_REQUEST markers.
type RoundResponse struct {
	Round       int    `json:"round"`
	Participant string `json:"participant"`
	Stance      Stance `json:"stance"`
	Response    string `json:"response"`
	Timestamp   string `json:"timestamp"`
}

// ConvergenceStatus classifies a round or a finished deliberation.
type ConvergenceStatus string

const (
	StatusConverged          ConvergenceStatus = "converged"
	StatusImpasse            ConvergenceStatus = "impasse"
	StatusRefining           ConvergenceStatus = "refining"
	StatusDiverging          ConvergenceStatus = "diverging"
	StatusUnanimousConsensus ConvergenceStatus = "unanimous_consensus"
	StatusMajorityDecision   ConvergenceStatus = "majority_decision"
	StatusTie                ConvergenceStatus = "tie"
	StatusUnknown            ConvergenceStatus = "unknown"
)

// ConvergenceInfo reports what the detector (and vote outcome) decided.
type ConvergenceInfo struct {
	Detected        bool               `json:"detected"`
	DetectionRound  *int               `json:"detection_round,omitempty"`
	FinalSimilarity float64            `json:"final_similarity"`
	Status          ConvergenceStatus  `json:"status"`
	PerParticipant  map[string]float64 `json:"per_participant_similarity,omitempty"`
}

// Summary is the secondary-model synthesis of a finished deliberation.
type Summary struct {
	Consensus           string   `json:"consensus"`
	KeyAgreements       []string `json:"key_agreements"`
	KeyDisagreements    []string `json:"key_disagreements"`
	FinalRecommendation string   `json:"final_recommendation"`
}

// ResultStatus reports how the deliberation ended.
type ResultStatus string

const (
	// ResultComplete means the engine finished, possibly with
	// contained per-participant errors.
	ResultComplete ResultStatus = "complete"
	// ResultPartial means the engine finished but at least one
	// participant produced no usable response in any round.
	ResultPartial ResultStatus = "partial"
	// ResultFailed means no participant produced a usable response.
	ResultFailed ResultStatus = "failed"
)

// DeliberationResult is the complete output of one deliberation.
type DeliberationResult struct {
	Status          ResultStatus     `json:"status"`
	Mode            Mode             `json:"mode"`
	RoundsCompleted int              `json:"rounds_completed"`
	Participants    []string         `json:"participants"`
	Summary         Summary          `json:"summary"`
	VotingResult    *VotingResult    `json:"voting_result,omitempty"`
	ConvergenceInfo *ConvergenceInfo `json:"convergence_info,omitempty"`
	TranscriptPath  string           `json:"transcript_path"`
	FullDebate      []RoundResponse  `json:"full_debate"`
}

// Timestamp formats t the way round responses and graph nodes store it.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
