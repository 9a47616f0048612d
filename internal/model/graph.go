package model

import (
	"time"

	"github.com/google/uuid"
)

// MaxFinalPositionLen bounds the stored tail of a participant's final
// response. Positions are evidence, not transcripts; the transcript
// file keeps the full text.
const MaxFinalPositionLen = 500

// DecisionNode is one completed deliberation persisted in the decision
// graph. Nodes are immutable once stored; revisions are new nodes.
type DecisionNode struct {
	ID                uuid.UUID         `json:"id"`
	Question          string            `json:"question"`
	Timestamp         time.Time         `json:"timestamp"`
	Consensus         string            `json:"consensus"`
	WinningOption     *string           `json:"winning_option,omitempty"`
	ConvergenceStatus ConvergenceStatus `json:"convergence_status"`
	Participants      []string          `json:"participants"`
	TranscriptPath    string            `json:"transcript_path"`
	Metadata          map[string]any    `json:"metadata,omitempty"`
}

// ParticipantStance is a participant's final position on a stored
// decision, with their final-round vote when one was cast.
type ParticipantStance struct {
	DecisionID  uuid.UUID `json:"decision_id"`
	Participant string    `json:"participant"`
	VoteOption  *string   `json:"vote_option,omitempty"`
	Confidence  *float64  `json:"confidence,omitempty"`
	Rationale   *string   `json:"rationale,omitempty"`
	// FinalPosition is the participant's last response, truncated to
	// MaxFinalPositionLen characters.
	FinalPosition string `json:"final_position"`
}

// DecisionSimilarity is a directed similarity edge from a newer
// decision to an older one it was compared against. Scores are
// symmetric by construction but stored one-way.
type DecisionSimilarity struct {
	SourceID   uuid.UUID `json:"source_id"`
	TargetID   uuid.UUID `json:"target_id"`
	Score      float64   `json:"score"`
	ComputedAt time.Time `json:"computed_at"`
}

// ScoredDecision pairs a retrieved node with its similarity to a query.
type ScoredDecision struct {
	Node  DecisionNode `json:"node"`
	Score float64      `json:"score"`
}
