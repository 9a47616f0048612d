package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() DeliberateRequest {
	return DeliberateRequest{
		Question: "Should we adopt gRPC for internal services?",
		Participants: []Participant{
			{Backend: "claude", Model: "sonnet"},
			{Backend: "codex", Model: "gpt-5"},
		},
		Rounds: 2,
		Mode:   ModeConference,
	}
}

func TestValidateAcceptsWellFormedRequest(t *testing.T) {
	require.NoError(t, validRequest().Validate())
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*DeliberateRequest)
		field  string
	}{
		{"short question", func(r *DeliberateRequest) { r.Question = "why?" }, "question"},
		{"whitespace question", func(r *DeliberateRequest) { r.Question = strings.Repeat(" ", 20) }, "question"},
		{"one participant", func(r *DeliberateRequest) { r.Participants = r.Participants[:1] }, "participants"},
		{"zero rounds", func(r *DeliberateRequest) { r.Rounds = 0 }, "rounds"},
		{"too many rounds", func(r *DeliberateRequest) { r.Rounds = 6 }, "rounds"},
		{"bad mode", func(r *DeliberateRequest) { r.Mode = "debate" }, "mode"},
		{"missing backend", func(r *DeliberateRequest) { r.Participants[1].Backend = "" }, "participants[1].backend"},
		{"missing model", func(r *DeliberateRequest) { r.Participants[0].Model = "" }, "participants[0].model"},
		{"bad stance", func(r *DeliberateRequest) { r.Participants[0].Stance = "undecided" }, "participants[0].stance"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			err := req.Validate()
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestEffectiveRounds(t *testing.T) {
	req := validRequest()
	assert.Equal(t, 2, req.EffectiveRounds())

	req.Mode = ModeQuick
	assert.Equal(t, 1, req.EffectiveRounds())
}

func TestParticipantID(t *testing.T) {
	p := Participant{Backend: "claude", Model: "opus"}
	assert.Equal(t, "opus@claude", p.ID())
}
