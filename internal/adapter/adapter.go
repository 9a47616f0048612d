// Package adapter turns (prompt, model) into text for each configured
// backend. Two variants exist: subprocess adapters that drive a local
// CLI with an activity-based timeout, and HTTP adapters that speak
// chat-completions. A startup factory resolves each configured backend
// to a concrete adapter through a deterministic decision table.
package adapter

import (
	"context"
	"fmt"

	"github.com/ashita-ai/hyogi/internal/model"
)

// InvokeRequest carries one invocation. Context, WorkingDir, and
// ReasoningEffort are optional.
type InvokeRequest struct {
	Prompt          string
	Model           string
	Context         string
	WorkingDir      string
	ReasoningEffort string
}

// Invoker is the single operation every backend adapter exposes.
type Invoker interface {
	// Invoke sends the prompt to the backend and returns the cleaned
	// response text.
	Invoke(ctx context.Context, req InvokeRequest) (string, error)
	// Name returns the backend id this adapter serves.
	Name() string
}

// fullPrompt prepends the deliberation context, when present, separated
// by a blank line.
func fullPrompt(req InvokeRequest) string {
	if req.Context == "" {
		return req.Prompt
	}
	return req.Context + "\n\n" + req.Prompt
}

// checkPromptLength enforces the adapter's configured maximum, if any.
func checkPromptLength(prompt string, maxChars int) error {
	if maxChars > 0 && len(prompt) > maxChars {
		return &model.ValidationError{
			Field:  "prompt",
			Reason: fmt.Sprintf("too long (%d chars, max %d)", len(prompt), maxChars),
		}
	}
	return nil
}
