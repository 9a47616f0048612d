// Package embedding provides vector embedding generation for semantic
// similarity scoring.
//
// Defines a Provider interface and an Ollama implementation. The
// interface allows swapping embedding providers without changing
// consumers.
package embedding

import (
	"context"
)

// Provider generates vector embeddings from text.
type Provider interface {
	// Embed generates a single embedding vector from text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector dimensionality.
	Dimensions() int
}
