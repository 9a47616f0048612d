package similarity

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"
	"sync"

	"github.com/ashita-ai/hyogi/internal/embedding"
)

// Embedding is the highest-quality backend: cosine similarity of
// neural sentence vectors. Vectors are cached by content hash; the
// cache never needs invalidation because embeddings are a pure
// function of the text.
type Embedding struct {
	provider embedding.Provider

	mu      sync.Mutex
	vectors map[[32]byte][]float32
	order   [][32]byte
	maxSize int
}

// NewEmbedding wraps an embedding provider in a Scorer with an LRU
// vector cache of cacheSize entries.
func NewEmbedding(provider embedding.Provider, cacheSize int) *Embedding {
	if cacheSize <= 0 {
		cacheSize = 500
	}
	return &Embedding{
		provider: provider,
		vectors:  make(map[[32]byte][]float32),
		maxSize:  cacheSize,
	}
}

func (e *Embedding) Name() string { return "embedding" }

// Score embeds both texts and returns their cosine similarity, clamped
// to [0,1].
func (e *Embedding) Score(ctx context.Context, a, b string) (float64, error) {
	if a == "" || b == "" {
		return 0, nil
	}
	if a == b {
		return 1, nil
	}

	va, err := e.vector(ctx, a)
	if err != nil {
		return 0, fmt.Errorf("similarity: embed first text: %w", err)
	}
	vb, err := e.vector(ctx, b)
	if err != nil {
		return 0, fmt.Errorf("similarity: embed second text: %w", err)
	}

	score := cosine(va, vb)
	// Sentence-embedding cosine can dip slightly negative on unrelated
	// texts; the contract is [0,1].
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}

// CachedVectors reports how many embeddings are currently cached.
func (e *Embedding) CachedVectors() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.vectors)
}

func (e *Embedding) vector(ctx context.Context, text string) ([]float32, error) {
	key := sha256.Sum256([]byte(text))

	e.mu.Lock()
	if v, ok := e.vectors[key]; ok {
		e.mu.Unlock()
		return v, nil
	}
	e.mu.Unlock()

	v, err := e.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.vectors[key]; !ok {
		e.vectors[key] = v
		e.order = append(e.order, key)
		for len(e.order) > e.maxSize {
			oldest := e.order[0]
			e.order = e.order[1:]
			delete(e.vectors, oldest)
		}
	}
	return v, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		da, db := float64(a[i]), float64(b[i])
		dot += da * db
		normA += da * da
		normB += db * db
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
