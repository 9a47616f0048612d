// Package similarity scores how close two texts are on a [0,1] scale.
//
// Three backends are provided, in descending quality: embedding
// (neural sentence vectors, cosine), term-weighted (TF-IDF cosine),
// and lexical (word-set Jaccard). The lexical backend has no external
// dependencies and is the floor every deployment can rely on; the
// contract is identical across backends.
package similarity

import (
	"context"
	"strings"
)

// Scorer computes pairwise textual similarity.
//
// For every implementation: identical inputs score 1.0 and an empty
// input scores 0.0.
type Scorer interface {
	Score(ctx context.Context, a, b string) (float64, error)
	Name() string
}

// Jaccard is the lexical backend: word-set overlap over union.
type Jaccard struct{}

// NewJaccard returns the always-available lexical scorer.
func NewJaccard() *Jaccard { return &Jaccard{} }

func (j *Jaccard) Name() string { return "jaccard" }

// Score computes |A ∩ B| / |A ∪ B| over lowercased word sets.
func (j *Jaccard) Score(_ context.Context, a, b string) (float64, error) {
	if a == "" || b == "" {
		return 0, nil
	}
	if a == b {
		return 1, nil
	}

	wordsA := wordSet(a)
	wordsB := wordSet(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0, nil
	}

	intersection := 0
	for w := range wordsA {
		if _, ok := wordsB[w]; ok {
			intersection++
		}
	}
	union := len(wordsA) + len(wordsB) - intersection
	if union == 0 {
		return 0, nil
	}
	return float64(intersection) / float64(union), nil
}

func wordSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
