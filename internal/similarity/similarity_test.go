package similarity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScorerLaws(t *testing.T) {
	scorers := []Scorer{
		NewJaccard(),
		NewTFIDF(),
		NewEmbedding(&stubProvider{dims: 4}, 10),
	}

	for _, s := range scorers {
		t.Run(s.Name(), func(t *testing.T) {
			ctx := context.Background()

			same, err := s.Score(ctx, "use postgres for the event store", "use postgres for the event store")
			require.NoError(t, err)
			assert.Equal(t, 1.0, same, "identical inputs must score 1")

			empty, err := s.Score(ctx, "", "use postgres")
			require.NoError(t, err)
			assert.Equal(t, 0.0, empty, "empty input must score 0")

			empty, err = s.Score(ctx, "use postgres", "")
			require.NoError(t, err)
			assert.Equal(t, 0.0, empty)

			score, err := s.Score(ctx, "choose grpc for internal transport", "the team went hiking on saturday")
			require.NoError(t, err)
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)
		})
	}
}

func TestJaccardOverlap(t *testing.T) {
	j := NewJaccard()

	score, err := j.Score(context.Background(), "alpha beta gamma", "beta gamma delta")
	require.NoError(t, err)
	// 2 shared words over 4 distinct.
	assert.InDelta(t, 0.5, score, 1e-9)

	score, err = j.Score(context.Background(), "alpha beta", "gamma delta")
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestTFIDFWeighsRareTerms(t *testing.T) {
	tf := NewTFIDF()
	ctx := context.Background()

	related, err := tf.Score(ctx, "should we adopt kubernetes for deployment", "should we adopt nomad for deployment")
	require.NoError(t, err)
	unrelated, err := tf.Score(ctx, "should we adopt kubernetes for deployment", "what color should the logo be")
	require.NoError(t, err)

	assert.Greater(t, related, unrelated)
}

func TestTFIDFStripsPunctuation(t *testing.T) {
	tf := NewTFIDF()

	score, err := tf.Score(context.Background(), "use postgres, not mysql.", "use postgres not mysql")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestEmbeddingScoresCosine(t *testing.T) {
	p := &stubProvider{dims: 3, vectors: map[string][]float32{
		"a": {1, 0, 0},
		"b": {0, 1, 0},
		"c": {1, 1, 0},
	}}
	e := NewEmbedding(p, 10)
	ctx := context.Background()

	orthogonal, err := e.Score(ctx, "a", "b")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, orthogonal, 1e-9)

	diagonal, err := e.Score(ctx, "a", "c")
	require.NoError(t, err)
	assert.InDelta(t, 0.7071, diagonal, 1e-3)
}

func TestEmbeddingCachesVectors(t *testing.T) {
	p := &stubProvider{dims: 3, vectors: map[string][]float32{
		"a": {1, 0, 0},
		"b": {0, 1, 0},
	}}
	e := NewEmbedding(p, 10)
	ctx := context.Background()

	_, err := e.Score(ctx, "a", "b")
	require.NoError(t, err)
	_, err = e.Score(ctx, "a", "b")
	require.NoError(t, err)

	assert.Equal(t, 2, p.calls, "second score must be served from cache")
	assert.Equal(t, 2, e.CachedVectors())
}

func TestEmbeddingCacheEvictsOldest(t *testing.T) {
	p := &stubProvider{dims: 2, vectors: map[string][]float32{
		"a": {1, 0}, "b": {0, 1}, "c": {1, 1}, "d": {1, 2},
	}}
	e := NewEmbedding(p, 2)
	ctx := context.Background()

	_, err := e.Score(ctx, "a", "b")
	require.NoError(t, err)
	_, err = e.Score(ctx, "c", "d")
	require.NoError(t, err)

	assert.Equal(t, 2, e.CachedVectors())
}

func TestEmbeddingPropagatesProviderErrors(t *testing.T) {
	e := NewEmbedding(&stubProvider{err: errors.New("connection refused")}, 10)

	_, err := e.Score(context.Background(), "a", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

// stubProvider serves fixed vectors keyed by input text and counts
// Embed calls.
type stubProvider struct {
	dims    int
	vectors map[string][]float32
	err     error
	calls   int
}

func (s *stubProvider) Embed(_ context.Context, text string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	v := make([]float32, s.dims)
	for i, r := range text {
		v[i%s.dims] += float32(r)
	}
	return v, nil
}

func (s *stubProvider) Dimensions() int { return s.dims }
