package similarity

import (
	"log/slog"

	"github.com/ashita-ai/hyogi/internal/embedding"
)

// Detect picks the best available backend at startup: embedding when an
// Ollama server answers at ollamaURL, otherwise TF-IDF. Jaccard stays
// available via New for deployments that want the cheapest scorer.
func Detect(logger *slog.Logger, ollamaURL, model string, dims int) Scorer {
	if embedding.Reachable(ollamaURL) {
		logger.Info("similarity backend selected",
			"backend", "embedding",
			"model", model,
			"dimensions", dims)
		return NewEmbedding(embedding.NewOllamaProvider(ollamaURL, model, dims), 500)
	}
	logger.Info("similarity backend selected",
		"backend", "tfidf",
		"reason", "ollama not reachable")
	return NewTFIDF()
}

// New returns the named backend, or the TF-IDF default when name is
// empty or unknown.
func New(name string, logger *slog.Logger, ollamaURL, model string, dims int) Scorer {
	switch name {
	case "embedding":
		return NewEmbedding(embedding.NewOllamaProvider(ollamaURL, model, dims), 500)
	case "jaccard":
		return NewJaccard()
	case "tfidf":
		return NewTFIDF()
	case "", "auto":
		return Detect(logger, ollamaURL, model, dims)
	default:
		logger.Warn("unknown similarity backend, using tfidf", "backend", name)
		return NewTFIDF()
	}
}
