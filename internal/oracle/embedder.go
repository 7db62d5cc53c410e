// Package oracle provides an embedding-backed similarity oracle. Source and
// artifact text are embedded block by block and compared by cosine
// similarity; divergent blocks become refinement regions.
package oracle

import (
	"context"
	"fmt"
	"math"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/avollmer/sitegraft/internal/config"
)

// defaultOllamaEmbedModel produces small vectors that are cheap to compare.
const defaultOllamaEmbedModel = "nomic-embed-text"

// Embedder is the embedding surface the oracle needs.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single text.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// NewEmbedder creates an embedding backend from configuration. Only ollama
// and openai expose embedding endpoints; other providers return an error and
// the caller runs without a built-in oracle.
func NewEmbedder(cfg config.Config) (Embedder, error) {
	switch cfg.LLMProvider {
	case config.ProviderOllama, "":
		client, err := ollama.New(
			ollama.WithModel(defaultOllamaEmbedModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama embedding client: %w", err)
		}
		return embeddings.NewEmbedder(client)

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required for embeddings")
		}
		client, err := openai.New(openai.WithToken(cfg.OpenAIAPIKey))
		if err != nil {
			return nil, fmt.Errorf("create openai embedding client: %w", err)
		}
		return embeddings.NewEmbedder(client)

	default:
		return nil, fmt.Errorf("provider %s has no embedding endpoint", cfg.LLMProvider)
	}
}

// cosine computes cosine similarity between two vectors. Mismatched or empty
// vectors score zero.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
