package ollama

import (
	"context"
	"sync"

	ollamaapi "ragsmoke/internal/ollama"
)

// DefaultModel is a common Ollama embedding model.
const DefaultModel = "nomic-embed-text"

// Embedder computes embeddings on an Ollama server.
type Embedder struct {
	client *ollamaapi.Client
	model  string

	mu        sync.Mutex
	dimension int
}

// NewEmbedder creates an embedder that uses model on client.
func NewEmbedder(client *ollamaapi.Client, model string) *Embedder {
	if model == "" {
		model = DefaultModel
	}
	return &Embedder{client: client, model: model}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "ollama-" + e.model }

// NeedsCorpus is false: the model is fixed on the server.
func (e *Embedder) NeedsCorpus() bool { return false }

// Prepare is a no-op for remote embedding.
func (e *Embedder) Prepare([]string) error { return nil }

// Dimension is zero until the first successful Embed.
func (e *Embedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimension
}

// Embed returns the embedding for text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.client.Embeddings(ctx, e.model, text)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	if e.dimension == 0 {
		e.dimension = len(vec)
	}
	e.mu.Unlock()
	return vec, nil
}
