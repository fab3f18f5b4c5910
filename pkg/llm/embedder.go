package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// EmbedderConfig represents the configuration for an Ollama embedder.
type EmbedderConfig struct {
	Model      string
	BaseURL    string // Ollama server URL
	Dimensions int
}

// OllamaEmbedder computes embeddings with a model served by Ollama.
type OllamaEmbedder struct {
	config   EmbedderConfig
	embedder embeddings.Embedder
}

func NewEmbedderWithConfig(config EmbedderConfig) (*OllamaEmbedder, error) {
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest" // Default Ollama model
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	if config.Dimensions <= 0 {
		config.Dimensions = 768
	}

	client, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama client: %w", err)
	}

	emb, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return &OllamaEmbedder{
		config:   config,
		embedder: emb,
	}, nil
}

// Embed returns the embedding of a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("ollama embed (%s): %w", e.config.Model, err)
	}
	if len(vec) != e.config.Dimensions {
		return nil, fmt.Errorf("ollama embed (%s): got %d dimensions, expected %d", e.config.Model, len(vec), e.config.Dimensions)
	}
	return vec, nil
}

// Dimensions returns the configured embedding width.
func (e *OllamaEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// Warm forces the model to load by embedding a probe string, so the first
// real query does not pay for it and a dimension mismatch surfaces early.
func (e *OllamaEmbedder) Warm(ctx context.Context) error {
	_, err := e.Embed(ctx, "warm up")
	return err
}
