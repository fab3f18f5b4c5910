package llm

import (
	"fmt"

	"github.com/xhad/lore/internal/types"
	"github.com/xhad/lore/pkg/config"
)

// NewEmbedder builds the embedding provider named in cfg.
func NewEmbedder(cfg config.EmbeddingConfig) (types.Embedder, error) {
	switch cfg.Provider {
	case "", "ollama":
		return NewEmbedderWithConfig(EmbedderConfig{
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})
	case "hash":
		return NewHashEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
