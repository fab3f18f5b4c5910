// Package store provides the vector index backends lore can run on.
package store

import (
	"fmt"

	"github.com/xhad/lore/internal/types"
	"github.com/xhad/lore/pkg/config"
)

// Open builds the index backend named by cfg.Backend. The returned index is
// not yet connected; callers run Connect (normally via Repository.Initialize).
func Open(cfg config.DatabaseConfig) (types.VectorIndex, error) {
	switch cfg.Backend {
	case "postgres":
		return NewWithConfig(VectorStoreConfig{
			ConnString: cfg.URL,
			TableName:  cfg.TableName,
			VectorDim:  cfg.VectorDim,
		})
	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath, cfg.TableName, cfg.VectorDim)
	case "memory":
		return NewMemoryStore(cfg.VectorDim), nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Backend)
	}
}
