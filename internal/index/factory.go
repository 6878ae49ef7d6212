package index

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"threadwatch/internal/config"
	"threadwatch/internal/watch"
)

// NewIndexFromConfig creates an Index implementation based on the
// index config type.
func NewIndexFromConfig(cfg config.IndexConfig, logger watch.Logger) (watch.Index, error) {
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second

	switch cfg.Type {
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("path required for sqlite index")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("creating index directory: %w", err)
		}
		return NewSQLiteIndex(cfg.Path, ttl, logger)
	case "memory":
		return NewSQLiteIndex(":memory:", ttl, logger)
	default:
		return nil, fmt.Errorf("unknown index type: %s", cfg.Type)
	}
}
