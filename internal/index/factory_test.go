package index

import (
	"os"
	"path/filepath"
	"testing"

	"threadwatch/internal/config"
	"threadwatch/internal/watch"
)

func TestNewIndexFromConfig(t *testing.T) {
	t.Run("memory index", func(t *testing.T) {
		cfg := config.IndexConfig{Type: "memory"}
		got, err := NewIndexFromConfig(cfg, watch.NewNopLogger())

		if err != nil {
			t.Errorf("NewIndexFromConfig() unexpected error: %v", err)
			return
		}

		if got == nil {
			t.Error("NewIndexFromConfig() returned nil")
		}

		if got != nil {
			got.Close()
		}
	})

	t.Run("sqlite index creates parent directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "dir", "hashes.db")
		cfg := config.IndexConfig{Type: "sqlite", Path: path}
		got, err := NewIndexFromConfig(cfg, watch.NewNopLogger())

		if err != nil {
			t.Errorf("NewIndexFromConfig() unexpected error: %v", err)
			return
		}
		defer got.Close()

		if _, err := os.Stat(path); err != nil {
			t.Errorf("database file not created: %v", err)
		}
	})

	t.Run("sqlite index without path", func(t *testing.T) {
		cfg := config.IndexConfig{Type: "sqlite"}
		got, err := NewIndexFromConfig(cfg, watch.NewNopLogger())

		if err == nil {
			t.Error("NewIndexFromConfig() expected error for missing path, got nil")
		}

		if got != nil {
			t.Error("NewIndexFromConfig() should return nil on error")
			got.Close()
		}
	})

	t.Run("unknown index type", func(t *testing.T) {
		cfg := config.IndexConfig{Type: "redis"}
		got, err := NewIndexFromConfig(cfg, watch.NewNopLogger())

		if err == nil {
			t.Error("NewIndexFromConfig() expected error for unknown type, got nil")
		}

		if got != nil {
			t.Error("NewIndexFromConfig() should return nil on error")
			got.Close()
		}
	})
}
