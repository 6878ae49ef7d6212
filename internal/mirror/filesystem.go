// Package mirror replicates downloaded files to a secondary store so
// downstream consumers can pick them up without touching the live
// download tree.
package mirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"threadwatch/internal/watch"
)

// FilesystemMirror copies files into a second directory tree with the
// same board/thread layout as the download root.
type FilesystemMirror struct {
	root string
}

var _ watch.Mirror = (*FilesystemMirror)(nil)

// NewFilesystemMirror creates a mirror rooted at the given path.
func NewFilesystemMirror(root string) (*FilesystemMirror, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating mirror root: %w", err)
	}
	return &FilesystemMirror{root: root}, nil
}

// Put writes data to <root>/<board>/<dir>/<name> through a temp file
// and rename, so readers never observe a partial copy.
func (m *FilesystemMirror) Put(ctx context.Context, board, dir, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	destDir := filepath.Join(m.root, board, dir)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("creating mirror directory: %w", err)
	}
	destPath := filepath.Join(destDir, name)

	tmpFile, err := os.CreateTemp(destDir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing mirror copy: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("placing mirror copy: %w", err)
	}

	success = true
	return nil
}
