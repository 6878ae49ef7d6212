package mirror

import (
	"context"
	"sync"

	"threadwatch/internal/watch"
)

// MemoryMirror keeps mirrored files in memory. It exists for testing
// and is safe for concurrent use.
type MemoryMirror struct {
	mu      sync.RWMutex
	objects map[string][]byte // "board/dir/name" -> content
}

var _ watch.Mirror = (*MemoryMirror)(nil)

// NewMemoryMirror creates an empty in-memory mirror.
func NewMemoryMirror() *MemoryMirror {
	return &MemoryMirror{objects: make(map[string][]byte)}
}

func objectKey(board, dir, name string) string {
	return board + "/" + dir + "/" + name
}

func (m *MemoryMirror) Put(ctx context.Context, board, dir, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	m.objects[objectKey(board, dir, name)] = stored
	return nil
}

// Get returns the stored content for board/dir/name.
func (m *MemoryMirror) Get(board, dir, name string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[objectKey(board, dir, name)]
	return data, ok
}

// Len returns the number of stored objects.
func (m *MemoryMirror) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
