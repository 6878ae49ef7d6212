package watch

import "context"

// Mirror receives a second copy of every freshly downloaded file, for
// downstream consumers that only want to see new arrivals. Mirroring is
// best-effort: the watcher logs a failed Put and moves on, the primary
// copy is already on disk.
type Mirror interface {
	// Put stores data under board/dir/name in the mirror's namespace.
	Put(ctx context.Context, board, dir, name string, data []byte) error
}
