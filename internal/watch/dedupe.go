package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// hashConcurrency bounds parallel file hashing; the work is disk
// bound, not CPU bound.
const hashConcurrency = 4

// Deduplicator collapses content-identical files across the whole
// download tree, keeping the oldest copy of each and repairing the
// index to match what survives.
type Deduplicator struct {
	root   string
	index  Index
	clock  Clock
	logger Logger
}

// NewDeduplicator creates a deduplicator over the download tree at
// root.
func NewDeduplicator(root string, index Index, clock Clock, logger Logger) *Deduplicator {
	return &Deduplicator{
		root:   root,
		index:  index,
		clock:  clock,
		logger: logger,
	}
}

type dedupeFile struct {
	path  string
	mtime time.Time
	size  int64
	hash  string
}

// Run performs one full pass. It returns the number of distinct files
// kept and the number of duplicates deleted.
func (d *Deduplicator) Run(ctx context.Context) (int, int, error) {
	if !dirExists(d.root) {
		d.logger.Info("nothing to deduplicate", "root", d.root)
		return 0, 0, nil
	}

	files, sidecars, err := d.scan(ctx)
	if err != nil {
		return 0, 0, err
	}

	if err := d.hashAll(ctx, files); err != nil {
		return 0, 0, err
	}

	groups := make(map[string][]*dedupeFile)
	for _, f := range files {
		if f.hash == "" {
			continue
		}
		groups[f.hash] = append(groups[f.hash], f)
	}

	kept, deleted := d.collapse(groups)
	d.cleanupLegacy(sidecars)

	d.logger.Info("deduplication finished", "files", len(files), "kept", kept, "deleted", deleted)
	return kept, deleted, nil
}

func (d *Deduplicator) scan(ctx context.Context) ([]*dedupeFile, []string, error) {
	var files []*dedupeFile
	var sidecars []string

	err := filepath.WalkDir(d.root, func(path string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if de.IsDir() {
			return nil
		}
		if de.Name() == LegacySidecar {
			sidecars = append(sidecars, path)
			return nil
		}
		info, err := de.Info()
		if err != nil {
			d.logger.Warn("could not stat file", "path", path, "error", err)
			return nil
		}
		files = append(files, &dedupeFile{path: path, mtime: info.ModTime(), size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return files, sidecars, nil
}

// hashAll fills in content hashes, reusing index metadata when a
// file's size and mtime still match what was recorded. Records for
// changed files are dropped before rehashing. Files that cannot be
// hashed are logged and left out.
func (d *Deduplicator) hashAll(ctx context.Context, files []*dedupeFile) error {
	var misses []*dedupeFile
	for _, f := range files {
		if rec := d.index.MetadataForPath(f.path); rec != nil {
			if rec.Hash != "" && rec.Size == f.size && rec.MTime.Equal(f.mtime) {
				f.hash = rec.Hash
				continue
			}
			d.index.DeleteByPath(f.path)
		}
		misses = append(misses, f)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(hashConcurrency)
	for _, f := range misses {
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			hash, err := HashFile(f.path)
			if err != nil {
				d.logger.Warn("could not hash file", "path", f.path, "error", err)
				return nil
			}
			f.hash = hash
			return nil
		})
	}
	return g.Wait()
}

// collapse keeps the oldest copy in every group and deletes the rest.
// A copy that cannot be deleted stays on disk and is merely logged.
func (d *Deduplicator) collapse(groups map[string][]*dedupeFile) (kept, deleted int) {
	hashes := make([]string, 0, len(groups))
	for h := range groups {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)

	for _, h := range hashes {
		group := groups[h]
		sort.Slice(group, func(i, j int) bool { return group[i].mtime.Before(group[j].mtime) })
		keep := group[0]
		kept++

		for _, extra := range group[1:] {
			if err := os.Remove(extra.path); err != nil {
				d.logger.Warn("could not remove duplicate", "path", extra.path, "error", err)
				continue
			}
			d.logger.Info("removed duplicate", "path", extra.path, "original", keep.path)
			deleted++
		}

		d.ensureRecorded(h, keep, len(group) > 1)
	}
	return kept, deleted
}

// ensureRecorded points the index at the surviving copy. Groups that
// actually lost members always rewrite the record; untouched files
// only when the index disagrees or never knew them.
func (d *Deduplicator) ensureRecorded(hash string, keep *dedupeFile, force bool) {
	if !force {
		if known := d.index.PathForHash(hash); known != "" && samePath(known, keep.path) {
			return
		}
	}
	d.index.Upsert(ContentRecord{
		Hash:      hash,
		Path:      keep.path,
		Thread:    d.threadKey(keep.path),
		CreatedAt: d.clock.Now(),
		MTime:     keep.mtime,
		Size:      keep.size,
	})
}

// threadKey derives the "board/dir" key from a file's location under
// the download root.
func (d *Deduplicator) threadKey(path string) string {
	rel, err := filepath.Rel(d.root, path)
	if err != nil {
		return ""
	}
	dir := filepath.Dir(rel)
	if dir == "." {
		return ""
	}
	return filepath.ToSlash(dir)
}

func (d *Deduplicator) cleanupLegacy(sidecars []string) {
	for _, path := range sidecars {
		if err := os.Remove(path); err != nil {
			d.logger.Warn("could not remove legacy sidecar", "path", path, "error", err)
			continue
		}
		d.logger.Debug("removed legacy sidecar", "path", path)
	}
}
