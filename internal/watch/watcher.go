package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// retryDelay is the pause before retrying (or probing) after a failed
// list fetch.
const retryDelay = 10 * time.Second

// Watcher owns one thread's poll loop and storage directory. It is
// driven by a single goroutine; nothing here is safe for concurrent
// use, and coordination with other watchers happens only through the
// shared index.
type Watcher struct {
	target  *Target
	opts    Options
	fetcher Fetcher
	index   Index
	mirror  Mirror
	markup  Markup
	clock   Clock
	logger  Logger
	metrics Metrics

	runID    string
	dirName  string
	dir      string
	thread   string
	seen     map[string]struct{}
	throttle time.Duration
}

// NewWatcher creates a watcher for target. mirror may be nil when no
// mirror tree is configured.
func NewWatcher(target *Target, opts Options, fetcher Fetcher, index Index, mirror Mirror, markup Markup, clock Clock, idgen IDGenerator, logger Logger, metrics Metrics) *Watcher {
	return &Watcher{
		target:   target,
		opts:     opts,
		fetcher:  fetcher,
		index:    index,
		mirror:   mirror,
		markup:   markup,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
		runID:    idgen.New(),
		throttle: opts.Throttle,
	}
}

// RunID identifies this watcher instance in logs.
func (w *Watcher) RunID() string { return w.runID }

// Watch resolves the storage directory, reconciles it against the
// index, then polls until the thread is gone, the context is cancelled,
// or a fatal error surfaces. The returned Exit tells the supervisor
// which of those happened.
func (w *Watcher) Watch(ctx context.Context) Exit {
	if err := w.initialize(ctx); err != nil {
		w.logger.Error("watcher initialization failed", "run", w.runID, "thread", w.target.String(), "error", err)
		return Exit{URL: w.target.URL, Status: ExitCrashed, Err: err}
	}
	return w.poll(ctx)
}

func (w *Watcher) initialize(ctx context.Context) error {
	w.resolveDirName(ctx)
	w.dir = filepath.Join(w.opts.DownloadRoot, w.target.Board, w.dirName)
	w.thread = w.target.Board + "/" + w.dirName

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("creating thread directory: %w", err)
	}

	w.logger.Info("watching thread", "run", w.runID, "thread", w.target.String(), "dir", w.dirName)

	w.seen = w.index.ThreadHashes(w.thread)
	if w.seen == nil {
		w.seen = make(map[string]struct{})
	}
	w.logger.Debug("loaded thread hashes", "run", w.runID, "thread", w.thread, "known", len(w.seen))

	return w.reconcileDir()
}

// resolveDirName picks the storage directory name: the thread id by
// default, the URL slug when preferred or already present on disk, and
// "<id> (<subject>)" when subject naming is on and a subject can be
// fetched.
func (w *Watcher) resolveDirName(ctx context.Context) {
	name := w.target.ID

	if w.target.Slug != "" {
		slugDir := filepath.Join(w.opts.DownloadRoot, w.target.Board, w.target.Slug)
		if w.opts.PreferNames || dirExists(slugDir) {
			name = w.target.Slug
		}
	}

	if w.opts.SubjectNames {
		if subject, ok := w.fetcher.Subject(ctx, w.target.Board, w.target.ID); ok {
			name = fmt.Sprintf("%s (%s)", w.target.ID, subject)
		}
	}

	w.dirName = name
}

// reconcileDir integrates files already on disk into the index and the
// in-memory set. A file whose hash the index maps to a different,
// still-existing file is itself the duplicate and is deleted; a record
// pointing at a vanished path is repaired to point here. Running this
// twice over an unchanged directory performs no further writes.
func (w *Watcher) reconcileDir() error {
	dirents, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("reading thread directory: %w", err)
	}

	for _, de := range dirents {
		if de.IsDir() {
			continue
		}
		full := filepath.Join(w.dir, de.Name())

		if de.Name() == LegacySidecar {
			if err := os.Remove(full); err != nil {
				w.logger.Warn("could not remove legacy sidecar", "run", w.runID, "path", full, "error", err)
			} else {
				w.logger.Debug("removed legacy sidecar", "run", w.runID, "path", full)
			}
			continue
		}

		hash, err := HashFile(full)
		if err != nil {
			w.logger.Warn("could not hash existing file", "run", w.runID, "path", full, "error", err)
			continue
		}

		known := w.index.PathForHash(hash)
		switch {
		case known != "" && !samePath(known, full):
			if fileExists(known) {
				if err := os.Remove(full); err != nil {
					w.logger.Warn("could not remove duplicate file", "run", w.runID, "path", full, "error", err)
					w.seen[hash] = struct{}{}
					continue
				}
				w.logger.Debug("removed duplicate file", "run", w.runID, "path", full, "original", known)
				continue
			}
			// The recorded holder is gone; this copy is now authoritative.
			w.index.Upsert(w.record(hash, full, de))
			w.seen[hash] = struct{}{}

		case known == "":
			w.index.Insert(w.record(hash, full, de))
			w.seen[hash] = struct{}{}

		default:
			// Already mapped to this very file; nothing to write.
			w.seen[hash] = struct{}{}
		}
	}
	return nil
}

func (w *Watcher) record(hash, path string, de os.DirEntry) ContentRecord {
	rec := ContentRecord{
		Hash:      hash,
		Path:      path,
		Thread:    w.thread,
		CreatedAt: w.clock.Now(),
	}
	if info, err := de.Info(); err == nil {
		rec.MTime = info.ModTime()
		rec.Size = info.Size()
	}
	return rec
}

func (w *Watcher) poll(ctx context.Context) Exit {
	for {
		if ctx.Err() != nil {
			w.logger.Info("watcher stopping", "run", w.runID, "thread", w.target.String())
			return Exit{URL: w.target.URL, Status: ExitStopped}
		}

		entries, err := w.listFiles(ctx)
		if err != nil {
			exit, retry := w.handleFetchFailure(ctx, err)
			if retry {
				continue
			}
			return exit
		}

		if err := w.processEntries(ctx, entries); err != nil {
			w.logger.Error("watcher failed", "run", w.runID, "thread", w.target.String(), "error", err)
			return Exit{URL: w.target.URL, Status: ExitCrashed, Err: err}
		}

		w.clock.Sleep(w.opts.Refresh)
		w.logger.Debug("checking thread", "run", w.runID, "thread", w.thread)
	}
}

// listFiles builds the current file-entry list, preferring structured
// metadata and falling back to page scraping.
func (w *Watcher) listFiles(ctx context.Context) ([]FileEntry, error) {
	if t, ok := w.fetcher.Thread(ctx, w.target.Board, w.target.ID); ok {
		return EntriesFromThread(t, w.target.Board, w.opts.FileHost), nil
	}

	page, err := w.fetcher.Fetch(ctx, w.target.URL)
	if err != nil {
		return nil, err
	}
	return EntriesFromPage(page, w.markup, w.opts.Titles), nil
}

// handleFetchFailure applies the failure protocol for a failed list
// fetch. Rate limiting grows the throttle and retries the iteration.
// Anything else waits, probes the thread URL once, and decides between
// retrying, Gone, Stopped, and Crashed from the probe outcome.
func (w *Watcher) handleFetchFailure(ctx context.Context, fetchErr error) (Exit, bool) {
	if ctx.Err() != nil {
		return Exit{URL: w.target.URL, Status: ExitStopped}, false
	}

	if IsRateLimited(fetchErr) {
		w.throttle += w.opts.Backoff
		w.metrics.RateLimited()
		w.logger.Info("rate limited", "run", w.runID, "thread", w.target.String(), "throttle", w.throttle)
		w.clock.Sleep(retryDelay + w.throttle)
		return Exit{}, true
	}

	w.logger.Debug("list fetch failed, probing", "run", w.runID, "thread", w.target.String(), "error", fetchErr)
	w.clock.Sleep(retryDelay)

	if _, probeErr := w.fetcher.Fetch(ctx, w.target.URL); probeErr != nil {
		switch {
		case IsNotFound(probeErr):
			w.logger.Info("thread gone", "run", w.runID, "thread", w.target.String())
			return Exit{URL: w.target.URL, Status: ExitGone}, false
		case IsHTTPFailure(probeErr):
			w.logger.Warn("thread unreachable", "run", w.runID, "thread", w.target.String(), "error", probeErr)
			return Exit{URL: w.target.URL, Status: ExitStopped}, false
		default:
			w.logger.Error("watcher crashed", "run", w.runID, "thread", w.target.String(), "error", probeErr)
			return Exit{URL: w.target.URL, Status: ExitCrashed, Err: probeErr}, false
		}
	}
	return Exit{}, true
}

// processEntries walks one iteration's entries in order, downloading
// whatever is new. Per-entry failures are logged and skipped; only
// filesystem errors abort, since continuing after one risks silent
// loss.
func (w *Watcher) processEntries(ctx context.Context, entries []FileEntry) error {
	total := len(entries)
	count := 1

	for _, e := range entries {
		if ctx.Err() != nil {
			return nil
		}

		name := destName(e, w.opts, w.markup)
		dest := filepath.Join(w.dir, name)

		if fileExists(dest) {
			count++
			continue
		}

		if e.ContentHash != "" && w.isKnown(e.ContentHash) {
			w.metrics.DuplicateSkipped()
			w.logger.Debug("duplicate skipped", "run", w.runID, "thread", w.thread, "file", e.DisplayName, "hash", e.ContentHash)
			count++
			continue
		}

		if e.SourceURL == "" {
			w.logger.Warn("entry has no source url", "run", w.runID, "thread", w.thread, "file", e.DisplayName)
			count++
			continue
		}

		data, err := w.fetcher.Fetch(ctx, e.SourceURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if IsRateLimited(err) {
				w.throttle += w.opts.Backoff
				w.metrics.RateLimited()
			}
			w.logger.Warn("download failed", "run", w.runID, "thread", w.thread, "file", e.DisplayName, "error", err)
			count++
			continue
		}

		hash := HashBytes(data)
		if w.isKnown(hash) {
			w.metrics.DuplicateSkipped()
			w.logger.Debug("duplicate found after download", "run", w.runID, "thread", w.thread, "file", e.DisplayName, "hash", hash)
			count++
			continue
		}

		w.announce(name, count, total)

		if err := os.WriteFile(dest, data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", dest, err)
		}

		w.seen[hash] = struct{}{}
		rec := ContentRecord{
			Hash:      hash,
			Path:      dest,
			Thread:    w.thread,
			CreatedAt: w.clock.Now(),
			Size:      int64(len(data)),
		}
		if info, err := os.Stat(dest); err == nil {
			rec.MTime = info.ModTime()
		}
		w.index.Insert(rec)
		w.metrics.FileDownloaded()

		if w.mirror != nil {
			if err := w.mirror.Put(ctx, w.target.Board, w.dirName, name, data); err != nil {
				w.logger.Warn("mirror write failed", "run", w.runID, "thread", w.thread, "file", name, "error", err)
			}
		}

		w.clock.Sleep(w.throttle)
		count++
	}
	return nil
}

// isKnown consults the in-memory per-thread set and then the global
// index.
func (w *Watcher) isKnown(hash string) bool {
	if _, ok := w.seen[hash]; ok {
		return true
	}
	return w.index.Has(hash)
}

func (w *Watcher) announce(name string, count, total int) {
	file := w.thread + "/" + name
	if w.opts.Counter {
		width := len(strconv.Itoa(total))
		w.logger.Info("new file", "run", w.runID, "file", file, "count", fmt.Sprintf("%*d/%d", width, count, total))
		return
	}
	w.logger.Info("new file", "run", w.runID, "file", file)
}
