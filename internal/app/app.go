package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"threadwatch/internal/config"
	"threadwatch/internal/fetch"
	"threadwatch/internal/index"
	"threadwatch/internal/markup"
	"threadwatch/internal/metrics"
	"threadwatch/internal/mirror"
	"threadwatch/internal/queuewatch"
	"threadwatch/internal/watch"
)

// App is the application layer between the CLI and the watch package.
// It constructs all dependencies from config, exposes high-level
// operations, and manages resource lifecycle on Close.
type App struct {
	cfg     *config.Config
	opts    watch.Options
	logger  watch.Logger
	logFile *os.File
	index   watch.Index
	fetcher watch.Fetcher
	markup  watch.Markup
	mirror  watch.Mirror
	sink    watch.Metrics
	prom    *metrics.PromMetrics
	clock   watch.Clock
	idgen   watch.IDGenerator
	runner  watch.Runner
}

// NewApp creates a fully wired App from the given config. The caller
// must call Close when done.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	idgen := watch.UUIDGenerator{}
	runID := idgen.New()

	slogger, logFile, err := newLogger(cfg.Log, cfg.Watch.DateInLog, cfg.Watch.Verbose, runID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	closeOnErr := func() {
		if logFile != nil {
			logFile.Close()
		}
	}

	idx, err := index.NewIndexFromConfig(cfg.Index, logger)
	if err != nil {
		closeOnErr()
		return nil, fmt.Errorf("creating index: %w", err)
	}

	mk, err := markup.NewMarkupFromConfig(cfg.Markup)
	if err != nil {
		idx.Close()
		closeOnErr()
		return nil, fmt.Errorf("creating markup parser: %w", err)
	}

	fetcher := fetch.NewClient(cfg.HTTP.APIHost, cfg.HTTP.UserAgent, cfg.HTTP.RequestsPerSecond, mk, logger)

	mir, err := mirror.NewMirrorFromConfig(ctx, cfg.Mirror)
	if err != nil {
		idx.Close()
		closeOnErr()
		return nil, fmt.Errorf("creating mirror: %w", err)
	}

	var sink watch.Metrics = watch.NewNopMetrics()
	var prom *metrics.PromMetrics
	if cfg.Metrics.Addr != "" {
		prom = metrics.NewPromMetrics()
		sink = prom
		go func() {
			if err := prom.Serve(cfg.Metrics.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listener failed", "addr", cfg.Metrics.Addr, "error", err)
			}
		}()
		logger.Info("metrics listening", "addr", cfg.Metrics.Addr)
	}

	opts := optionsFromConfig(cfg)
	clock := watch.RealClock{}
	runner := watch.NewGoRunner(opts, fetcher, idx, mir, mk, clock, idgen, logger, sink)

	return &App{
		cfg:     cfg,
		opts:    opts,
		logger:  logger,
		logFile: logFile,
		index:   idx,
		fetcher: fetcher,
		markup:  mk,
		mirror:  mir,
		sink:    sink,
		prom:    prom,
		clock:   clock,
		idgen:   idgen,
		runner:  runner,
	}, nil
}

// Logger returns the wired logger for CLI-level messages.
func (a *App) Logger() watch.Logger { return a.logger }

// WatchURL runs a single watcher inline until the thread is gone, the
// context is cancelled, or the watcher fails.
func (a *App) WatchURL(ctx context.Context, url string) error {
	target, err := watch.ParseTarget(url)
	if err != nil {
		return err
	}

	w := watch.NewWatcher(target, a.opts, a.fetcher, a.index, a.mirror, a.markup, a.clock, a.idgen, a.logger, a.sink)
	exit := w.Watch(ctx)
	if exit.Status == watch.ExitCrashed && exit.Err != nil {
		return exit.Err
	}
	return nil
}

// WatchQueue supervises the watch list at path. With a positive reload
// interval the list is re-read on that cadence and whenever the file
// changes; otherwise one pass runs and the watchers drain naturally.
func (a *App) WatchQueue(ctx context.Context, path string, reload time.Duration) error {
	queue := watch.NewQueueFile(path)

	var wake <-chan struct{}
	if reload > 0 {
		qw, err := queuewatch.New(path, a.logger)
		if err != nil {
			return err
		}
		if err := qw.Start(); err != nil {
			return fmt.Errorf("monitoring watch list: %w", err)
		}
		defer qw.Stop()
		wake = qw.Changed()
	}

	sup := watch.NewSupervisor(queue, a.runner, a.fetcher, a.clock, a.logger, a.sink, reload, wake)
	return sup.Run(ctx)
}

// Dedupe collapses duplicate files across the whole download tree.
// It returns the number of distinct files kept and duplicates deleted.
func (a *App) Dedupe(ctx context.Context) (int, int, error) {
	d := watch.NewDeduplicator(a.opts.DownloadRoot, a.index, a.clock, a.logger)
	return d.Run(ctx)
}

// IndexStats describes the state of the content-hash index.
type IndexStats struct {
	Count         int64
	Path          string
	SchemaVersion uint
	Dirty         bool
}

// IndexStats reports record count and schema state.
func (a *App) IndexStats() IndexStats {
	stats := IndexStats{Count: a.index.Count()}
	if s, ok := a.index.(*index.SQLiteIndex); ok {
		stats.Path = s.Path()
		if version, dirty, err := s.SchemaVersion(); err == nil {
			stats.SchemaVersion = version
			stats.Dirty = dirty
		}
	}
	return stats
}

// IndexVerify walks every index record and reports those whose file no
// longer exists. Unless dryRun is set, stale records are removed.
// It returns the number of records checked, found missing, and removed.
func (a *App) IndexVerify(dryRun bool) (checked, missing, removed int) {
	for _, rec := range a.index.All() {
		checked++
		if _, err := os.Stat(rec.Path); err == nil {
			continue
		}
		missing++
		a.logger.Warn("index record points at missing file", "path", rec.Path, "hash", rec.Hash)
		if !dryRun {
			a.index.DeleteByPath(rec.Path)
			removed++
		}
	}
	return checked, missing, removed
}

// Close releases all resources.
func (a *App) Close() error {
	var firstErr error

	if a.prom != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.prom.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stopping metrics listener: %w", err)
		}
		cancel()
	}

	if err := a.index.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing index: %w", err)
	}

	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing log file: %w", err)
		}
	}

	return firstErr
}

// optionsFromConfig flattens the config into the immutable options
// value watchers carry.
func optionsFromConfig(cfg *config.Config) watch.Options {
	opts := watch.DefaultOptions()
	if cfg.Watch.DownloadRoot != "" {
		opts.DownloadRoot = cfg.Watch.DownloadRoot
	}
	if cfg.HTTP.FileHost != "" {
		opts.FileHost = cfg.HTTP.FileHost
	}
	if cfg.Watch.RefreshSeconds > 0 {
		opts.Refresh = secondsToDuration(cfg.Watch.RefreshSeconds)
	}
	opts.Throttle = secondsToDuration(cfg.Watch.ThrottleSeconds)
	opts.Backoff = secondsToDuration(cfg.Watch.BackoffSeconds)
	opts.Counter = cfg.Watch.Counter
	opts.Titles = cfg.Watch.Titles
	opts.OriginNames = cfg.Watch.OriginNames
	opts.PreferNames = cfg.Watch.PreferNames
	opts.SubjectNames = cfg.Watch.SubjectNames
	return opts
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
