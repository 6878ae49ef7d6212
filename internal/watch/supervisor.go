package watch

import (
	"context"
	"sort"
	"sync"
	"time"
)

const (
	maxRestartAttempts = 3
	restartCheckDelay  = time.Second
	restartBackoffStep = 5 * time.Second
	stopTimeout        = 5 * time.Second
)

// Supervisor reconciles the set of running watchers against the watch
// list. Each pass sweeps exited watchers, retires or revives them,
// stops watchers whose lines disappeared, and starts watchers for new
// lines. Passes never overlap.
type Supervisor struct {
	queue   *QueueFile
	runner  Runner
	fetcher Fetcher
	clock   Clock
	logger  Logger
	metrics Metrics

	// reload is the pause between passes; zero means run one pass and
	// then wait for all watchers to finish.
	reload time.Duration

	// wake cuts the reload pause short when the watch list changes.
	// May be nil.
	wake <-chan struct{}

	mu      sync.Mutex
	running map[string]Handle
}

// NewSupervisor creates a supervisor over the given watch list. wake
// may be nil when no file-change trigger is wired.
func NewSupervisor(queue *QueueFile, runner Runner, fetcher Fetcher, clock Clock, logger Logger, metrics Metrics, reload time.Duration, wake <-chan struct{}) *Supervisor {
	return &Supervisor{
		queue:   queue,
		runner:  runner,
		fetcher: fetcher,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
		reload:  reload,
		wake:    wake,
		running: make(map[string]Handle),
	}
}

// Run reconciles until the context is cancelled. Without a reload
// interval it performs a single pass and then waits for every watcher
// to finish on its own.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			s.shutdown()
			return nil
		}

		if err := s.Reconcile(ctx); err != nil {
			s.shutdown()
			return err
		}

		if s.reload == 0 {
			s.drain(ctx)
			return nil
		}

		s.waitNextPass(ctx)
	}
}

// Reconcile performs one pass. A pass already in progress makes this a
// no-op, so external triggers can fire it without piling up.
func (s *Supervisor) Reconcile(ctx context.Context) error {
	if !s.mu.TryLock() {
		s.logger.Debug("reconcile already in progress")
		return nil
	}
	defer s.mu.Unlock()
	return s.reconcile(ctx)
}

func (s *Supervisor) reconcile(ctx context.Context) error {
	urls, err := s.queue.Active()
	if err != nil {
		return err
	}
	desired := make(map[string]struct{}, len(urls))
	for _, url := range urls {
		desired[url] = struct{}{}
	}

	if len(desired) == 0 && len(s.running) == 0 {
		s.logger.Warn("watch list is empty or all links are disabled", "path", s.queue.Path())
	}

	s.sweepExited(ctx, desired)

	for url, h := range s.running {
		if _, ok := desired[url]; ok {
			continue
		}
		s.logger.Info("stopping watcher", "url", url)
		if _, stopped := h.Stop(stopTimeout); !stopped {
			s.logger.Warn("watcher did not stop in time", "url", url)
		}
		delete(s.running, url)
	}

	for _, url := range urls {
		if ctx.Err() != nil {
			break
		}
		if _, ok := desired[url]; !ok {
			// retired earlier in this pass
			continue
		}
		if _, ok := s.running[url]; ok {
			continue
		}
		s.logger.Info("starting watcher", "url", url)
		s.running[url] = s.runner.Start(ctx, url)
	}

	s.metrics.SetActiveWatchers(len(s.running))
	return nil
}

// sweepExited collects watchers that have exited since the last pass
// and decides their fate.
func (s *Supervisor) sweepExited(ctx context.Context, desired map[string]struct{}) {
	for url, h := range s.running {
		select {
		case exit := <-h.Done():
			delete(s.running, url)
			s.handleExit(ctx, url, exit, desired)
		default:
		}
	}
}

func (s *Supervisor) handleExit(ctx context.Context, url string, exit Exit, desired map[string]struct{}) {
	switch exit.Status {
	case ExitGone:
		s.logger.Info("thread gone, disabling", "url", url)
		s.disable(url, desired)
		return
	case ExitCrashed:
		s.metrics.WatcherCrashed()
		s.logger.Error("watcher crashed", "url", url, "error", exit.Err)
	default:
		s.logger.Info("watcher stopped", "url", url)
	}

	if ctx.Err() != nil {
		return
	}
	if _, ok := desired[url]; !ok {
		return
	}

	// Probe before restarting so a deleted thread is retired rather
	// than bounced through the restart budget.
	if _, err := s.fetcher.Fetch(ctx, url); IsNotFound(err) {
		s.logger.Info("thread gone, disabling", "url", url)
		s.disable(url, desired)
		return
	}

	if !s.restart(ctx, url) {
		// Attempts cut short by shutdown say nothing about the thread.
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("watcher kept exiting, disabling", "url", url)
		s.disable(url, desired)
	}
}

// restart gives url a bounded number of fresh starts, checking shortly
// after each whether the watcher is still up. Reports whether one of
// them stuck; cancellation aborts the remaining attempts.
func (s *Supervisor) restart(ctx context.Context, url string) bool {
	for attempt := 1; attempt <= maxRestartAttempts; attempt++ {
		if ctx.Err() != nil {
			return false
		}
		s.logger.Info("restarting watcher", "url", url, "attempt", attempt)
		s.metrics.WatcherRestarted()
		h := s.runner.Start(ctx, url)
		s.clock.Sleep(restartCheckDelay)

		select {
		case exit := <-h.Done():
			s.logger.Warn("restart attempt failed", "url", url, "attempt", attempt, "status", exit.Status.String())
			s.clock.Sleep(time.Duration(attempt) * restartBackoffStep)
		default:
			s.running[url] = h
			return true
		}
	}
	return false
}

// disable retires url for this pass and comments it out in the watch
// list so later runs skip it too.
func (s *Supervisor) disable(url string, desired map[string]struct{}) {
	delete(desired, url)
	if err := s.queue.Disable(url); err != nil {
		s.logger.Error("could not update watch list", "url", url, "error", err)
	}
}

// drain blocks until every watcher finishes on its own. Threads that
// report gone still get their lines disabled; nothing is restarted.
func (s *Supervisor) drain(ctx context.Context) {
	s.logger.Info("waiting for watchers to finish", "count", len(s.running))
	for url, h := range s.running {
		select {
		case exit := <-h.Done():
			if exit.Status == ExitGone {
				if err := s.queue.Disable(url); err != nil {
					s.logger.Error("could not update watch list", "url", url, "error", err)
				}
			} else if exit.Status == ExitCrashed {
				s.metrics.WatcherCrashed()
				s.logger.Error("watcher crashed", "url", url, "error", exit.Err)
			}
			delete(s.running, url)
		case <-ctx.Done():
			s.shutdown()
			return
		}
	}
	s.metrics.SetActiveWatchers(0)
}

// waitNextPass sleeps out the reload interval, waking early on a watch
// list change or cancellation.
func (s *Supervisor) waitNextPass(ctx context.Context) {
	slept := make(chan struct{})
	go func() {
		s.clock.Sleep(s.reload)
		close(slept)
	}()

	select {
	case <-slept:
	case <-s.wake:
		s.logger.Debug("watch list changed, reloading")
	case <-ctx.Done():
	}
}

func (s *Supervisor) shutdown() {
	for url, h := range s.running {
		if _, stopped := h.Stop(stopTimeout); !stopped {
			s.logger.Warn("watcher did not stop in time", "url", url)
		}
		delete(s.running, url)
	}
	s.metrics.SetActiveWatchers(0)
}

// Running lists the URLs with live watchers, sorted for stable output.
func (s *Supervisor) Running() []string {
	urls := make([]string, 0, len(s.running))
	for url := range s.running {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls
}
