package watch

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// Handle tracks one running watcher.
type Handle interface {
	// Done delivers the watcher's exit exactly once.
	Done() <-chan Exit

	// Stop cancels the watcher and waits up to timeout for it to
	// exit. The second return reports whether it exited in time.
	Stop(timeout time.Duration) (Exit, bool)
}

// Runner launches watchers. The supervisor depends on this seam so
// tests can substitute scripted lifecycles for real goroutines.
type Runner interface {
	Start(ctx context.Context, url string) Handle
}

// GoRunner runs each watcher on its own goroutine. A panicking watcher
// is contained and reported as a crashed exit instead of taking the
// process down.
type GoRunner struct {
	opts    Options
	fetcher Fetcher
	index   Index
	mirror  Mirror
	markup  Markup
	clock   Clock
	idgen   IDGenerator
	logger  Logger
	metrics Metrics
}

var _ Runner = (*GoRunner)(nil)

// NewGoRunner creates a runner sharing one set of watcher dependencies.
func NewGoRunner(opts Options, fetcher Fetcher, index Index, mirror Mirror, markup Markup, clock Clock, idgen IDGenerator, logger Logger, metrics Metrics) *GoRunner {
	return &GoRunner{
		opts:    opts,
		fetcher: fetcher,
		index:   index,
		mirror:  mirror,
		markup:  markup,
		clock:   clock,
		idgen:   idgen,
		logger:  logger,
		metrics: metrics,
	}
}

func (r *GoRunner) Start(ctx context.Context, url string) Handle {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan Exit, 1)
	h := &goHandle{cancel: cancel, done: done}

	target, err := ParseTarget(url)
	if err != nil {
		cancel()
		done <- Exit{URL: url, Status: ExitCrashed, Err: err}
		return h
	}

	w := NewWatcher(target, r.opts, r.fetcher, r.index, r.mirror, r.markup, r.clock, r.idgen, r.logger, r.metrics)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("watcher panicked", "url", url, "panic", fmt.Sprint(p), "stack", string(debug.Stack()))
				done <- Exit{URL: url, Status: ExitCrashed, Err: fmt.Errorf("watcher panicked: %v", p)}
			}
		}()
		done <- w.Watch(ctx)
	}()

	return h
}

type goHandle struct {
	cancel context.CancelFunc
	done   chan Exit
}

func (h *goHandle) Done() <-chan Exit { return h.done }

func (h *goHandle) Stop(timeout time.Duration) (Exit, bool) {
	h.cancel()
	select {
	case exit := <-h.done:
		return exit, true
	case <-time.After(timeout):
		return Exit{}, false
	}
}
