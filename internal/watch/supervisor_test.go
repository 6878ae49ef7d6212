package watch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"threadwatch/internal/testutil"
	"threadwatch/internal/watch"
)

// stubHandle is a scriptable watcher handle. Exits are injected by the
// test; Stop drains a pending exit or synthesizes a stopped one.
type stubHandle struct {
	url  string
	done chan watch.Exit

	mu      sync.Mutex
	stopped bool
}

func newStubHandle(url string) *stubHandle {
	return &stubHandle{url: url, done: make(chan watch.Exit, 1)}
}

func (h *stubHandle) Done() <-chan watch.Exit { return h.done }

func (h *stubHandle) Stop(timeout time.Duration) (watch.Exit, bool) {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()

	select {
	case exit := <-h.done:
		return exit, true
	default:
		return watch.Exit{URL: h.url, Status: watch.ExitStopped}, true
	}
}

func (h *stubHandle) wasStopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// stubRunner hands out stub handles and records every start. Scripted
// exits are delivered the moment the next start for that URL happens,
// which makes restart attempts fail their liveness check.
type stubRunner struct {
	mu      sync.Mutex
	started []string
	handles map[string][]*stubHandle
	script  map[string][]watch.Exit
}

func newStubRunner() *stubRunner {
	return &stubRunner{
		handles: make(map[string][]*stubHandle),
		script:  make(map[string][]watch.Exit),
	}
}

func (r *stubRunner) Start(ctx context.Context, url string) watch.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := newStubHandle(url)
	r.started = append(r.started, url)
	r.handles[url] = append(r.handles[url], h)

	if script := r.script[url]; len(script) > 0 {
		r.script[url] = script[1:]
		h.done <- script[0]
	}
	return h
}

// scriptExits queues exits delivered immediately on the next starts.
func (r *stubRunner) scriptExits(url string, exits ...watch.Exit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.script[url] = append(r.script[url], exits...)
}

// exitNow makes the most recently started watcher for url exit.
func (r *stubRunner) exitNow(t *testing.T, url string, exit watch.Exit) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	handles := r.handles[url]
	if len(handles) == 0 {
		t.Fatalf("no watcher started for %s", url)
	}
	handles[len(handles)-1].done <- exit
}

func (r *stubRunner) startCount(url string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, u := range r.started {
		if u == url {
			n++
		}
	}
	return n
}

func (r *stubRunner) lastHandle(t *testing.T, url string) *stubHandle {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	handles := r.handles[url]
	if len(handles) == 0 {
		t.Fatalf("no watcher started for %s", url)
	}
	return handles[len(handles)-1]
}

func (r *stubRunner) waitStarted(t *testing.T, url string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.startCount(url) >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("watcher for %s was not started", url)
}

type supervisorEnv struct {
	t       *testing.T
	queue   *watch.QueueFile
	runner  *stubRunner
	fetcher *testutil.ScriptedFetcher
	clock   *testutil.StubClock
	logger  *recordingLogger
	metrics *countingMetrics
}

func newSupervisorEnv(t *testing.T, lines ...string) *supervisorEnv {
	t.Helper()
	path := filepath.Join(t.TempDir(), "watchlist.txt")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return &supervisorEnv{
		t:       t,
		queue:   watch.NewQueueFile(path),
		runner:  newStubRunner(),
		fetcher: testutil.NewScriptedFetcher(),
		clock:   testutil.FixedClock(),
		logger:  &recordingLogger{},
		metrics: &countingMetrics{},
	}
}

func (e *supervisorEnv) supervisor(reload time.Duration, wake <-chan struct{}) *watch.Supervisor {
	return watch.NewSupervisor(e.queue, e.runner, e.fetcher, e.clock, e.logger, e.metrics, reload, wake)
}

func (e *supervisorEnv) rewriteQueue(lines ...string) {
	e.t.Helper()
	if err := os.WriteFile(e.queue.Path(), []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		e.t.Fatal(err)
	}
}

func (e *supervisorEnv) queueContent() string {
	e.t.Helper()
	data, err := os.ReadFile(e.queue.Path())
	if err != nil {
		e.t.Fatal(err)
	}
	return string(data)
}

const (
	urlOne = "https://boards.4chan.org/wg/thread/111111"
	urlTwo = "https://boards.4chan.org/g/thread/222222"
)

func TestSupervisor_Reconcile(t *testing.T) {
	t.Run("starts a watcher per active line", func(t *testing.T) {
		env := newSupervisorEnv(t, urlOne, urlTwo)
		sup := env.supervisor(time.Minute, nil)

		if err := sup.Reconcile(context.Background()); err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}

		if env.runner.startCount(urlOne) != 1 || env.runner.startCount(urlTwo) != 1 {
			t.Errorf("starts = %v", env.runner.started)
		}
		running := sup.Running()
		if len(running) != 2 || running[0] != urlTwo || running[1] != urlOne {
			t.Errorf("Running() = %v", running)
		}
	})

	t.Run("stops watchers whose lines disappeared", func(t *testing.T) {
		env := newSupervisorEnv(t, urlOne, urlTwo)
		sup := env.supervisor(time.Minute, nil)
		ctx := context.Background()

		if err := sup.Reconcile(ctx); err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}
		retired := env.runner.lastHandle(t, urlTwo)

		env.rewriteQueue(urlOne)
		if err := sup.Reconcile(ctx); err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}

		if !retired.wasStopped() {
			t.Error("removed watcher was not stopped")
		}
		if running := sup.Running(); len(running) != 1 || running[0] != urlOne {
			t.Errorf("Running() = %v", running)
		}
	})

	t.Run("disables a gone thread without restarting", func(t *testing.T) {
		env := newSupervisorEnv(t, urlOne)
		sup := env.supervisor(time.Minute, nil)
		ctx := context.Background()

		if err := sup.Reconcile(ctx); err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}
		env.runner.exitNow(t, urlOne, watch.Exit{URL: urlOne, Status: watch.ExitGone})

		if err := sup.Reconcile(ctx); err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}

		if got := env.runner.startCount(urlOne); got != 1 {
			t.Errorf("start count = %d, want 1", got)
		}
		if !strings.Contains(env.queueContent(), "-"+urlOne) {
			t.Errorf("line was not disabled: %q", env.queueContent())
		}
		if running := sup.Running(); len(running) != 0 {
			t.Errorf("Running() = %v", running)
		}
	})

	t.Run("probe retires a crashed thread that 404s", func(t *testing.T) {
		env := newSupervisorEnv(t, urlOne)
		sup := env.supervisor(time.Minute, nil)
		ctx := context.Background()

		if err := sup.Reconcile(ctx); err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}
		env.runner.exitNow(t, urlOne, watch.Exit{URL: urlOne, Status: watch.ExitCrashed, Err: errors.New("boom")})

		// the fetcher has no script for the url, so the probe 404s
		if err := sup.Reconcile(ctx); err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}

		if got := env.runner.startCount(urlOne); got != 1 {
			t.Errorf("start count = %d, want 1", got)
		}
		if !strings.Contains(env.queueContent(), "-"+urlOne) {
			t.Errorf("line was not disabled: %q", env.queueContent())
		}
	})

	t.Run("restarts a crashed watcher once the probe succeeds", func(t *testing.T) {
		env := newSupervisorEnv(t, urlOne)
		env.fetcher.Script(urlOne, testutil.FetchResult{Body: []byte("still here")})
		sup := env.supervisor(time.Minute, nil)
		ctx := context.Background()

		if err := sup.Reconcile(ctx); err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}
		env.runner.exitNow(t, urlOne, watch.Exit{URL: urlOne, Status: watch.ExitCrashed, Err: errors.New("boom")})

		if err := sup.Reconcile(ctx); err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}

		if got := env.runner.startCount(urlOne); got != 2 {
			t.Errorf("start count = %d, want 2", got)
		}
		if running := sup.Running(); len(running) != 1 || running[0] != urlOne {
			t.Errorf("Running() = %v", running)
		}
		assertSleeps(t, env.clock.Sleeps(), []time.Duration{time.Second})
	})

	t.Run("gives up after repeated restart failures", func(t *testing.T) {
		env := newSupervisorEnv(t, urlOne)
		env.fetcher.Script(urlOne, testutil.FetchResult{Body: []byte("still here")})
		sup := env.supervisor(time.Minute, nil)
		ctx := context.Background()

		if err := sup.Reconcile(ctx); err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}
		env.runner.exitNow(t, urlOne, watch.Exit{URL: urlOne, Status: watch.ExitCrashed, Err: errors.New("boom")})
		env.runner.scriptExits(urlOne,
			watch.Exit{URL: urlOne, Status: watch.ExitStopped},
			watch.Exit{URL: urlOne, Status: watch.ExitStopped},
			watch.Exit{URL: urlOne, Status: watch.ExitStopped},
		)

		if err := sup.Reconcile(ctx); err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}

		// initial start plus three failed restart attempts
		if got := env.runner.startCount(urlOne); got != 4 {
			t.Errorf("start count = %d, want 4", got)
		}
		if !strings.Contains(env.queueContent(), "-"+urlOne) {
			t.Errorf("line was not disabled: %q", env.queueContent())
		}
		// liveness check then backoff, growing per attempt
		assertSleeps(t, env.clock.Sleeps(), []time.Duration{
			time.Second, 5 * time.Second,
			time.Second, 10 * time.Second,
			time.Second, 15 * time.Second,
		})
	})

	t.Run("shutdown during restarts does not disable the thread", func(t *testing.T) {
		env := newSupervisorEnv(t, urlOne)
		env.fetcher.Script(urlOne, testutil.FetchResult{Body: []byte("still here")})
		sup := env.supervisor(time.Minute, nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := sup.Reconcile(ctx); err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}
		env.runner.exitNow(t, urlOne, watch.Exit{URL: urlOne, Status: watch.ExitCrashed, Err: errors.New("boom")})
		// once cancelled, every fresh start exits immediately
		env.runner.scriptExits(urlOne,
			watch.Exit{URL: urlOne, Status: watch.ExitStopped},
			watch.Exit{URL: urlOne, Status: watch.ExitStopped},
			watch.Exit{URL: urlOne, Status: watch.ExitStopped},
		)
		env.clock.OnSleep(func(n int, _ time.Duration) {
			if n == 1 {
				cancel()
			}
		})

		if err := sup.Reconcile(ctx); err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}

		if strings.Contains(env.queueContent(), "-"+urlOne) {
			t.Errorf("healthy line was disabled during shutdown: %q", env.queueContent())
		}
		if !strings.Contains(env.queueContent(), urlOne) {
			t.Errorf("line missing from watch list: %q", env.queueContent())
		}
		// initial start plus the attempt in flight when the context
		// was cancelled
		if got := env.runner.startCount(urlOne); got != 2 {
			t.Errorf("start count = %d, want 2", got)
		}
		assertSleeps(t, env.clock.Sleeps(), []time.Duration{time.Second, 5 * time.Second})
	})

	t.Run("warns when every line is disabled", func(t *testing.T) {
		env := newSupervisorEnv(t, "# queue", "-"+urlOne)
		sup := env.supervisor(time.Minute, nil)

		if err := sup.Reconcile(context.Background()); err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}

		if got := env.runner.started; len(got) != 0 {
			t.Errorf("starts = %v, want none", got)
		}
		paths := env.logger.values("watch list is empty or all links are disabled", "path")
		if len(paths) != 1 || paths[0] != env.queue.Path() {
			t.Errorf("warning paths = %v, want [%s]", paths, env.queue.Path())
		}
	})

	t.Run("missing watch list is an error", func(t *testing.T) {
		env := newSupervisorEnv(t, urlOne)
		if err := os.Remove(env.queue.Path()); err != nil {
			t.Fatal(err)
		}
		sup := env.supervisor(time.Minute, nil)
		if err := sup.Reconcile(context.Background()); err == nil {
			t.Error("Reconcile() expected error for missing watch list")
		}
	})
}

func TestSupervisor_Run(t *testing.T) {
	t.Run("drains watchers when no reload is configured", func(t *testing.T) {
		env := newSupervisorEnv(t, urlOne)
		sup := env.supervisor(0, nil)
		ctx := context.Background()

		runDone := make(chan error, 1)
		go func() { runDone <- sup.Run(ctx) }()

		env.runner.waitStarted(t, urlOne, 1)
		env.runner.exitNow(t, urlOne, watch.Exit{URL: urlOne, Status: watch.ExitStopped})

		select {
		case err := <-runDone:
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Run() did not return after the last watcher exited")
		}
	})

	t.Run("drain disables threads that report gone", func(t *testing.T) {
		env := newSupervisorEnv(t, urlOne)
		sup := env.supervisor(0, nil)

		runDone := make(chan error, 1)
		go func() { runDone <- sup.Run(context.Background()) }()

		env.runner.waitStarted(t, urlOne, 1)
		env.runner.exitNow(t, urlOne, watch.Exit{URL: urlOne, Status: watch.ExitGone})

		select {
		case err := <-runDone:
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Run() did not return after the last watcher exited")
		}
		if !strings.Contains(env.queueContent(), "-"+urlOne) {
			t.Errorf("line was not disabled: %q", env.queueContent())
		}
	})

	t.Run("wake triggers an early pass and cancellation stops everything", func(t *testing.T) {
		env := newSupervisorEnv(t, urlOne)

		// park reload sleeps so passes only happen on wake
		gate := make(chan struct{})
		t.Cleanup(func() { close(gate) })
		reload := 5 * time.Minute
		env.clock.OnSleep(func(_ int, d time.Duration) {
			if d == reload {
				<-gate
			}
		})

		wake := make(chan struct{}, 1)
		sup := env.supervisor(reload, wake)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		runDone := make(chan error, 1)
		go func() { runDone <- sup.Run(ctx) }()

		env.runner.waitStarted(t, urlOne, 1)
		env.rewriteQueue(urlOne, urlTwo)
		wake <- struct{}{}
		env.runner.waitStarted(t, urlTwo, 1)

		cancel()
		select {
		case err := <-runDone:
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Run() did not return after cancellation")
		}

		if !env.runner.lastHandle(t, urlOne).wasStopped() {
			t.Error("first watcher was not stopped on shutdown")
		}
		if !env.runner.lastHandle(t, urlTwo).wasStopped() {
			t.Error("second watcher was not stopped on shutdown")
		}
	})
}
