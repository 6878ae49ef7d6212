package testutil

import (
	"context"
	"sync"

	"threadwatch/internal/watch"
)

// FetchResult is one canned response in a ScriptedFetcher script.
type FetchResult struct {
	Body []byte
	Err  error
}

// ScriptedFetcher serves canned responses keyed by URL. Repeated
// fetches of the same URL consume the script in order; the last entry
// repeats once the script runs out. URLs with no script return a 404.
// Safe for concurrent use.
type ScriptedFetcher struct {
	mu       sync.Mutex
	scripts  map[string][]FetchResult
	threads  map[string]*watch.Thread
	subjects map[string]string
	calls    []string
}

func NewScriptedFetcher() *ScriptedFetcher {
	return &ScriptedFetcher{
		scripts:  make(map[string][]FetchResult),
		threads:  make(map[string]*watch.Thread),
		subjects: make(map[string]string),
	}
}

// Script appends results to the script for url.
func (f *ScriptedFetcher) Script(url string, results ...FetchResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[url] = append(f.scripts[url], results...)
}

// AddThread registers structured metadata for board/id.
func (f *ScriptedFetcher) AddThread(board, id string, t *watch.Thread) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threads[board+"/"+id] = t
}

// AddSubject registers a subject for board/id.
func (f *ScriptedFetcher) AddSubject(board, id, subject string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects[board+"/"+id] = subject
}

func (f *ScriptedFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, url)

	script, ok := f.scripts[url]
	if !ok || len(script) == 0 {
		return nil, &watch.RequestError{URL: url, Status: 404, Err: watch.ErrNotFound}
	}

	next := script[0]
	if len(script) > 1 {
		f.scripts[url] = script[1:]
	}

	if next.Err != nil {
		return nil, next.Err
	}
	return next.Body, nil
}

func (f *ScriptedFetcher) Thread(ctx context.Context, board, id string) (*watch.Thread, bool) {
	if ctx.Err() != nil {
		return nil, false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.threads[board+"/"+id]
	return t, ok
}

func (f *ScriptedFetcher) Subject(ctx context.Context, board, id string) (string, bool) {
	if ctx.Err() != nil {
		return "", false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.subjects[board+"/"+id]
	return s, ok
}

// Calls returns every URL passed to Fetch, in order.
func (f *ScriptedFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// Compile-time check
var _ watch.Fetcher = (*ScriptedFetcher)(nil)
