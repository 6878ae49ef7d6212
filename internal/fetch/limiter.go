package fetch

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// limiterPool keeps one rate limiter per host, created on first use.
// All hosts share the same configured rate.
type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	limit rate.Limit
}

func (p *limiterPool) get(host string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		p.m = make(map[string]*rate.Limiter)
	}
	if l, ok := p.m[host]; ok {
		return l
	}
	l := rate.NewLimiter(p.limit, 1)
	p.m[host] = l
	return l
}

// wait blocks until the host's limiter grants a slot or ctx ends.
func (p *limiterPool) wait(ctx context.Context, host string) error {
	return p.get(host).Wait(ctx)
}
