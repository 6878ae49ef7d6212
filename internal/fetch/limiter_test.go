package fetch

import (
	"context"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestLimiterPool(t *testing.T) {
	t.Run("paces repeated requests to one host", func(t *testing.T) {
		p := &limiterPool{limit: rate.Limit(50)}

		start := time.Now()
		for i := 0; i < 3; i++ {
			if err := p.wait(context.Background(), "a.example"); err != nil {
				t.Fatalf("wait() error = %v", err)
			}
		}
		elapsed := time.Since(start)

		// Burst 1, so two of the three waits pay the 20ms interval.
		if elapsed < 30*time.Millisecond {
			t.Errorf("three waits took %v, want at least 30ms of pacing", elapsed)
		}
	})

	t.Run("hosts are paced independently", func(t *testing.T) {
		p := &limiterPool{limit: rate.Limit(1)}

		start := time.Now()
		if err := p.wait(context.Background(), "a.example"); err != nil {
			t.Fatalf("wait() error = %v", err)
		}
		if err := p.wait(context.Background(), "b.example"); err != nil {
			t.Fatalf("wait() error = %v", err)
		}
		elapsed := time.Since(start)

		// Each host has its own burst token, so neither wait blocks.
		if elapsed > 500*time.Millisecond {
			t.Errorf("two first waits took %v, want no pacing across hosts", elapsed)
		}
	})

	t.Run("canceled context interrupts the wait", func(t *testing.T) {
		p := &limiterPool{limit: rate.Limit(0.01)}

		// Consume the burst token
		if err := p.wait(context.Background(), "a.example"); err != nil {
			t.Fatalf("wait() error = %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		if err := p.wait(ctx, "a.example"); err == nil {
			t.Error("wait() error = nil, want context error")
		}
	})

	t.Run("unlimited when rate is infinite", func(t *testing.T) {
		p := &limiterPool{limit: rate.Inf}

		start := time.Now()
		for i := 0; i < 100; i++ {
			if err := p.wait(context.Background(), "a.example"); err != nil {
				t.Fatalf("wait() error = %v", err)
			}
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("100 unlimited waits took %v", elapsed)
		}
	})
}
