package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/bookmarkctl/bookmarkctl/internal/gateway"
)

// fakeClock lets tests assert on sleep durations without waiting for them.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func TestBeforeRequestAdmitsImmediatelyWhenQuotaRemains(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	g := New(Config{}, clock)
	g.Observe(gateway.RateLimit{Limit: 100, Remaining: 50, ResetAt: clock.now.Add(time.Minute)}, OutcomeSuccess)

	if err := g.BeforeRequest(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(clock.sleeps) != 0 {
		t.Errorf("expected no sleep when quota remains, got %v", clock.sleeps)
	}
}

func TestBeforeRequestWaitsUntilResetWhenExhausted(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	resetAt := clock.now.Add(2 * time.Minute)
	g := New(Config{}, clock)
	g.Observe(gateway.RateLimit{Limit: 100, Remaining: 0, ResetAt: resetAt}, OutcomeSuccess)

	if err := g.BeforeRequest(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(clock.sleeps) != 1 {
		t.Fatalf("expected exactly one sleep, got %d", len(clock.sleeps))
	}
	if clock.sleeps[0] < 2*time.Minute {
		t.Errorf("expected wait of at least the declared reset duration, got %v", clock.sleeps[0])
	}
}

func TestBeforeRequestBacksOffAfterTransientFailures(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	g := New(Config{BaseDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: time.Second, MaxRetries: 5}, clock)

	g.Observe(gateway.RateLimit{}, OutcomeTransient)
	if err := g.BeforeRequest(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(clock.sleeps) != 1 || clock.sleeps[0] < 100*time.Millisecond {
		t.Errorf("expected a backoff sleep of at least the base delay, got %v", clock.sleeps)
	}
}

func TestBeforeRequestTerminatesAfterMaxRetries(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	g := New(Config{MaxRetries: 2, BaseDelay: time.Millisecond}, clock)

	g.Observe(gateway.RateLimit{}, OutcomeTransient)
	g.Observe(gateway.RateLimit{}, OutcomeTransient)

	if err := g.BeforeRequest(context.Background()); err == nil {
		t.Fatalf("expected terminal error after exceeding max retries")
	}
}

func TestObserveResetsRetryCounterOnSuccess(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	g := New(Config{}, clock)
	g.Observe(gateway.RateLimit{}, OutcomeTransient)
	g.Observe(gateway.RateLimit{}, OutcomeTransient)
	if g.Retries() != 2 {
		t.Fatalf("expected 2 retries recorded, got %d", g.Retries())
	}
	g.Observe(gateway.RateLimit{}, OutcomeSuccess)
	if g.Retries() != 0 {
		t.Errorf("expected retry counter reset on success, got %d", g.Retries())
	}
}

func TestBackoffDelayIsMonotoneInAttemptAndCappedAtMaxDelay(t *testing.T) {
	cfg := Config{BaseDelay: 10 * time.Millisecond, Multiplier: 2, MaxDelay: 200 * time.Millisecond}
	prev := time.Duration(0)
	for attempt := 1; attempt <= 10; attempt++ {
		d := BackoffDelay(attempt, cfg, 0)
		if d < prev {
			t.Errorf("attempt %d: delay %v is less than previous %v", attempt, d, prev)
		}
		if d > cfg.MaxDelay+cfg.MaxDelay/4 {
			t.Errorf("attempt %d: delay %v exceeds cap+jitter bound", attempt, d)
		}
		prev = d
	}
}
