// Package ratelimit provides the global throughput governor shared by every
// component that issues external calls. A single Limiter instance is
// constructed at process start and injected everywhere; all pipeline runs in
// the process draw from the same budget.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Priority is a routing hint for future fairness policies. The current
// policy treats all tasks uniformly.
type Priority int

// Priority constants.
const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// Config holds limiter tuning parameters.
type Config struct {
	MaxConcurrent  int           // Maximum in-flight external calls
	MinSpacing     time.Duration // Minimum delay between task starts
	Reservoir      int           // Token bucket capacity
	RefillAmount   int           // Tokens added per refill interval
	RefillInterval time.Duration
	QuotaPause     int // Remaining-quota floor below which callers wait for reset
	QuotaWarn      int // Remaining-quota floor below which a warning is logged
}

// DefaultConfig returns the documented default limits.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:  20,
		MinSpacing:     50 * time.Millisecond,
		Reservoir:      100,
		RefillAmount:   100,
		RefillInterval: 5 * time.Second,
		QuotaPause:     10,
		QuotaWarn:      20,
	}
}

// Limiter implements a token bucket with a concurrency cap and minimum
// inter-start spacing, plus adaptive backoff driven by server-reported
// quota headers.
type Limiter struct {
	lastStart time.Time
	resetAt   time.Time
	logger    *slog.Logger
	sem       chan struct{}
	stopCh    chan struct{}
	cfg       Config
	tokens    int
	remaining int // -1 means unbounded (no header seen yet)
	mu        sync.Mutex
	closeOnce sync.Once
}

// New creates a limiter with the given configuration, filling in defaults
// for zero fields.
func New(cfg Config, logger *slog.Logger) *Limiter {
	def := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.MinSpacing <= 0 {
		cfg.MinSpacing = def.MinSpacing
	}
	if cfg.Reservoir <= 0 {
		cfg.Reservoir = def.Reservoir
	}
	if cfg.RefillAmount <= 0 {
		cfg.RefillAmount = def.RefillAmount
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = def.RefillInterval
	}
	if cfg.QuotaPause <= 0 {
		cfg.QuotaPause = def.QuotaPause
	}
	if cfg.QuotaWarn <= 0 {
		cfg.QuotaWarn = def.QuotaWarn
	}
	if logger == nil {
		logger = slog.Default()
	}

	l := &Limiter{
		cfg:       cfg,
		logger:    logger,
		sem:       make(chan struct{}, cfg.MaxConcurrent),
		stopCh:    make(chan struct{}),
		tokens:    cfg.Reservoir,
		remaining: -1,
	}

	go l.refill()

	return l
}

// Schedule runs fn under the global limits: it waits for any quota-driven
// pause, a reservoir token, a concurrency slot, and the minimum inter-start
// spacing before invoking fn. Priority and jobID are routing hints only.
func (l *Limiter) Schedule(ctx context.Context, _ Priority, jobID string, fn func(context.Context) error) error {
	if d := l.Delay(); d > 0 {
		l.logger.Warn("rate limit quota low, pausing before request",
			"delay", d,
			"job_id", jobID)
		select {
		case <-ctx.Done():
			return fmt.Errorf("rate limiter canceled: %w", ctx.Err())
		case <-time.After(d):
		}
	}

	if err := l.acquireToken(ctx); err != nil {
		return err
	}

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("rate limiter canceled: %w", ctx.Err())
	}
	defer func() { <-l.sem }()

	if err := l.waitSpacing(ctx); err != nil {
		return err
	}

	return fn(ctx)
}

// acquireToken blocks until a reservoir token is available or the context
// is canceled.
func (l *Limiter) acquireToken(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.tryAcquire() {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("rate limiter canceled: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// tryAcquire attempts to take a token without blocking.
func (l *Limiter) tryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.tokens > 0 {
		l.tokens--
		return true
	}
	return false
}

// waitSpacing reserves the next start slot and sleeps until it arrives. The
// slot is claimed under the lock so concurrent callers serialize their
// starts at least MinSpacing apart.
func (l *Limiter) waitSpacing(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()
	next := l.lastStart.Add(l.cfg.MinSpacing)
	if next.Before(now) {
		next = now
	}
	l.lastStart = next
	l.mu.Unlock()

	wait := time.Until(next)
	if wait <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limiter canceled: %w", ctx.Err())
	case <-time.After(wait):
		return nil
	}
}

// refill periodically adds tokens to the reservoir.
func (l *Limiter) refill() {
	ticker := time.NewTicker(l.cfg.RefillInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.mu.Lock()
			l.tokens += l.cfg.RefillAmount
			if l.tokens > l.cfg.Reservoir {
				l.tokens = l.cfg.Reservoir
			}
			l.mu.Unlock()
		}
	}
}

// UpdateFromHeaders feeds server-reported quota headers back into the
// shared state. Updates are monotonic on reset time: an out-of-order
// response carrying an older reset never rolls the state back. Within the
// same reset window the lowest observed remaining wins.
func (l *Limiter) UpdateFromHeaders(h http.Header) {
	remaining, okRem := parseIntHeader(h, "X-RateLimit-Remaining", "x-ratelimit-remaining")
	resetEpoch, okReset := parseIntHeader(h, "X-RateLimit-Reset", "x-ratelimit-reset")
	if !okRem || !okReset {
		return
	}

	resetAt := time.Unix(int64(resetEpoch), 0)

	l.mu.Lock()
	switch {
	case resetAt.After(l.resetAt):
		l.resetAt = resetAt
		l.remaining = remaining
	case resetAt.Equal(l.resetAt):
		if l.remaining < 0 || remaining < l.remaining {
			l.remaining = remaining
		}
	default:
		// Stale header from an out-of-order response; ignore.
	}
	rem := l.remaining
	l.mu.Unlock()

	if rem >= 0 && rem < l.cfg.QuotaWarn {
		l.logger.Warn("archive rate limit quota running low",
			"remaining", rem,
			"reset_at", resetAt)
	}
}

// Delay returns how long callers should wait before issuing a new request:
// zero while quota is healthy, otherwise the time until the server-reported
// reset.
func (l *Limiter) Delay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.remaining < 0 || l.remaining > l.cfg.QuotaPause {
		return 0
	}

	d := time.Until(l.resetAt)
	if d < 0 {
		return 0
	}
	return d
}

// State returns the current remaining quota and reset time. A remaining of
// -1 means unbounded (no quota header observed yet).
func (l *Limiter) State() (remaining int, resetAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remaining, l.resetAt
}

// InFlight returns the number of currently executing tasks.
func (l *Limiter) InFlight() int {
	return len(l.sem)
}

// Close stops the refill goroutine.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() { close(l.stopCh) })
}

func parseIntHeader(h http.Header, names ...string) (int, bool) {
	for _, name := range names {
		if v := h.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err == nil {
				return n, true
			}
		}
	}
	return 0, false
}
