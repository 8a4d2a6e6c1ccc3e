package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	DefaultRateWindow = 60 * time.Second
	DefaultRateLimit  = 1000
)

// GlobalKey is the limiter key for calls without a tenant.
const GlobalKey = "_global"

// Decision is the outcome of a limiter check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts calls per key in fixed windows. limit <= 0 uses the
// limiter's default cap.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int) (Decision, error)
}

type window struct {
	start time.Time
	count int
}

// MemoryLimiter is a single-process fixed-window counter.
type MemoryLimiter struct {
	clock  clock.Clock
	window time.Duration
	limit  int

	mu      sync.Mutex
	windows map[string]*window
}

// NewMemoryLimiter builds a MemoryLimiter. Zero values select the defaults.
func NewMemoryLimiter(clk clock.Clock, windowSize time.Duration, limit int) *MemoryLimiter {
	if clk == nil {
		clk = clock.New()
	}
	if windowSize <= 0 {
		windowSize = DefaultRateWindow
	}
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	return &MemoryLimiter{clock: clk, window: windowSize, limit: limit, windows: make(map[string]*window)}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string, limit int) (Decision, error) {
	if limit <= 0 {
		limit = l.limit
	}
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.start.Add(l.window)) {
		w = &window{start: now}
		l.windows[key] = w
	}

	if w.count >= limit {
		return Decision{Limit: limit, RetryAfter: w.start.Add(l.window).Sub(now)}, nil
	}
	w.count++
	return Decision{Allowed: true, Limit: limit, Remaining: limit - w.count}, nil
}
