// Package ratelimit admits or rejects requests per client key using
// sliding-window counters.
//
// Each key owns an ordered slice of admission timestamps guarded by its own
// mutex. The registry lock only covers the key lookup, so unrelated clients
// never serialize behind each other. State is process local; several
// instances behind a load balancer each keep an independent budget.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrRateLimited is matched by every *LimitError.
var ErrRateLimited = errors.New("rate limited")

// Policy bounds requests to paths starting with Path.
type Policy struct {
	Path   string
	Limit  int
	Window time.Duration
}

// LimitError reports a rejected request and when the client may retry.
type LimitError struct {
	RetryAfter time.Duration
	Limit      int
	Window     time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limited: %d requests per %s, retry after %s", e.Limit, e.Window, e.RetryAfter)
}

func (e *LimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, never below one.
func (e *LimitError) RetryAfterSeconds() int {
	secs := int(math.Ceil(e.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Config holds the policy table.
type Config struct {
	Policies []Policy
	Default  Policy
	// IdleTTL is how long a key may go without admissions before Sweep
	// drops it. Zero means the largest policy window.
	IdleTTL time.Duration
}

// DefaultConfig mirrors the stock limits: 5/min for login, 3/min for
// registration and 30/min for everything else.
func DefaultConfig() Config {
	return Config{
		Policies: []Policy{
			{Path: "/api/auth/login", Limit: 5, Window: time.Minute},
			{Path: "/api/auth/register", Limit: 3, Window: time.Minute},
		},
		Default: Policy{Limit: 30, Window: time.Minute},
	}
}

type window struct {
	mu      sync.Mutex
	stamps  []time.Time
	evicted bool
}

// Limiter tracks request timestamps per client key.
type Limiter struct {
	policies []Policy
	fallback Policy
	idleTTL  time.Duration

	mu      sync.Mutex
	windows map[string]*window
}

func New(cfg Config) *Limiter {
	policies := make([]Policy, len(cfg.Policies))
	copy(policies, cfg.Policies)
	// longest path first so the most specific prefix matches
	sort.SliceStable(policies, func(i, j int) bool {
		return len(policies[i].Path) > len(policies[j].Path)
	})

	idle := cfg.IdleTTL
	if idle <= 0 {
		idle = cfg.Default.Window
		for _, p := range policies {
			if p.Window > idle {
				idle = p.Window
			}
		}
	}

	return &Limiter{
		policies: policies,
		fallback: cfg.Default,
		idleTTL:  idle,
		windows:  make(map[string]*window),
	}
}

// PolicyFor returns the policy governing path.
func (l *Limiter) PolicyFor(path string) Policy {
	for _, p := range l.policies {
		if strings.HasPrefix(path, p.Path) {
			return p
		}
	}
	return l.fallback
}

// Check records an attempt by key on path at now. It returns nil when the
// request is admitted and a *LimitError when the window is full.
func (l *Limiter) Check(key, path string, now time.Time) error {
	policy := l.PolicyFor(path)

	for {
		w := l.lookup(key)
		w.mu.Lock()
		if w.evicted {
			// swept between lookup and lock; start over on a fresh window
			w.mu.Unlock()
			continue
		}
		err := w.admit(policy, now)
		w.mu.Unlock()
		return err
	}
}

func (l *Limiter) lookup(key string) *window {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[key]
	if !ok {
		w = &window{}
		l.windows[key] = w
	}
	return w
}

// admit must be called with w.mu held.
func (w *window) admit(p Policy, now time.Time) error {
	keep := 0
	for _, ts := range w.stamps {
		if now.Sub(ts) < p.Window {
			w.stamps[keep] = ts
			keep++
		}
	}
	w.stamps = w.stamps[:keep]

	if len(w.stamps) >= p.Limit {
		retry := p.Window
		if len(w.stamps) > 0 {
			retry -= now.Sub(w.stamps[0])
		}
		return &LimitError{
			RetryAfter: retry,
			Limit:      p.Limit,
			Window:     p.Window,
		}
	}
	w.stamps = append(w.stamps, now)
	return nil
}

// Sweep drops keys whose newest admission is at least IdleTTL old and
// returns how many were removed.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, w := range l.windows {
		w.mu.Lock()
		if n := len(w.stamps); n == 0 || now.Sub(w.stamps[n-1]) >= l.idleTTL {
			w.evicted = true
			delete(l.windows, key)
			removed++
		}
		w.mu.Unlock()
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration, onSweep func(removed int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed := l.Sweep(now)
			if onSweep != nil {
				onSweep(removed)
			}
		}
	}
}

// Len reports how many keys are tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
