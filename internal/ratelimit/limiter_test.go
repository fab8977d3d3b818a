package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func TestCheck_SlidingWindow(t *testing.T) {
	l := New(Config{Default: Policy{Limit: 5, Window: 60 * time.Second}})

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Check("1.2.3.4", "/api/tasks", t0.Add(time.Duration(i*2)*time.Second)))
	}

	err := l.Check("1.2.3.4", "/api/tasks", t0.Add(10*time.Second))
	require.ErrorIs(t, err, ErrRateLimited)

	var limitErr *LimitError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, 5, limitErr.Limit)
	assert.Equal(t, 60*time.Second, limitErr.Window)
	assert.Equal(t, 50*time.Second, limitErr.RetryAfter)
	assert.LessOrEqual(t, limitErr.RetryAfterSeconds(), 60)

	// the first admission at t0 falls out of the window exactly 60s later
	require.NoError(t, l.Check("1.2.3.4", "/api/tasks", t0.Add(60*time.Second)))
	require.ErrorIs(t, l.Check("1.2.3.4", "/api/tasks", t0.Add(61*time.Second)), ErrRateLimited)
	require.NoError(t, l.Check("1.2.3.4", "/api/tasks", t0.Add(62*time.Second)))
}

func TestCheck_RejectionsAreNotRecorded(t *testing.T) {
	l := New(Config{Default: Policy{Limit: 1, Window: 10 * time.Second}})

	require.NoError(t, l.Check("k", "/", t0))
	for i := 1; i < 10; i++ {
		require.ErrorIs(t, l.Check("k", "/", t0.Add(time.Duration(i)*time.Second)), ErrRateLimited)
	}
	require.NoError(t, l.Check("k", "/", t0.Add(10*time.Second)))
}

func TestCheck_KeysAreIndependent(t *testing.T) {
	l := New(Config{Default: Policy{Limit: 1, Window: time.Minute}})

	require.NoError(t, l.Check("10.0.0.1", "/", t0))
	require.ErrorIs(t, l.Check("10.0.0.1", "/", t0), ErrRateLimited)
	require.NoError(t, l.Check("10.0.0.2", "/", t0))
	assert.Equal(t, 2, l.Len())
}

func TestPolicyFor_LongestPrefixWins(t *testing.T) {
	l := New(Config{
		Policies: []Policy{
			{Path: "/api", Limit: 100, Window: time.Minute},
			{Path: "/api/auth/login", Limit: 5, Window: time.Minute},
			{Path: "/api/auth", Limit: 10, Window: time.Minute},
		},
		Default: Policy{Limit: 30, Window: time.Minute},
	})

	assert.Equal(t, 5, l.PolicyFor("/api/auth/login").Limit)
	assert.Equal(t, 10, l.PolicyFor("/api/auth/refresh").Limit)
	assert.Equal(t, 100, l.PolicyFor("/api/tasks").Limit)
	assert.Equal(t, 30, l.PolicyFor("/health").Limit)
}

func TestDefaultConfig(t *testing.T) {
	l := New(DefaultConfig())

	assert.Equal(t, Policy{Path: "/api/auth/login", Limit: 5, Window: time.Minute}, l.PolicyFor("/api/auth/login"))
	assert.Equal(t, Policy{Path: "/api/auth/register", Limit: 3, Window: time.Minute}, l.PolicyFor("/api/auth/register"))
	assert.Equal(t, 30, l.PolicyFor("/api/tasks/7").Limit)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Check("ip", "/api/auth/register", t0))
	}
	require.ErrorIs(t, l.Check("ip", "/api/auth/register", t0), ErrRateLimited)
}

func TestCheck_ConcurrentLastSlot(t *testing.T) {
	for round := 0; round < 200; round++ {
		l := New(Config{Default: Policy{Limit: 5, Window: time.Minute}})
		for i := 0; i < 4; i++ {
			require.NoError(t, l.Check("ip", "/", t0))
		}

		var (
			start    sync.WaitGroup
			done     sync.WaitGroup
			admitted atomic.Int32
			rejected atomic.Int32
		)
		start.Add(1)
		for i := 0; i < 2; i++ {
			done.Add(1)
			go func() {
				defer done.Done()
				start.Wait()
				if err := l.Check("ip", "/", t0.Add(time.Second)); err != nil {
					assert.ErrorIs(t, err, ErrRateLimited)
					rejected.Add(1)
					return
				}
				admitted.Add(1)
			}()
		}
		start.Done()
		done.Wait()

		require.Equal(t, int32(1), admitted.Load(), "round %d", round)
		require.Equal(t, int32(1), rejected.Load(), "round %d", round)
	}
}

func TestCheck_ConcurrentManyKeys(t *testing.T) {
	l := New(Config{Default: Policy{Limit: 10, Window: time.Minute}})

	var (
		wg       sync.WaitGroup
		admitted [8]atomic.Int32
	)
	for k := 0; k < len(admitted); k++ {
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func(k int) {
				defer wg.Done()
				key := fmt.Sprintf("10.0.0.%d", k)
				for i := 0; i < 10; i++ {
					if l.Check(key, "/", t0) == nil {
						admitted[k].Add(1)
					}
				}
			}(k)
		}
	}
	wg.Wait()

	for k := range admitted {
		assert.Equal(t, int32(10), admitted[k].Load(), "key %d", k)
	}
}

func TestSweep_EvictsIdleKeysOnly(t *testing.T) {
	l := New(Config{
		Policies: []Policy{{Path: "/slow", Limit: 1, Window: 5 * time.Minute}},
		Default:  Policy{Limit: 5, Window: time.Minute},
	})

	require.NoError(t, l.Check("old", "/", t0))
	require.NoError(t, l.Check("fresh", "/", t0.Add(4*time.Minute)))
	require.Equal(t, 2, l.Len())

	// idle ttl is the largest window (5m)
	assert.Equal(t, 0, l.Sweep(t0.Add(4*time.Minute+59*time.Second)))
	assert.Equal(t, 1, l.Sweep(t0.Add(5*time.Minute)))
	assert.Equal(t, 1, l.Len())

	// an evicted key gets a fresh, empty window
	require.NoError(t, l.Check("old", "/", t0.Add(5*time.Minute)))
	assert.Equal(t, 2, l.Len())
}

func TestSweep_ConcurrentWithCheckNeverOverAdmits(t *testing.T) {
	l := New(Config{Default: Policy{Limit: 3, Window: time.Hour}, IdleTTL: time.Nanosecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var sweeper sync.WaitGroup
	sweeper.Add(1)
	go func() {
		defer sweeper.Done()
		for ctx.Err() == nil {
			l.Sweep(t0.Add(-time.Hour))
		}
	}()

	var (
		wg       sync.WaitGroup
		admitted atomic.Int32
	)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if l.Check("ip", "/", t0) == nil {
					admitted.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	cancel()
	sweeper.Wait()

	// the sweeper clock lags behind every admission, so nothing is idle
	assert.Equal(t, int32(3), admitted.Load())
}

func TestRun_StopsWithContext(t *testing.T) {
	l := New(Config{Default: Policy{Limit: 1, Window: time.Millisecond}})
	require.NoError(t, l.Check("ip", "/", time.Now().Add(-time.Second)))

	ctx, cancel := context.WithCancel(context.Background())
	swept := make(chan int, 16)
	finished := make(chan struct{})
	go func() {
		l.Run(ctx, 5*time.Millisecond, func(n int) {
			select {
			case swept <- n:
			default:
			}
		})
		close(finished)
	}()

	require.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestLimitError(t *testing.T) {
	err := &LimitError{RetryAfter: 1500 * time.Millisecond, Limit: 5, Window: time.Minute}
	assert.Equal(t, 2, err.RetryAfterSeconds())
	assert.True(t, errors.Is(fmt.Errorf("wrapped: %w", err), ErrRateLimited))

	zero := &LimitError{}
	assert.Equal(t, 1, zero.RetryAfterSeconds())
}
