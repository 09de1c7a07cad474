package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-insights-go/internal/fault"
	"call-insights-go/internal/logger"
)

// instantTimer fires immediately and remembers every requested delay.
type instantTimer struct {
	mu     sync.Mutex
	delays []time.Duration
	c      chan time.Time
}

func (t *instantTimer) Start(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delays = append(t.delays, d)
	t.c = make(chan time.Time, 1)
	t.c <- time.Now()
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.c
}

func (t *instantTimer) total() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	var sum time.Duration
	for _, d := range t.delays {
		sum += d
	}
	return sum
}

func testExecutor(maxRetries int, base time.Duration, timer *instantTimer) Executor {
	e := New(maxRetries, base, logger.Discard())
	e.NewTimer = func() backoff.Timer { return timer }
	return e
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	timer := &instantTimer{}
	calls := 0
	err := testExecutor(2, time.Second, timer).Do(context.Background(), "test", func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, timer.delays)
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	timer := &instantTimer{}
	calls := 0
	err := testExecutor(3, time.Second, timer).Do(context.Background(), "test", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, timer.delays)
}

func TestDo_RetryBound(t *testing.T) {
	for _, tc := range []struct {
		maxRetries int
		base       time.Duration
		wantSleep  time.Duration
	}{
		{maxRetries: 0, base: 2 * time.Second, wantSleep: 0},
		{maxRetries: 1, base: 2 * time.Second, wantSleep: 2 * time.Second},
		{maxRetries: 2, base: 2 * time.Second, wantSleep: 6 * time.Second},
		{maxRetries: 4, base: time.Second, wantSleep: 15 * time.Second},
	} {
		timer := &instantTimer{}
		calls := 0
		sentinel := fault.New(fault.Transient, "test", errors.New("always fails"))

		err := testExecutor(tc.maxRetries, tc.base, timer).Do(context.Background(), "test", func(context.Context) error {
			calls++
			return sentinel
		})

		require.ErrorIs(t, err, sentinel)
		assert.Equal(t, tc.maxRetries+1, calls, "attempts for maxRetries=%d", tc.maxRetries)
		assert.Equal(t, tc.wantSleep, timer.total(), "sleep for maxRetries=%d", tc.maxRetries)
		for i, d := range timer.delays {
			assert.Equal(t, expectedDelay(tc.base, i+1), d)
		}
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	timer := &instantTimer{}
	calls := 0
	sentinel := fault.New(fault.MalformedJSON, "test", errors.New("bad json"))

	e := testExecutor(5, time.Second, timer).WithPolicy(OnKinds(fault.RateLimited))
	err := e.Do(context.Background(), "test", func(context.Context) error {
		calls++
		return sentinel
	})

	require.Error(t, err)
	assert.Same(t, sentinel, err, "permanent wrapper must be stripped")
	assert.Equal(t, 1, calls)
	assert.Empty(t, timer.delays)
}

func TestDo_ContextCancelledStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	timer := &instantTimer{}
	calls := 0

	err := testExecutor(5, time.Second, timer).Do(ctx, "test", func(context.Context) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.New("fail")
	})

	require.Error(t, err)
	assert.LessOrEqual(t, calls, 2)
}

func TestDoValue_ReturnsValue(t *testing.T) {
	timer := &instantTimer{}
	calls := 0
	v, err := DoValue(context.Background(), testExecutor(2, time.Millisecond, timer), "test", func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("once")
		}
		return "gs://bucket/calls/a.wav", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "gs://bucket/calls/a.wav", v)
}

func TestDoValue_ZeroValueOnFailure(t *testing.T) {
	v, err := DoValue(context.Background(), testExecutor(1, time.Millisecond, &instantTimer{}), "test", func(context.Context) (int, error) {
		return 42, errors.New("nope")
	})
	require.Error(t, err)
	assert.Zero(t, v)
}

func TestDo_RealTimerShortDelay(t *testing.T) {
	calls := 0
	start := time.Now()
	err := New(2, 5*time.Millisecond, logger.Discard()).Do(context.Background(), "test", func(context.Context) error {
		calls++
		return errors.New("fail")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestPolicies(t *testing.T) {
	rate := fault.New(fault.RateLimited, "op", errors.New("429"))
	malformed := fault.New(fault.MalformedStatement, "op", errors.New("syntax"))
	plain := errors.New("boom")

	assert.True(t, Always(plain))
	assert.False(t, Always(context.Canceled))
	assert.False(t, Always(context.DeadlineExceeded))

	onRate := OnKinds(fault.RateLimited)
	assert.True(t, onRate(rate))
	assert.False(t, onRate(plain))

	exceptMalformed := Except(fault.MalformedStatement)
	assert.False(t, exceptMalformed(malformed))
	assert.True(t, exceptMalformed(rate))
	assert.True(t, exceptMalformed(plain))
	assert.False(t, exceptMalformed(context.Canceled))
}

// expectedDelay is the sleep before retry n (1-based): base * 2^(n-1).
func expectedDelay(base time.Duration, n int) time.Duration {
	return base * time.Duration(1<<(n-1))
}
