package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skybrief/skybrief/internal/provider/resilience"
)

var errUpstream = errors.New("upstream unavailable")

func fastPolicy(name string, retries uint64) resilience.Policy {
	return resilience.Policy{
		Name:            name,
		AttemptTimeout:  time.Second,
		MaxRetries:      retries,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		CircuitBreaker:  lenientBreaker(name),
	}
}

func TestExecutor_RetriesUntilSuccess(t *testing.T) {
	var attempts []int
	p := fastPolicy("retry", 3)
	p.OnAttempt = func(attempt int, _ error) { attempts = append(attempts, attempt) }
	exec := resilience.NewExecutor[string](p)

	calls := 0
	got, err := exec.Execute(context.Background(), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errUpstream
		}
		return "METAR", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "METAR", got)
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestExecutor_BoundedRetries(t *testing.T) {
	exec := resilience.NewExecutor[int](fastPolicy("bounded", 2))

	calls := 0
	_, err := exec.Execute(context.Background(), func(context.Context) (int, error) {
		calls++
		return 0, errUpstream
	})
	assert.ErrorIs(t, err, errUpstream)
	assert.Equal(t, 3, calls)
}

func TestExecutor_PermanentNotRetried(t *testing.T) {
	exec := resilience.NewExecutor[int](fastPolicy("permanent", 5))

	calls := 0
	_, err := exec.Execute(context.Background(), func(context.Context) (int, error) {
		calls++
		return 0, resilience.Permanent(errUpstream)
	})
	assert.ErrorIs(t, err, errUpstream)
	assert.Equal(t, 1, calls)
	assert.Equal(t, uint32(0), exec.BreakerCounts().TotalFailures, "permanent errors do not count against the breaker")
}

func TestExecutor_AttemptTimeoutCountsAsFailure(t *testing.T) {
	p := fastPolicy("timeout", 1)
	p.AttemptTimeout = 20 * time.Millisecond
	exec := resilience.NewExecutor[int](p)

	calls := 0
	got, err := exec.Execute(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return 0, ctx.Err()
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 2, calls)
	assert.Equal(t, uint32(1), exec.BreakerCounts().TotalFailures)
}

func TestExecutor_OpenBreakerShortCircuits(t *testing.T) {
	p := fastPolicy("open", 0)
	p.CircuitBreaker = &resilience.CircuitBreakerConfig{Timeout: time.Minute}
	exec := resilience.NewExecutor[int](p)

	for i := 0; i < 5; i++ {
		_, _ = exec.Execute(context.Background(), func(context.Context) (int, error) { return 0, errUpstream })
	}
	require.Equal(t, gobreaker.StateOpen, exec.BreakerState())

	called := false
	_, err := exec.Execute(context.Background(), func(context.Context) (int, error) {
		called = true
		return 1, nil
	})
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.False(t, called)
}

func TestExecutor_CallerCancellation(t *testing.T) {
	exec := resilience.NewExecutor[int](fastPolicy("cancel", 10))

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := exec.Execute(ctx, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errUpstream
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDefaultReadyToTrip(t *testing.T) {
	tests := []struct {
		name     string
		counts   gobreaker.Counts
		expected bool
	}{
		{"not enough requests", gobreaker.Counts{Requests: 4, TotalFailures: 3}, false},
		{"low failure rate", gobreaker.Counts{Requests: 10, TotalFailures: 4}, false},
		{"high failure rate", gobreaker.Counts{Requests: 10, TotalFailures: 5}, true},
		{"consecutive failures", gobreaker.Counts{Requests: 5, TotalFailures: 5, ConsecutiveFailures: 5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, resilience.DefaultReadyToTrip(tt.counts))
		})
	}
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, resilience.IsPermanent(resilience.Permanent(errUpstream)))
	assert.False(t, resilience.IsPermanent(errUpstream))
}
