package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// Predefined errors for resilient operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrAttemptTimeout is returned when a single attempt exceeds its deadline.
	ErrAttemptTimeout = errors.New("attempt timed out")
)

// Policy configures an Executor.
type Policy struct {
	// Name identifies the guarded dependency in the breaker and registry.
	Name string

	// AttemptTimeout bounds each individual attempt. Zero disables it.
	AttemptTimeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	// Zero means a single attempt.
	MaxRetries uint64

	// InitialInterval is the initial retry backoff interval.
	InitialInterval time.Duration

	// MaxInterval is the maximum retry backoff interval.
	MaxInterval time.Duration

	// CircuitBreaker is the circuit breaker configuration.
	// If nil, uses DefaultCircuitBreakerConfig.
	CircuitBreaker *CircuitBreakerConfig

	// Registry, when set, receives the executor and its outcomes.
	Registry *Registry

	// OnAttempt is called after every attempt with its result.
	OnAttempt func(attempt int, err error)
}

// DefaultPolicy returns the policy used for weather sources.
func DefaultPolicy(name string) Policy {
	cb := DefaultCircuitBreakerConfig(name)
	return Policy{
		Name:            name,
		AttemptTimeout:  5 * time.Second,
		MaxRetries:      2,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		CircuitBreaker:  &cb,
	}
}

// Executor runs an operation under a Policy.
type Executor[T any] struct {
	policy  Policy
	breaker *gobreaker.CircuitBreaker[T]
}

// NewExecutor creates an Executor and registers it when the policy names a
// registry.
func NewExecutor[T any](p Policy) *Executor[T] {
	if p.InitialInterval == 0 {
		p.InitialInterval = 100 * time.Millisecond
	}
	if p.MaxInterval == 0 {
		p.MaxInterval = 5 * time.Second
	}
	cb := DefaultCircuitBreakerConfig(p.Name)
	if p.CircuitBreaker != nil {
		cb = *p.CircuitBreaker
		cb.Name = p.Name
	}

	e := &Executor[T]{
		policy:  p,
		breaker: NewCircuitBreaker[T](cb),
	}
	if p.Registry != nil {
		p.Registry.Register(p.Name, e)
	}
	return e
}

// Name returns the policy name.
func (e *Executor[T]) Name() string {
	return e.policy.Name
}

// BreakerState returns the current state of the circuit breaker.
func (e *Executor[T]) BreakerState() gobreaker.State {
	return e.breaker.State()
}

// BreakerCounts returns the current counts of the circuit breaker.
func (e *Executor[T]) BreakerCounts() gobreaker.Counts {
	return e.breaker.Counts()
}

// Execute runs op until it succeeds, fails permanently, exhausts its retries,
// or ctx is done. Each attempt gets its own deadline; an attempt that times
// out counts as a failure and is retried. A call rejected by an open breaker
// returns ErrCircuitOpen without retrying.
func (e *Executor[T]) Execute(ctx context.Context, op func(ctx context.Context) (T, error)) (T, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.policy.InitialInterval
	bo.MaxInterval = e.policy.MaxInterval
	bo.MaxElapsedTime = 0 // bounded by MaxRetries

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, e.policy.MaxRetries), ctx)

	var (
		result    T
		attempt   int
		permanent bool
	)
	operation := func() error {
		attempt++
		v, err := e.breaker.Execute(func() (T, error) {
			return e.attempt(ctx, op)
		})
		if e.policy.OnAttempt != nil {
			e.policy.OnAttempt(attempt, err)
		}
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}
			permanent = IsPermanent(err)
			return err
		}
		result = v
		return nil
	}

	err := backoff.Retry(operation, policy)
	if err != nil && ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		err = fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	e.record(err, permanent)
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

func (e *Executor[T]) attempt(ctx context.Context, op func(ctx context.Context) (T, error)) (T, error) {
	if e.policy.AttemptTimeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, e.policy.AttemptTimeout)
	defer cancel()

	v, err := op(attemptCtx)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return v, fmt.Errorf("%w after %s: %w", ErrAttemptTimeout, e.policy.AttemptTimeout, err)
	}
	return v, err
}

func (e *Executor[T]) record(err error, permanent bool) {
	if e.policy.Registry == nil {
		return
	}
	if err == nil || permanent {
		e.policy.Registry.RecordSuccess(e.policy.Name)
		return
	}
	e.policy.Registry.RecordFailure(e.policy.Name, err)
}
