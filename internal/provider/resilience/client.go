package resilience

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// maxBodyBytes caps how much of a response body is buffered.
const maxBodyBytes = 1 << 20

// ClientConfig holds configuration for the resilient HTTP client.
type ClientConfig struct {
	// Name identifies this client for circuit breaker naming.
	Name string

	// Timeout bounds each HTTP attempt, including reading the body.
	// Default: 10 seconds
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	// Zero means a single attempt; DefaultClientConfig sets 3.
	MaxRetries uint64

	// InitialInterval is the initial retry backoff interval.
	// Default: 100ms
	InitialInterval time.Duration

	// MaxInterval is the maximum retry backoff interval.
	// Default: 5 seconds
	MaxInterval time.Duration

	// CircuitBreaker is the circuit breaker configuration.
	// If nil, uses DefaultCircuitBreakerConfig.
	CircuitBreaker *CircuitBreakerConfig

	// Registry, when set, tracks the client's health.
	Registry *Registry

	// Transport overrides the HTTP transport.
	Transport http.RoundTripper
}

// DefaultClientConfig returns sensible defaults for the resilient client.
func DefaultClientConfig(name string) ClientConfig {
	cbConfig := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		CircuitBreaker:  &cbConfig,
	}
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client is a resilient HTTP client with circuit breaker and retry logic.
type Client struct {
	httpClient *http.Client
	executor   *Executor[*Response]
}

// NewClient creates a new resilient HTTP client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Transport: cfg.Transport},
		executor: NewExecutor[*Response](Policy{
			Name:            cfg.Name,
			AttemptTimeout:  cfg.Timeout,
			MaxRetries:      cfg.MaxRetries,
			InitialInterval: cfg.InitialInterval,
			MaxInterval:     cfg.MaxInterval,
			CircuitBreaker:  cfg.CircuitBreaker,
			Registry:        cfg.Registry,
		}),
	}
}

// Name returns the client name.
func (c *Client) Name() string {
	return c.executor.Name()
}

// Do executes an HTTP request with circuit breaker protection and retry logic.
// Transient failures (5xx, network errors, attempt timeouts) are retried with
// exponential backoff. A 4xx response is returned without retrying. When
// retries are exhausted on 5xx the last response is returned together with a
// *ServerError.
func (c *Client) Do(ctx context.Context, req *http.Request) (*Response, error) {
	var last *Response
	resp, err := c.executor.Execute(ctx, func(ctx context.Context) (*Response, error) {
		r, err := c.roundTrip(ctx, req)
		if err != nil {
			return nil, err
		}
		if r.StatusCode >= http.StatusInternalServerError {
			last = r
			return nil, &ServerError{StatusCode: r.StatusCode}
		}
		return r, nil
	})
	if err != nil {
		return last, err
	}
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, req *http.Request) (*Response, error) {
	r, err := c.httpClient.Do(req.Clone(ctx))
	if err != nil {
		return nil, err
	}
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return &Response{StatusCode: r.StatusCode, Header: r.Header, Body: body}, nil
}

// ServerError represents an HTTP 5xx server error.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}

// BreakerState returns the current state of the circuit breaker.
func (c *Client) BreakerState() gobreaker.State {
	return c.executor.BreakerState()
}

// BreakerCounts returns the current counts of the circuit breaker.
func (c *Client) BreakerCounts() gobreaker.Counts {
	return c.executor.BreakerCounts()
}
