package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker/v2"
)

// Monitored is anything guarded by a circuit breaker.
type Monitored interface {
	BreakerState() gobreaker.State
	BreakerCounts() gobreaker.Counts
}

// SourceHealth represents the health status of a guarded source.
type SourceHealth struct {
	// Name is the source identifier.
	Name string

	// CircuitState is the current circuit breaker state.
	CircuitState gobreaker.State

	// Counts contains circuit breaker statistics.
	Counts gobreaker.Counts

	// LastSuccessAt is the timestamp of the last successful request.
	LastSuccessAt *time.Time

	// LastFailureAt is the timestamp of the last failed request.
	LastFailureAt *time.Time

	// LastError is the most recent error message, if any.
	LastError string
}

// IsHealthy returns true if the source is considered healthy.
func (h *SourceHealth) IsHealthy() bool {
	return h.CircuitState == gobreaker.StateClosed
}

// IsDegraded returns true if the source is in a degraded state (half-open).
func (h *SourceHealth) IsDegraded() bool {
	return h.CircuitState == gobreaker.StateHalfOpen
}

// IsUnhealthy returns true if the source is unhealthy (circuit open).
func (h *SourceHealth) IsUnhealthy() bool {
	return h.CircuitState == gobreaker.StateOpen
}

// Registry tracks guarded sources and their health status.
type Registry struct {
	mu      sync.RWMutex
	clock   clockwork.Clock
	entries map[string]*registered
}

type registered struct {
	target        Monitored
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewRegistry creates a new registry using the real clock.
func NewRegistry() *Registry {
	return NewRegistryWithClock(clockwork.NewRealClock())
}

// NewRegistryWithClock creates a new registry that timestamps outcomes with clock.
func NewRegistryWithClock(clock clockwork.Clock) *Registry {
	return &Registry{
		clock:   clock,
		entries: make(map[string]*registered),
	}
}

// Register adds a guarded target to the registry, replacing any previous
// target of the same name.
func (r *Registry) Register(name string, target Monitored) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = &registered{target: target}
}

// Unregister removes a target from the registry.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// RecordSuccess records a successful request.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.entries[name]; ok {
		now := r.clock.Now()
		p.lastSuccessAt = &now
	}
}

// RecordFailure records a failed request.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.entries[name]; ok {
		now := r.clock.Now()
		p.lastFailureAt = &now
		if err != nil {
			p.lastError = err.Error()
		}
	}
}

// GetHealth returns the health status of a specific source, or nil.
func (r *Registry) GetHealth(name string) *SourceHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.entries[name]
	if !ok {
		return nil
	}
	return p.health(name)
}

// GetAllHealth returns the health status of all registered sources ordered
// by name.
func (r *Registry) GetAllHealth() []*SourceHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	health := make([]*SourceHealth, 0, len(r.entries))
	for name, p := range r.entries {
		health = append(health, p.health(name))
	}
	sort.Slice(health, func(i, j int) bool { return health[i].Name < health[j].Name })
	return health
}

// Count returns the number of registered sources.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (p *registered) health(name string) *SourceHealth {
	return &SourceHealth{
		Name:          name,
		CircuitState:  p.target.BreakerState(),
		Counts:        p.target.BreakerCounts(),
		LastSuccessAt: p.lastSuccessAt,
		LastFailureAt: p.lastFailureAt,
		LastError:     p.lastError,
	}
}
