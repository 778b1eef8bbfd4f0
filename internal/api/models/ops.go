package models

import (
	"github.com/skybrief/skybrief/internal/provider/resilience"
	"github.com/skybrief/skybrief/internal/source"
)

// Health is the body of the liveness and readiness probes.
type Health struct {
	Status  HealthStatus   `json:"status"`
	Time    Timestamp      `json:"time"`
	Details map[string]any `json:"details,omitempty"`
}

// SystemStatus is the body of GET /v1/ops/status.
type SystemStatus struct {
	Status  HealthStatus   `json:"status"`
	Time    Timestamp      `json:"time"`
	Version string         `json:"version"`
	Sources []SourceStatus `json:"sources"`
	Cache   source.Stats   `json:"cache"`
}

// SourceStatus is the health of one upstream source.
type SourceStatus struct {
	Name                string       `json:"name"`
	Status              HealthStatus `json:"status"`
	CircuitState        string       `json:"circuitState"`
	Requests            uint32       `json:"requests"`
	ConsecutiveFailures uint32       `json:"consecutiveFailures"`
	LastSuccessAt       *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *Timestamp   `json:"lastFailureAt,omitempty"`
	LastError           string       `json:"lastError,omitempty"`
}

// NewSourceStatus maps a registry health record.
func NewSourceStatus(h *resilience.SourceHealth) SourceStatus {
	status := HealthStatusOK
	switch {
	case h.IsUnhealthy():
		status = HealthStatusFail
	case h.IsDegraded():
		status = HealthStatusDegraded
	}
	return SourceStatus{
		Name:                h.Name,
		Status:              status,
		CircuitState:        h.CircuitState.String(),
		Requests:            h.Counts.Requests,
		ConsecutiveFailures: h.Counts.ConsecutiveFailures,
		LastSuccessAt:       TimestampPtr(h.LastSuccessAt),
		LastFailureAt:       TimestampPtr(h.LastFailureAt),
		LastError:           h.LastError,
	}
}

// Rollup derives the overall status: FAIL when every source is failing,
// DEGRADED when any is, OK otherwise. Synthetic data keeps the engine
// answering, so an all-FAIL rollup is reported but not fatal.
func Rollup(sources []SourceStatus) HealthStatus {
	if len(sources) == 0 {
		return HealthStatusOK
	}
	failing := 0
	degraded := false
	for _, s := range sources {
		switch s.Status {
		case HealthStatusFail:
			failing++
			degraded = true
		case HealthStatusDegraded:
			degraded = true
		}
	}
	switch {
	case failing == len(sources):
		return HealthStatusFail
	case degraded:
		return HealthStatusDegraded
	}
	return HealthStatusOK
}
