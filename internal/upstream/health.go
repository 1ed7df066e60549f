package upstream

import (
	"sync"
	"time"
)

// HealthStatus represents the health of an upstream service
type HealthStatus struct {
	Healthy      bool      `json:"healthy"`
	Breaker      string    `json:"breaker"`
	LastCheck    time.Time `json:"last_check"`
	LastError    string    `json:"last_error,omitempty"`
	ResponseTime int64     `json:"response_time_ms"`
	ErrorCount   int       `json:"error_count"`
	SuccessCount int       `json:"success_count"`
	ErrorRate    float64   `json:"error_rate"`
}

// Health tracks call outcomes per upstream service
type Health struct {
	health map[string]*HealthStatus
	mu     sync.RWMutex
}

// NewHealth creates an empty health registry
func NewHealth() *Health {
	return &Health{health: make(map[string]*HealthStatus)}
}

// RecordSuccess records a successful request
func (h *Health) RecordSuccess(service string, responseTime time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	status := h.getOrCreate(service)
	status.SuccessCount++
	status.ResponseTime = responseTime.Milliseconds()
	status.LastCheck = time.Now()
	status.Healthy = true
	status.LastError = ""
	updateErrorRate(status)
}

// RecordError records a failed request
func (h *Health) RecordError(service string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	status := h.getOrCreate(service)
	status.ErrorCount++
	status.LastError = err.Error()
	status.LastCheck = time.Now()
	updateErrorRate(status)

	// Mark unhealthy if error rate is too high
	if status.ErrorRate > 0.5 && status.ErrorCount > 5 {
		status.Healthy = false
	}
}

func (h *Health) setBreaker(service string, state BreakerState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.getOrCreate(service).Breaker = state.String()
}

func (h *Health) getOrCreate(service string) *HealthStatus {
	status, ok := h.health[service]
	if !ok {
		status = &HealthStatus{Healthy: true, Breaker: StateClosed.String()}
		h.health[service] = status
	}
	return status
}

func updateErrorRate(status *HealthStatus) {
	total := status.SuccessCount + status.ErrorCount
	if total > 0 {
		status.ErrorRate = float64(status.ErrorCount) / float64(total)
	}
}

// Snapshot returns a copy of every service's status
func (h *Health) Snapshot() map[string]HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]HealthStatus, len(h.health))
	for k, v := range h.health {
		out[k] = *v
	}
	return out
}
