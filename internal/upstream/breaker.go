package upstream

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrCircuitOpen is returned while a service's breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerState represents the circuit breaker state
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Breaker stops calling a failing service for a cool-down period.
type Breaker struct {
	name             string
	failureThreshold uint32
	successThreshold uint32
	timeout          time.Duration

	failures    uint32
	successes   uint32
	lastFailure time.Time
	state       BreakerState
	mu          sync.Mutex

	logger *logrus.Logger
	now    func() time.Time
}

// NewBreaker creates a breaker that opens after failureThreshold consecutive
// failures and probes again after timeout.
func NewBreaker(name string, failureThreshold, successThreshold uint32, timeout time.Duration, logger *logrus.Logger) *Breaker {
	return &Breaker{
		name:             name,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		state:            StateClosed,
		logger:           logger,
		now:              time.Now,
	}
}

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(fn func() error) error {
	if b.State() == StateOpen {
		return ErrCircuitOpen
	}

	err := fn()
	if err != nil && countsAsFailure(err) {
		b.recordFailure()
	} else {
		b.recordSuccess()
	}
	return err
}

// State returns the current state, moving Open to HalfOpen once the timeout elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.lastFailure) > b.timeout {
		b.state = StateHalfOpen
		b.failures = 0
		b.successes = 0
	}
	return b.state
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()

	switch b.state {
	case StateClosed:
		if b.failures >= b.failureThreshold {
			b.state = StateOpen
			b.logger.WithFields(logrus.Fields{
				"service":  b.name,
				"failures": b.failures,
			}).Warn("Opening circuit breaker")
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.logger.WithField("service", b.name).Warn("Re-opening circuit breaker after failure in half-open state")
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successes++

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		if b.successes >= b.successThreshold {
			b.state = StateClosed
			b.failures = 0
			b.logger.WithField("service", b.name).Info("Closing circuit breaker")
		}
	}
}
