// Package circuitbreaker guards the REST transport against a failing
// endpoint: after enough consecutive failures calls are short-circuited
// until a cool-down elapses and a probe succeeds.
package circuitbreaker

import (
	"sync"
	"time"
)

// State is the breaker position.
type State int32

const (
	// StateClosed passes all calls through.
	StateClosed State = iota
	// StateOpen rejects calls until the cool-down elapses.
	StateOpen
	// StateHalfOpen admits probe calls while deciding whether to close.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config sets the trip and recovery thresholds.
type Config struct {
	// FailThreshold is the consecutive-failure count that opens the breaker.
	FailThreshold int `json:"fail_threshold"`
	// SuccessThreshold is the probe-success count that closes it again.
	SuccessThreshold int `json:"success_threshold"`
	// Timeout is the cool-down before an open breaker admits a probe.
	Timeout time.Duration `json:"timeout"`
}

// Breaker is a consecutive-failure circuit breaker. All transitions run
// under one mutex; the call volume here is bounded by the HTTP rate
// limiter, so contention is not a concern.
type Breaker struct {
	config Config

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time

	total     int64
	succeeded int64
	failed    int64
	trips     int64

	now func() time.Time
}

// New creates a closed Breaker.
func New(config Config) *Breaker {
	return &Breaker{
		config: config,
		state:  StateClosed,
		now:    time.Now,
	}
}

// Allow reports whether a call may proceed. An open breaker past its
// cool-down flips to half-open and admits the call as a probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total++
	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.config.Timeout {
			return false
		}
		b.shift(StateHalfOpen)
	}
	return true
}

// Record feeds a call outcome back into the breaker.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.succeeded++
	} else {
		b.failed++
	}

	switch b.state {
	case StateClosed:
		if success {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.config.FailThreshold {
			b.trip()
		}
	case StateHalfOpen:
		if !success {
			b.trip()
			return
		}
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.shift(StateClosed)
			b.failures = 0
			b.successes = 0
		}
	case StateOpen:
		// Outcome of a call admitted before the trip; nothing to update.
	}
}

func (b *Breaker) trip() {
	b.shift(StateOpen)
	b.openedAt = b.now()
	b.successes = 0
}

func (b *Breaker) shift(to State) {
	b.state = to
	b.trips++
}

// State returns the current breaker position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset force-closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
}

// Failures returns the consecutive-failure count since the last success.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// MetricsSnapshot is a point-in-time view of breaker activity.
type MetricsSnapshot struct {
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	StateChanges    int64
	CurrentState    string
}

// Metrics returns cumulative call and transition counts.
func (b *Breaker) Metrics() MetricsSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return MetricsSnapshot{
		TotalRequests:   b.total,
		SuccessRequests: b.succeeded,
		FailedRequests:  b.failed,
		StateChanges:    b.trips,
		CurrentState:    b.state.String(),
	}
}
