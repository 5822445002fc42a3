package circuitbreaker

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// State represents the current state of the circuit breaker
type State int

const (
	// StateClosed means upstream calls pass through
	StateClosed State = iota
	// StateOpen means upstream calls fail fast
	StateOpen
	// StateHalfOpen means a limited number of probe calls are let through
	StateHalfOpen
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// StateChangeFunc is notified after every state transition.
type StateChangeFunc func(name string, from, to State)

// Config contains the configuration for a circuit breaker
type Config struct {
	FailureThreshold int           // consecutive failures before opening
	Timeout          time.Duration // time spent OPEN before probing in HALF-OPEN
	HalfOpenRequests int           // probe calls allowed in HALF-OPEN
	Name             string        // upstream identifier used in logs (optional)
	Logger           *slog.Logger  // optional
	OnStateChange    StateChangeFunc
}

// CircuitBreaker guards calls to a single upstream.
type CircuitBreaker interface {
	// Execute runs fn if the circuit allows it
	Execute(fn func() error) error
	State() State
	Reset()
}

var (
	// ErrCircuitOpen is returned when the circuit breaker is in OPEN state
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrHalfOpenLimitReached is returned when too many probes are in flight in HALF-OPEN state
	ErrHalfOpenLimitReached = errors.New("circuit breaker half-open request limit reached")
)

// Ignore marks err as an outcome that says nothing about the upstream, such as a
// cancelled caller. Execute neither counts it as a failure nor as a success,
// frees the HALF-OPEN probe slot and returns err unwrapped.
func Ignore(err error) error {
	if err == nil {
		return nil
	}
	return &ignoredError{err: err}
}

type ignoredError struct {
	err error
}

func (e *ignoredError) Error() string { return e.err.Error() }
func (e *ignoredError) Unwrap() error { return e.err }

type breaker struct {
	config Config
	now    func() time.Time
	mu     sync.Mutex

	state             State
	failureCount      int
	halfOpenRequests  int
	halfOpenSuccesses int
	openedAt          time.Time
}

// New creates a new circuit breaker. Zero config values fall back to defaults.
func New(cfg Config) CircuitBreaker {
	return newBreaker(cfg)
}

func newBreaker(cfg Config) *breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenRequests <= 0 {
		cfg.HalfOpenRequests = 1
	}

	return &breaker{
		config: cfg,
		now:    time.Now,
		state:  StateClosed,
	}
}

// Execute runs fn when the circuit is CLOSED, or as a probe when HALF-OPEN.
func (b *breaker) Execute(fn func() error) error {
	var changes []transition

	b.mu.Lock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.config.Timeout {
		changes = append(changes, b.transitionTo(StateHalfOpen))
	}

	switch b.state {
	case StateOpen:
		b.mu.Unlock()
		b.notify(changes)
		return ErrCircuitOpen

	case StateHalfOpen:
		if b.halfOpenRequests >= b.config.HalfOpenRequests {
			b.mu.Unlock()
			b.notify(changes)
			return ErrHalfOpenLimitReached
		}
		b.halfOpenRequests++
	}
	b.mu.Unlock()
	b.notify(changes)

	err := fn()

	b.mu.Lock()
	var ignored *ignoredError
	if errors.As(err, &ignored) {
		if b.state == StateHalfOpen && b.halfOpenRequests > 0 {
			b.halfOpenRequests--
		}
		b.mu.Unlock()
		return ignored.err
	}

	changes = changes[:0]
	switch b.state {
	case StateHalfOpen:
		if err != nil {
			changes = append(changes, b.transitionTo(StateOpen))
		} else {
			b.halfOpenSuccesses++
			if b.halfOpenSuccesses >= b.config.HalfOpenRequests {
				changes = append(changes, b.transitionTo(StateClosed))
			}
		}
	case StateClosed:
		if err != nil {
			b.failureCount++
			if b.failureCount >= b.config.FailureThreshold {
				changes = append(changes, b.transitionTo(StateOpen))
			}
		} else {
			b.failureCount = 0
		}
	}
	b.mu.Unlock()
	b.notify(changes)

	return err
}

// State returns the current state of the circuit breaker
func (b *breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the circuit breaker back to CLOSED
func (b *breaker) Reset() {
	b.mu.Lock()
	change := b.transitionTo(StateClosed)
	b.mu.Unlock()
	b.notify([]transition{change})
}

type transition struct {
	from, to State
}

// transitionTo changes the state and resets the counters of the new state.
// Must be called with lock held.
func (b *breaker) transitionTo(newState State) transition {
	change := transition{from: b.state, to: newState}
	if b.state == newState {
		return change
	}
	b.state = newState

	switch newState {
	case StateClosed:
		b.failureCount = 0
		b.halfOpenRequests = 0
		b.halfOpenSuccesses = 0
		b.openedAt = time.Time{}

	case StateOpen:
		b.openedAt = b.now()
		b.halfOpenRequests = 0
		b.halfOpenSuccesses = 0

	case StateHalfOpen:
		b.halfOpenRequests = 0
		b.halfOpenSuccesses = 0
	}

	return change
}

// notify reports transitions outside the lock so callbacks may query the breaker.
func (b *breaker) notify(changes []transition) {
	for _, c := range changes {
		if c.from == c.to {
			continue
		}
		if b.config.Logger != nil {
			b.config.Logger.Warn("circuit breaker state changed",
				"upstream", b.config.Name,
				"old_state", c.from.String(),
				"new_state", c.to.String(),
			)
		}
		if b.config.OnStateChange != nil {
			b.config.OnStateChange(b.config.Name, c.from, c.to)
		}
	}
}

// Registry hands out one circuit breaker per upstream name, created on first use.
type Registry struct {
	config Config

	mu       sync.Mutex
	breakers map[string]CircuitBreaker
}

// NewRegistry creates a registry whose breakers share cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		config:   cfg,
		breakers: make(map[string]CircuitBreaker),
	}
}

// For returns the breaker guarding name.
func (r *Registry) For(name string) CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cfg := r.config
	cfg.Name = name
	cb := New(cfg)
	r.breakers[name] = cb
	return cb
}
