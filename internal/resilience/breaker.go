package resilience

import (
	"context"
	"sync"
	"time"
)

// State is the position of a circuit breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
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

// MarshalText renders the state name in JSON and YAML output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// BreakerConfig tunes a CircuitBreaker. Zero values fall back to defaults.
type BreakerConfig struct {
	// WindowSize is the number of most recent outcomes the failure ratio is computed over.
	WindowSize int `yaml:"window_size"`
	// FailureRatio opens the circuit once failures/WindowSize reaches it on a full window.
	FailureRatio float64 `yaml:"failure_ratio"`
	// Delay is how long the circuit stays open before admitting trial calls.
	Delay time.Duration `yaml:"delay"`
	// SuccessThreshold consecutive half-open successes close the circuit.
	SuccessThreshold int `yaml:"success_threshold"`
	// HalfOpenMaxCalls caps concurrent trial calls. Defaults to SuccessThreshold.
	HalfOpenMaxCalls int `yaml:"half_open_max_calls"`
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.WindowSize <= 0 {
		c.WindowSize = 10
	}
	if c.FailureRatio <= 0 || c.FailureRatio > 1 {
		c.FailureRatio = 0.6
	}
	if c.Delay <= 0 {
		c.Delay = 5 * time.Second
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = c.SuccessThreshold
	}
	return c
}

// StateListener is notified after every state transition, outside the breaker lock.
type StateListener func(name string, from, to State)

// BreakerOption customises a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithClock replaces the wall clock.
func WithClock(c Clock) BreakerOption {
	return func(b *CircuitBreaker) {
		if c != nil {
			b.clock = c
		}
	}
}

// WithStateListener registers fn for state transitions.
func WithStateListener(fn StateListener) BreakerOption {
	return func(b *CircuitBreaker) {
		if fn != nil {
			b.listeners = append(b.listeners, fn)
		}
	}
}

// BreakerSnapshot is a point-in-time view of a breaker, safe to serialise.
type BreakerSnapshot struct {
	Name      string    `json:"name"`
	State     State     `json:"state"`
	Calls     int       `json:"calls"`
	Failures  int       `json:"failures"`
	OpenUntil time.Time `json:"openUntil,omitzero"`
}

type transition struct {
	from, to State
}

// CircuitBreaker guards one dependency. All fields below mu are protected by it;
// outcome recording into the sliding window is serialised through the same lock.
type CircuitBreaker struct {
	name      string
	cfg       BreakerConfig
	clock     Clock
	listeners []StateListener

	mu         sync.Mutex
	state      State
	generation uint64
	window     []bool // true marks a failure
	next       int
	filled     int
	failures   int
	openUntil  time.Time
	trials     int
	successes  int
	pending    []transition
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(name string, cfg BreakerConfig, opts ...BreakerOption) *CircuitBreaker {
	cfg = cfg.withDefaults()
	b := &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		clock:  SystemClock,
		window: make([]bool, cfg.WindowSize),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the dependency name the breaker guards.
func (b *CircuitBreaker) Name() string { return b.name }

// Execute runs fn if the circuit admits the call and records its outcome.
// When the circuit rejects the call fn is not invoked and ErrCircuitOpen is returned.
func (b *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	gen, err := b.acquire()
	if err != nil {
		return err
	}
	err = fn(ctx)
	b.record(gen, classify(err))
	return err
}

// State returns the current state, moving OPEN to HALF_OPEN if the delay has elapsed.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.unlock()
	b.maybeHalfOpen()
	return b.state
}

// Snapshot returns the current counters.
func (b *CircuitBreaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.unlock()
	b.maybeHalfOpen()
	s := BreakerSnapshot{
		Name:     b.name,
		State:    b.state,
		Calls:    b.filled,
		Failures: b.failures,
	}
	if b.state == StateOpen {
		s.OpenUntil = b.openUntil
	}
	return s
}

// Reset forces the breaker closed with an empty window.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.unlock()
	b.transitionTo(StateClosed)
}

func (b *CircuitBreaker) acquire() (uint64, error) {
	b.mu.Lock()
	defer b.unlock()

	b.maybeHalfOpen()
	switch b.state {
	case StateOpen:
		return 0, ErrCircuitOpen
	case StateHalfOpen:
		if b.trials >= b.cfg.HalfOpenMaxCalls {
			return 0, ErrCircuitOpen
		}
		b.trials++
	}
	return b.generation, nil
}

func (b *CircuitBreaker) record(gen uint64, o outcome) {
	b.mu.Lock()
	defer b.unlock()

	// The state moved on while this call was in flight.
	if gen != b.generation {
		return
	}

	switch b.state {
	case StateClosed:
		if o == outcomeIgnored {
			return
		}
		b.push(o == outcomeFailure)
		if b.filled == b.cfg.WindowSize &&
			float64(b.failures)/float64(b.cfg.WindowSize) >= b.cfg.FailureRatio {
			b.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		b.trials--
		switch o {
		case outcomeFailure:
			b.transitionTo(StateOpen)
		case outcomeSuccess:
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.transitionTo(StateClosed)
			}
		}
	}
}

// push appends one outcome to the ring, evicting the oldest when full.
func (b *CircuitBreaker) push(failed bool) {
	if b.filled == len(b.window) {
		if b.window[b.next] {
			b.failures--
		}
	} else {
		b.filled++
	}
	b.window[b.next] = failed
	if failed {
		b.failures++
	}
	b.next = (b.next + 1) % len(b.window)
}

func (b *CircuitBreaker) maybeHalfOpen() {
	if b.state == StateOpen && !b.clock.Now().Before(b.openUntil) {
		b.transitionTo(StateHalfOpen)
	}
}

// transitionTo must be called with mu held.
func (b *CircuitBreaker) transitionTo(to State) {
	from := b.state
	b.state = to
	b.generation++
	b.trials = 0
	b.successes = 0

	switch to {
	case StateClosed:
		clear(b.window)
		b.next, b.filled, b.failures = 0, 0, 0
		b.openUntil = time.Time{}
	case StateOpen:
		b.openUntil = b.clock.Now().Add(b.cfg.Delay)
	}

	if from != to {
		b.pending = append(b.pending, transition{from: from, to: to})
	}
}

// unlock releases mu and then notifies listeners of queued transitions.
func (b *CircuitBreaker) unlock() {
	events := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, e := range events {
		for _, fn := range b.listeners {
			fn(b.name, e.from, e.to)
		}
	}
}
