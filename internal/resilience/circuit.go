// Package resilience wraps unreliable upstream calls: retries, circuit
// breaking, per-call timeouts and best-effort fan-out.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CircuitState is the state of a Breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected without reaching upstream.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// BreakerConfig controls when a Breaker opens and how long it stays open.
type BreakerConfig struct {
	// FailureThreshold is the consecutive failure count that opens the circuit. Default: 5.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before a probe. Default: 30s.
	Cooldown time.Duration
}

// Breaker is a consecutive-failure circuit breaker for one upstream service.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time

	now func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{name: name, cfg: cfg, now: time.Now}
}

// State returns the current state, reporting half-open once the cooldown has passed.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return CircuitHalfOpen
	}
	return b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != CircuitOpen {
		return nil
	}
	if b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		b.setState(CircuitHalfOpen)
		return nil
	}
	return ErrCircuitOpen
}

// record counts only transient failures; a 400 from upstream says nothing
// about its health.
func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || !IsTransient(err) {
		b.failures = 0
		if b.state == CircuitHalfOpen {
			b.setState(CircuitClosed)
		}
		return
	}

	b.failures++
	if b.state == CircuitHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.openedAt = b.now()
		b.setState(CircuitOpen)
	}
}

func (b *Breaker) setState(to CircuitState) {
	if b.state == to {
		return
	}
	zap.L().Info("circuit breaker state change",
		zap.String("service", b.name),
		zap.Stringer("from", b.state),
		zap.Stringer("to", to),
	)
	b.state = to
}

// Execute runs fn through the breaker.
func Execute[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.allow(); err != nil {
		return zero, eris.Wrapf(err, "%s", b.name)
	}
	val, err := fn(ctx)
	b.record(err)
	return val, err
}

// Breakers hands out one breaker per service name.
type Breakers struct {
	cfg BreakerConfig

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewBreakers creates an empty registry.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for service, creating it on first use.
func (r *Breakers) Get(service string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[service]
	if !ok {
		b = NewBreaker(service, r.cfg)
		r.breakers[service] = b
	}
	return b
}

// States snapshots every breaker's state for health reporting.
func (r *Breakers) States() map[string]string {
	r.mu.Lock()
	names := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		names = append(names, b)
	}
	r.mu.Unlock()

	out := make(map[string]string, len(names))
	for _, b := range names {
		out[b.name] = b.State().String()
	}
	return out
}
