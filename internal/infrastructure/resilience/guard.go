package resilience

import (
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrGuardOpen is returned by Do while the guard refuses calls.
var ErrGuardOpen = errors.New("resilience: guard open")

// State is the circuit state of a Guard.
type State = gobreaker.State

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

// Settings configures a Guard. Zero values select the defaults.
type Settings struct {
	// MaxRequests is the number of trial calls allowed while half-open.
	MaxRequests uint32
	// Interval clears the failure counts while closed. Zero keeps them.
	Interval time.Duration
	// Timeout is how long the guard stays open before probing again.
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures that opens the guard.
	FailureThreshold uint32
	OnStateChange    func(name string, from, to State)
}

// PanicError carries a value recovered from a panicking call.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes a panicked error value.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// Guard protects calls with panic recovery and a circuit breaker.
type Guard struct {
	name string
	cb   *gobreaker.TwoStepCircuitBreaker[struct{}]
}

// NewGuard creates a guard.
func NewGuard(name string, s Settings) *Guard {
	if s.MaxRequests == 0 {
		s.MaxRequests = 1
	}
	if s.Timeout == 0 {
		s.Timeout = 30 * time.Second
	}
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	threshold := s.FailureThreshold

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}
	if s.OnStateChange != nil {
		st.OnStateChange = func(name string, from, to gobreaker.State) {
			s.OnStateChange(name, from, to)
		}
	}

	return &Guard{
		name: name,
		cb:   gobreaker.NewTwoStepCircuitBreaker[struct{}](st),
	}
}

// Name returns the guard name.
func (g *Guard) Name() string {
	return g.name
}

// State returns the current circuit state.
func (g *Guard) State() State {
	return g.cb.State()
}

// Do runs fn unless the guard is open. A nil Guard only recovers panics.
func (g *Guard) Do(fn func() error) error {
	if g == nil {
		return Protect(fn)
	}

	done, err := g.cb.Allow()
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrGuardOpen, g.name, err)
	}

	err = Protect(fn)
	done(err)
	return err
}

// Protect runs fn and converts a panic into a *PanicError.
func Protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn()
}
