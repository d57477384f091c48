/*
Package resilience guards calls into infrastructure that must never take a
request down with it, such as the tracer.

# Overview

A Guard runs a function, turns panics into errors and feeds the outcome into
a sony/gobreaker two-step circuit breaker. After enough consecutive failures
the guard opens and further calls are refused immediately, so callers can
skip the faulty dependency instead of paying for it on every request.

# Usage

	guard := resilience.NewGuard("tracer", resilience.Settings{
		FailureThreshold: 5,
		Timeout:          30 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("guard state changed",
				zap.String("guard", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})

	err := guard.Do(func() error {
		return tracer.Call()
	})
	if errors.Is(err, resilience.ErrGuardOpen) {
		// dependency disabled for now
	}

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience
