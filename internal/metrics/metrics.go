package metrics

import "time"

// MetricsCollector records ledger activity. Implementations export to a
// metrics backend; NoOpCollector is used when none is configured.
type MetricsCollector interface {
	RecordTransferPosted(ledger uint32, amount uint64, duration time.Duration)
	RecordTransferRejected(reason string, duration time.Duration)
	RecordAccountCreated(ledger uint32)
	RecordCircuitState(name string, state CircuitState)
}

// CircuitState represents the state of a storage circuit breaker.
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

type NoOpCollector struct{}

func (NoOpCollector) RecordTransferPosted(ledger uint32, amount uint64, duration time.Duration) {}
func (NoOpCollector) RecordTransferRejected(reason string, duration time.Duration)             {}
func (NoOpCollector) RecordAccountCreated(ledger uint32)                                       {}
func (NoOpCollector) RecordCircuitState(name string, state CircuitState)                       {}
