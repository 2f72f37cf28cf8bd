package poller

import (
	"github.com/teem-market/teem/internal/market"
)

// State is the local, closed lifecycle model for a job.
//
// Job Lifecycle:
//
//	Pending → Running → Completed (terminal)
//	Pending → Running → Failed    (terminal)
//
// Transitions are strictly forward-only; a terminal job never moves again.
type State uint8

const (
	// StatePending indicates the job is on the ledger but not yet active.
	StatePending State = 1

	// StateRunning indicates the job is actively executing or revealing.
	StateRunning State = 2

	// StateCompleted indicates finalized success. Terminal.
	StateCompleted State = 3

	// StateFailed indicates the ledger reported failure or timeout. Terminal.
	StateFailed State = 4

	// StateUnknown marks a remote state string the mapping does not
	// recognize. It is reported and counted, never treated as Pending.
	StateUnknown State = 5
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// rank orders states for the forward-only transition guard.
func (s State) rank() int {
	switch s {
	case StatePending:
		return 0
	case StateRunning:
		return 1
	case StateCompleted, StateFailed:
		return 2
	default:
		return -1
	}
}

// MapRemoteState converts the ledger's free-form lifecycle string into the
// closed local model. This is the single boundary where remote vocabulary
// enters the orchestrator; everything it does not recognize becomes
// StateUnknown.
func MapRemoteState(remote market.RemoteState) State {
	switch remote {
	case market.RemoteStateUnset:
		return StatePending
	case market.RemoteStateActive, market.RemoteStateRevealing:
		return StateRunning
	case market.RemoteStateCompleted:
		return StateCompleted
	case market.RemoteStateFailed, market.RemoteStateTimeout:
		return StateFailed
	default:
		return StateUnknown
	}
}
