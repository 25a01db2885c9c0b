package purchase

import "fmt"

// State tracks a single purchase attempt through the orchestrator. The
// ledger row only ever sees pending/success/failed; these states exist so
// every step change is checked against the legal flow instead of relying on
// ad hoc status strings.
type State string

const (
	StateInitiated      State = "INITIATED"
	StateAuthorized     State = "AUTHORIZED"
	StateReserved       State = "RESERVED"
	StateFulfilling     State = "FULFILLING"
	StateSettledSuccess State = "SETTLED_SUCCESS"
	StateSettledFailed  State = "SETTLED_FAILED"
	StateSettledPending State = "SETTLED_PENDING"
)

var stateTransitions = map[State][]State{
	StateInitiated:  {StateAuthorized},
	StateAuthorized: {StateReserved},
	StateReserved:   {StateFulfilling},
	StateFulfilling: {StateSettledSuccess, StateSettledFailed, StateSettledPending},
	// Settled states are terminal within an attempt; a pending settlement is
	// resolved later by the reconciliation path, not by the orchestrator.
	StateSettledSuccess: {},
	StateSettledFailed:  {},
	StateSettledPending: {},
}

// IsValidStateTransition checks if moving from one attempt state to another
// is allowed.
func IsValidStateTransition(from, to State) bool {
	allowed, exists := stateTransitions[from]
	if !exists {
		return false
	}
	for _, validTo := range allowed {
		if validTo == to {
			return true
		}
	}
	return false
}

// attempt carries the state of one purchase through the orchestrator.
type attempt struct {
	state State
}

func newAttempt() *attempt {
	return &attempt{state: StateInitiated}
}

func (a *attempt) transition(to State) error {
	if !IsValidStateTransition(a.state, to) {
		return fmt.Errorf("illegal purchase state transition %s -> %s", a.state, to)
	}
	a.state = to
	return nil
}

// Terminal reports whether the attempt has settled.
func (s State) Terminal() bool {
	return s == StateSettledSuccess || s == StateSettledFailed || s == StateSettledPending
}
