package machine

import (
	"errors"
	"fmt"
)

// ErrAlreadyCompiled is returned by SetTransition or Compile when called on
// a machine that has already been compiled.
var ErrAlreadyCompiled = errors.New("machine: already compiled")

// ErrNotCompiled is returned by HandleEvent when Compile has not been
// called yet.
var ErrNotCompiled = errors.New("machine: not compiled")

// Reason classifies why Compile rejected a transition graph.
type Reason int

const (
	// Unreachable means a valid state cannot be reached from the initial
	// state via any sequence of registered transitions.
	Unreachable Reason = iota
	// NoPathToEnd means a valid state has no forward path to any end state.
	NoPathToEnd
	// InvalidState means a transition, the initial state, or an end state
	// references a state outside the machine's valid-state set.
	InvalidState
)

func (r Reason) String() string {
	switch r {
	case Unreachable:
		return "unreachable"
	case NoPathToEnd:
		return "no path to end state"
	case InvalidState:
		return "invalid state"
	default:
		return "unknown"
	}
}

// CompilationError is returned by Compile when the transition graph fails
// validation. States lists every offending state; Reason classifies the
// single failure mode that produced this error (Compile returns on the
// first failing check rather than merging multiple reasons).
type CompilationError[S any] struct {
	Reason Reason
	States []S
}

func (e *CompilationError[S]) Error() string {
	return fmt.Sprintf("machine: compilation failed (%s): %v", e.Reason, e.States)
}

// NoTransitionError is returned by HandleEvent when no transition is
// registered for (From, Event).
type NoTransitionError[S any, E any] struct {
	From  S
	Event E
}

func (e *NoTransitionError[S, E]) Error() string {
	return fmt.Sprintf("machine: no transition from state %v on event %v", e.From, e.Event)
}

// CycleLimitError is returned by HandleEvent when entering State would
// exceed its compile-time revisit budget.
type CycleLimitError[S any] struct {
	State S
}

func (e *CycleLimitError[S]) Error() string {
	return fmt.Sprintf("machine: cycle limit exceeded re-entering state %v", e.State)
}
