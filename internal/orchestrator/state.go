// Package orchestrator sequences scan, authorization, claim and reveal into one flow.
package orchestrator

import "fmt"

// State is the orchestrator's flow state
type State string

const (
	StateIdle        State = "idle"
	StateScanning    State = "scanning"
	StateTokenFound  State = "token_found"
	StateAuthorizing State = "authorizing"
	StateClaiming    State = "claiming"
	StatePresenting  State = "presenting"
	StateDone        State = "done"
	StateError       State = "error"
)

var allowedTransitions = map[State]map[State]struct{}{
	StateIdle: {
		StateScanning:    {},
		StateAuthorizing: {},
	},
	StateScanning: {
		StateTokenFound:  {},
		StateAuthorizing: {},
		StateError:       {},
		StateIdle:        {},
	},
	StateTokenFound: {
		StateAuthorizing: {},
		StateError:       {},
		StateIdle:        {},
	},
	StateAuthorizing: {
		StateClaiming: {},
		StateError:    {},
		StateIdle:     {},
	},
	StateClaiming: {
		StatePresenting: {},
		StateError:      {},
		StateIdle:       {},
	},
	StatePresenting: {
		StateDone:  {},
		StateError: {},
		StateIdle:  {},
	},
	StateDone: {
		StateScanning:    {},
		StateAuthorizing: {},
		StateIdle:        {},
	},
	StateError: {
		StateScanning:    {},
		StateAuthorizing: {},
		StateIdle:        {},
	},
}

// ValidateState checks that state is known
func ValidateState(state State) error {
	if _, ok := allowedTransitions[state]; !ok {
		return fmt.Errorf("invalid orchestrator state: %q", state)
	}
	return nil
}

// ValidateTransition checks that from -> to is allowed
func ValidateTransition(from, to State) error {
	if err := ValidateState(from); err != nil {
		return err
	}
	if err := ValidateState(to); err != nil {
		return err
	}
	if _, ok := allowedTransitions[from][to]; !ok {
		return fmt.Errorf("invalid orchestrator transition: %s -> %s", from, to)
	}
	return nil
}

// Terminal reports whether a flow has ended in state
func (s State) Terminal() bool {
	return s == StateDone || s == StateError
}

// midFlow reports whether a flow is in progress and new tokens must be ignored
func (s State) midFlow() bool {
	switch s {
	case StateTokenFound, StateAuthorizing, StateClaiming, StatePresenting:
		return true
	}
	return false
}
