package deploy

import "fmt"

// State is the lifecycle position of one deployment directory.
type State int

const (
	StatePreparing State = iota
	StateValidating
	StateAborted
	StateValidated
	StateDeploying
	StateFailed
	StateDeployed
)

var stateNames = map[State]string{
	StatePreparing:  "PREPARING",
	StateValidating: "VALIDATING",
	StateAborted:    "ABORTED",
	StateValidated:  "VALIDATED",
	StateDeploying:  "DEPLOYING",
	StateFailed:     "FAILED",
	StateDeployed:   "DEPLOYED",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var transitions = map[State][]State{
	StatePreparing:  {StateValidating, StateAborted},
	StateValidating: {StateAborted, StateValidated},
	StateValidated:  {StateDeploying},
	StateDeploying:  {StateFailed, StateDeployed},
}

// Terminal states have no outgoing transition.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether to is reachable from s in one step.
func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// machine tracks the state of a single run and refuses illegal moves.
type machine struct {
	state   State
	observe func(from, to State)
}

func (m *machine) to(next State) {
	if m.state.Terminal() {
		panic(fmt.Sprintf("deploy: %s is final, cannot move to %s", m.state, next))
	}
	if !m.state.CanTransition(next) {
		panic(fmt.Sprintf("deploy: illegal transition %s -> %s", m.state, next))
	}
	prev := m.state
	m.state = next
	if m.observe != nil {
		m.observe(prev, next)
	}
}
