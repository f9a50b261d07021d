package deploy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMachine(t *testing.T) {
	var seen []State
	m := &machine{state: StatePreparing, observe: func(_, to State) { seen = append(seen, to) }}

	m.to(StateValidating)
	m.to(StateAborted)
	assert.Equal(t, []State{StateValidating, StateAborted}, seen)

	assert.PanicsWithValue(t, "deploy: ABORTED is final, cannot move to DEPLOYING", func() { m.to(StateDeploying) })
	assert.Panics(t, func() { (&machine{state: StateValidating}).to(StateDeploying) })
}
