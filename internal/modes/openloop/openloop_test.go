package openloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/modeseq/internal/fsm"
)

func TestBindingMatchesTable(t *testing.T) {
	require.NoError(t, fsm.CheckBinding(Table(), Inputs{}, Outputs{}))
}

func TestStateValuesMatchTable(t *testing.T) {
	for _, s := range []State{Idle, GridForming, Fault} {
		id, ok := Table().Lookup(s.String())
		require.True(t, ok, s.String())
		assert.Equal(t, fsm.StateID(s), id)
	}
}

func TestOpenLoopCycle(t *testing.T) {
	c := NewController()

	out := c.Evaluate(Inputs{}, true)
	require.Equal(t, Idle, c.State())
	assert.Equal(t, fsm.InitialTransition, c.LastTransition())
	assert.Equal(t, Outputs{Mode: ModeIdle}, out)

	out = c.Evaluate(Inputs{StartUp: true}, true)
	assert.Equal(t, GridForming, c.State())
	assert.Equal(t, "idle/1", c.LastTransition())
	assert.Equal(t, Outputs{ENOL: 1, Mode: ModeGridForming, Units0: 1}, out)

	// Keeping the state re-asserts the same outputs.
	assert.Equal(t, out, c.Evaluate(Inputs{StartUp: true}, true))
	assert.Equal(t, "", c.LastTransition())

	c.Evaluate(Inputs{StartUp: true, ShutDown: true}, true)
	require.Equal(t, GridForming, c.State())

	out = c.Evaluate(Inputs{StartUp: true}, true)
	assert.Equal(t, Idle, c.State())
	assert.Equal(t, "grid_forming/2", c.LastTransition())
	assert.Equal(t, Outputs{Mode: ModeIdle}, out)

	// start_up never went low, so idle holds.
	c.Evaluate(Inputs{StartUp: true}, true)
	assert.Equal(t, Idle, c.State())
}

func TestErrorLatchesFault(t *testing.T) {
	c := NewController()
	c.Evaluate(Inputs{}, true)
	c.Evaluate(Inputs{StartUp: true}, true)

	c.Evaluate(Inputs{StartUp: true, ShutDown: true}, true)

	// error rises and shut_down is released on the same tick: error is checked first.
	out := c.Evaluate(Inputs{Error: true}, true)
	assert.Equal(t, Fault, c.State())
	assert.Equal(t, "grid_forming/1", c.LastTransition())
	assert.Equal(t, Outputs{Mode: ModeFault, Units0: 1, Units3: 1}, out)

	for bits := 0; bits < 1<<numInputs; bits++ {
		for _, major := range []bool{true, false} {
			in := Inputs{StartUp: bits&1 != 0, ShutDown: bits&2 != 0, Error: bits&4 != 0}
			assert.Equal(t, out, c.Evaluate(in, major))
			assert.Equal(t, Fault, c.State())
		}
	}
}

func TestStartReturnsToNone(t *testing.T) {
	c := NewController()
	c.Evaluate(Inputs{}, true)
	c.Evaluate(Inputs{StartUp: true}, true)

	c.Start()
	assert.Equal(t, None, c.State())
	assert.Equal(t, "none", c.State().String())

	c.Evaluate(Inputs{StartUp: true}, true)
	assert.Equal(t, Idle, c.State())
	assert.Same(t, Table(), c.Machine().Table())
}
