package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testInputs struct {
	Go   bool `signal:"go"`
	Stop bool `signal:"stop"`
	Trip bool `signal:"trip"`
}

type testOutputs struct {
	Mode float64 `signal:"mode"`
	Lamp float64 `signal:"lamp"`

	scratch int
}

func TestSignalNames(t *testing.T) {
	names, err := SignalNames(testInputs{})
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "stop", "trip"}, names)

	names, err = SignalNames(&testOutputs{})
	require.NoError(t, err)
	assert.Equal(t, []string{"mode", "lamp"}, names)

	_, err = SignalNames(struct{ Untagged bool }{})
	assert.ErrorContains(t, err, "has no signal tag")

	_, err = SignalNames(3)
	assert.ErrorContains(t, err, "not a struct")

	_, err = SignalNames(nil)
	assert.Error(t, err)
}

func TestCheckBinding(t *testing.T) {
	tbl := MustCompile(testDefinition())

	assert.NoError(t, CheckBinding(tbl, testInputs{}, testOutputs{}))

	type reordered struct {
		Stop bool `signal:"stop"`
		Go   bool `signal:"go"`
		Trip bool `signal:"trip"`
	}
	assert.ErrorContains(t, CheckBinding(tbl, reordered{}, testOutputs{}), "input binding")
	assert.ErrorContains(t, CheckBinding(tbl, testInputs{}, testInputs{}), "output binding")
}

func TestLevel(t *testing.T) {
	assert.Equal(t, 1.0, Level(true))
	assert.Equal(t, 0.0, Level(false))
}
