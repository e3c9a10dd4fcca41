package trace

import (
	"math"

	"github.com/roach88/modeseq/internal/fsm"
)

// NoState is the state name recorded before the first major tick.
const NoState = "none"

// Tick is one evaluated tick.
//
// Inputs holds only the finite values that were present: a NaN, an
// infinity or a value beyond the end of a short vector is omitted, and
// InputVector restores it as NaN. The engine reads all of these as low.
type Tick struct {
	Seq        int64              `json:"seq" yaml:"seq"`
	Major      bool               `json:"major" yaml:"major"`
	Inputs     map[string]float64 `json:"inputs" yaml:"inputs"`
	From       string             `json:"from" yaml:"from"`
	State      string             `json:"state" yaml:"state"`
	Transition string             `json:"transition,omitempty" yaml:"transition,omitempty"`
	Outputs    map[string]float64 `json:"outputs" yaml:"outputs"`
}

// Capture builds the record of the tick m has just evaluated. from is the
// state m was in before the call. Minor ticks never carry a transition.
func Capture(m *fsm.Machine, seq int64, inputs []float64, major bool, from fsm.StateID) Tick {
	t := m.Table()
	tk := Tick{
		Seq:     seq,
		Major:   major,
		Inputs:  InputMap(t, inputs),
		From:    StateName(t, from),
		State:   StateName(t, m.State()),
		Outputs: OutputMap(t, m.Outputs()),
	}
	if major {
		tk.Transition = m.LastTransition()
	}
	return tk
}

// StateName is t.StateName with NoState for ids outside the table.
func StateName(t *fsm.Table, id fsm.StateID) string {
	if name := t.StateName(id); name != "" {
		return name
	}
	return NoState
}

// InputMap names the finite values of an input vector.
func InputMap(t *fsm.Table, inputs []float64) map[string]float64 {
	names := t.Inputs()
	m := make(map[string]float64, len(names))
	for i, name := range names {
		if i >= len(inputs) {
			break
		}
		if v := inputs[i]; !math.IsNaN(v) && !math.IsInf(v, 0) {
			m[name] = v
		}
	}
	return m
}

// OutputMap names the values of an output vector.
func OutputMap(t *fsm.Table, outputs []float64) map[string]float64 {
	names := t.Outputs()
	m := make(map[string]float64, len(names))
	for i, name := range names {
		if i < len(outputs) {
			m[name] = outputs[i]
		}
	}
	return m
}

// InputVector is the inverse of InputMap: it lays the recorded inputs out
// in t's input order, with NaN for anything not recorded.
func (tk Tick) InputVector(t *fsm.Table) []float64 {
	return Vector(t.Inputs(), tk.Inputs)
}

// Vector lays out named values in the given order, NaN where absent.
func Vector(names []string, values map[string]float64) []float64 {
	vec := make([]float64, len(names))
	for i, name := range names {
		v, ok := values[name]
		if !ok {
			v = math.NaN()
		}
		vec[i] = v
	}
	return vec
}

// Map returns the tick as a plain map for canonical encoding. Transition
// is omitted when empty.
func (tk Tick) Map() map[string]any {
	obj := map[string]any{
		"seq":     tk.Seq,
		"major":   tk.Major,
		"inputs":  tk.Inputs,
		"from":    tk.From,
		"state":   tk.State,
		"outputs": tk.Outputs,
	}
	if tk.Transition != "" {
		obj["transition"] = tk.Transition
	}
	return obj
}

// MarshalCanonical returns the canonical JSON form of the tick.
func (tk Tick) MarshalCanonical() ([]byte, error) {
	return MarshalCanonical(tk.Map())
}
