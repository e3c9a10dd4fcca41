// Package openloop is the three-state open-loop mode table used for bench
// bring-up: the bridge either idles, forms the grid in open loop, or latches
// a fault.
//
// Transitions, in priority order:
//
//	idle          start_up  rising  -> grid_forming
//	grid_forming  error     rising  -> fault
//	              shut_down falling -> idle
//	fault         (none)
package openloop

import "github.com/roach88/modeseq/internal/fsm"

// Name is the registry name of this table.
const Name = "open-loop"

// State is an open-loop state. Values equal the table's fsm.StateID.
type State fsm.StateID

const (
	None State = iota
	Idle
	GridForming
	Fault
)

func (s State) String() string {
	if name := table.StateName(fsm.StateID(s)); name != "" {
		return name
	}
	return "none"
}

// Mode codes written to the "mode" output.
const (
	ModeIdle        = 0
	ModeGridForming = 1
	ModeFault       = 9
)

// Inputs is the typed input vector.
type Inputs struct {
	StartUp  bool `signal:"start_up"`
	ShutDown bool `signal:"shut_down"`
	Error    bool `signal:"error"`
}

const numInputs = 3

func (in Inputs) encode(dst *[numInputs]float64) {
	dst[0] = fsm.Level(in.StartUp)
	dst[1] = fsm.Level(in.ShutDown)
	dst[2] = fsm.Level(in.Error)
}

// Outputs is the typed output vector.
type Outputs struct {
	ENOL   float64 `signal:"en_ol"`
	Mode   float64 `signal:"mode"`
	Units0 float64 `signal:"units0"`
	Units1 float64 `signal:"units1"`
	Units2 float64 `signal:"units2"`
	Units3 float64 `signal:"units3"`
}

func decodeOutputs(v []float64) Outputs {
	return Outputs{
		ENOL:   v[0],
		Mode:   v[1],
		Units0: v[2],
		Units1: v[3],
		Units2: v[4],
		Units3: v[5],
	}
}

func outputs(enOL, mode, u0, u1, u2, u3 float64) map[string]float64 {
	return map[string]float64{
		"en_ol":  enOL,
		"mode":   mode,
		"units0": u0,
		"units1": u1,
		"units2": u2,
		"units3": u3,
	}
}

// Definition returns a fresh copy of the open-loop table definition.
// No state has a distinct during action: keeping a state re-asserts its
// entry outputs.
func Definition() fsm.Definition {
	idle := func() map[string]float64 { return outputs(0, ModeIdle, 0, 0, 0, 0) }
	forming := func() map[string]float64 { return outputs(1, ModeGridForming, 1, 0, 0, 0) }
	fault := func() map[string]float64 { return outputs(0, ModeFault, 1, 0, 0, 1) }

	return fsm.Definition{
		Name:    Name,
		Inputs:  []string{"start_up", "shut_down", "error"},
		Outputs: []string{"en_ol", "mode", "units0", "units1", "units2", "units3"},
		Initial: "idle",
		States: []fsm.StateDef{
			{
				Name:   "idle",
				Entry:  idle(),
				During: idle(),
				Tracks: []string{"start_up"},
				Transitions: []fsm.TransitionDef{
					{Edge: fsm.Rising, Signal: "start_up", Target: "grid_forming"},
				},
			},
			{
				Name:   "grid_forming",
				Entry:  forming(),
				During: forming(),
				Tracks: []string{"error", "shut_down"},
				Transitions: []fsm.TransitionDef{
					{Edge: fsm.Rising, Signal: "error", Target: "fault"},
					{Edge: fsm.Falling, Signal: "shut_down", Target: "idle"},
				},
			},
			{
				Name:   "fault",
				Entry:  fault(),
				During: fault(),
			},
		},
	}
}

var table = fsm.MustCompile(Definition())

// Table returns the compiled open-loop table.
func Table() *fsm.Table { return table }

// Controller is an open-loop machine behind typed inputs and outputs.
type Controller struct {
	m   *fsm.Machine
	buf [numInputs]float64
}

// NewController creates a started controller.
func NewController(opts ...fsm.Option) *Controller {
	return &Controller{m: fsm.New(table, opts...)}
}

// Start resets the controller; see fsm.Machine.Start.
func (c *Controller) Start() { c.m.Start() }

// Evaluate runs one tick; see fsm.Machine.Evaluate.
func (c *Controller) Evaluate(in Inputs, major bool) Outputs {
	in.encode(&c.buf)
	return decodeOutputs(c.m.Evaluate(c.buf[:], major))
}

// State returns the current state.
func (c *Controller) State() State { return State(c.m.State()) }

// LastTransition names the transition taken by the last major step.
func (c *Controller) LastTransition() string { return c.m.LastTransition() }

// Machine exposes the underlying machine.
func (c *Controller) Machine() *fsm.Machine { return c.m }
