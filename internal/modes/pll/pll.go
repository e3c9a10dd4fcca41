// Package pll is the four-state grid-tied mode table: idle, PLL
// synchronization, DVC-controlled conversion and a latched fault.
//
// Transitions, in priority order:
//
//	idle           pll_on  rising  -> synchronizing
//	synchronizing  protect rising  -> fault
//	               pll_off falling -> idle
//	               dvc_on  rising  -> converting
//	converting     protect rising  -> fault
//	               dvc_off falling -> synchronizing
//	fault          (none)
package pll

import "github.com/roach88/modeseq/internal/fsm"

// Name is the registry name of this table.
const Name = "pll-dvc"

// State is a pll-dvc state. Values equal the table's fsm.StateID.
type State fsm.StateID

const (
	None State = iota
	Idle
	Synchronizing
	Converting
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
	ModeIdle          = 0
	ModeSynchronizing = 1
	ModeConverting    = 2
	ModeFault         = 9
)

// Inputs is the typed input vector.
type Inputs struct {
	PLLOn   bool `signal:"pll_on"`
	PLLOff  bool `signal:"pll_off"`
	DVCOn   bool `signal:"dvc_on"`
	DVCOff  bool `signal:"dvc_off"`
	Protect bool `signal:"protect"`
}

const numInputs = 5

func (in Inputs) encode(dst *[numInputs]float64) {
	dst[0] = fsm.Level(in.PLLOn)
	dst[1] = fsm.Level(in.PLLOff)
	dst[2] = fsm.Level(in.DVCOn)
	dst[3] = fsm.Level(in.DVCOff)
	dst[4] = fsm.Level(in.Protect)
}

// Outputs is the typed output vector.
type Outputs struct {
	Mode   float64 `signal:"mode"`
	Units0 float64 `signal:"units0"`
	Units1 float64 `signal:"units1"`
	Units2 float64 `signal:"units2"`
	Units3 float64 `signal:"units3"`
	SWGrid float64 `signal:"sw_grid"`
	ENPWM  float64 `signal:"en_pwm"`
	Error  float64 `signal:"error"`
}

func decodeOutputs(v []float64) Outputs {
	return Outputs{
		Mode:   v[0],
		Units0: v[1],
		Units1: v[2],
		Units2: v[3],
		Units3: v[4],
		SWGrid: v[5],
		ENPWM:  v[6],
		Error:  v[7],
	}
}

func outputs(mode, u0, u1, u2, u3, swGrid, enPWM, errFlag float64) map[string]float64 {
	return map[string]float64{
		"mode":    mode,
		"units0":  u0,
		"units1":  u1,
		"units2":  u2,
		"units3":  u3,
		"sw_grid": swGrid,
		"en_pwm":  enPWM,
		"error":   errFlag,
	}
}

// Definition returns a fresh copy of the pll-dvc table definition.
func Definition() fsm.Definition {
	idle := func() map[string]float64 { return outputs(ModeIdle, 0, 0, 0, 0, 1, 0, 0) }
	sync := func() map[string]float64 { return outputs(ModeSynchronizing, 1, 0, 0, 0, 1, 0, 0) }
	conv := func() map[string]float64 { return outputs(ModeConverting, 0, 1, 0, 0, 1, 1, 0) }
	fault := func() map[string]float64 { return outputs(ModeFault, 1, 0, 0, 1, 1, 0, 1) }

	return fsm.Definition{
		Name:    Name,
		Inputs:  []string{"pll_on", "pll_off", "dvc_on", "dvc_off", "protect"},
		Outputs: []string{"mode", "units0", "units1", "units2", "units3", "sw_grid", "en_pwm", "error"},
		Initial: "idle",
		States: []fsm.StateDef{
			{
				Name:   "idle",
				Entry:  idle(),
				During: idle(),
				Tracks: []string{"pll_on"},
				Transitions: []fsm.TransitionDef{
					{Edge: fsm.Rising, Signal: "pll_on", Target: "synchronizing"},
				},
			},
			{
				Name:   "synchronizing",
				Entry:  sync(),
				During: sync(),
				Tracks: []string{"protect", "pll_off", "dvc_on"},
				Transitions: []fsm.TransitionDef{
					{Edge: fsm.Rising, Signal: "protect", Target: "fault"},
					{Edge: fsm.Falling, Signal: "pll_off", Target: "idle"},
					{Edge: fsm.Rising, Signal: "dvc_on", Target: "converting"},
				},
			},
			{
				Name:   "converting",
				Entry:  conv(),
				During: conv(),
				Tracks: []string{"protect", "dvc_off"},
				Transitions: []fsm.TransitionDef{
					{Edge: fsm.Rising, Signal: "protect", Target: "fault"},
					{Edge: fsm.Falling, Signal: "dvc_off", Target: "synchronizing"},
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

// Table returns the compiled pll-dvc table.
func Table() *fsm.Table { return table }

// Controller is a pll-dvc machine behind typed inputs and outputs.
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
