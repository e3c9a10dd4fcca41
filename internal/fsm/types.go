package fsm

import "fmt"

// StateID identifies a state within one Table.
// IDs are assigned in declaration order starting at 1.
type StateID int

// StateNone is the pseudo-state a Machine holds between Start and its first
// major step.
const StateNone StateID = 0

// InitialTransition names the synthetic transition taken out of StateNone.
const InitialTransition = "initial"

// Edge selects how a transition's guard reacts to its source signal.
type Edge int

const (
	// Rising holds when the signal goes from low to high.
	Rising Edge = iota + 1
	// Falling holds when the signal goes from high to low (a release).
	Falling
)

func (e Edge) String() string {
	switch e {
	case Rising:
		return "rising"
	case Falling:
		return "falling"
	default:
		return fmt.Sprintf("Edge(%d)", int(e))
	}
}

// ParseEdge converts "rising" or "falling" to an Edge.
func ParseEdge(s string) (Edge, error) {
	switch s {
	case "rising":
		return Rising, nil
	case "falling":
		return Falling, nil
	default:
		return 0, fmt.Errorf("unknown edge %q: must be rising or falling", s)
	}
}

// Definition is the declarative source of a mode table.
//
// A Definition is plain data. It is validated and resolved to positional form
// by Compile; nothing in a Definition is evaluated at runtime.
type Definition struct {
	// Name identifies the table (e.g. "pll-dvc").
	Name string

	// Inputs lists the input signals in vector order.
	Inputs []string

	// Outputs lists the output signals in vector order.
	Outputs []string

	// Initial names the state entered by the initial transition.
	Initial string

	// States in declaration order. The order fixes each state's StateID.
	States []StateDef
}

// StateDef declares one state.
type StateDef struct {
	Name string

	// Entry assigns every output when a transition lands in this state.
	Entry map[string]float64

	// During assigns every output on ticks where the state is kept.
	During map[string]float64

	// Tracks lists the input signals held in this state's edge memory.
	// The slot order is the order given here.
	Tracks []string

	// Transitions in priority order; the first guard that holds wins.
	Transitions []TransitionDef
}

// TransitionDef declares one guarded transition out of its enclosing state.
type TransitionDef struct {
	// Name is optional. Unnamed transitions are called "<state>/<n>" with n
	// counting from 1 in declaration order.
	Name string

	Edge   Edge
	Signal string
	Target string
}

// Transition is the compiled form of a TransitionDef.
type Transition struct {
	Name   string
	Edge   Edge
	Source StateID
	Target StateID

	// Signal is the index of the guard's input in the input vector.
	Signal int

	// Slot is the index of Signal in the source state's edge-memory bank.
	Slot int
}
