package fsm

// testDefinition is a small three-state table shaped like the shipped ones:
// idle -> running on a rising "go", running -> tripped on a rising "trip"
// (checked first) or back to idle when "stop" is released; tripped is
// terminal. Running's during action differs from its entry action so tests
// can tell which one ran.
func testDefinition() Definition {
	out := func(mode, lamp float64) map[string]float64 {
		return map[string]float64{"mode": mode, "lamp": lamp}
	}
	return Definition{
		Name:    "test",
		Inputs:  []string{"go", "stop", "trip"},
		Outputs: []string{"mode", "lamp"},
		Initial: "idle",
		States: []StateDef{
			{
				Name:   "idle",
				Entry:  out(0, 0),
				During: out(0, 0),
				Tracks: []string{"go"},
				Transitions: []TransitionDef{
					{Edge: Rising, Signal: "go", Target: "running"},
				},
			},
			{
				Name:   "running",
				Entry:  out(1, 1),
				During: out(1, 2),
				Tracks: []string{"trip", "stop"},
				Transitions: []TransitionDef{
					{Edge: Rising, Signal: "trip", Target: "tripped"},
					{Edge: Falling, Signal: "stop", Target: "idle"},
				},
			},
			{
				Name:   "tripped",
				Entry:  out(9, 0),
				During: out(9, 3),
			},
		},
	}
}

const (
	idle    StateID = 1
	running StateID = 2
	tripped StateID = 3
)

// in builds an input vector for testDefinition.
func in(goLevel, stop, trip float64) []float64 {
	return []float64{goLevel, stop, trip}
}

func newTestMachine(opts ...Option) *Machine {
	return New(MustCompile(testDefinition()), opts...)
}
