package fsm

import "math"

// Machine is one instance of a Table: the current state, one edge-memory
// bank per state, the last transition taken and the owned output vector.
//
// A Machine is owned by a single control loop. It is not safe for concurrent
// use; give every inverter unit its own Machine.
type Machine struct {
	table   *Table
	current StateID
	banks   [][]bool
	last    string
	outputs []float64

	errorMessage string
	warn         func(string)
}

// Option configures a Machine.
type Option func(*Machine)

// WithWarningHandler routes Warn calls to fn. Without it Warn is a no-op.
func WithWarningHandler(fn func(msg string)) Option {
	return func(m *Machine) {
		m.warn = fn
	}
}

// New creates a Machine for t. The machine is returned already started.
func New(t *Table, opts ...Option) *Machine {
	m := &Machine{
		table:   t,
		banks:   make([][]bool, len(t.states)),
		outputs: make([]float64, len(t.outputs)),
	}
	for i, st := range t.states {
		m.banks[i] = make([]bool, len(st.tracks))
	}
	for _, opt := range opts {
		opt(m)
	}
	m.Start()
	return m
}

// Start resets the machine: state becomes StateNone, every edge-memory slot
// of every bank is cleared, the outputs are zeroed and the diagnostics slot
// is emptied. Call it once at controller initialization.
func (m *Machine) Start() {
	m.current = StateNone
	m.last = ""
	for _, bank := range m.banks {
		clear(bank)
	}
	clear(m.outputs)
	m.errorMessage = ""
}

// Evaluate runs one control-loop tick.
//
// With major == false the call changes nothing. With major == true at most
// one transition fires; the output vector is then exactly the target's entry
// action, or the current state's during action if nothing fired.
//
// The returned slice is owned by the machine and is overwritten by the next
// major step. Callers must not modify it; use Outputs for a copy.
func (m *Machine) Evaluate(inputs []float64, major bool) []float64 {
	if !major {
		return m.outputs
	}

	m.last = ""

	st := m.table.state(m.current)
	if st == nil {
		// StateNone, or an id this table does not know.
		m.enter(m.table.initial)
		m.last = InitialTransition
	} else {
		bank := m.banks[m.current-1]
		fired := false
		for i := range st.transitions {
			tr := &st.transitions[i]
			if guard(tr, bank, inputs) {
				m.enter(tr.Target)
				m.last = tr.Name
				fired = true
				break
			}
		}
		if !fired {
			copy(m.outputs, st.during)
		}
	}

	m.refresh(inputs)
	return m.outputs
}

func (m *Machine) enter(id StateID) {
	copy(m.outputs, m.table.states[id-1].entry)
	m.current = id
}

// refresh samples the inputs tracked by the now-current state into its bank.
func (m *Machine) refresh(inputs []float64) {
	st := m.table.state(m.current)
	if st == nil {
		return
	}
	bank := m.banks[m.current-1]
	for slot, idx := range st.tracks {
		level, _ := sample(inputs, idx)
		bank[slot] = level
	}
}

func guard(tr *Transition, bank []bool, inputs []float64) bool {
	level, ok := sample(inputs, tr.Signal)
	if !ok {
		return false
	}
	prev := bank[tr.Slot]
	switch tr.Edge {
	case Rising:
		return level && !prev
	case Falling:
		return !level && prev
	default:
		return false
	}
}

// sample reads input idx as a level. ok is false for NaN, for ±Inf and for
// indexes past the end of a short vector; the level is then low.
func sample(inputs []float64, idx int) (level, ok bool) {
	if idx < 0 || idx >= len(inputs) {
		return false, false
	}
	v := inputs[idx]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false, false
	}
	return v != 0, true
}

// Table returns the table the machine evaluates.
func (m *Machine) Table() *Table { return m.table }

// State returns the current state (StateNone before the first major step).
func (m *Machine) State() StateID { return m.current }

// StateName returns the name of the current state, "" for StateNone.
func (m *Machine) StateName() string { return m.table.StateName(m.current) }

// LastTransition names the transition taken by the most recent major step,
// or "" if that step kept the current state.
func (m *Machine) LastTransition() string { return m.last }

// Outputs returns a copy of the output vector.
func (m *Machine) Outputs() []float64 { return append([]float64(nil), m.outputs...) }

// EdgeMemory returns a copy of id's edge-memory bank in slot order (see
// Table.Tracks for the signal held in each slot).
func (m *Machine) EdgeMemory(id StateID) []bool {
	if m.table.state(id) == nil {
		return nil
	}
	return append([]bool(nil), m.banks[id-1]...)
}

// SetErrorMessage fills the diagnostics slot. The shipped tables never call
// it; an empty slot is not an error condition.
func (m *Machine) SetErrorMessage(msg string) { m.errorMessage = msg }

// ErrorMessage returns the diagnostics slot.
func (m *Machine) ErrorMessage() string { return m.errorMessage }

// Warn forwards msg to the handler installed by WithWarningHandler.
func (m *Machine) Warn(msg string) {
	if m.warn != nil {
		m.warn(msg)
	}
}

// Snapshot is a deep copy of a Machine's mutable state.
type Snapshot struct {
	State          StateID
	Banks          [][]bool
	LastTransition string
	Outputs        []float64
}

// Snapshot captures the machine's mutable state.
func (m *Machine) Snapshot() Snapshot {
	s := Snapshot{
		State:          m.current,
		Banks:          make([][]bool, len(m.banks)),
		LastTransition: m.last,
		Outputs:        m.Outputs(),
	}
	for i, bank := range m.banks {
		s.Banks[i] = append([]bool(nil), bank...)
	}
	return s
}

// Restore overwrites the machine's mutable state with s. Banks and outputs
// are copied slot by slot as far as both sides have room; State is taken
// as-is, so an id the table does not know is accepted and will be healed by
// the next major step.
func (m *Machine) Restore(s Snapshot) {
	m.current = s.State
	m.last = s.LastTransition
	for i := range m.banks {
		clear(m.banks[i])
		if i < len(s.Banks) {
			copy(m.banks[i], s.Banks[i])
		}
	}
	clear(m.outputs)
	copy(m.outputs, s.Outputs)
}
