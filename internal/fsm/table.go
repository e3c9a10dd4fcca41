package fsm

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Table is a compiled mode table. It is immutable and safe to share between
// any number of Machines.
type Table struct {
	name    string
	inputs  []string
	outputs []string
	initial StateID
	states  []compiledState // index = StateID - 1
	byName  map[string]StateID
}

type compiledState struct {
	name        string
	entry       []float64
	during      []float64
	tracks      []int // input indexes, one per edge-memory slot
	transitions []Transition
}

// Compile validates def and resolves it into a Table.
//
// Every problem found is reported; the returned error is an errors.Join of
// *DefinitionError values (see AsDefinitionErrors).
func Compile(def Definition) (*Table, error) {
	c := &compiler{def: def}
	t := c.compile()
	if len(c.errs) > 0 {
		return nil, errors.Join(c.errs...)
	}
	return t, nil
}

// MustCompile is like Compile but panics on error.
// Use only for tables built into the binary.
func MustCompile(def Definition) *Table {
	t, err := Compile(def)
	if err != nil {
		panic(fmt.Sprintf("fsm: compile %q: %v", def.Name, err))
	}
	return t
}

type compiler struct {
	def  Definition
	errs []error
}

func (c *compiler) fail(field, format string, args ...any) {
	c.errs = append(c.errs, &DefinitionError{
		Table:   c.def.Name,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	})
}

func (c *compiler) compile() *Table {
	def := c.def
	if def.Name == "" {
		c.fail("name", "name is required")
	}
	if len(def.Outputs) == 0 {
		c.fail("outputs", "at least one output is required")
	}
	if len(def.States) == 0 {
		c.fail("states", "at least one state is required")
	}

	inputIdx := c.indexSignals("inputs", def.Inputs)
	outputIdx := c.indexSignals("outputs", def.Outputs)

	t := &Table{
		name:    def.Name,
		inputs:  append([]string(nil), def.Inputs...),
		outputs: append([]string(nil), def.Outputs...),
		states:  make([]compiledState, len(def.States)),
		byName:  make(map[string]StateID, len(def.States)),
	}

	// IDs first so transitions can refer to states declared later.
	for i, sd := range def.States {
		field := fmt.Sprintf("states[%d].name", i)
		switch {
		case sd.Name == "":
			c.fail(field, "state name is required")
		case sd.Name == InitialTransition:
			c.fail(field, "%q is reserved", sd.Name)
		default:
			if _, dup := t.byName[sd.Name]; dup {
				c.fail(field, "duplicate state %q", sd.Name)
				continue
			}
			t.byName[sd.Name] = StateID(i + 1)
		}
	}

	if def.Initial == "" {
		c.fail("initial", "initial state is required")
	} else if id, ok := t.byName[def.Initial]; ok {
		t.initial = id
	} else {
		c.fail("initial", "unknown state %q", def.Initial)
	}

	transitionNames := make(map[string]bool)
	for i, sd := range def.States {
		field := fmt.Sprintf("states.%s", stateLabel(sd, i))
		st := compiledState{
			name:   sd.Name,
			entry:  c.compileAction(field+".entry", sd.Entry, outputIdx),
			during: c.compileAction(field+".during", sd.During, outputIdx),
		}

		slots := make(map[string]int, len(sd.Tracks))
		for j, sig := range sd.Tracks {
			tf := fmt.Sprintf("%s.tracks[%d]", field, j)
			idx, ok := inputIdx[sig]
			if !ok {
				c.fail(tf, "unknown input %q", sig)
				continue
			}
			if _, dup := slots[sig]; dup {
				c.fail(tf, "input %q tracked twice", sig)
				continue
			}
			slots[sig] = len(st.tracks)
			st.tracks = append(st.tracks, idx)
		}

		for j, td := range sd.Transitions {
			tf := fmt.Sprintf("%s.transitions[%d]", field, j)

			name := td.Name
			if name == "" {
				name = fmt.Sprintf("%s/%d", sd.Name, j+1)
			}
			if name == InitialTransition {
				c.fail(tf+".name", "%q is reserved", name)
			} else if transitionNames[name] {
				c.fail(tf+".name", "duplicate transition %q", name)
			}
			transitionNames[name] = true

			if td.Edge != Rising && td.Edge != Falling {
				c.fail(tf+".edge", "edge must be rising or falling, got %v", td.Edge)
			}

			sigIdx, ok := inputIdx[td.Signal]
			if !ok {
				c.fail(tf+".signal", "unknown input %q", td.Signal)
			}
			slot, tracked := slots[td.Signal]
			if ok && !tracked {
				c.fail(tf+".signal", "input %q is not tracked by state %q", td.Signal, sd.Name)
			}

			target, ok := t.byName[td.Target]
			if !ok {
				c.fail(tf+".target", "unknown state %q", td.Target)
			}

			st.transitions = append(st.transitions, Transition{
				Name:   name,
				Edge:   td.Edge,
				Source: StateID(i + 1),
				Target: target,
				Signal: sigIdx,
				Slot:   slot,
			})
		}

		t.states[i] = st
	}

	return t
}

func (c *compiler) indexSignals(field string, names []string) map[string]int {
	idx := make(map[string]int, len(names))
	for i, n := range names {
		if n == "" {
			c.fail(fmt.Sprintf("%s[%d]", field, i), "signal name is required")
			continue
		}
		if _, dup := idx[n]; dup {
			c.fail(fmt.Sprintf("%s[%d]", field, i), "duplicate signal %q", n)
			continue
		}
		idx[n] = i
	}
	return idx
}

// compileAction turns a name -> value assignment into a full output vector.
// Actions must be complete: every output is assigned, nothing else is.
func (c *compiler) compileAction(field string, action map[string]float64, outputIdx map[string]int) []float64 {
	vec := make([]float64, len(c.def.Outputs))
	assigned := make([]bool, len(c.def.Outputs))

	names := make([]string, 0, len(action))
	for name := range action {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v := action[name]
		i, ok := outputIdx[name]
		if !ok {
			c.fail(field, "unknown output %q", name)
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			c.fail(field, "output %q must be finite", name)
			continue
		}
		vec[i] = v
		assigned[i] = true
	}

	var missing []string
	for i, ok := range assigned {
		if !ok && c.def.Outputs[i] != "" {
			missing = append(missing, c.def.Outputs[i])
		}
	}
	if len(missing) > 0 {
		c.fail(field, "action must assign every output, missing %s", strings.Join(missing, ", "))
	}
	return vec
}

func stateLabel(sd StateDef, i int) string {
	if sd.Name == "" {
		return fmt.Sprintf("[%d]", i)
	}
	return sd.Name
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Inputs returns the input signal names in vector order.
func (t *Table) Inputs() []string { return append([]string(nil), t.inputs...) }

// Outputs returns the output signal names in vector order.
func (t *Table) Outputs() []string { return append([]string(nil), t.outputs...) }

// Initial returns the state entered by the initial transition.
func (t *Table) Initial() StateID { return t.initial }

// States returns every StateID in declaration order.
func (t *Table) States() []StateID {
	ids := make([]StateID, len(t.states))
	for i := range t.states {
		ids[i] = StateID(i + 1)
	}
	return ids
}

// Lookup returns the StateID for a state name.
func (t *Table) Lookup(name string) (StateID, bool) {
	id, ok := t.byName[name]
	return id, ok
}

// StateName returns the name of id, or "" for StateNone and unknown ids.
func (t *Table) StateName(id StateID) string {
	if st := t.state(id); st != nil {
		return st.name
	}
	return ""
}

// Transitions returns the transitions out of id in priority order.
func (t *Table) Transitions(id StateID) []Transition {
	if st := t.state(id); st != nil {
		return append([]Transition(nil), st.transitions...)
	}
	return nil
}

// Tracks returns the input signals held in id's edge memory, in slot order.
func (t *Table) Tracks(id StateID) []string {
	st := t.state(id)
	if st == nil {
		return nil
	}
	names := make([]string, len(st.tracks))
	for i, idx := range st.tracks {
		names[i] = t.inputs[idx]
	}
	return names
}

// EntryAction returns a copy of the output vector written on entry to id.
func (t *Table) EntryAction(id StateID) []float64 {
	if st := t.state(id); st != nil {
		return append([]float64(nil), st.entry...)
	}
	return nil
}

// DuringAction returns a copy of the output vector written while id is kept.
func (t *Table) DuringAction(id StateID) []float64 {
	if st := t.state(id); st != nil {
		return append([]float64(nil), st.during...)
	}
	return nil
}

// IsTerminal reports whether id has no outgoing transitions.
func (t *Table) IsTerminal(id StateID) bool {
	st := t.state(id)
	return st != nil && len(st.transitions) == 0
}

// Definition rebuilds a Definition equivalent to the one the table was
// compiled from, with every transition name made explicit.
func (t *Table) Definition() Definition {
	def := Definition{
		Name:    t.name,
		Inputs:  t.Inputs(),
		Outputs: t.Outputs(),
		Initial: t.StateName(t.initial),
		States:  make([]StateDef, len(t.states)),
	}
	for i, st := range t.states {
		sd := StateDef{
			Name:   st.name,
			Entry:  t.assignments(st.entry),
			During: t.assignments(st.during),
			Tracks: t.Tracks(StateID(i + 1)),
		}
		for _, tr := range st.transitions {
			sd.Transitions = append(sd.Transitions, TransitionDef{
				Name:   tr.Name,
				Edge:   tr.Edge,
				Signal: t.inputs[tr.Signal],
				Target: t.StateName(tr.Target),
			})
		}
		def.States[i] = sd
	}
	return def
}

func (t *Table) assignments(vec []float64) map[string]float64 {
	m := make(map[string]float64, len(vec))
	for i, v := range vec {
		m[t.outputs[i]] = v
	}
	return m
}

func (t *Table) state(id StateID) *compiledState {
	if id < 1 || int(id) > len(t.states) {
		return nil
	}
	return &t.states[id-1]
}
