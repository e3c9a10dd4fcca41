package compiler

import (
	"fmt"
	"maps"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/modeseq/internal/fsm"
)

// CompileSource compiles every table declared under the top-level `table`
// struct of a single CUE file.
//
//	table: "pll-dvc": {
//		inputs:  ["pll_on", ...]
//		outputs: ["mode", ...]
//		initial: "idle"
//		states: idle: {
//			entry:  {mode: 0, ...}
//			during: entry
//			tracks: ["pll_on"]
//			transitions: [{edge: "rising", signal: "pll_on", target: "synchronizing"}]
//		}
//	}
func CompileSource(filename string, src []byte) ([]fsm.Definition, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileTables(v)
}

// CompileTables compiles every field of v's `table` struct, in declaration
// order. v is typically a built CUE instance or file.
func CompileTables(v cue.Value) ([]fsm.Definition, error) {
	tablesVal := v.LookupPath(cue.ParsePath("table"))
	if !tablesVal.Exists() {
		return nil, &CompileError{Field: "table", Message: "no tables defined", Pos: v.Pos()}
	}

	iter, err := tablesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var defs []fsm.Definition
	for iter.Next() {
		def, err := CompileTable(iter.Value())
		if err != nil {
			return nil, err
		}
		if def.Name == "" {
			def.Name = iter.Label()
		}
		defs = append(defs, *def)
	}
	return defs, nil
}

// CompileTable parses one table struct into an fsm.Definition.
//
// The table name comes from an explicit `name` field or, failing that, the
// struct's label. The result is only parsed, not validated: pass it to
// fsm.Compile (or Validate) to check it.
func CompileTable(v cue.Value) (*fsm.Definition, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	def := &fsm.Definition{}

	if nameVal := v.LookupPath(cue.ParsePath("name")); nameVal.Exists() {
		name, err := nameVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		def.Name = name
	} else if sels := v.Path().Selectors(); len(sels) > 0 {
		def.Name = labelName(sels[len(sels)-1])
	}

	var err error
	if def.Inputs, err = stringList(v, "inputs", true); err != nil {
		return nil, err
	}
	if def.Outputs, err = stringList(v, "outputs", true); err != nil {
		return nil, err
	}

	initialVal := v.LookupPath(cue.ParsePath("initial"))
	if !initialVal.Exists() {
		return nil, &CompileError{Field: "initial", Message: "initial is required", Pos: v.Pos()}
	}
	if def.Initial, err = initialVal.String(); err != nil {
		return nil, formatCUEError(err)
	}

	if def.States, err = parseStates(v); err != nil {
		return nil, err
	}
	return def, nil
}

func parseStates(v cue.Value) ([]fsm.StateDef, error) {
	statesVal := v.LookupPath(cue.ParsePath("states"))
	if !statesVal.Exists() {
		return nil, &CompileError{Field: "states", Message: "states is required", Pos: v.Pos()}
	}

	iter, err := statesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var states []fsm.StateDef
	for iter.Next() {
		sv := iter.Value()
		sd := fsm.StateDef{Name: iter.Label()}

		entryVal := sv.LookupPath(cue.ParsePath("entry"))
		if !entryVal.Exists() {
			return nil, &CompileError{Field: "states." + sd.Name + ".entry", Message: "entry is required", Pos: sv.Pos()}
		}
		if sd.Entry, err = parseAction(entryVal); err != nil {
			return nil, err
		}

		// A state without its own during action keeps re-asserting its entry
		// outputs.
		if duringVal := sv.LookupPath(cue.ParsePath("during")); duringVal.Exists() {
			if sd.During, err = parseAction(duringVal); err != nil {
				return nil, err
			}
		} else {
			sd.During = maps.Clone(sd.Entry)
		}

		if sd.Tracks, err = stringList(sv, "tracks", false); err != nil {
			return nil, err
		}
		if sd.Transitions, err = parseTransitions(sv); err != nil {
			return nil, err
		}
		states = append(states, sd)
	}
	return states, nil
}

func parseAction(v cue.Value) (map[string]float64, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	action := make(map[string]float64)
	for iter.Next() {
		f, err := iter.Value().Float64()
		if err != nil {
			return nil, &CompileError{
				Field:   iter.Label(),
				Message: fmt.Sprintf("output value must be a number: %v", err),
				Pos:     iter.Value().Pos(),
			}
		}
		action[iter.Label()] = f
	}
	return action, nil
}

func parseTransitions(v cue.Value) ([]fsm.TransitionDef, error) {
	listVal := v.LookupPath(cue.ParsePath("transitions"))
	if !listVal.Exists() {
		return nil, nil
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var transitions []fsm.TransitionDef
	for iter.Next() {
		tv := iter.Value()
		var td fsm.TransitionDef

		if nameVal := tv.LookupPath(cue.ParsePath("name")); nameVal.Exists() {
			if td.Name, err = nameVal.String(); err != nil {
				return nil, formatCUEError(err)
			}
		}

		edge, err := requiredString(tv, "edge")
		if err != nil {
			return nil, err
		}
		if td.Edge, err = fsm.ParseEdge(edge); err != nil {
			return nil, &CompileError{Field: "edge", Message: err.Error(), Pos: tv.Pos()}
		}

		if td.Signal, err = requiredString(tv, "signal"); err != nil {
			return nil, err
		}
		if td.Target, err = requiredString(tv, "target"); err != nil {
			return nil, err
		}
		transitions = append(transitions, td)
	}
	return transitions, nil
}

func requiredString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func stringList(v cue.Value, field string, required bool) ([]string, error) {
	lv := v.LookupPath(cue.ParsePath(field))
	if !lv.Exists() {
		if required {
			return nil, &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
		}
		return nil, nil
	}

	iter, err := lv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// labelName returns a selector's label without CUE string quoting.
func labelName(sel cue.Selector) string {
	s := sel.String()
	if unq, err := strconv.Unquote(s); err == nil {
		return unq
	}
	return s
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
