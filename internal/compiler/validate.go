package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/modeseq/internal/fsm"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnclassified = "E100" // definition error without a more specific code

	// Table shape errors (E101-E109)
	ErrTableNameEmpty   = "E101" // table name is required
	ErrNoOutputs        = "E102" // at least one output required
	ErrNoStates         = "E103" // at least one state required
	ErrInvalidSignal    = "E104" // empty or duplicate input/output name
	ErrDuplicateName    = "E105" // duplicate state or transition name
	ErrReservedName     = "E106" // name collides with a reserved name
	ErrInvalidInitial   = "E107" // initial state missing or unknown
	ErrIncompleteAction = "E108" // action misses, repeats or invents an output
	ErrNonFiniteValue   = "E109" // action assigns NaN or Inf

	// Transition errors (E110-E119)
	ErrInvalidTrack  = "E110" // tracked input unknown or tracked twice
	ErrInvalidEdge   = "E111" // edge is neither rising nor falling
	ErrInvalidGuard  = "E112" // guard input unknown or not tracked by the state
	ErrInvalidTarget = "E113" // transition target unknown
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Table   string `json:"table,omitempty"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a table definition and returns every problem found,
// each tagged with a stable error code.
func Validate(def fsm.Definition) []ValidationError {
	_, err := fsm.Compile(def)
	if err == nil {
		return nil
	}

	defErrs := fsm.AsDefinitionErrors(err)
	if len(defErrs) == 0 {
		return []ValidationError{{
			Table:   def.Name,
			Field:   "table",
			Message: err.Error(),
			Code:    ErrUnclassified,
		}}
	}

	errs := make([]ValidationError, 0, len(defErrs))
	for _, de := range defErrs {
		errs = append(errs, ValidationError{
			Table:   de.Table,
			Field:   de.Field,
			Message: de.Message,
			Code:    classify(de),
		})
	}
	return errs
}

// classify maps a definition error onto its code by the field it names and
// the wording of its message.
func classify(e *fsm.DefinitionError) string {
	field, msg := e.Field, e.Message
	last := field
	if i := strings.LastIndex(field, "."); i >= 0 {
		last = field[i+1:]
	}

	switch {
	case field == "name":
		return ErrTableNameEmpty
	case field == "outputs" && strings.Contains(msg, "at least one"):
		return ErrNoOutputs
	case field == "states" && strings.Contains(msg, "at least one"):
		return ErrNoStates
	case strings.HasPrefix(field, "inputs") || strings.HasPrefix(field, "outputs"):
		return ErrInvalidSignal
	case field == "initial":
		return ErrInvalidInitial
	case strings.Contains(msg, "reserved"):
		return ErrReservedName
	case strings.Contains(msg, "duplicate"):
		return ErrDuplicateName
	case last == "entry" || last == "during":
		if strings.Contains(msg, "finite") {
			return ErrNonFiniteValue
		}
		return ErrIncompleteAction
	case strings.HasPrefix(last, "tracks"):
		return ErrInvalidTrack
	case last == "edge":
		return ErrInvalidEdge
	case last == "signal":
		return ErrInvalidGuard
	case last == "target":
		return ErrInvalidTarget
	}
	return ErrUnclassified
}
