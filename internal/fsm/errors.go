package fsm

import (
	"errors"
	"fmt"
)

// DefinitionError reports one problem found while compiling a Definition.
//
// Compile collects every problem it finds and returns them joined with
// errors.Join, so callers can either print the whole error or walk the
// individual *DefinitionError values with AsDefinitionErrors.
type DefinitionError struct {
	// Table is the definition name (may be empty if the name itself is missing).
	Table string

	// Field is a dotted path to the offending field, e.g.
	// "states.idle.transitions[0].target".
	Field string

	Message string
}

func (e *DefinitionError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("table %s: %s: %s", e.Table, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// AsDefinitionErrors unpacks an error returned by Compile into its
// individual definition errors. It returns nil if err carries none.
func AsDefinitionErrors(err error) []*DefinitionError {
	if err == nil {
		return nil
	}

	var out []*DefinitionError
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			out = append(out, AsDefinitionErrors(e)...)
		}
		return out
	}

	var de *DefinitionError
	if errors.As(err, &de) {
		out = append(out, de)
	}
	return out
}

// IsDefinitionError reports whether err (or anything it wraps) is a
// *DefinitionError.
func IsDefinitionError(err error) bool {
	return len(AsDefinitionErrors(err)) > 0
}
