package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/modeseq/internal/trace"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []trace.Tick // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	// Only the transitions; a full tick dump is unreadable.
	fmt.Fprintf(&buf, "\nTransitions:\n")
	for _, tk := range e.Trace {
		if tk.Transition != "" {
			fmt.Fprintf(&buf, "  [%d] %s: %s -> %s\n", tk.Seq, tk.Transition, tk.From, tk.State)
		}
	}

	return buf.String()
}

// assertFinalState checks the state after the last tick.
func assertFinalState(result *Result, assertion Assertion) error {
	if result.FinalState == assertion.State {
		return nil
	}
	return &AssertionError{
		Type:     AssertFinalState,
		Expected: fmt.Sprintf("final state %s", assertion.State),
		Actual:   fmt.Sprintf("final state %s", result.FinalState),
		Trace:    result.Trace,
	}
}

// assertTransitionOrder checks that the transitions fired in the given
// order. Other transitions may fire in between.
func assertTransitionOrder(result *Result, assertion Assertion) error {
	fired := result.Transitions()
	next := 0
	for _, name := range fired {
		if next < len(assertion.Transitions) && name == assertion.Transitions[next] {
			next++
		}
	}
	if next == len(assertion.Transitions) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTransitionOrder,
		Expected: fmt.Sprintf("transitions in order: %v", assertion.Transitions),
		Actual: fmt.Sprintf("%s not found after %v (fired: %v)",
			assertion.Transitions[next], assertion.Transitions[:next], fired),
		Trace: result.Trace,
	}
}

// assertTransitionCount checks that a transition fired exactly Count times.
func assertTransitionCount(result *Result, assertion Assertion) error {
	count := 0
	for _, name := range result.Transitions() {
		if name == assertion.Transition {
			count++
		}
	}
	if count == assertion.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTransitionCount,
		Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Transition),
		Actual:   fmt.Sprintf("%d occurrences", count),
		Trace:    result.Trace,
	}
}

// assertStateHeld checks that the state, once entered, is never left. It
// fails if the state is never entered at all.
func assertStateHeld(result *Result, assertion Assertion) error {
	var entered int64
	for _, tk := range result.Trace {
		if entered == 0 {
			if tk.State == assertion.State {
				entered = tk.Seq
			}
			continue
		}
		if tk.State != assertion.State {
			return &AssertionError{
				Type:     AssertStateHeld,
				Expected: fmt.Sprintf("%s held from seq %d", assertion.State, entered),
				Actual:   fmt.Sprintf("left for %s at seq %d", tk.State, tk.Seq),
				Trace:    result.Trace,
			}
		}
	}
	if entered == 0 {
		return &AssertionError{
			Type:     AssertStateHeld,
			Expected: fmt.Sprintf("%s entered and held", assertion.State),
			Actual:   "never entered",
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertNeverEntered checks that the state is never current.
func assertNeverEntered(result *Result, assertion Assertion) error {
	for _, tk := range result.Trace {
		if tk.State == assertion.State {
			return &AssertionError{
				Type:     AssertNeverEntered,
				Expected: fmt.Sprintf("%s never entered", assertion.State),
				Actual:   fmt.Sprintf("entered at seq %d", tk.Seq),
				Trace:    result.Trace,
			}
		}
	}
	return nil
}

// EvaluateAssertions runs every assertion against the result and returns
// the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertFinalState:
			err = assertFinalState(result, assertion)
		case AssertTransitionOrder:
			err = assertTransitionOrder(result, assertion)
		case AssertTransitionCount:
			err = assertTransitionCount(result, assertion)
		case AssertStateHeld:
			err = assertStateHeld(result, assertion)
		case AssertNeverEntered:
			err = assertNeverEntered(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
