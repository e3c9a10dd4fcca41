// Package harness runs tick scenarios against mode tables.
//
// A scenario is a YAML file that names a table, feeds it a sequence of input
// frames, checks the state and outputs after chosen ticks, and finishes with
// assertions over the whole run.
//
// # Scenario Format
//
//	name: pll_startup
//	description: "pll_on then dvc_on brings the converter up"
//	table: pll-dvc              # a shipped table, or:
//	source: ../tables/pll.cue   # a CUE file, relative to the scenario
//	run_id: test-run-pll        # optional
//	ticks:
//	  - expect: { state: idle, transition: initial }
//	  - inputs: { pll_on: 1 }
//	    expect:
//	      state: synchronizing
//	      outputs: { mode: 1, units0: 1 }
//	  - inputs: { dvc_on: 1 }
//	    minor: true
//	  - repeat: 3
//	    expect: { state: converting }
//	assertions:
//	  - type: final_state
//	    state: converting
//	  - type: transition_order
//	    transitions: [initial, idle/1, synchronizing/3]
//
// Inputs are held: every input starts at 0 and keeps its value until a later
// tick sets it again. `.nan` is a valid input value. A tick is major unless
// it says `minor: true`, and `repeat: n` runs the same frame n times with the
// expect clause checked after the last one. An expect clause with
// `transition: ""` requires that nothing fired.
//
// # Assertion Types
//
//   - final_state: the state after the last tick
//   - transition_order: transitions fired in this order, others may intervene
//   - transition_count: a transition fired exactly count times
//   - state_held: once the state is entered it is never left
//   - never_entered: the state is never the current state
//
// # Deterministic Testing
//
// Every run uses a fixed run id (from run_id, or "test-run-default" unless
// WithRunIDGenerator supplies one) and a fresh tick clock, so the same
// scenario always produces a byte-identical trace. RunWithGolden compares that trace against a goldie golden file.
package harness
