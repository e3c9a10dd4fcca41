// Package fsm implements the edge-triggered mode sequencer used by the
// inverter control loop.
//
// A Table is the compiled, immutable form of a Definition: a closed set of
// states, each with a complete entry action, a complete during action and an
// ordered list of guarded transitions. A Machine is one instance of a Table
// owned by exactly one control loop.
//
// EVALUATION (one major step):
//
//  1. The last-taken-transition record is cleared.
//  2. If the current state is StateNone (or any id the table does not know),
//     the synthetic "initial" transition is taken into the table's initial
//     state and its entry action runs.
//  3. Otherwise the current state's transitions are scanned in declaration
//     order. The first guard that holds fires: the target's entry action runs
//     and the target becomes current. If no guard holds, the current state's
//     during action runs.
//  4. The edge-memory bank of the state that is now current is overwritten
//     with this tick's raw input levels. Other banks are left untouched.
//
// Minor steps (Evaluate with major == false) change nothing.
//
// GUARDS:
//
// A Rising guard holds when its signal is high now and was low at the end of
// the previous tick spent in the source state. A Falling guard holds when the
// signal is low now and was high. Edge memory is per state: a slot is written
// and read only while its owning state is active.
//
// INPUT LEVELS:
//
// Inputs are real-valued. Any finite non-zero value is high and zero is
// low. NaN, ±Inf and indexes beyond the end of a short input vector, are invalid: a guard
// reading an invalid sample does not hold, and the edge slot records it as
// low. Evaluate never panics and never allocates.
package fsm
