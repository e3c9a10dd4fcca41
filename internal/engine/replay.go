package engine

import (
	"fmt"
	"maps"

	"github.com/roach88/modeseq/internal/fsm"
	"github.com/roach88/modeseq/internal/trace"
)

// Replay re-evaluates recorded ticks on a fresh machine and compares every
// result with what was recorded.
//
// The engine is deterministic: the same inputs and the same major/minor
// pattern always produce the same states, transitions and outputs. Replay
// is how a stored run proves that, and how a changed table shows where it
// diverges from a recorded one.
//
// Ticks must be in seq order. Their Seq values are carried over unchanged.
func Replay(t *fsm.Table, recorded []trace.Tick) (*ReplayResult, error) {
	m := fsm.New(t)
	result := &ReplayResult{Ticks: make([]trace.Tick, 0, len(recorded))}

	var last int64
	for i, rec := range recorded {
		if i > 0 && rec.Seq <= last {
			return nil, &RuntimeError{
				Code:    ErrCodeReplay,
				Message: fmt.Sprintf("ticks out of order: seq %d after %d", rec.Seq, last),
				Seq:     rec.Seq,
			}
		}
		last = rec.Seq

		inputs := rec.InputVector(t)
		from := m.State()
		m.Evaluate(inputs, rec.Major)
		got := trace.Capture(m, rec.Seq, inputs, rec.Major, from)
		result.Ticks = append(result.Ticks, got)
		result.Mismatches = append(result.Mismatches, compareTicks(rec, got)...)
	}

	return result, nil
}

// ReplayResult is the outcome of a replay.
type ReplayResult struct {
	Ticks      []trace.Tick `json:"ticks"`
	Mismatches []Mismatch   `json:"mismatches,omitempty"`
}

// Identical reports whether the replay matched the recording tick for tick.
func (r *ReplayResult) Identical() bool { return len(r.Mismatches) == 0 }

// Mismatch is one field of one tick that replayed differently.
type Mismatch struct {
	Seq      int64  `json:"seq"`
	Field    string `json:"field"`
	Recorded string `json:"recorded"`
	Replayed string `json:"replayed"`
}

func (m Mismatch) String() string {
	return fmt.Sprintf("seq %d: %s: recorded %s, replayed %s", m.Seq, m.Field, m.Recorded, m.Replayed)
}

func compareTicks(rec, got trace.Tick) []Mismatch {
	var out []Mismatch
	check := func(field, a, b string) {
		if a != b {
			out = append(out, Mismatch{Seq: rec.Seq, Field: field, Recorded: a, Replayed: b})
		}
	}
	check("from", rec.From, got.From)
	check("state", rec.State, got.State)
	check("transition", rec.Transition, got.Transition)
	if !maps.Equal(rec.Outputs, got.Outputs) {
		check("outputs", formatValues(rec.Outputs), formatValues(got.Outputs))
	}
	return out
}

func formatValues(v map[string]float64) string {
	b, err := trace.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
