package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/modeseq/internal/engine"
	"github.com/roach88/modeseq/internal/store"
)

func strPtr(s string) *string { return &s }

// startupScenario drives pll-dvc from idle to converting.
func startupScenario() *Scenario {
	return &Scenario{
		Name:        "startup",
		Description: "pll-dvc startup",
		Table:       "pll-dvc",
		RunID:       "test-run-startup",
		Ticks: []TickStep{
			{Expect: &ExpectClause{State: "idle", Transition: strPtr("initial")}},
			{Inputs: map[string]float64{"pll_on": 1}, Expect: &ExpectClause{
				State:      "synchronizing",
				Transition: strPtr("idle/1"),
				Outputs:    map[string]float64{"mode": 1, "units0": 1},
			}},
			{Inputs: map[string]float64{"dvc_on": 1}, Expect: &ExpectClause{
				State:   "converting",
				Outputs: map[string]float64{"mode": 2, "units1": 1, "en_pwm": 1},
			}},
		},
		Assertions: []Assertion{
			{Type: AssertFinalState, State: "converting"},
			{Type: AssertTransitionOrder, Transitions: []string{"initial", "idle/1", "synchronizing/3"}},
		},
	}
}

func TestRun_Passes(t *testing.T) {
	result, err := Run(context.Background(), startupScenario())
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	assert.Equal(t, "pll-dvc", result.Table)
	assert.Equal(t, "test-run-startup", result.RunID)
	assert.Equal(t, "converting", result.FinalState)
	assert.Equal(t, []string{"initial", "idle/1", "synchronizing/3"}, result.Transitions())

	require.Len(t, result.Trace, 3)
	for i, tk := range result.Trace {
		assert.Equal(t, int64(i+1), tk.Seq)
		assert.True(t, tk.Major)
	}
}

func TestRun_DefaultRunID(t *testing.T) {
	s := startupScenario()
	s.RunID = ""

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "test-run-default", result.RunID)
}

func TestRun_RunIDGenerator(t *testing.T) {
	gen := engine.NewFixedGenerator("run-a", "run-b")

	s := startupScenario()
	s.RunID = ""
	result, err := Run(context.Background(), s, WithRunIDGenerator(gen))
	require.NoError(t, err)
	assert.Equal(t, "run-a", result.RunID)

	// A pinned run_id wins over the generator.
	s.RunID = "pinned"
	result, err = Run(context.Background(), s, WithRunIDGenerator(gen))
	require.NoError(t, err)
	assert.Equal(t, "pinned", result.RunID)
}

func TestRun_InputsAreHeld(t *testing.T) {
	s := &Scenario{
		Name:        "held",
		Description: "inputs persist between ticks",
		Table:       "pll-dvc",
		Ticks: []TickStep{
			{},
			{Inputs: map[string]float64{"pll_on": 1}},
			{Inputs: map[string]float64{"dvc_on": 1}},
		},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	last := result.Trace[2]
	assert.Equal(t, 1.0, last.Inputs["pll_on"])
	assert.Equal(t, 1.0, last.Inputs["dvc_on"])
	assert.Equal(t, 0.0, last.Inputs["protect"])
}

func TestRun_RepeatAndMinor(t *testing.T) {
	s := &Scenario{
		Name:        "repeat",
		Description: "repeat and minor ticks",
		Table:       "open-loop",
		Ticks: []TickStep{
			{Minor: true, Repeat: 2, Expect: &ExpectClause{State: "none"}},
			{Repeat: 3, Expect: &ExpectClause{State: "idle", Transition: strPtr("")}},
		},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 5)
	assert.False(t, result.Trace[0].Major)
	assert.False(t, result.Trace[1].Major)
	assert.Equal(t, "initial", result.Trace[2].Transition)
	assert.Equal(t, int64(5), result.Trace[4].Seq)
}

func TestRun_ExpectMismatch(t *testing.T) {
	s := &Scenario{
		Name:        "mismatch",
		Description: "wrong expectations",
		Table:       "pll-dvc",
		Ticks: []TickStep{
			{Expect: &ExpectClause{
				State:      "synchronizing",
				Transition: strPtr(""),
				Outputs:    map[string]float64{"mode": 5, "bogus": 1},
			}},
		},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], `expected state "synchronizing", got "idle"`)
	assert.Contains(t, result.Errors[1], "expected no transition, got initial")
	assert.Contains(t, result.Errors[2], `no output "bogus"`)
	assert.Contains(t, result.Errors[3], "output mode: expected 5, got 0")
}

func TestRun_AssertionFailure(t *testing.T) {
	s := startupScenario()
	s.Assertions = []Assertion{{Type: AssertFinalState, State: "fault"}}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: final_state")
}

func TestRun_UnknownInput(t *testing.T) {
	s := &Scenario{
		Name:        "bad-input",
		Description: "input not in table",
		Table:       "pll-dvc",
		Ticks:       []TickStep{{Inputs: map[string]float64{"start_up": 1}}},
	}

	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `table "pll-dvc" has no input "start_up"`)
}

func TestRun_UnknownTable(t *testing.T) {
	s := &Scenario{Name: "s", Description: "d", Table: "closed-loop", Ticks: []TickStep{{}}}

	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown table "closed-loop"`)
}

func TestRun_WithRecorder(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	result, err := Run(ctx, startupScenario(), WithRecorder(st))
	require.NoError(t, err)

	run, err := st.ReadRun(ctx, "test-run-startup")
	require.NoError(t, err)
	assert.Equal(t, "pll-dvc", run.Table)
	assert.Equal(t, "startup", run.Label)

	ticks, err := st.ReadTicks(ctx, "test-run-startup")
	require.NoError(t, err)
	assert.Equal(t, result.Trace, ticks)
}

const twoTables = `
table: first: {
	inputs: ["go"]
	outputs: ["out"]
	initial: "off"
	states: {
		off: {
			entry: {out: 0}
			tracks: ["go"]
			transitions: [{edge: "rising", signal: "go", target: "on"}]
		}
		on: entry: {out: 1}
	}
}
table: second: {
	inputs: ["go"]
	outputs: ["out"]
	initial: "on"
	states: on: entry: {out: 1}
}
`

func TestResolveTable_FromSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.cue")
	require.NoError(t, os.WriteFile(path, []byte(twoTables), 0644))

	tbl, err := ResolveTable(&Scenario{Source: path, Table: "second"})
	require.NoError(t, err)
	assert.Equal(t, "second", tbl.Name())

	_, err = ResolveTable(&Scenario{Source: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defines 2 tables")

	_, err = ResolveTable(&Scenario{Source: path, Table: "third"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `table "third" not found`)
}

func TestRun_FromSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.cue")
	require.NoError(t, os.WriteFile(path, []byte(twoTables), 0644))

	s := &Scenario{
		Name:        "source",
		Description: "table compiled from CUE",
		Source:      path,
		Table:       "first",
		Ticks: []TickStep{
			{Expect: &ExpectClause{State: "off", Transition: strPtr("initial")}},
			{Inputs: map[string]float64{"go": 1}, Expect: &ExpectClause{
				State:      "on",
				Transition: strPtr("off/1"),
				Outputs:    map[string]float64{"out": 1},
			}},
		},
		Assertions: []Assertion{{Type: AssertStateHeld, State: "on"}},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}
