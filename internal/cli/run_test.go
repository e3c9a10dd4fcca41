package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/modeseq/internal/store"
)

// recordScenario runs a shipped scenario with --db and returns the database path.
func recordScenario(t *testing.T, dbPath, scenario string) {
	t.Helper()

	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, filepath.Join(scenariosDir, scenario)})
	require.NoError(t, cmd.Execute(), buf.String())
}

func TestRunScenario(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{filepath.Join(scenariosDir, "pll_startup_to_fault.yaml")})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "Run: test-run-pll-startup")
	assert.Contains(t, output, "Table: pll-dvc")
	assert.Contains(t, output, "Ticks: 7")
	assert.Contains(t, output, "[1] initial: none -> idle")
	assert.Contains(t, output, "[2] idle/1: idle -> synchronizing")
	assert.Contains(t, output, "[3] synchronizing/3: synchronizing -> converting")
	assert.Contains(t, output, "[5] converting/1: converting -> fault")
	assert.Contains(t, output, "Final state: fault")
	assert.Contains(t, output, "✓ Scenario passed")
	assert.NotContains(t, output, "Recorded to")
}

func TestRunScenarioJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{filepath.Join(scenariosDir, "open_loop_priority.yaml")})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "open-loop", resp.Data.Table)
	assert.True(t, resp.Data.Pass)

	names := make([]string, len(resp.Data.Transitions))
	for i, ev := range resp.Data.Transitions {
		names[i] = ev.Name
	}
	assert.Equal(t, []string{"initial", "idle/1", "grid_forming/1"}, names)
}

func TestRunFailingScenario(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "wrong.yaml", wrongScenario)

	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "✗ Scenario failed")
}

func TestRunMissingScenario(t *testing.T) {
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"/nonexistent/scenario.yaml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

const unpinnedPLL = `name: unpinned_pll
description: pll_on starts synchronizing
table: pll-dvc
ticks:
  - {}
  - inputs: { pll_on: 1 }
    expect: { state: synchronizing }
`

const unpinnedOpenLoop = `name: unpinned_open_loop
description: start_up forms the grid
table: open-loop
ticks:
  - {}
  - {}
  - inputs: { start_up: 1 }
    expect: { state: grid_forming }
`

func recordFile(t *testing.T, dbPath, path string) error {
	t.Helper()
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", dbPath, path})
	return cmd.Execute()
}

func TestRunRecordsUnpinnedScenariosAsSeparateRuns(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "runs.db")
	pllPath := writeScenario(t, dir, "pll.yaml", unpinnedPLL)
	olPath := writeScenario(t, dir, "ol.yaml", unpinnedOpenLoop)

	require.NoError(t, recordFile(t, dbPath, pllPath))
	require.NoError(t, recordFile(t, dbPath, olPath))
	require.NoError(t, recordFile(t, dbPath, pllPath))

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	runs, err := st.ReadRuns(t.Context())
	require.NoError(t, err)
	require.Len(t, runs, 3)

	ticksByTable := map[string][]int{}
	for _, run := range runs {
		assert.NotEqual(t, "test-run-default", run.ID)
		n, err := st.CountTicks(t.Context(), run.ID)
		require.NoError(t, err)
		ticksByTable[run.Table] = append(ticksByTable[run.Table], n)
	}
	assert.Equal(t, []int{2, 2}, ticksByTable["pll-dvc"])
	assert.Equal(t, []int{3}, ticksByTable["open-loop"])

	cmd := NewReplayCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", dbPath})
	require.NoError(t, cmd.Execute())
}

func TestRunRerecordingPinnedRunConflicts(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "runs.db")

	pinned := strings.Replace(unpinnedPLL, "table: pll-dvc\n", "table: pll-dvc\nrun_id: fixed\n", 1)
	path := writeScenario(t, dir, "pinned.yaml", pinned)
	require.NoError(t, recordFile(t, dbPath, path))

	// The same scenario again records nothing new.
	require.NoError(t, recordFile(t, dbPath, path))

	// Same run id, different ticks.
	edited := strings.Replace(pinned, "pll_on: 1", "pll_on: 0", 1)
	edited = strings.Replace(edited, "expect: { state: synchronizing }", "expect: { state: idle }", 1)
	path = writeScenario(t, dir, "pinned.yaml", edited)
	err := recordFile(t, dbPath, path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, store.ErrConflict)

	// Same run id, different table.
	other := strings.Replace(unpinnedOpenLoop, "table: open-loop\n", "table: open-loop\nrun_id: fixed\n", 1)
	path = writeScenario(t, dir, "other.yaml", other)
	err = recordFile(t, dbPath, path)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrConflict)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	run, err := st.ReadRun(t.Context(), "fixed")
	require.NoError(t, err)
	assert.Equal(t, "pll-dvc", run.Table)
	ticks, err := st.ReadTicks(t.Context(), "fixed")
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	assert.Equal(t, "synchronizing", ticks[1].State)
}

func TestRunRecordsToDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	recordScenario(t, dbPath, "pll_startup_to_fault.yaml")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	run, err := st.ReadRun(t.Context(), "test-run-pll-startup")
	require.NoError(t, err)
	assert.Equal(t, "pll-dvc", run.Table)
	assert.Equal(t, "pll_startup_to_fault", run.Label)

	n, err := st.CountTicks(t.Context(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestTraceListsRuns(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	recordScenario(t, dbPath, "pll_startup_to_fault.yaml")
	recordScenario(t, dbPath, "open_loop_cycle.yaml")

	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath})

	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "test-run-open-loop")
	assert.Contains(t, lines[0], "10 ticks")
	assert.Contains(t, lines[1], "test-run-pll-startup")
	assert.Contains(t, lines[1], "7 ticks")
}

func TestTraceEmptyDatabase(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", filepath.Join(t.TempDir(), "empty.db")})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "No runs found in database.")
}

func TestTraceRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	recordScenario(t, dbPath, "pll_startup_to_fault.yaml")

	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--run", "test-run-pll-startup"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "Trace for Run: test-run-pll-startup")
	assert.Contains(t, output, "[2] major idle/1: idle -> synchronizing")
	assert.Contains(t, output, "[4] major converting")
	assert.Contains(t, output, "Transitions: 4")
	assert.Contains(t, output, "Final State: fault")
	assert.Contains(t, output, "Trace Hash:")
}

func TestTraceRunTransitionsJSON(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	recordScenario(t, dbPath, "pll_startup_to_fault.yaml")

	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--run", "test-run-pll-startup", "--transitions"})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "pll-dvc", resp.Data.Run.Table)
	assert.Len(t, resp.Data.TraceHash, 64)
	require.Len(t, resp.Data.Ticks, 4)
	assert.Equal(t, "converting/1", resp.Data.Ticks[3].Transition)
	assert.Equal(t, 7, resp.Data.Stats.TotalTicks)
	assert.Equal(t, 7, resp.Data.Stats.MajorTicks)
	assert.Equal(t, 4, resp.Data.Stats.Transitions)
	assert.Equal(t, "fault", resp.Data.Stats.FinalState)
}

func TestTraceHashIsStableAcrossDatabases(t *testing.T) {
	hashOf := func() string {
		dbPath := filepath.Join(t.TempDir(), "runs.db")
		recordScenario(t, dbPath, "open_loop_cycle.yaml")

		buf := &bytes.Buffer{}
		cmd := NewTraceCommand(&RootOptions{Format: "json"})
		cmd.SetOut(buf)
		cmd.SetArgs([]string{"--db", dbPath, "--run", "test-run-open-loop"})
		require.NoError(t, cmd.Execute())

		var resp struct {
			Data TraceResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		return resp.Data.TraceHash
	}

	assert.Equal(t, hashOf(), hashOf())
}

func TestTraceUnknownRun(t *testing.T) {
	cmd := NewTraceCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", filepath.Join(t.TempDir(), "runs.db"), "--run", "nope"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "run not found")
}

func TestReplayRecordedRuns(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	recordScenario(t, dbPath, "pll_startup_to_fault.yaml")
	recordScenario(t, dbPath, "pll_minor_steps.yaml")
	recordScenario(t, dbPath, "open_loop_cycle.yaml")

	buf := &bytes.Buffer{}
	cmd := NewReplayCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath})

	require.NoError(t, cmd.Execute(), buf.String())

	output := buf.String()
	assert.Contains(t, output, "Replay Summary: 3 run(s)")
	assert.Contains(t, output, "✓ Run: test-run-pll-minor")
	assert.Contains(t, output, "✓ All runs replayed identically")
	assert.NotContains(t, output, "table differs")
}

func TestReplayEmptyDatabase(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewReplayCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", filepath.Join(t.TempDir(), "empty.db")})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string       `json:"status"`
		Data   ReplayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Data.TotalRuns)
	assert.True(t, resp.Data.AllDeterministic)
}

func TestReplayAgainstUnchangedTables(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	recordScenario(t, dbPath, "open_loop_cycle.yaml")

	buf := &bytes.Buffer{}
	cmd := NewReplayCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--tables", shippedTablesDir})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Data ReplayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.Len(t, resp.Data.Runs, 1)
	assert.False(t, resp.Data.Runs[0].TableChanged)
	assert.True(t, resp.Data.Runs[0].Deterministic)
}

func TestReplayDetectsChangedTable(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	recordScenario(t, dbPath, "open_loop_cycle.yaml")

	src, err := os.ReadFile(filepath.Join(shippedTablesDir, "open-loop.cue"))
	require.NoError(t, err)
	edited := strings.Replace(string(src), "en_ol: 1, mode: 1,", "en_ol: 1, mode: 5,", 1)
	require.NotEqual(t, string(src), edited)
	dir := writeCUE(t, map[string]string{"open-loop.cue": edited})

	buf := &bytes.Buffer{}
	cmd := NewReplayCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--tables", dir, "--run", "test-run-open-loop"})

	err = cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string       `json:"status"`
		Data   ReplayResult `json:"data"`
		Error  *CLIError    `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_DETERMINISM", resp.Error.Code)

	require.Len(t, resp.Data.Runs, 1)
	run := resp.Data.Runs[0]
	assert.True(t, run.TableChanged)
	assert.False(t, run.Deterministic)
	require.NotEmpty(t, run.Mismatches)
	assert.Equal(t, "outputs", run.Mismatches[0].Field)
}

func TestReplayUnknownTable(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	recordScenario(t, dbPath, "pll_startup_to_fault.yaml")

	dir := writeCUE(t, map[string]string{"lamp.cue": lampTable})

	cmd := NewReplayCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", dbPath, "--tables", dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `table "pll-dvc" not found`)
}

func TestReplayUnknownRun(t *testing.T) {
	cmd := NewReplayCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", filepath.Join(t.TempDir(), "runs.db"), "--run", "nope"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
