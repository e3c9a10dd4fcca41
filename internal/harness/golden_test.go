package harness

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scenarioDir holds the shipped scenarios and their golden traces.
const scenarioDir = "../../testdata/scenarios"

// TestShippedScenarios runs every shipped scenario and compares its trace
// with the golden file the CLI test command uses.
func TestShippedScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join(scenarioDir, "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name, "scenario name must match its file name")

			result, err := RunWithGolden(t, scenario, goldie.WithFixtureDir(filepath.Join(scenarioDir, "golden")))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestSnapshot_Deterministic(t *testing.T) {
	ctx := context.Background()

	r1, err := Run(ctx, startupScenario())
	require.NoError(t, err)
	r2, err := Run(ctx, startupScenario())
	require.NoError(t, err)

	b1, err := NewTraceSnapshot("startup", r1).MarshalCanonical()
	require.NoError(t, err)
	b2, err := NewTraceSnapshot("startup", r2).MarshalCanonical()
	require.NoError(t, err)

	assert.Equal(t, string(b1), string(b2))
	assert.True(t, strings.HasPrefix(string(b1), `{"run_id":"test-run-startup","scenario_name":"startup","table":"pll-dvc","trace":[`))
}

func TestSnapshot_MatchesGoldenFile(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join(scenarioDir, "pll_startup_to_fault.yaml"))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	got, err := NewTraceSnapshot(scenario.Name, result).MarshalCanonical()
	require.NoError(t, err)

	want, err := os.ReadFile(filepath.Join(scenarioDir, "golden", "pll_startup_to_fault.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
}
