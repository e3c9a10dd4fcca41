package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/modeseq/internal/trace"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Table        string       `json:"table"`
	RunID        string       `json:"run_id"`
	Trace        []trace.Tick `json:"trace"`
}

// NewTraceSnapshot builds the snapshot of a scenario result.
func NewTraceSnapshot(scenarioName string, result *Result) TraceSnapshot {
	return TraceSnapshot{
		ScenarioName: scenarioName,
		Table:        result.Table,
		RunID:        result.RunID,
		Trace:        result.Trace,
	}
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical
// JSON serialization.
func (s TraceSnapshot) toCanonicalMap() map[string]any {
	ticks := make([]any, len(s.Trace))
	for i, tk := range s.Trace {
		ticks[i] = tk.Map()
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"table":         s.Table,
		"run_id":        s.RunID,
		"trace":         ticks,
	}
}

// MarshalCanonical returns the golden file content for the snapshot.
func (s TraceSnapshot) MarshalCanonical() ([]byte, error) {
	return trace.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden
// file. The golden file is stored in testdata/golden/{scenario.Name}.golden
// unless opts move it.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...goldie.Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}

	if err := AssertGolden(t, scenario.Name, result, opts...); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result, opts ...goldie.Option) error {
	t.Helper()

	data, err := NewTraceSnapshot(scenarioName, result).MarshalCanonical()
	if err != nil {
		return err
	}

	g := goldie.New(t, append([]goldie.Option{
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	}, opts...)...)
	g.Assert(t, scenarioName, data)

	return nil
}
