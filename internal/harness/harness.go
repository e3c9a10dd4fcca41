package harness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/roach88/modeseq/internal/compiler"
	"github.com/roach88/modeseq/internal/engine"
	"github.com/roach88/modeseq/internal/fsm"
	"github.com/roach88/modeseq/internal/modes"
	"github.com/roach88/modeseq/internal/testutil"
	"github.com/roach88/modeseq/internal/trace"
)

// Option configures a scenario run.
type Option func(*runConfig)

type runConfig struct {
	recorder engine.Recorder
	logger   *slog.Logger
	runIDs   engine.RunIDGenerator
}

// WithRecorder records the run, e.g. to a store, as it executes.
func WithRecorder(r engine.Recorder) Option {
	return func(c *runConfig) { c.recorder = r }
}

// WithRunIDGenerator draws the run id from g when the scenario does not
// set run_id. Default: the fixed id "test-run-default".
func WithRunIDGenerator(g engine.RunIDGenerator) Option {
	return func(c *runConfig) { c.runIDs = g }
}

// WithLogger sets the loop logger. Default: a discarding logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *runConfig) { c.logger = logger }
}

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Resolve the table from the registry or the CUE source
// 2. Drive a fresh engine loop tick by tick with the held inputs
// 3. Check each expect clause after its tick
// 4. Evaluate assertions over the whole trace
//
// A returned error means the scenario could not be executed at all; a
// scenario that runs but does not match reports through Result.Errors.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: testutil.DiscardLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}

	t, err := ResolveTable(scenario)
	if err != nil {
		return nil, err
	}

	runIDs := engine.RunIDGenerator(testutil.NewFixedRunIDGenerator(scenario.RunID))
	if scenario.RunID == "" && cfg.runIDs != nil {
		runIDs = cfg.runIDs
	}

	loopCfg := engine.NewConfig()
	loopCfg.Label = scenario.Name
	loopOpts := []engine.Option{
		engine.WithRunIDGenerator(runIDs),
		engine.WithLogger(cfg.logger),
		engine.WithConfig(loopCfg),
	}
	if cfg.recorder != nil {
		loopOpts = append(loopOpts, engine.WithRecorder(cfg.recorder))
	}
	loop := engine.New(t, nil, loopOpts...)

	result := NewResult()
	result.Table = t.Name()
	result.RunID = loop.RunID()

	index := make(map[string]int)
	for i, name := range t.Inputs() {
		index[name] = i
	}
	held := make([]float64, len(index))

	for i, step := range scenario.Ticks {
		for name, v := range step.Inputs {
			idx, ok := index[name]
			if !ok {
				return nil, fmt.Errorf("ticks[%d]: table %q has no input %q", i, t.Name(), name)
			}
			held[idx] = v
		}

		n := max(step.Repeat, 1)
		var tk trace.Tick
		for range n {
			tk, err = loop.StepWith(ctx, slices.Clone(held), !step.Minor)
			if err != nil {
				return nil, fmt.Errorf("ticks[%d]: %w", i, err)
			}
			result.AddTick(tk)
		}

		if step.Expect != nil {
			for _, msg := range checkExpect(i, tk, step.Expect) {
				result.AddError(msg)
			}
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

// ResolveTable returns the table a scenario runs against.
func ResolveTable(scenario *Scenario) (*fsm.Table, error) {
	if scenario.Source == "" {
		return modes.Lookup(scenario.Table)
	}

	src, err := os.ReadFile(scenario.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to read table source: %w", err)
	}
	defs, err := compiler.CompileSource(scenario.Source, src)
	if err != nil {
		return nil, err
	}

	var def *fsm.Definition
	switch {
	case scenario.Table != "":
		for i := range defs {
			if defs[i].Name == scenario.Table {
				def = &defs[i]
				break
			}
		}
		if def == nil {
			return nil, fmt.Errorf("table %q not found in %s", scenario.Table, scenario.Source)
		}
	case len(defs) == 1:
		def = &defs[0]
	default:
		return nil, fmt.Errorf("%s defines %d tables; set table to choose one", scenario.Source, len(defs))
	}

	return fsm.Compile(*def)
}

// checkExpect compares one tick against its expect clause.
func checkExpect(index int, tk trace.Tick, expect *ExpectClause) []string {
	var errs []string

	if expect.State != "" && tk.State != expect.State {
		errs = append(errs, fmt.Sprintf("ticks[%d] (seq %d): expected state %q, got %q",
			index, tk.Seq, expect.State, tk.State))
	}

	if expect.Transition != nil && tk.Transition != *expect.Transition {
		want, got := *expect.Transition, tk.Transition
		if want == "" {
			want = "no transition"
		}
		if got == "" {
			got = "no transition"
		}
		errs = append(errs, fmt.Sprintf("ticks[%d] (seq %d): expected %s, got %s",
			index, tk.Seq, want, got))
	}

	names := make([]string, 0, len(expect.Outputs))
	for name := range expect.Outputs {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		want := expect.Outputs[name]
		got, ok := tk.Outputs[name]
		if !ok {
			errs = append(errs, fmt.Sprintf("ticks[%d] (seq %d): no output %q", index, tk.Seq, name))
			continue
		}
		if got != want {
			errs = append(errs, fmt.Sprintf("ticks[%d] (seq %d): output %s: expected %v, got %v",
				index, tk.Seq, name, want, got))
		}
	}

	return errs
}
