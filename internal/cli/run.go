package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/modeseq/internal/engine"
	"github.com/roach88/modeseq/internal/harness"
	"github.com/roach88/modeseq/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	Scenario    string     `json:"scenario"`
	Table       string     `json:"table"`
	RunID       string     `json:"run_id"`
	Ticks       int        `json:"ticks"`
	FinalState  string     `json:"final_state"`
	Transitions []RunEvent `json:"transitions"`
	Pass        bool       `json:"pass"`
	Errors      []string   `json:"errors,omitempty"`
}

// RunEvent is one transition of a run.
type RunEvent struct {
	Seq  int64  `json:"seq"`
	Name string `json:"name"`
	From string `json:"from"`
	To   string `json:"to"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario-file>",
		Short: "Run one scenario and print its transitions",
		Long: `Run a single tick scenario and print the transitions it took.

With --db the run and every tick are recorded to a SQLite database
(created if it does not exist) for later use with trace and replay.
Scenarios without a run_id get a fresh run id each time; recording a
pinned run_id again with different ticks or a different table fails.

Example:
  modeseq run ./testdata/scenarios/pll_startup_to_fault.yaml
  modeseq run --db ./runs.db ./testdata/scenarios/open_loop_cycle.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database to record the run")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	var runOpts []harness.Option
	if opts.Database != "" {
		slog.Debug("opening database", "path", opts.Database)
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
		runOpts = append(runOpts, harness.WithRecorder(st))
	}
	runOpts = append(runOpts,
		harness.WithLogger(slog.Default()),
		harness.WithRunIDGenerator(engine.UUIDv7Generator{}),
	)

	result, err := harness.Run(ctx, scenario, runOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "scenario execution failed", err)
	}

	out := RunResult{
		Scenario:    scenario.Name,
		Table:       result.Table,
		RunID:       result.RunID,
		Ticks:       len(result.Trace),
		FinalState:  result.FinalState,
		Transitions: []RunEvent{},
		Pass:        result.Pass,
		Errors:      result.Errors,
	}
	for _, tk := range result.Trace {
		if tk.Transition != "" {
			out.Transitions = append(out.Transitions, RunEvent{Seq: tk.Seq, Name: tk.Transition, From: tk.From, To: tk.State})
		}
	}

	if opts.Format == "json" {
		response := CLIResponse{Status: "ok", Data: out}
		if !out.Pass {
			response.Status = "error"
			response.Error = &CLIError{Code: "E_TEST_FAILED", Message: "scenario failed"}
		}
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
	} else {
		outputRunText(cmd, out, opts.Database)
	}

	if !out.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}

func outputRunText(cmd *cobra.Command, r RunResult, db string) {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Run: %s\n", r.RunID)
	fmt.Fprintf(w, "Table: %s\n", r.Table)
	fmt.Fprintf(w, "Ticks: %d\n", r.Ticks)
	fmt.Fprintln(w)

	for _, ev := range r.Transitions {
		fmt.Fprintf(w, "  [%d] %s: %s -> %s\n", ev.Seq, ev.Name, ev.From, ev.To)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Final state: %s\n", r.FinalState)

	if db != "" {
		fmt.Fprintf(w, "Recorded to %s\n", db)
	}

	if r.Pass {
		fmt.Fprintln(w, "✓ Scenario passed")
		return
	}
	fmt.Fprintln(w, "✗ Scenario failed")
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}
