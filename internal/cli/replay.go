package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/modeseq/internal/engine"
	"github.com/roach88/modeseq/internal/fsm"
	"github.com/roach88/modeseq/internal/modes"
	"github.com/roach88/modeseq/internal/store"
	"github.com/roach88/modeseq/internal/trace"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database  string
	RunID     string // optional - specific run only
	TablesDir string // optional - replay against these tables instead of the shipped ones
}

// ReplayRunResult holds the replay result for a single run.
type ReplayRunResult struct {
	RunID         string            `json:"run_id"`
	Table         string            `json:"table"`
	Ticks         int               `json:"ticks"`
	TableChanged  bool              `json:"table_changed"`
	Deterministic bool              `json:"deterministic"`
	Mismatches    []engine.Mismatch `json:"mismatches,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Runs             []ReplayRunResult `json:"runs"`
	TotalRuns        int               `json:"total_runs"`
	AllDeterministic bool              `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay recorded runs and verify determinism",
		Long: `Re-evaluate recorded runs on a fresh machine and compare every tick.

Each recorded tick's inputs and major/minor flag are fed to the table the
run used. Any difference in state, transition or outputs is reported.
With --tables, runs are replayed against the tables in that directory,
which shows where an edited table diverges from a recorded run.

Exit codes:
  0 - Every run replayed identically
  1 - At least one run diverged
  2 - Command error (database not found, unknown table, etc.)

Examples:
  modeseq replay --db ./runs.db
  modeseq replay --db ./runs.db --run 0190a3c2-...
  modeseq replay --db ./runs.db --tables ./tables --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "replay specific run only")
	cmd.Flags().StringVar(&opts.TablesDir, "tables", "", "directory of CUE tables to replay against")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	lookup := modes.Lookup
	if opts.TablesDir != "" {
		loaded, loadErrs := LoadTables(opts.TablesDir, LoadModeCollectAll)
		if loaded == nil || len(loadErrs) > 0 {
			return WrapExitError(ExitCommandError, "failed to load tables", errors.Join(loadErrs...))
		}
		lookup = func(name string) (*fsm.Table, error) {
			if t, ok := loaded.Table(name); ok {
				return t, nil
			}
			return nil, fmt.Errorf("table %q not found in %s", name, opts.TablesDir)
		}
	}

	var runs []store.Run
	if opts.RunID != "" {
		run, err := st.ReadRun(ctx, opts.RunID)
		if errors.Is(err, sql.ErrNoRows) {
			return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", opts.RunID))
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read run", err)
		}
		runs = []store.Run{run}
	} else {
		runs, err = st.ReadRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
	}

	if len(runs) == 0 {
		if opts.Format == "json" {
			return outputReplayJSON(cmd, ReplayResult{
				Runs:             []ReplayRunResult{},
				TotalRuns:        0,
				AllDeterministic: true,
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No runs found in database.")
		return nil
	}

	result := ReplayResult{
		Runs:             make([]ReplayRunResult, 0, len(runs)),
		TotalRuns:        len(runs),
		AllDeterministic: true,
	}

	for _, run := range runs {
		runResult, err := replayRun(ctx, st, run, lookup)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay run %s", run.ID), err)
		}

		result.Runs = append(result.Runs, runResult)
		if !runResult.Deterministic {
			result.AllDeterministic = false
		}
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}

	return outputReplayText(cmd, result, opts.Verbose)
}

// replayRun replays a single run against the table lookup resolves for it.
func replayRun(ctx context.Context, st *store.Store, run store.Run, lookup func(string) (*fsm.Table, error)) (ReplayRunResult, error) {
	t, err := lookup(run.Table)
	if err != nil {
		return ReplayRunResult{}, err
	}

	hash, err := trace.TableHash(t)
	if err != nil {
		return ReplayRunResult{}, err
	}

	ticks, err := st.ReadTicks(ctx, run.ID)
	if err != nil {
		return ReplayRunResult{}, err
	}

	replayed, err := engine.Replay(t, ticks)
	if err != nil {
		return ReplayRunResult{}, err
	}

	return ReplayRunResult{
		RunID:         run.ID,
		Table:         run.Table,
		Ticks:         len(ticks),
		TableChanged:  hash != run.TableHash,
		Deterministic: replayed.Identical(),
		Mismatches:    replayed.Mismatches,
	}, nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.AllDeterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_DETERMINISM",
			Message: "determinism verification failed",
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !result.AllDeterministic {
		// Determinism failure = exit code 1
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay Summary: %d run(s)\n", result.TotalRuns)
	fmt.Fprintln(w)

	for _, run := range result.Runs {
		status := "✓"
		if !run.Deterministic {
			status = "✗"
		}

		fmt.Fprintf(w, "%s Run: %s\n", status, run.RunID)
		fmt.Fprintf(w, "  Table: %s, %d ticks\n", run.Table, run.Ticks)
		if run.TableChanged {
			fmt.Fprintln(w, "  Note: table differs from the one recorded")
		}

		shown := run.Mismatches
		if !verbose && len(shown) > 5 {
			shown = shown[:5]
		}
		for _, m := range shown {
			fmt.Fprintf(w, "  %s\n", m)
		}
		if len(shown) < len(run.Mismatches) {
			fmt.Fprintf(w, "  ... %d more (use --verbose)\n", len(run.Mismatches)-len(shown))
		}
		fmt.Fprintln(w)
	}

	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All runs replayed identically")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	// Determinism failure = exit code 1
	return NewExitError(ExitFailure, "determinism verification failed")
}
