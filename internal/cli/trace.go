package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/modeseq/internal/store"
	"github.com/roach88/modeseq/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database    string
	RunID       string // optional - list runs when empty
	Transitions bool   // only ticks that took a transition
}

// TraceResult holds the complete trace output for one run.
type TraceResult struct {
	Run       store.Run    `json:"run"`
	TraceHash string       `json:"trace_hash"`
	Ticks     []trace.Tick `json:"ticks"`
	Stats     TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalTicks  int    `json:"total_ticks"`
	MajorTicks  int    `json:"major_ticks"`
	Transitions int    `json:"transitions"`
	FinalState  string `json:"final_state"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show a recorded run",
		Long: `Show the ticks of a run recorded with --db.

Without --run, lists every run in the database. With --run, prints the
run's ticks in seq order together with the hash of the full trace, which
is stable across machines for identical runs.

Examples:
  modeseq trace --db ./runs.db
  modeseq trace --db ./runs.db --run 0190a3c2-...
  modeseq trace --db ./runs.db --run 0190a3c2-... --transitions
  modeseq trace --db ./runs.db --run 0190a3c2-... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to show")
	cmd.Flags().BoolVar(&opts.Transitions, "transitions", false, "only show ticks that took a transition")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.RunID == "" {
		return listRuns(ctx, st, opts, cmd)
	}

	run, err := st.ReadRun(ctx, opts.RunID)
	if errors.Is(err, sql.ErrNoRows) {
		return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", opts.RunID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	all, err := st.ReadTicks(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read ticks", err)
	}
	hash, err := trace.TraceHash(all)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash trace", err)
	}

	ticks := all
	if opts.Transitions {
		ticks, err = st.ReadTransitions(ctx, run.ID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read transitions", err)
		}
	}

	result := TraceResult{
		Run:       run,
		TraceHash: hash,
		Ticks:     ticks,
		Stats:     traceStats(all),
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd, result, opts.Verbose)
}

func traceStats(ticks []trace.Tick) TraceStats {
	stats := TraceStats{TotalTicks: len(ticks), FinalState: trace.NoState}
	for _, tk := range ticks {
		if tk.Major {
			stats.MajorTicks++
		}
		if tk.Transition != "" {
			stats.Transitions++
		}
		stats.FinalState = tk.State
	}
	return stats
}

func listRuns(ctx context.Context, st *store.Store, opts *TraceOptions, cmd *cobra.Command) error {
	runs, err := st.ReadRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if opts.Format == "json" {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(CLIResponse{Status: "ok", Data: runs})
	}

	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found in database.")
		return nil
	}
	for _, run := range runs {
		n, err := st.CountTicks(ctx, run.ID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to count ticks", err)
		}
		fmt.Fprintf(w, "%s  %-10s %5d ticks", run.ID, run.Table, n)
		if run.Label != "" {
			fmt.Fprintf(w, "  %s", run.Label)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// outputTraceText outputs the trace result as text.
func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Trace for Run: %s\n", result.Run.ID)
	fmt.Fprintf(w, "Table: %s (%s)\n", result.Run.Table, truncateID(result.Run.TableHash))
	if result.Run.Label != "" {
		fmt.Fprintf(w, "Label: %s\n", result.Run.Label)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Ticks ===")
	if len(result.Ticks) == 0 {
		fmt.Fprintln(w, "  (no ticks)")
	}
	for _, tk := range result.Ticks {
		formatTick(w, tk, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Ticks:       %d (%d major)\n", result.Stats.TotalTicks, result.Stats.MajorTicks)
	fmt.Fprintf(w, "  Transitions: %d\n", result.Stats.Transitions)
	fmt.Fprintf(w, "  Final State: %s\n", result.Stats.FinalState)
	fmt.Fprintf(w, "  Trace Hash:  %s\n", result.TraceHash)

	return nil
}

// formatTick formats a single tick for text output.
func formatTick(w io.Writer, tk trace.Tick, verbose bool) {
	kind := "major"
	if !tk.Major {
		kind = "minor"
	}
	if tk.Transition != "" {
		fmt.Fprintf(w, "  [%d] %s %s: %s -> %s\n", tk.Seq, kind, tk.Transition, tk.From, tk.State)
	} else {
		fmt.Fprintf(w, "  [%d] %s %s\n", tk.Seq, kind, tk.State)
	}
	if verbose {
		fmt.Fprintf(w, "       Inputs:  %s\n", formatValues(tk.Inputs))
		fmt.Fprintf(w, "       Outputs: %s\n", formatValues(tk.Outputs))
	}
}

// formatValues formats a signal map with sorted keys.
func formatValues(values map[string]float64) string {
	if len(values) == 0 {
		return "{}"
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", k, values[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
