package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/modeseq/internal/fsm"
	"github.com/roach88/modeseq/internal/modes"
	"github.com/roach88/modeseq/internal/trace"
)

// TablesOptions holds flags for the tables command.
type TablesOptions struct {
	*RootOptions
	Source bool // print the CUE source instead of a summary
}

// TableSummary describes a shipped table.
type TableSummary struct {
	Name    string   `json:"name"`
	Hash    string   `json:"hash"`
	Initial string   `json:"initial"`
	States  []string `json:"states"`
	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`
}

// NewTablesCommand creates the tables command.
func NewTablesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TablesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tables [name]",
		Short: "List the shipped mode tables",
		Long: `List the mode tables built into modeseq, or show one in detail.

Examples:
  modeseq tables
  modeseq tables pll-dvc
  modeseq tables open-loop --source`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTables(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Source, "source", false, "print the table's CUE source")

	return cmd
}

func runTables(opts *TablesOptions, args []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	w := cmd.OutOrStdout()

	if len(args) == 0 {
		summaries := make([]TableSummary, 0, len(modes.Names()))
		for _, name := range modes.Names() {
			t, _ := modes.Lookup(name)
			summaries = append(summaries, summarize(t))
		}
		if opts.Format == "json" {
			return formatter.Success(summaries)
		}
		for _, s := range summaries {
			fmt.Fprintf(w, "%-12s %d states, %d inputs, %d outputs  %s\n",
				s.Name, len(s.States), len(s.Inputs), len(s.Outputs), s.Hash[:12])
		}
		return nil
	}

	name := args[0]
	t, err := modes.Lookup(name)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "unknown table", err)
	}

	if opts.Source {
		src, err := modes.Source(name)
		if err != nil {
			return WrapExitError(ExitCommandError, "no source", err)
		}
		if opts.Format == "json" {
			return formatter.Success(map[string]string{"name": name, "source": string(src)})
		}
		_, err = w.Write(src)
		return err
	}

	if opts.Format == "json" {
		return formatter.Success(trace.DefinitionMap(t.Definition()))
	}
	printTable(cmd, t)
	return nil
}

// summarize builds the listing entry of a table.
func summarize(t *fsm.Table) TableSummary {
	states := make([]string, 0, len(t.States()))
	for _, id := range t.States() {
		states = append(states, t.StateName(id))
	}
	return TableSummary{
		Name:    t.Name(),
		Hash:    trace.MustTableHash(t),
		Initial: t.StateName(t.Initial()),
		States:  states,
		Inputs:  t.Inputs(),
		Outputs: t.Outputs(),
	}
}

// printTable writes the states, actions and transitions of t.
func printTable(cmd *cobra.Command, t *fsm.Table) {
	w := cmd.OutOrStdout()
	def := t.Definition()

	fmt.Fprintf(w, "Table: %s\n", def.Name)
	fmt.Fprintf(w, "Hash:    %s\n", trace.MustTableHash(t))
	fmt.Fprintf(w, "Inputs:  %s\n", strings.Join(def.Inputs, ", "))
	fmt.Fprintf(w, "Outputs: %s\n", strings.Join(def.Outputs, ", "))
	fmt.Fprintf(w, "Initial: %s\n", def.Initial)

	ids := t.States()
	for i, sd := range def.States {
		fmt.Fprintln(w)
		if t.IsTerminal(ids[i]) {
			fmt.Fprintf(w, "  %s (terminal)\n", sd.Name)
		} else {
			fmt.Fprintf(w, "  %s\n", sd.Name)
		}
		fmt.Fprintf(w, "    entry:  %s\n", formatAction(def.Outputs, sd.Entry))
		fmt.Fprintf(w, "    during: %s\n", formatAction(def.Outputs, sd.During))
		if len(sd.Tracks) > 0 {
			fmt.Fprintf(w, "    tracks: %s\n", strings.Join(sd.Tracks, ", "))
		}
		for _, td := range sd.Transitions {
			fmt.Fprintf(w, "    %s: %s %s -> %s\n", td.Name, td.Signal, td.Edge, td.Target)
		}
	}
}

// formatAction renders an action in output order.
func formatAction(outputs []string, action map[string]float64) string {
	parts := make([]string, len(outputs))
	for i, name := range outputs {
		parts[i] = fmt.Sprintf("%s=%g", name, action[name])
	}
	return strings.Join(parts, " ")
}
