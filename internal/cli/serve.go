package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/modeseq/internal/bridge"
	"github.com/roach88/modeseq/internal/engine"
	"github.com/roach88/modeseq/internal/fsm"
	"github.com/roach88/modeseq/internal/modes"
	"github.com/roach88/modeseq/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	RedisAddr string
	RedisDB   int
	Table     string
	Unit      string
	Prefix    string
	Period    time.Duration
	Substeps  int
	MaxTicks  int64
	Database  string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}
	defaults := engine.NewConfig()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Drive a unit's mode table from Redis",
		Long: `Run the tick loop for one inverter unit against Redis.

Every period the inputs are read from the hash <prefix>:<unit>:inputs.
After every major step the outputs and the state name are written to
<prefix>:<unit>:outputs, and a state change is published on the channel
<prefix>:<unit>. With --db every tick is also recorded for trace and replay.

Example:
  modeseq serve --table pll-dvc --unit inv0
  modeseq serve --redis 10.0.0.2:6379 --table open-loop --unit inv1 --period 1ms --substeps 10
  modeseq serve --table pll-dvc --unit inv0 --db ./runs.db --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RedisAddr, "redis", "localhost:6379", "Redis server address")
	cmd.Flags().IntVar(&opts.RedisDB, "redis-db", 0, "Redis database number")
	cmd.Flags().StringVar(&opts.Table, "table", "", "mode table to run (required)")
	_ = cmd.MarkFlagRequired("table")
	cmd.Flags().StringVar(&opts.Unit, "unit", "", "unit name used in the Redis keys (required)")
	_ = cmd.MarkFlagRequired("unit")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", bridge.DefaultPrefix, "Redis key prefix")
	cmd.Flags().DurationVar(&opts.Period, "period", defaults.Period, "interval between ticks")
	cmd.Flags().IntVar(&opts.Substeps, "substeps", defaults.Substeps, "ticks per major step")
	cmd.Flags().Int64Var(&opts.MaxTicks, "max-ticks", 0, "stop after this many ticks (0 runs until interrupted)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database to record the run")

	return cmd
}

// loopConfig builds the loop cadence from the flags.
func (o *ServeOptions) loopConfig() (engine.Config, error) {
	cfg := engine.NewConfig()
	cfg.Period = o.Period
	cfg.Substeps = o.Substeps
	cfg.MaxTicks = o.MaxTicks
	cfg.Label = o.Unit
	if err := cfg.Validate(); err != nil {
		return engine.Config{}, err
	}
	return cfg, nil
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	t, err := modes.Lookup(opts.Table)
	if err != nil {
		return WrapExitError(ExitCommandError, "unknown table", err)
	}

	cfg, err := opts.loopConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid loop config", err)
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	slog.Info("connecting to redis", "addr", opts.RedisAddr, "db", opts.RedisDB)
	client, err := bridge.Dial(ctx, opts.RedisAddr, opts.RedisDB)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to connect to redis", err)
	}
	defer client.Close()

	b := bridge.New(client, t, opts.Prefix, opts.Unit, slog.Default())
	loopOpts := []engine.Option{
		engine.WithSink(b),
		engine.WithConfig(cfg),
		engine.WithMachineOptions(fsm.WithWarningHandler(func(msg string) {
			slog.Warn("machine warning", "table", t.Name(), "unit", opts.Unit, "msg", msg)
		})),
	}

	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
		loopOpts = append(loopOpts, engine.WithRecorder(st))
	}

	loop := engine.New(t, b, loopOpts...)

	keys := b.Keys()
	slog.Info("loop starting",
		"table", t.Name(),
		"unit", opts.Unit,
		"inputs", keys.Inputs,
		"outputs", keys.Outputs,
		"period", cfg.Period,
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s for unit %s (run %s)\n", t.Name(), opts.Unit, loop.RunID())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "loop error", err)
	}

	slog.Info("loop stopped gracefully")
	return nil
}
