package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/modeseq/internal/fsm"
	"github.com/roach88/modeseq/internal/store"
	"github.com/roach88/modeseq/internal/trace"
)

// Source supplies the input vector for a tick, in the table's input order.
type Source interface {
	Sample(ctx context.Context) ([]float64, error)
}

// Sink receives the result of every major step.
type Sink interface {
	Publish(ctx context.Context, f Frame) error
}

// Recorder persists runs and their ticks. *store.Store implements it.
type Recorder interface {
	WriteRun(ctx context.Context, run store.Run) error
	WriteTick(ctx context.Context, runID string, tk trace.Tick) error
}

// Frame is what a Sink sees after a major step.
type Frame struct {
	RunID string
	Table string
	Tick  trace.Tick

	// StateChanged is true when the step took a transition, including the
	// initial one.
	StateChanged bool
}

// Loop drives one machine from a Source on a fixed cadence.
//
// Loop owns its machine: Step and Run must be called from one goroutine.
type Loop struct {
	table    *fsm.Table
	machine  *fsm.Machine
	source   Source
	sink     Sink
	recorder Recorder
	clock    *Clock
	runIDs   RunIDGenerator
	cfg      Config
	logger   *slog.Logger

	runID   string
	begun   bool
	fsmOpts []fsm.Option
}

// Option configures a Loop.
type Option func(*Loop)

// WithSink publishes every major step to s.
func WithSink(s Sink) Option {
	return func(l *Loop) { l.sink = s }
}

// WithRecorder records the run and every tick to r.
func WithRecorder(r Recorder) Option {
	return func(l *Loop) { l.recorder = r }
}

// WithConfig sets the cadence. Default: NewConfig().
func WithConfig(cfg Config) Option {
	return func(l *Loop) { l.cfg = cfg }
}

// WithClock sets the tick counter, e.g. to resume at a known seq.
func WithClock(c *Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// WithRunIDGenerator sets the run id source. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(l *Loop) { l.runIDs = g }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// WithMachineOptions passes options through to fsm.New.
func WithMachineOptions(opts ...fsm.Option) Option {
	return func(l *Loop) { l.fsmOpts = append(l.fsmOpts, opts...) }
}

// New creates a loop for table t. source may be nil if the caller only
// uses StepWith.
func New(t *fsm.Table, source Source, opts ...Option) *Loop {
	l := &Loop{
		table:  t,
		source: source,
		clock:  NewClock(),
		runIDs: UUIDv7Generator{},
		cfg:    NewConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.machine = fsm.New(t, l.fsmOpts...)
	l.runID = l.runIDs.Generate()
	return l
}

// RunID returns the id of the current run.
func (l *Loop) RunID() string { return l.runID }

// Machine exposes the machine the loop drives.
func (l *Loop) Machine() *fsm.Machine { return l.machine }

// Table returns the loop's table.
func (l *Loop) Table() *fsm.Table { return l.table }

// Clock returns the loop's tick counter.
func (l *Loop) Clock() *Clock { return l.clock }

// Begin writes the run record if a recorder is attached. Step calls it
// on first use; calling it again is a no-op.
func (l *Loop) Begin(ctx context.Context) error {
	if l.begun {
		return nil
	}
	if l.recorder != nil {
		hash, err := trace.TableHash(l.table)
		if err != nil {
			return &RuntimeError{Code: ErrCodeRecord, Message: "hash table", RunID: l.runID, Err: err}
		}
		run := store.Run{ID: l.runID, Table: l.table.Name(), TableHash: hash, Label: l.cfg.Label}
		if err := l.recorder.WriteRun(ctx, run); err != nil {
			return &RuntimeError{Code: ErrCodeRecord, Message: "record run", RunID: l.runID, Err: err}
		}
	}
	l.begun = true
	l.logger.Info("run started",
		"run", l.runID,
		"table", l.table.Name(),
		"substeps", l.cfg.Substeps,
	)
	return nil
}

// Step samples the source and evaluates one tick. Whether the tick is a
// major step follows from the configured cadence.
//
// A source failure skips the tick entirely: no seq is consumed and the
// machine is not evaluated.
func (l *Loop) Step(ctx context.Context) (trace.Tick, error) {
	if l.source == nil {
		return trace.Tick{}, newSourceError(l.runID, errors.New("no source configured"))
	}
	inputs, err := l.source.Sample(ctx)
	if err != nil {
		if errors.Is(err, ErrSourceExhausted) {
			return trace.Tick{}, err
		}
		return trace.Tick{}, newSourceError(l.runID, err)
	}
	return l.StepWith(ctx, inputs, l.cfg.IsMajor(l.clock.Current()+1))
}

// StepWith evaluates one tick with the given inputs, then records and
// publishes it. The tick is always evaluated; recording and publishing
// failures are returned together but do not undo it.
func (l *Loop) StepWith(ctx context.Context, inputs []float64, major bool) (trace.Tick, error) {
	var errs []error
	if err := l.Begin(ctx); err != nil {
		errs = append(errs, err)
	}

	seq := l.clock.Next()
	from := l.machine.State()
	l.machine.Evaluate(inputs, major)
	tk := trace.Capture(l.machine, seq, inputs, major, from)

	if tk.Transition != "" {
		l.logger.Info("transition",
			"run", l.runID,
			"seq", seq,
			"name", tk.Transition,
			"from", tk.From,
			"to", tk.State,
		)
	} else if major {
		l.logger.Debug("step", "run", l.runID, "seq", seq, "state", tk.State)
	}

	if l.recorder != nil && l.begun {
		if err := l.recorder.WriteTick(ctx, l.runID, tk); err != nil {
			errs = append(errs, newRecordError(l.runID, seq, err))
		}
	}

	if l.sink != nil && major {
		f := Frame{RunID: l.runID, Table: l.table.Name(), Tick: tk, StateChanged: tk.Transition != ""}
		if err := l.sink.Publish(ctx, f); err != nil {
			errs = append(errs, newSinkError(l.runID, seq, err))
		}
	}

	return tk, errors.Join(errs...)
}

// Run ticks every cfg.Period until ctx is cancelled, the source is
// exhausted, or cfg.MaxTicks ticks have run.
//
// ERROR HANDLING: a failing tick is logged and the loop continues with the
// next one. The machine must keep being evaluated on schedule; retrying a
// tick would shift every later one.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid loop config: %w", err)
	}
	if err := l.Begin(ctx); err != nil {
		l.logStepError(err)
	}

	ticker := time.NewTicker(l.cfg.Period)
	defer ticker.Stop()

	var ticks int64
	for {
		if l.cfg.MaxTicks > 0 && ticks >= l.cfg.MaxTicks {
			l.logger.Info("run stopping: tick limit reached", "run", l.runID, "ticks", ticks)
			return nil
		}

		select {
		case <-ctx.Done():
			l.logger.Info("run stopping: context cancelled", "run", l.runID, "ticks", ticks)
			return ctx.Err()

		case <-ticker.C:
			_, err := l.Step(ctx)
			if errors.Is(err, ErrSourceExhausted) {
				l.logger.Info("run stopping: source exhausted", "run", l.runID, "ticks", ticks)
				return nil
			}
			if err != nil {
				l.logStepError(err)
			}
			if !IsSourceError(err) {
				ticks++
			}
		}
	}
}

func (l *Loop) logStepError(err error) {
	var re *RuntimeError
	if errors.As(err, &re) {
		l.logger.Error("tick failed",
			"run", l.runID,
			"code", string(re.Code),
			"seq", re.Seq,
			"error", err,
		)
		return
	}
	l.logger.Error("tick failed", "run", l.runID, "error", err)
}
