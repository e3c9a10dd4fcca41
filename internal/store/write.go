package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/modeseq/internal/trace"
)

// Run describes one recorded run.
type Run struct {
	ID        string `json:"id"`
	Table     string `json:"table"`
	TableHash string `json:"table_hash"`
	Label     string `json:"label,omitempty"`
}

// ErrConflict is returned when a write reuses a run id or tick seq that is
// already recorded with different content.
var ErrConflict = errors.New("conflicts with recorded data")

// WriteRun inserts a run record.
// Writing an identical record again is a no-op; writing a different record
// under an existing id fails with ErrConflict.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, table_name, table_hash, label)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.Table, run.TableHash, run.Label)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}

	existing, err := s.ReadRun(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	if existing != run {
		return fmt.Errorf("write run %s: %w: recorded for table %s (%s) label %q",
			run.ID, ErrConflict, existing.Table, existing.TableHash, existing.Label)
	}
	return nil
}

// WriteTick appends one tick to a run. The run must exist.
// Writing an identical (run, seq) again is a no-op; a different tick under
// the same seq fails with ErrConflict.
func (s *Store) WriteTick(ctx context.Context, runID string, tk trace.Tick) error {
	return writeTick(ctx, s.db, runID, tk)
}

// WriteTicks appends ticks to a run in one transaction.
func (s *Store) WriteTicks(ctx context.Context, runID string, ticks []trace.Tick) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write ticks: begin: %w", err)
	}
	defer tx.Rollback()

	for _, tk := range ticks {
		if err := writeTick(ctx, tx, runID, tk); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write ticks: commit: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func writeTick(ctx context.Context, db execer, runID string, tk trace.Tick) error {
	inputs, err := marshalValues(tk.Inputs)
	if err != nil {
		return fmt.Errorf("write tick %d: %w", tk.Seq, err)
	}
	outputs, err := marshalValues(tk.Outputs)
	if err != nil {
		return fmt.Errorf("write tick %d: %w", tk.Seq, err)
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO ticks
		(run_id, seq, major, inputs, from_state, state, transition, outputs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		runID,
		tk.Seq,
		boolToInt(tk.Major),
		inputs,
		tk.From,
		tk.State,
		tk.Transition,
		outputs,
	)
	if err != nil {
		return fmt.Errorf("write tick %d: %w", tk.Seq, err)
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}

	var (
		major                          int
		gotIn, from, state, tr, gotOut string
	)
	err = db.QueryRowContext(ctx, `
		SELECT major, inputs, from_state, state, transition, outputs
		FROM ticks
		WHERE run_id = ? AND seq = ?
	`, runID, tk.Seq).Scan(&major, &gotIn, &from, &state, &tr, &gotOut)
	if err != nil {
		return fmt.Errorf("write tick %d: %w", tk.Seq, err)
	}
	if major != boolToInt(tk.Major) || gotIn != inputs || from != tk.From ||
		state != tk.State || tr != tk.Transition || gotOut != outputs {
		return fmt.Errorf("write tick %d of run %s: %w", tk.Seq, runID, ErrConflict)
	}
	return nil
}
