package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/modeseq/internal/trace"
)

// ReadRun retrieves a single run by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	var run Run
	err := s.db.QueryRowContext(ctx, `
		SELECT id, table_name, table_hash, label
		FROM runs
		WHERE id = ?
	`, id).Scan(&run.ID, &run.Table, &run.TableHash, &run.Label)
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// ReadRuns returns all runs ordered by id.
// Returns an empty slice (not nil) if the store holds no runs.
func (s *Store) ReadRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, table_name, table_hash, label
		FROM runs
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Table, &run.TableHash, &run.Label); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadTicks returns every tick of a run ordered by seq.
// Returns an empty slice (not nil) if the run has no ticks.
func (s *Store) ReadTicks(ctx context.Context, runID string) ([]trace.Tick, error) {
	return s.queryTicks(ctx, `
		SELECT seq, major, inputs, from_state, state, transition, outputs
		FROM ticks
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
}

// ReadTransitions returns only the ticks of a run that took a transition,
// ordered by seq.
func (s *Store) ReadTransitions(ctx context.Context, runID string) ([]trace.Tick, error) {
	return s.queryTicks(ctx, `
		SELECT seq, major, inputs, from_state, state, transition, outputs
		FROM ticks
		WHERE run_id = ? AND transition != ''
		ORDER BY seq ASC
	`, runID)
}

// CountTicks returns the number of ticks recorded for a run.
func (s *Store) CountTicks(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ticks WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count ticks: %w", err)
	}
	return n, nil
}

func (s *Store) queryTicks(ctx context.Context, query, runID string) ([]trace.Tick, error) {
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	ticks := []trace.Tick{}
	for rows.Next() {
		tk, err := scanTick(rows)
		if err != nil {
			return nil, err
		}
		ticks = append(ticks, tk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticks: %w", err)
	}
	return ticks, nil
}

func scanTick(rows *sql.Rows) (trace.Tick, error) {
	var (
		tk              trace.Tick
		major           int
		inputs, outputs string
	)
	if err := rows.Scan(&tk.Seq, &major, &inputs, &tk.From, &tk.State, &tk.Transition, &outputs); err != nil {
		return trace.Tick{}, fmt.Errorf("scan tick: %w", err)
	}
	tk.Major = major != 0

	var err error
	if tk.Inputs, err = unmarshalValues(inputs); err != nil {
		return trace.Tick{}, fmt.Errorf("tick %d: %w", tk.Seq, err)
	}
	if tk.Outputs, err = unmarshalValues(outputs); err != nil {
		return trace.Tick{}, fmt.Errorf("tick %d: %w", tk.Seq, err)
	}
	return tk, nil
}
