package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/modeseq/internal/trace"
)

// createTestStore creates a new on-disk store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun creates a run record with minimal required fields.
func createTestRun(id string) Run {
	return Run{
		ID:        id,
		Table:     "pll-dvc",
		TableHash: "test-hash",
		Label:     "test",
	}
}

// createTestTick creates a major tick that stays in the given state.
func createTestTick(seq int64, state string) trace.Tick {
	return trace.Tick{
		Seq:     seq,
		Major:   true,
		Inputs:  map[string]float64{"pll_on": 0},
		From:    state,
		State:   state,
		Outputs: map[string]float64{"mode": 0},
	}
}
