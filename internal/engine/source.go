package engine

import (
	"context"
	"sync"
)

// ScriptSource replays a fixed list of input vectors, then reports
// ErrSourceExhausted. Used by scenario runs and tests.
type ScriptSource struct {
	mu     sync.Mutex
	frames [][]float64
	idx    int
}

// NewScriptSource creates a source that yields frames in order.
func NewScriptSource(frames ...[]float64) *ScriptSource {
	return &ScriptSource{frames: frames}
}

// Sample returns the next frame.
func (s *ScriptSource) Sample(ctx context.Context) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.idx >= len(s.frames) {
		return nil, ErrSourceExhausted
	}
	f := s.frames[s.idx]
	s.idx++
	return f, nil
}

// Remaining returns the number of frames not yet sampled.
func (s *ScriptSource) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames) - s.idx
}
