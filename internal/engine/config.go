package engine

import (
	"fmt"
	"time"
)

// Config controls the loop cadence.
type Config struct {
	// Period is the wall-clock interval between ticks in Run.
	Period time.Duration

	// Substeps is the number of ticks per major step. Tick seq 1 is major,
	// followed by Substeps-1 minor ticks, and so on. 1 makes every tick major.
	Substeps int

	// MaxTicks stops Run after this many ticks. 0 runs until cancelled.
	MaxTicks int64

	// Label is stored with the run record.
	Label string
}

// NewConfig returns the default cadence: a major step every 10ms tick.
func NewConfig() Config {
	return Config{
		Period:   10 * time.Millisecond,
		Substeps: 1,
	}
}

// Validate checks the config for values the loop cannot run with.
func (c Config) Validate() error {
	if c.Period <= 0 {
		return fmt.Errorf("period must be positive, got %s", c.Period)
	}
	if c.Substeps < 1 {
		return fmt.Errorf("substeps must be at least 1, got %d", c.Substeps)
	}
	if c.MaxTicks < 0 {
		return fmt.Errorf("max ticks must not be negative, got %d", c.MaxTicks)
	}
	return nil
}

// IsMajor reports whether tick seq is a major step under this cadence.
func (c Config) IsMajor(seq int64) bool {
	if c.Substeps <= 1 {
		return true
	}
	return (seq-1)%int64(c.Substeps) == 0
}
