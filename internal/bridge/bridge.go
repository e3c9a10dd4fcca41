// Package bridge connects a Loop to an inverter unit through Redis.
//
// Inputs are read from the hash <prefix>:<unit>:inputs, one field per input
// signal. After every major step the outputs are written to the hash
// <prefix>:<unit>:outputs together with the current state name, and when
// the state changes its new name is published on the channel <prefix>:<unit>.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/modeseq/internal/engine"
	"github.com/roach88/modeseq/internal/fsm"
)

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "modeseq"

// Field names written next to the output signals.
const (
	FieldState      = "state"
	FieldTransition = "transition"
	FieldSeq        = "seq"
)

// Dial connects to Redis and checks the connection.
func Dial(ctx context.Context, addr string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return client, nil
}

// Bridge is an engine.Source and engine.Sink for one unit.
type Bridge struct {
	client redis.Cmdable
	table  *fsm.Table
	keys   Keys
	logger *slog.Logger

	lastState string
}

// New creates a bridge for the given unit. An empty prefix means
// DefaultPrefix.
func New(client redis.Cmdable, t *fsm.Table, prefix, unit string, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		client: client,
		table:  t,
		keys:   NewKeys(prefix, unit),
		logger: logger,
	}
}

// Keys returns the Redis keys the bridge uses.
func (b *Bridge) Keys() Keys { return b.keys }

// Sample reads the input hash. Missing and unparsable fields read as NaN,
// which the engine treats as low.
func (b *Bridge) Sample(ctx context.Context) ([]float64, error) {
	fields, err := b.client.HGetAll(ctx, b.keys.Inputs).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.keys.Inputs, err)
	}

	vec, bad := ParseInputs(b.table.Inputs(), fields)
	if len(bad) > 0 {
		b.logger.Warn("unparsable input fields", "key", b.keys.Inputs, "fields", strings.Join(bad, ","))
	}
	return vec, nil
}

// Publish writes a major step's outputs and announces state changes.
// Everything goes out in one pipeline; the last published state is only
// updated once the pipeline succeeds.
func (b *Bridge) Publish(ctx context.Context, f engine.Frame) error {
	pipe := b.client.Pipeline()
	pipe.HSet(ctx, b.keys.Outputs, OutputFields(f))

	changed := f.Tick.State != b.lastState
	if changed {
		pipe.Publish(ctx, b.keys.Channel, f.Tick.State)
		b.logger.Debug("publishing state", "channel", b.keys.Channel, "new", f.Tick.State, "old", b.lastState)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline execution failed: %w", err)
	}

	b.lastState = f.Tick.State
	return nil
}

// Keys are the Redis keys for one unit.
type Keys struct {
	Inputs  string
	Outputs string
	Channel string
}

// NewKeys derives the keys for a unit.
func NewKeys(prefix, unit string) Keys {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	base := prefix + ":" + unit
	return Keys{
		Inputs:  base + ":inputs",
		Outputs: base + ":outputs",
		Channel: base,
	}
}

// ParseInputs lays out hash fields in input order. A field that is missing
// or cannot be parsed yields NaN; the names of unparsable fields are
// returned in input order.
func ParseInputs(names []string, fields map[string]string) ([]float64, []string) {
	vec := make([]float64, len(names))
	var bad []string
	for i, name := range names {
		raw, ok := fields[name]
		if !ok {
			vec[i] = math.NaN()
			continue
		}
		v, err := ParseValue(raw)
		if err != nil {
			bad = append(bad, name)
		}
		vec[i] = v
	}
	return vec, bad
}

// ParseValue parses one signal value: a finite number, or true/false.
// On error it returns NaN.
func ParseValue(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	switch strings.ToLower(s) {
	case "true", "on":
		return 1, nil
	case "false", "off", "":
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return math.NaN(), fmt.Errorf("invalid signal value %q", raw)
	}
	return v, nil
}

// FormatValue renders an output value the way it is stored in Redis.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// OutputFields builds the output hash fields for a frame.
func OutputFields(f engine.Frame) map[string]any {
	fields := make(map[string]any, len(f.Tick.Outputs)+3)
	for name, v := range f.Tick.Outputs {
		fields[name] = FormatValue(v)
	}
	fields[FieldState] = f.Tick.State
	fields[FieldTransition] = f.Tick.Transition
	fields[FieldSeq] = strconv.FormatInt(f.Tick.Seq, 10)
	return fields
}
