package trace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/roach88/modeseq/internal/fsm"
)

// Domain prefixes for content hashes. The version suffix allows the
// encoding to change without colliding with old hashes.
const (
	DomainTable = "modeseq/table/v1"
	DomainTrace = "modeseq/trace/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TableHash identifies a compiled table by its content. Two tables with
// the same states, actions, tracks and transitions hash equal regardless
// of where they were loaded from.
func TableHash(t *fsm.Table) (string, error) {
	canonical, err := MarshalCanonical(DefinitionMap(t.Definition()))
	if err != nil {
		return "", fmt.Errorf("TableHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTable, canonical), nil
}

// TraceHash identifies a sequence of ticks.
func TraceHash(ticks []Tick) (string, error) {
	arr := make([]any, len(ticks))
	for i, tk := range ticks {
		arr[i] = tk.Map()
	}
	canonical, err := MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("TraceHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTrace, canonical), nil
}

// MustTableHash is like TableHash but panics on error.
func MustTableHash(t *fsm.Table) string {
	h, err := TableHash(t)
	if err != nil {
		panic(err)
	}
	return h
}

// DefinitionMap returns def as a plain map for canonical encoding. It is
// what TableHash hashes, with transition names spelled out.
func DefinitionMap(def fsm.Definition) map[string]any {
	states := make([]any, len(def.States))
	for i, sd := range def.States {
		transitions := make([]any, len(sd.Transitions))
		for j, td := range sd.Transitions {
			transitions[j] = map[string]any{
				"name":   td.Name,
				"edge":   td.Edge.String(),
				"signal": td.Signal,
				"target": td.Target,
			}
		}
		tracks := sd.Tracks
		if tracks == nil {
			tracks = []string{}
		}
		states[i] = map[string]any{
			"name":        sd.Name,
			"entry":       sd.Entry,
			"during":      sd.During,
			"tracks":      tracks,
			"transitions": transitions,
		}
	}
	return map[string]any{
		"name":    def.Name,
		"inputs":  def.Inputs,
		"outputs": def.Outputs,
		"initial": def.Initial,
		"states":  states,
	}
}
