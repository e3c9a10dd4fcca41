// Package modes is the registry of shipped mode tables.
//
// Each table exists twice: as Go code in its own package (pll, openloop),
// which gives typed inputs and outputs, and as CUE source under tables/,
// which is what operators edit and the CLI validates. Sources returns the
// CUE text so the two can be checked against each other.
package modes

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/roach88/modeseq/internal/fsm"
	"github.com/roach88/modeseq/internal/modes/openloop"
	"github.com/roach88/modeseq/internal/modes/pll"
)

//go:embed tables/*.cue
var sources embed.FS

var registry = map[string]*fsm.Table{
	pll.Name:      pll.Table(),
	openloop.Name: openloop.Table(),
}

// Lookup returns the shipped table with the given name.
func Lookup(name string) (*fsm.Table, error) {
	t, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown table %q (known: %v)", name, Names())
	}
	return t, nil
}

// Names returns the shipped table names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Source returns the embedded CUE source of the named table.
func Source(name string) ([]byte, error) {
	b, err := fs.ReadFile(sources, "tables/"+name+".cue")
	if err != nil {
		return nil, fmt.Errorf("no source for table %q: %w", name, err)
	}
	return b, nil
}
