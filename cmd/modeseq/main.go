// Command modeseq validates, tests and runs inverter mode tables.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/modeseq/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
