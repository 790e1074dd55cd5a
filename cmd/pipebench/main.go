// Package main provides the pipebench CLI tool.
//
// pipebench drives concurrent traffic through in-memory byte pipes.
// It wires up pipe pairs, streams seeded pseudo-random data through
// each one from a writer goroutine to a verifying reader, and reports
// per-pipe and aggregate throughput.
//
// Usage:
//
//	pipebench run                      # Run the built-in default scenario
//	pipebench run -f scenario.yaml     # Run a scenario file
//	pipebench run --pipes 8 --bytes $((64<<20))
//	pipebench run --dump-config        # Print the effective scenario and exit
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/mempipe/cmd/pipebench/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
