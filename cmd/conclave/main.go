// Command conclave serves and queries the multi-expert answering service.
package main

import (
	"fmt"
	"os"

	"github.com/xiaot623/conclave/cmd/conclave/commands"
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersion(version, commit, date)

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
