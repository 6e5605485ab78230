// Command lumencored is the control core's process entry point: it parses
// flags, wires the fabric/patcher/mixer/output pipeline together exactly as
// spec.md §2 describes the data flow, and runs until shutdown. This file
// mirrors the teacher's cmd/mindpalace/main.go composition shape (flags →
// logging → core components → background loops → await shutdown) cut into
// cobra subcommands per SPEC_FULL.md §6.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
