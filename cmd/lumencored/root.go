package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:   "lumencored",
	Short: "lumencore stage-lighting control core",
	Long: `lumencored is the control core of a stage-lighting console: it
blends operator-built submasters into a single output frame and delivers
that frame to DMX transports (E1.31/sACN, USB-serial OpenDMX), coordinating
the whole thing through a process-wide plugin fabric (service registry,
event bus, init-dependency scheduler).`,
}

func init() {
	rootCmd.AddCommand(runCmd(), tsexportCmd())
}
