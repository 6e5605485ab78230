package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lumencore/lumencore/internal/tsexport"
)

// tsexportCmd builds the same component graph as `run` (so every plugin's
// services are registered) but never starts the render loop or transports —
// it only needs a populated service registry. Per spec.md §6 this is "a
// build-time feature": it runs after init, reads the service listing,
// writes a file, exits.
func tsexportCmd() *cobra.Command {
	var (
		cfg    Config
		outPath string
	)

	cmd := &cobra.Command{
		Use:   "tsexport",
		Short: "Write a TypeScript client module describing every registered service",
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := buildCore(cfg)
			if err != nil {
				return err
			}
			defer core.Shutdown()

			out := tsexport.Generate(core.Fabric.Services.List())
			if outPath == "-" {
				_, err := fmt.Fprint(os.Stdout, out)
				return err
			}
			return os.WriteFile(outPath, []byte(out), 0o644)
		},
	}

	cmd.Flags().StringVar(&cfg.LibraryCachePath, "library-cache", ":memory:", "Path to the fixture library SQLite cache used while generating (':memory:' recommended)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "lumencore.ts", "Path to write the generated module to ('-' for stdout)")

	return cmd
}
