// Command gen-manpages renders Unix man pages for rover and every subcommand
// into a directory that release archives bundle as man/man1/. GoReleaser runs
// it as a before hook.
//
// Usage:
//
//	go run ./scripts/gen-manpages [output-dir]
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra/doc"

	"github.com/roverhq/rover/internal/cli"
)

func main() {
	outDir := "man/man1"
	if len(os.Args) > 1 {
		outDir = os.Args[1]
	}
	if err := run(outDir); err != nil {
		fmt.Fprintln(os.Stderr, "gen-manpages:", err)
		os.Exit(1)
	}
}

func run(outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output dir %q: %w", outDir, err)
	}

	header := &doc.GenManHeader{
		Title:   "ROVER",
		Section: "1",
		Source:  "rover",
		Manual:  "Rover Manual",
	}
	if err := doc.GenManTree(cli.NewRootCmd(), header, outDir); err != nil {
		return fmt.Errorf("generating man pages: %w", err)
	}

	fmt.Printf("Man pages written to %s/\n", outDir)
	return nil
}
