// Command gen-completions writes shell completion scripts for bash, zsh, fish,
// and powershell into a directory that release archives bundle as
// completions/. GoReleaser runs it as a before hook.
//
// Usage:
//
//	go run ./scripts/gen-completions [output-dir]
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roverhq/rover/internal/cli"
)

func main() {
	outDir := "completions"
	if len(os.Args) > 1 {
		outDir = os.Args[1]
	}
	if err := run(outDir); err != nil {
		fmt.Fprintln(os.Stderr, "gen-completions:", err)
		os.Exit(1)
	}
}

func run(outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output dir %q: %w", outDir, err)
	}

	root := cli.NewRootCmd()

	shells := []struct {
		filename string
		generate func(*cobra.Command, *os.File) error
	}{
		{"rover.bash", func(c *cobra.Command, f *os.File) error { return c.GenBashCompletionV2(f, true) }},
		{"_rover", func(c *cobra.Command, f *os.File) error { return c.GenZshCompletion(f) }},
		{"rover.fish", func(c *cobra.Command, f *os.File) error { return c.GenFishCompletion(f, true) }},
		{"rover.ps1", func(c *cobra.Command, f *os.File) error { return c.GenPowerShellCompletionWithDesc(f) }},
	}

	for _, sh := range shells {
		path := filepath.Join(outDir, sh.filename)
		if err := writeScript(root, path, sh.generate); err != nil {
			return err
		}
		fmt.Printf("Generated %s\n", path)
	}

	fmt.Printf("All completions written to %s/\n", outDir)
	return nil
}

func writeScript(root *cobra.Command, path string, generate func(*cobra.Command, *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %q: %w", path, err)
	}
	if err := generate(root, f); err != nil {
		f.Close()
		return fmt.Errorf("generating %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %q: %w", path, err)
	}
	return nil
}
