package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roverhq/rover/internal/config"
	"github.com/roverhq/rover/internal/store"
)

// starterConfig is written by "rover init". Every key is commented out so
// the file documents the defaults without freezing them.
const starterConfig = `# Rover configuration. Delete any key to fall back to its default.

[scan]
# voters = 3
# votes_required = 2
# concurrency = 2
# scanner_max_turns = 50
# voter_max_turns = 10

[fix]
# max_iterations = 10
# concurrency = 2
# retries = 2

[consolidate]
# concurrency = 2
# similarity_threshold = 0.40

[llm]
# command = "claude"
# model = ""
# permission_mode = ""

# Custom agents extend the builtin set. Example:
# [agents.sql]
# name = "SQL Reviewer"
# description = "Reviews database queries and migrations"
# system_prompt = "You review SQL for injection risks and missing indexes."
# file_patterns = ["**/*.sql", "internal/db/**"]
`

// gitignoreEntry keeps rover's state out of version control.
const gitignoreEntry = ".rover/"

type initFlags struct {
	Force bool
}

// newInitCmd creates the "rover init" command.
func newInitCmd() *cobra.Command {
	flags := &initFlags{}

	cmd := &cobra.Command{
		Use:   "init [<path>]",
		Short: "Prepare a repository for rover",
		Long: `Create the .rover/ state directory, write a starter rover.toml with
every option documented, and add .rover/ to the repository's .gitignore.
Safe to re-run; an existing rover.toml is only overwritten with --force.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, args, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.Force, "force", false, "Overwrite an existing rover.toml")
	return cmd
}

func init() {
	rootCmd.AddCommand(newInitCmd())
}

func runInit(cmd *cobra.Command, args []string, flags *initFlags) error {
	target, err := resolveTarget(args)
	if err != nil {
		return err
	}

	if err := store.EnsureLayout(target); err != nil {
		return err
	}

	stderr := cmd.ErrOrStderr()
	var created []string

	configPath := filepath.Join(target, config.ConfigFileName)
	if _, err := os.Stat(configPath); err == nil && !flags.Force {
		fmt.Fprintf(stderr, "%s already exists; use --force to overwrite.\n", config.ConfigFileName)
	} else {
		if err := os.WriteFile(configPath, []byte(starterConfig), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", config.ConfigFileName, err)
		}
		created = append(created, config.ConfigFileName)
	}

	added, err := ensureGitignore(target)
	if err != nil {
		return err
	}
	if added {
		created = append(created, ".gitignore ("+gitignoreEntry+" entry)")
	}

	fmt.Fprintf(stderr, "Initialized rover in %s\n", target)
	for _, f := range created {
		fmt.Fprintf(stderr, "  %s\n", f)
	}
	fmt.Fprintln(stderr, "\nNext steps:")
	fmt.Fprintln(stderr, "  1. Review rover.toml")
	fmt.Fprintln(stderr, "  2. Run: rover scan . --all")
	fmt.Fprintln(stderr, "  3. Run: rover issues")
	return nil
}

// ensureGitignore appends the state-directory entry to .gitignore unless
// some line already covers it. Reports whether a write happened.
func ensureGitignore(target string) (bool, error) {
	path := filepath.Join(target, ".gitignore")
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("reading .gitignore: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == gitignoreEntry || trimmed == strings.TrimSuffix(gitignoreEntry, "/") {
			return false, nil
		}
	}

	var b strings.Builder
	b.Write(data)
	if len(data) > 0 && !strings.HasSuffix(string(data), "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(gitignoreEntry + "\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return false, fmt.Errorf("writing .gitignore: %w", err)
	}
	return true, nil
}
