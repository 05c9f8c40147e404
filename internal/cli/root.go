// Package cli defines the rover command tree. Commands wire the scan,
// fix, consolidate, and review engines over a target repository's .rover
// store; all heavy lifting lives in the internal packages they call.
package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/roverhq/rover/internal/logging"
)

// Global flag values accessible to all subcommands.
var (
	flagVerbose bool
	flagQuiet   bool
	flagJSON    bool
	flagNoColor bool
)

// rootCmd is the base command for rover.
var rootCmd = &cobra.Command{
	Use:   "rover",
	Short: "AI code-quality engine: scan, ticket, and auto-fix issues",
	Long: `Rover drives a fleet of AI review agents against a source tree and turns
their consensus findings into markdown tickets under .rover/. Each ticket can
then be auto-repaired in an isolated git worktree through an iterative
fix-and-review loop, and finished branches submitted as pull requests.

Typical flow:
  rover scan . --all         # find issues, write tickets
  rover issues               # inspect what was found
  rover fix ISSUE-001        # repair one issue on its own branch
  rover review submit --all  # open PRs for finished fixes`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Env fallbacks apply only when the flag was not set explicitly.
		if !cmd.Flags().Changed("verbose") && os.Getenv("ROVER_VERBOSE") != "" {
			flagVerbose = true
		}
		if !cmd.Flags().Changed("quiet") && os.Getenv("ROVER_QUIET") != "" {
			flagQuiet = true
		}
		if !cmd.Flags().Changed("no-color") && (os.Getenv("NO_COLOR") != "" || os.Getenv("ROVER_NO_COLOR") != "") {
			flagNoColor = true
		}
		if !cmd.Flags().Changed("json") && os.Getenv("ROVER_LOG_FORMAT") == "json" {
			flagJSON = true
		}

		logging.Setup(flagVerbose, flagQuiet, flagJSON)

		if flagNoColor {
			lipgloss.SetColorProfile(termenv.Ascii)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose (debug) output (env: ROVER_VERBOSE)")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress all output except errors (env: ROVER_QUIET)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Machine-readable output: JSON logs and JSON command output (env: ROVER_LOG_FORMAT=json)")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable colored output (env: ROVER_NO_COLOR, NO_COLOR)")
}

// Execute runs the root command and returns the exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// NewRootCmd returns a fresh instance of the command tree for external
// generators (shell completions, man pages). It carries the same persistent
// flags as the global rootCmd but binds them to local storage so generators
// never touch package state.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               rootCmd.Use,
		Short:             rootCmd.Short,
		Long:              rootCmd.Long,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: rootCmd.PersistentPreRunE,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose (debug) output (env: ROVER_VERBOSE)")
	cmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress all output except errors (env: ROVER_QUIET)")
	cmd.PersistentFlags().Bool("json", false, "Machine-readable output: JSON logs and JSON command output (env: ROVER_LOG_FORMAT=json)")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output (env: ROVER_NO_COLOR, NO_COLOR)")

	for _, child := range rootCmd.Commands() {
		cmd.AddCommand(child)
	}
	return cmd
}
