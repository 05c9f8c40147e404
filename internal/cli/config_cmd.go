package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/roverhq/rover/internal/config"
)

// newConfigCmd creates the "rover config" namespace with its show and
// validate subcommands.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
		Long:  "Show the resolved rover configuration and check it for mistakes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigValidateCmd())
	return cmd
}

func init() {
	rootCmd.AddCommand(newConfigCmd())
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration and where each value came from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := resolveTarget(nil)
			if err != nil {
				return err
			}
			cfg, path, meta, err := config.Load(target)
			if err != nil {
				return err
			}
			printResolvedConfig(cmd.OutOrStdout(), cfg, path, meta)
			return nil
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration for errors and warnings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := resolveTarget(nil)
			if err != nil {
				return err
			}
			cfg, _, meta, err := config.Load(target)
			if err != nil {
				return err
			}
			result := config.Validate(cfg, meta)
			printValidationResult(cmd.OutOrStdout(), result)
			if result.HasErrors() {
				return fmt.Errorf("configuration has %d error(s)", len(result.Errors()))
			}
			return nil
		},
	}
}

// fieldSource reports whether a key was set by the config file or fell
// back to a default.
func fieldSource(meta *toml.MetaData, keys ...string) string {
	if meta != nil && meta.IsDefined(keys...) {
		return "file"
	}
	return "default"
}

func printField(out io.Writer, name, value, source string) {
	line := fmt.Sprintf("  %-26s = %-12s", name, value)
	fmt.Fprintf(out, "%s %s\n", line, dimStyle.Render("("+source+")"))
}

func printResolvedConfig(out io.Writer, cfg *config.Config, path string, meta *toml.MetaData) {
	fmt.Fprintln(out, headerStyle.Render("Resolved configuration"))
	if path != "" {
		fmt.Fprintf(out, "Config file: %s\n\n", path)
	} else {
		fmt.Fprintf(out, "Config file: none found (all defaults)\n\n")
	}

	fmt.Fprintln(out, headerStyle.Render("[scan]"))
	printField(out, "voters", fmt.Sprint(cfg.Scan.Voters), fieldSource(meta, "scan", "voters"))
	printField(out, "votes_required", fmt.Sprint(cfg.Scan.VotesRequired), fieldSource(meta, "scan", "votes_required"))
	printField(out, "dedup_summary_threshold", fmt.Sprint(cfg.Scan.DedupSummaryThreshold), fieldSource(meta, "scan", "dedup_summary_threshold"))
	printField(out, "scanner_max_turns", fmt.Sprint(cfg.Scan.ScannerMaxTurns), fieldSource(meta, "scan", "scanner_max_turns"))
	printField(out, "voter_max_turns", fmt.Sprint(cfg.Scan.VoterMaxTurns), fieldSource(meta, "scan", "voter_max_turns"))
	printField(out, "concurrency", fmt.Sprint(cfg.Scan.Concurrency), fieldSource(meta, "scan", "concurrency"))
	fmt.Fprintln(out)

	fmt.Fprintln(out, headerStyle.Render("[fix]"))
	printField(out, "max_iterations", fmt.Sprint(cfg.Fix.MaxIterations), fieldSource(meta, "fix", "max_iterations"))
	printField(out, "concurrency", fmt.Sprint(cfg.Fix.Concurrency), fieldSource(meta, "fix", "concurrency"))
	printField(out, "retries", fmt.Sprint(cfg.Fix.Retries), fieldSource(meta, "fix", "retries"))
	fmt.Fprintln(out)

	fmt.Fprintln(out, headerStyle.Render("[consolidate]"))
	printField(out, "concurrency", fmt.Sprint(cfg.Consolidate.Concurrency), fieldSource(meta, "consolidate", "concurrency"))
	printField(out, "max_turns", fmt.Sprint(cfg.Consolidate.MaxTurns), fieldSource(meta, "consolidate", "max_turns"))
	printField(out, "similarity_threshold", fmt.Sprintf("%.2f", cfg.Consolidate.SimilarityThreshold), fieldSource(meta, "consolidate", "similarity_threshold"))
	fmt.Fprintln(out)

	fmt.Fprintln(out, headerStyle.Render("[llm]"))
	printField(out, "command", fmt.Sprintf("%q", cfg.LLM.Command), fieldSource(meta, "llm", "command"))
	printField(out, "model", fmt.Sprintf("%q", cfg.LLM.Model), fieldSource(meta, "llm", "model"))
	printField(out, "permission_mode", fmt.Sprintf("%q", cfg.LLM.PermissionMode), fieldSource(meta, "llm", "permission_mode"))

	if len(cfg.Agents) > 0 {
		ids := make([]string, 0, len(cfg.Agents))
		for id := range cfg.Agents {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			agent := cfg.Agents[id]
			fmt.Fprintf(out, "\n%s\n", headerStyle.Render("[agents."+id+"]"))
			printField(out, "name", fmt.Sprintf("%q", agent.Name), "file")
			printField(out, "description", fmt.Sprintf("%q", agent.Description), "file")
			printField(out, "file_patterns", "["+strings.Join(agent.FilePatterns, ", ")+"]", "file")
		}
	}
}

func printValidationResult(out io.Writer, result *config.ValidationResult) {
	errs := result.Errors()
	warns := result.Warnings()

	if len(errs) == 0 && len(warns) == 0 {
		fmt.Fprintln(out, okStyle.Render("Configuration OK."))
		return
	}

	if len(errs) > 0 {
		fmt.Fprintln(out, errStyle.Render("Errors:"))
		for _, issue := range errs {
			fmt.Fprintf(out, "  [%s] %s\n", issue.Field, issue.Message)
		}
	}
	if len(warns) > 0 {
		fmt.Fprintln(out, warnStyle.Render("Warnings:"))
		for _, issue := range warns {
			fmt.Fprintf(out, "  [%s] %s\n", issue.Field, issue.Message)
		}
	}
	fmt.Fprintf(out, "%d error(s), %d warning(s)\n", len(errs), len(warns))
}
