package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roverhq/rover/internal/catalog"
)

// newAgentsCmd creates the "rover agents" command.
func newAgentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents [<path>]",
		Short: "List the available review agents",
		Long: `List the review agents rover can scan with: the built-in set plus any
custom agents defined under [agents] in the target's rover.toml. The ids
shown here are what "rover scan --agent" accepts.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := resolveTarget(args)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(target)
			if err != nil {
				return err
			}
			registry, err := buildRegistry(cfg)
			if err != nil {
				return err
			}
			renderAgentList(cmd.OutOrStdout(), registry.List())
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(newAgentsCmd())
}

func renderAgentList(w io.Writer, specs []catalog.AgentSpec) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%d agent(s)", len(specs))))
	for _, spec := range specs {
		origin := "builtin"
		if !spec.Builtin {
			origin = "custom"
		}
		fmt.Fprintf(w, "  %-16s %s %s\n", spec.ID, spec.Name, dimStyle.Render("("+origin+")"))
		if spec.Description != "" {
			fmt.Fprintf(w, "  %s\n", dimStyle.Render("                 "+spec.Description))
		}
		scope := "entire tree"
		if len(spec.FilePatterns) > 0 {
			scope = strings.Join(spec.FilePatterns, ", ")
		}
		fmt.Fprintf(w, "  %s\n", dimStyle.Render("                 scope: "+scope))
	}
}
