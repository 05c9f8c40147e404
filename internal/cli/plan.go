package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roverhq/rover/internal/consolidate"
	"github.com/roverhq/rover/internal/logging"
	"github.com/roverhq/rover/internal/store"
)

// newPlanCmd creates the "rover plan" command.
func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan [<path>]",
		Short: "Produce a dependency-ordered fix plan",
		Long: `Ask the LLM to infer dependencies between the open issues and group
them into phases that can be fixed in parallel. The plan is saved as
markdown (with a Mermaid dependency graph) under .rover/plans/ and
summarized on screen.`,
		Example: `  rover plan
  rover plan ./services/api`,
		Args: cobra.MaximumNArgs(1),
		RunE: runPlan,
	}
}

func init() {
	rootCmd.AddCommand(newPlanCmd())
}

func runPlan(cmd *cobra.Command, args []string) error {
	target, err := resolveTarget(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(target)
	if err != nil {
		return err
	}

	issues := store.NewIssueStore(target, logging.New("store"))
	open, err := issues.Open()
	if err != nil {
		return err
	}
	if len(open) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "No open issues to plan. Run `rover scan` first.")
		return nil
	}

	runner, err := newRunner(cfg)
	if err != nil {
		return err
	}
	planner := consolidate.NewPlanner(runner, cfg.Consolidate, logging.New("plan"))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	plan, err := planner.Run(ctx, target, open)
	if err != nil {
		return err
	}

	renderPlanSummary(cmd.ErrOrStderr(), plan)
	return nil
}

func renderPlanSummary(w io.Writer, plan *consolidate.Plan) {
	fmt.Fprintln(w, headerStyle.Render("Execution plan"))
	if plan.Summary != "" {
		fmt.Fprintf(w, "  %s\n", plan.Summary)
	}
	for i, group := range plan.Groups {
		fmt.Fprintf(w, "  Phase %d: %s\n", i+1, group.Name)
		for _, id := range group.IssueIDs {
			fmt.Fprintf(w, "    %s\n", id)
		}
	}
	if len(plan.Dependencies) > 0 {
		fmt.Fprintf(w, "  %s\n", dimStyle.Render(fmt.Sprintf("%d dependency edge(s) inferred", len(plan.Dependencies))))
	}
	fmt.Fprintf(w, "Plan written to %s (cost $%.4f).\n", plan.Path, plan.CostUSD)
	fmt.Fprintln(w, dimStyle.Render("Next: `rover fix "+firstGroupIDs(plan)+"` to start on phase 1."))
}

// firstGroupIDs renders the ids of the first phase for the next-step hint.
func firstGroupIDs(plan *consolidate.Plan) string {
	if len(plan.Groups) == 0 || len(plan.Groups[0].IssueIDs) == 0 {
		return "<id>"
	}
	ids := plan.Groups[0].IssueIDs
	out := ids[0]
	for _, id := range ids[1:] {
		out += " " + id
	}
	return out
}
