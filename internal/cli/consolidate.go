package cli

import (
	"context"
	"errors"
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

type consolidateFlags struct {
	DryRun      bool
	Concurrency int
}

// newConsolidateCmd creates the "rover consolidate" command.
func newConsolidateCmd() *cobra.Command {
	flags := &consolidateFlags{}

	cmd := &cobra.Command{
		Use:   "consolidate [<path>]",
		Short: "Merge related issues into single tickets",
		Long: `Cluster open issues that point at the same file or describe the same
problem, then merge each cluster into one ticket via the LLM. The merged
ticket keeps the highest severity of its sources and lists them; source
tickets are deleted. Clusters whose merge fails are skipped and left
untouched.

Use --dry-run to preview the clustering without LLM calls or changes.`,
		Example: `  # Preview the clustering first
  rover consolidate --dry-run

  # Merge for real
  rover consolidate`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsolidate(cmd, args, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.DryRun, "dry-run", false, "Show the clusters without merging anything")
	cmd.Flags().IntVar(&flags.Concurrency, "concurrency", 0, "Concurrent merge calls (default from config)")
	return cmd
}

func init() {
	rootCmd.AddCommand(newConsolidateCmd())
}

func runConsolidate(cmd *cobra.Command, args []string, flags *consolidateFlags) error {
	target, err := resolveTarget(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(target)
	if err != nil {
		return err
	}
	if flags.Concurrency > 0 {
		cfg.Consolidate.Concurrency = flags.Concurrency
	}

	issues := store.NewIssueStore(target, logging.New("store"))
	var consolidator *consolidate.Consolidator
	if flags.DryRun {
		// Clustering is deterministic; no runner needed.
		consolidator = consolidate.NewConsolidator(nil, issues, cfg.Consolidate, logging.New("consolidate"))
	} else {
		runner, err := newRunner(cfg)
		if err != nil {
			return err
		}
		consolidator = consolidate.NewConsolidator(runner, issues, cfg.Consolidate, logging.New("consolidate"))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	result, err := consolidator.Run(ctx, target, flags.DryRun)
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Consolidation interrupted; completed merges are saved.")
		return nil
	}
	if err != nil {
		return err
	}

	renderConsolidateResult(cmd.ErrOrStderr(), result)
	return nil
}

func renderConsolidateResult(w io.Writer, result *consolidate.Result) {
	if len(result.Clusters) == 0 {
		fmt.Fprintf(w, "No related issues among the %d open one(s); nothing to merge.\n", result.OpenIssues)
		return
	}

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%d cluster(s) across %d open issue(s)", len(result.Clusters), result.OpenIssues)))
	for _, cluster := range result.Clusters {
		fmt.Fprintf(w, "  %s %s\n", cluster.ID, dimStyle.Render("("+cluster.Reason+")"))
		for _, issue := range cluster.Issues {
			fmt.Fprintf(w, "    %-11s %s\n", issue.TicketID(), issue.Title)
		}
	}

	if result.DryRun {
		fmt.Fprintln(w, dimStyle.Render("Dry run: no merges performed, no LLM calls were made."))
		return
	}

	for _, merged := range result.Merged {
		fmt.Fprintf(w, "  %s %s merged %d issue(s) into %s\n",
			okStyle.Render("+"), merged.Cluster.ID, len(merged.Cluster.Issues), merged.Issue.TicketID())
	}
	for _, skipped := range result.Skipped {
		fmt.Fprintf(w, "  %s %s skipped: %s\n", warnStyle.Render("!"), skipped.Cluster.ID, skipped.Reason)
	}

	fmt.Fprintf(w, "Backlog reduced by %d issue(s), cost $%.4f.\n", result.Reduced(), result.CostUSD)
}
