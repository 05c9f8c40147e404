package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roverhq/rover/internal/batch"
	"github.com/roverhq/rover/internal/catalog"
	"github.com/roverhq/rover/internal/logging"
	"github.com/roverhq/rover/internal/scan"
	"github.com/roverhq/rover/internal/store"
)

// scanFlags holds parsed flag values for the scan command.
type scanFlags struct {
	All         bool
	Agents      []string
	Concurrency int
	DryRun      bool
}

// newScanCmd creates the "rover scan" command.
func newScanCmd() *cobra.Command {
	var flags scanFlags

	cmd := &cobra.Command{
		Use:   "scan <path>",
		Short: "Scan a source tree for issues and write tickets",
		Long: `Run review agents against a source tree. Each agent scans the tree,
its candidate findings are voted on by independent reviewers, and findings
that clear the vote threshold become markdown tickets under .rover/tickets/.

Scanning costs LLM calls, so the agents to run must be named explicitly:
--all runs every agent in the catalog, --agent picks specific ones.

An interrupted batch resumes on the next invocation with the same agents:
completed agents are skipped, unfinished ones run again. State older than
24 hours is discarded.`,
		Example: `  # Scan with every agent in the catalog
  rover scan . --all

  # Scan with specific agents
  rover scan ./backend --agent security --agent concurrency

  # Preview agents and scope without any LLM calls
  rover scan . --all --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, args, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.All, "all", false, "Run every agent in the catalog")
	cmd.Flags().StringArrayVar(&flags.Agents, "agent", nil, "Agent id to run (repeatable)")
	cmd.Flags().IntVar(&flags.Concurrency, "concurrency", 0, "Concurrent agents (default from config)")
	cmd.Flags().BoolVar(&flags.DryRun, "dry-run", false, "List the agents and their file scope without scanning")

	return cmd
}

func init() {
	rootCmd.AddCommand(newScanCmd())
}

// runScan is the RunE implementation for the scan command.
func runScan(cmd *cobra.Command, args []string, flags scanFlags) error {
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

	agentIDs, err := selectAgents(registry, flags)
	if err != nil {
		return err
	}

	if flags.DryRun {
		return renderScanDryRun(cmd.OutOrStdout(), registry, agentIDs, target)
	}

	runner, err := newRunner(cfg)
	if err != nil {
		return err
	}

	if err := store.EnsureLayout(target); err != nil {
		return fmt.Errorf("preparing .rover layout: %w", err)
	}

	issues := store.NewIssueStore(target, logging.New("store"))
	states := store.NewBatchStateStore(target, logging.New("store"))
	pipeline := scan.NewPipeline(registry, runner, issues, cfg.Scan, logging.New("scan"))
	batchRunner := batch.NewRunner(registry, pipeline, states, logging.New("batch"))

	concurrency := flags.Concurrency
	if concurrency <= 0 {
		concurrency = cfg.Scan.Concurrency
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	summary, err := batchRunner.RunAll(ctx, target, agentIDs, concurrency)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(cmd.ErrOrStderr(), "\nScan interrupted. Re-run the same command to resume.")
			return err
		}
		return fmt.Errorf("running scan: %w", err)
	}

	renderScanSummary(cmd.ErrOrStderr(), summary)

	// Per-agent failures are part of a normal summary; only a batch where
	// nothing succeeded is an error.
	if failed := summary.Errors(); len(failed) == len(summary.Outcomes) && len(failed) > 0 {
		return fmt.Errorf("all %d agents failed", len(failed))
	}
	return nil
}

// selectAgents resolves the --all/--agent flags into catalog ids.
func selectAgents(registry *catalog.Registry, flags scanFlags) ([]string, error) {
	if flags.All && len(flags.Agents) > 0 {
		return nil, fmt.Errorf("--all and --agent are mutually exclusive")
	}
	if flags.All {
		return registry.IDs(), nil
	}
	if len(flags.Agents) == 0 {
		return nil, fmt.Errorf("no agents selected: pass --all or --agent <id> (see `rover agents`)")
	}
	for _, id := range flags.Agents {
		if !registry.Has(id) {
			return nil, fmt.Errorf("unknown agent %q: available agents are %s", id, strings.Join(registry.IDs(), ", "))
		}
	}
	return flags.Agents, nil
}

// renderScanDryRun lists the selected agents and how many files each would
// consider, without spending a single LLM call.
func renderScanDryRun(w io.Writer, registry *catalog.Registry, agentIDs []string, target string) error {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Dry run: %d agent(s) against %s", len(agentIDs), target)))
	for _, id := range agentIDs {
		spec, err := registry.Get(id)
		if err != nil {
			return err
		}
		count, err := spec.CountScope(target)
		if err != nil {
			return fmt.Errorf("counting scope for %s: %w", id, err)
		}
		scope := "all files"
		if len(spec.FilePatterns) > 0 {
			scope = strings.Join(spec.FilePatterns, ", ")
		}
		fmt.Fprintf(w, "  %-16s %4d files in scope  (%s)\n", spec.ID, count, scope)
	}
	fmt.Fprintln(w, dimStyle.Render("No LLM calls were made."))
	return nil
}

// renderScanSummary prints the per-agent outcomes and batch totals.
func renderScanSummary(w io.Writer, summary *batch.Summary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("Scan summary"))

	outcomes := append([]batch.Outcome(nil), summary.Outcomes...)
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].AgentID < outcomes[j].AgentID })

	approvedTotal := 0
	var ticketPaths []string
	for _, o := range outcomes {
		switch {
		case o.Skipped:
			fmt.Fprintf(w, "  %s %s: already completed in a previous run\n", dimStyle.Render("-"), o.AgentID)
		case o.Status == store.AgentError:
			fmt.Fprintf(w, "  %s %s: %s\n", errStyle.Render("x"), o.AgentID, o.Err)
		default:
			res := o.Result
			fmt.Fprintf(w, "  %s %s: %d approved, %d rejected ($%.4f)\n",
				okStyle.Render("+"), o.AgentID, res.Approved, res.Rejected, res.CostUSD)
		}
		if o.Result != nil {
			approvedTotal += o.Result.Approved
			ticketPaths = append(ticketPaths, o.Result.TicketPaths...)
		}
	}

	if summary.Resumed {
		fmt.Fprintln(w, dimStyle.Render("  (resumed from an interrupted run)"))
	}

	fmt.Fprintf(w, "\n%d new ticket(s), total cost $%.4f, took %s\n",
		approvedTotal, summary.TotalCost, summary.Duration.Round(time.Second))
	for _, p := range ticketPaths {
		fmt.Fprintf(w, "  %s\n", p)
	}
	if approvedTotal > 0 {
		fmt.Fprintln(w, dimStyle.Render("\nNext: `rover issues` to inspect, `rover fix <id>` to repair."))
	}
}
