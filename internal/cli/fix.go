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

	"github.com/roverhq/rover/internal/fix"
	"github.com/roverhq/rover/internal/git"
	"github.com/roverhq/rover/internal/logging"
	"github.com/roverhq/rover/internal/store"
)

// fixFlags holds parsed flag values for the fix command.
type fixFlags struct {
	Concurrency   int
	MaxIterations int
}

// newFixCmd creates the "rover fix" command.
func newFixCmd() *cobra.Command {
	var flags fixFlags

	cmd := &cobra.Command{
		Use:   "fix <id>...",
		Short: "Auto-repair issues in isolated git worktrees",
		Long: `Fix one or more ticketed issues. Each issue gets its own branch
(fix/<id>) checked out in a worktree under .rover/, where an LLM session
applies the fix, commits it, and iterates until independent architecture,
bug, and completeness reviews come back clean.

Terminal outcomes per issue:
  complete         reviews clean; submit with: rover review submit <id>
  already_fixed    code no longer exhibits the issue; worktree removed
  iteration_limit  bound hit with findings open; worktree kept for review
  error            unrecoverable failure; worktree kept for inspection

Issues are fixed concurrently, each in its own worktree. The command must
run inside the scanned git repository.`,
		Example: `  # Fix a single issue
  rover fix ISSUE-001

  # Fix several issues, two at a time
  rover fix ISSUE-001 ISSUE-002 ISSUE-003 --concurrency 2

  # Allow more review iterations for a stubborn issue
  rover fix ISSUE-004 --max-iterations 20`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFix(cmd, args, flags)
		},
	}

	cmd.Flags().IntVar(&flags.Concurrency, "concurrency", 0, "Concurrent fixes (default from config)")
	cmd.Flags().IntVar(&flags.MaxIterations, "max-iterations", 0, "Fix-review iterations per issue before giving up (default from config)")

	return cmd
}

func init() {
	rootCmd.AddCommand(newFixCmd())
}

// runFix is the RunE implementation for the fix command.
func runFix(cmd *cobra.Command, issueIDs []string, flags fixFlags) error {
	target, err := resolveTarget(nil)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(target)
	if err != nil {
		return err
	}

	runner, err := newRunner(cfg)
	if err != nil {
		return err
	}

	gitClient, err := git.NewClient(target)
	if err != nil {
		return err
	}
	if dirty, err := gitClient.HasUncommittedChanges(context.Background()); err == nil && dirty {
		logging.New("fix").Warn("target has uncommitted changes; fix branches fork from the last commit")
	}

	if err := store.EnsureLayout(target); err != nil {
		return fmt.Errorf("preparing .rover layout: %w", err)
	}

	issues := store.NewIssueStore(target, logging.New("store"))
	fixes := store.NewFixStateStore(target, logging.New("store"))
	traces := store.NewTraceWriter(target, logging.New("store"))
	orchestrator := fix.NewOrchestrator(runner, gitClient, issues, fixes, traces, cfg.Fix, logging.New("fix"))

	concurrency := flags.Concurrency
	if concurrency <= 0 {
		concurrency = cfg.Fix.Concurrency
	}
	maxIterations := flags.MaxIterations
	if maxIterations <= 0 {
		maxIterations = cfg.Fix.MaxIterations
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	results, err := orchestrator.Run(ctx, target, issueIDs, concurrency, maxIterations)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "\nFix interrupted.")
	}

	renderFixResults(cmd.ErrOrStderr(), results)

	failed := 0
	for _, res := range results {
		if res.Status == fix.StatusError {
			failed++
		}
	}
	if failed == len(results) {
		return errors.New("all fixes failed")
	}
	return nil
}

// renderFixResults prints one line per issue plus aggregate cost.
func renderFixResults(w io.Writer, results []*fix.Result) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("Fix results"))

	totalCost := 0.0
	reviewable := 0
	for _, res := range results {
		totalCost += res.CostUSD
		switch res.Status {
		case fix.StatusComplete:
			reviewable++
			fmt.Fprintf(w, "  %s %s: complete after %d iteration(s) on %s\n",
				okStyle.Render("+"), res.IssueID, res.Iterations, res.BranchName)
		case fix.StatusAlreadyFixed:
			fmt.Fprintf(w, "  %s %s: already fixed, issue closed\n",
				dimStyle.Render("-"), res.IssueID)
		case fix.StatusIterationLimit:
			reviewable++
			fmt.Fprintf(w, "  %s %s: iteration limit reached, worktree kept at %s\n",
				warnStyle.Render("!"), res.IssueID, res.WorktreePath)
		case fix.StatusError:
			fmt.Fprintf(w, "  %s %s: %v\n", errStyle.Render("x"), res.IssueID, res.Err)
		}
	}

	fmt.Fprintf(w, "\nTotal cost $%.4f\n", totalCost)
	if reviewable > 0 {
		fmt.Fprintln(w, dimStyle.Render("Next: `rover review list`, then `rover review submit <id>`."))
	}
}
