package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roverhq/rover/internal/git"
	"github.com/roverhq/rover/internal/logging"
	"github.com/roverhq/rover/internal/review"
	"github.com/roverhq/rover/internal/store"
)

// newReviewCmd creates the "rover review" command group.
func newReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "List, submit, and clean finished fixes",
		Long: `Manage the fix branches the fix loop left behind. "list" shows every
reviewable worktree, "submit" pushes a branch and opens a pull request via
the gh CLI, and "clean" removes a worktree and its record once the branch
has been dealt with.`,
	}

	cmd.AddCommand(newReviewListCmd())
	cmd.AddCommand(newReviewSubmitCmd())
	cmd.AddCommand(newReviewCleanCmd())
	return cmd
}

func init() {
	rootCmd.AddCommand(newReviewCmd())
}

// newReviewManager wires a review manager over the current directory.
func newReviewManager() (*review.Manager, error) {
	target, err := resolveTarget(nil)
	if err != nil {
		return nil, err
	}
	gitClient, err := git.NewClient(target)
	if err != nil {
		return nil, err
	}
	issues := store.NewIssueStore(target, logging.New("store"))
	fixes := store.NewFixStateStore(target, logging.New("store"))
	return review.NewManager(gitClient, issues, fixes, logging.New("review")), nil
}

func newReviewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show fix records and their worktrees",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := newReviewManager()
			if err != nil {
				return err
			}
			records, err := manager.List()
			if err != nil {
				return err
			}
			renderReviewList(cmd.OutOrStdout(), records)
			return nil
		},
	}
}

func newReviewSubmitCmd() *cobra.Command {
	var (
		all   bool
		draft bool
	)

	cmd := &cobra.Command{
		Use:   "submit [<id>]",
		Short: "Push a fix branch and open a pull request",
		Long: `Push a finished fix branch to origin and open a pull request with
gh. The PR title is "fix(<id>): <summary>"; the body carries the summary,
the branch's commits, a reviewer checklist, and the original ticket. On
success the issue leaves the local store -- the PR tracks it from then on.

Requires the gh CLI, authenticated (gh auth login), and an origin remote.`,
		Example: `  # Submit one finished fix
  rover review submit ISSUE-001

  # Submit everything that is ready, as drafts
  rover review submit --all --draft`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReviewSubmit(cmd, args, all, draft)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Submit every record that is ready for review")
	cmd.Flags().BoolVar(&draft, "draft", false, "Open the pull request as a draft")
	return cmd
}

func runReviewSubmit(cmd *cobra.Command, args []string, all, draft bool) error {
	if all == (len(args) == 1) {
		return fmt.Errorf("pass exactly one of <id> or --all")
	}

	manager, err := newReviewManager()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := manager.CheckPrerequisites(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !all {
		res, err := manager.Submit(ctx, args[0], draft)
		if err != nil {
			return err
		}
		renderSubmitResult(out, res)
		return nil
	}

	results, err := manager.SubmitAll(ctx, draft)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "Nothing is ready for review. Run `rover fix` first.")
		return nil
	}
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Fprintf(out, "  %s %s: %v\n", errStyle.Render("x"), res.IssueID, res.Err)
			continue
		}
		renderSubmitResult(out, res)
	}
	if failed == len(results) {
		return fmt.Errorf("all %d submissions failed", failed)
	}
	return nil
}

func renderSubmitResult(w io.Writer, res *review.SubmitResult) {
	if res.AlreadyExists {
		fmt.Fprintf(w, "  %s %s: PR already exists", dimStyle.Render("-"), res.IssueID)
		if res.URL != "" {
			fmt.Fprintf(w, ": %s", res.URL)
		}
		fmt.Fprintln(w)
		return
	}
	fmt.Fprintf(w, "  %s %s: opened %s\n", okStyle.Render("+"), res.IssueID, res.URL)
}

func newReviewCleanCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clean [<id>]",
		Short: "Remove fix worktrees and records",
		Long: `Remove a fix's worktree (git worktree remove --force) and delete its
record. Ticket files are untouched. Use this after a PR is merged, or to
discard a fix attempt you do not want to submit.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return fmt.Errorf("pass exactly one of <id> or --all")
			}

			manager, err := newReviewManager()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			out := cmd.OutOrStdout()
			if !all {
				if err := manager.Clean(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out, "Cleaned %s.\n", args[0])
				return nil
			}

			cleaned, err := manager.CleanAll(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Cleaned %d fix record(s).\n", cleaned)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Clean every fix record")
	return cmd
}

// renderReviewList prints one line per record.
func renderReviewList(w io.Writer, records []store.FixRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No fix records. Run `rover fix <id>` first.")
		return
	}

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%d fix record(s)", len(records))))
	for _, rec := range records {
		status := fixStatusStyle(rec.Status).Render(string(rec.Status))
		fmt.Fprintf(w, "  %-12s %-18s %s", rec.IssueID, status, rec.BranchName)
		if rec.PRURL != "" {
			fmt.Fprintf(w, "  %s", rec.PRURL)
		}
		fmt.Fprintln(w)
		if rec.IssueSummary != "" {
			fmt.Fprintf(w, "  %s\n", dimStyle.Render("             "+rec.IssueSummary))
		}
	}
}
