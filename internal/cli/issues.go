package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/roverhq/rover/internal/logging"
	"github.com/roverhq/rover/internal/store"
)

type issuesFlags struct {
	Severity string
	All      bool
}

// newIssuesCmd creates the "rover issues" command group. Running the
// parent with no subcommand lists the open issues.
func newIssuesCmd() *cobra.Command {
	flags := &issuesFlags{}

	cmd := &cobra.Command{
		Use:   "issues",
		Short: "List and manage approved issues",
		Long: `List the issues that survived consensus, grouped by severity. Each row
shows the ticket id to pass to "rover fix", "rover issues view", and the
other subcommands.

Dismissed issues (rover issues ignore) are hidden unless --all is given;
they stay in the store so future scans do not re-report them.`,
		Example: `  # Open issues, most urgent first
  rover issues

  # Only critical findings, including dismissed ones
  rover issues --severity critical --all

  # Read a ticket, then dismiss it
  rover issues view ISSUE-003
  rover issues ignore ISSUE-003`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIssuesList(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.Severity, "severity", "", "Only show issues at this severity (critical|high|medium|low)")
	cmd.Flags().BoolVar(&flags.All, "all", false, "Include dismissed (wont_fix) issues")

	cmd.AddCommand(newIssuesViewCmd())
	cmd.AddCommand(newIssuesCopyCmd())
	cmd.AddCommand(newIssuesRemoveCmd())
	cmd.AddCommand(newIssuesIgnoreCmd())
	return cmd
}

func init() {
	rootCmd.AddCommand(newIssuesCmd())
}

// newIssueStore opens the issue store under the current directory.
func newIssueStore() (string, *store.IssueStore, error) {
	target, err := resolveTarget(nil)
	if err != nil {
		return "", nil, err
	}
	return target, store.NewIssueStore(target, logging.New("store")), nil
}

func runIssuesList(cmd *cobra.Command, flags *issuesFlags) error {
	var filter store.Severity
	if flags.Severity != "" {
		filter = store.Severity(strings.ToLower(flags.Severity))
		valid := false
		for _, sev := range store.Severities() {
			if filter == sev {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("unknown severity %q: use critical, high, medium, or low", flags.Severity)
		}
	}

	_, issues, err := newIssueStore()
	if err != nil {
		return err
	}

	var list []store.ApprovedIssue
	if flags.All {
		list, err = issues.All()
	} else {
		list, err = issues.Open()
	}
	if err != nil {
		return err
	}

	if filter != "" {
		kept := list[:0]
		for _, issue := range list {
			if issue.Severity == filter {
				kept = append(kept, issue)
			}
		}
		list = kept
	}

	renderIssueList(cmd.OutOrStdout(), list)
	return nil
}

// renderIssueList prints issues sorted most urgent first, then by id so
// the order is stable across runs.
func renderIssueList(w io.Writer, list []store.ApprovedIssue) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No issues. Run `rover scan` to find some.")
		return
	}

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Severity.Rank() != list[j].Severity.Rank() {
			return list[i].Severity.Rank() < list[j].Severity.Rank()
		}
		return list[i].TicketID() < list[j].TicketID()
	})

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%d issue(s)", len(list))))
	for _, issue := range list {
		id := issue.TicketID()
		if id == "" {
			id = issue.ID
		}
		sev := severityStyle(issue.Severity).Render(fmt.Sprintf("%-8s", issue.Severity))
		fmt.Fprintf(w, "  %-11s %s %s", id, sev, issue.Title)
		if issue.Status == store.StatusWontFix {
			fmt.Fprintf(w, " %s", dimStyle.Render("(wont_fix)"))
		}
		fmt.Fprintln(w)
		detail := issue.AgentID
		if loc := issue.Location(); loc != "" {
			detail += "  " + loc
		}
		fmt.Fprintf(w, "  %s\n", dimStyle.Render("            "+detail))
	}
}

func newIssuesViewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view <id>",
		Short: "Print a ticket's markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := loadTicketContent(args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), content)
			return nil
		},
	}
}

func newIssuesCopyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy <id>",
		Short: "Copy a ticket's markdown to the clipboard",
		Long: `Copy a ticket to the system clipboard, for pasting into a chat or an
external tracker. When no clipboard is available (SSH sessions, CI) the
ticket is printed to stdout instead so it can be piped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := loadTicketContent(args[0])
			if err != nil {
				return err
			}
			if err := clipboard.WriteAll(content); err != nil {
				logging.New("cli").Debug("clipboard unavailable, printing instead", "error", err)
				fmt.Fprint(cmd.OutOrStdout(), content)
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Copied %s to the clipboard.\n", args[0])
			return nil
		},
	}
}

// loadTicketContent resolves an issue by either id form and reads its
// ticket file.
func loadTicketContent(id string) (string, error) {
	target, issues, err := newIssueStore()
	if err != nil {
		return "", err
	}
	issue, err := issues.Get(id)
	if err != nil {
		return "", err
	}
	ticketID := issue.TicketID()
	if ticketID == "" {
		return "", fmt.Errorf("issue %s has no ticket on disk", id)
	}
	content, _, err := store.ReadTicket(target, ticketID)
	return content, err
}

func newIssuesRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>...",
		Short: "Delete issues and their ticket files",
		Long: `Delete issues from the store along with their ticket files. Removed
issues can be re-reported by a future scan; use "rover issues ignore" to
suppress an issue permanently instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, issues, err := newIssueStore()
			if err != nil {
				return err
			}

			storeIDs := make([]string, 0, len(args))
			for _, id := range args {
				issue, err := issues.Get(id)
				if err != nil {
					return err
				}
				if ticketID := issue.TicketID(); ticketID != "" {
					if err := store.DeleteTicket(target, ticketID); err != nil {
						return err
					}
				}
				storeIDs = append(storeIDs, issue.ID)
			}
			if err := issues.Remove(storeIDs...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d issue(s).\n", len(storeIDs))
			return nil
		},
	}
}

func newIssuesIgnoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ignore <id>...",
		Short: "Dismiss issues without deleting them",
		Long: `Mark issues as wont_fix. Dismissed issues keep their ticket files and
stay in the store, where future scans use them as suppression hints so
the same finding is not re-reported.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, issues, err := newIssueStore()
			if err != nil {
				return err
			}

			storeIDs := make([]string, 0, len(args))
			for _, id := range args {
				issue, err := issues.Get(id)
				if err != nil {
					return err
				}
				storeIDs = append(storeIDs, issue.ID)
			}
			if err := issues.MarkWontFix(storeIDs...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dismissed %d issue(s).\n", len(storeIDs))
			return nil
		},
	}
}
