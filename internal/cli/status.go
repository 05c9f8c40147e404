package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/spf13/cobra"

	"github.com/roverhq/rover/internal/logging"
	"github.com/roverhq/rover/internal/store"
)

// statusOutput is the top-level JSON shape for "rover status --json".
type statusOutput struct {
	Target     string         `json:"target"`
	LastScanAt *time.Time     `json:"lastScanAt,omitempty"`
	Issues     map[string]int `json:"issuesBySeverity"`
	OpenIssues int            `json:"openIssues"`
	Fixes      map[string]int `json:"fixesByStatus"`
	Scan       *scanRunOutput `json:"scanInProgress,omitempty"`
}

// scanRunOutput describes a resumable scan run.
type scanRunOutput struct {
	RunID     string    `json:"runId"`
	StartedAt time.Time `json:"startedAt"`
	Completed int       `json:"completed"`
	Errored   int       `json:"errored"`
	Total     int       `json:"total"`
}

// newStatusCmd creates the "rover status" command.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [<path>]",
		Short: "Show the issue backlog and fix pipeline at a glance",
		Long: `Summarize rover's state for a target: open issues by severity, fix
records by lifecycle stage, when the last scan finished, and the progress
of any scan run that can still be resumed.

With the global --json flag the summary is printed as JSON on stdout.`,
		Example: `  rover status
  rover status --json | jq .openIssues`,
		Args: cobra.MaximumNArgs(1),
		RunE: runStatus,
	}
}

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

func runStatus(cmd *cobra.Command, args []string) error {
	target, err := resolveTarget(args)
	if err != nil {
		return err
	}

	issues := store.NewIssueStore(target, logging.New("store"))
	fixes := store.NewFixStateStore(target, logging.New("store"))
	batch := store.NewBatchStateStore(target, logging.New("store"))

	open, err := issues.Open()
	if err != nil {
		return err
	}
	records, err := fixes.All()
	if err != nil {
		return err
	}
	lastScan, err := issues.LastScanAt()
	if err != nil {
		return err
	}
	runState, err := batch.Load(time.Now())
	if err != nil {
		return err
	}
	// A finished run is history, not something to resume.
	if runState != nil && runState.CompletedAt != nil {
		runState = nil
	}

	out := buildStatusOutput(target, open, records, lastScan, runState)

	if flagJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	renderStatus(cmd.ErrOrStderr(), out, open, records, runState)
	return nil
}

func buildStatusOutput(target string, open []store.ApprovedIssue, records []store.FixRecord, lastScan time.Time, runState *store.BatchRunState) statusOutput {
	out := statusOutput{
		Target:     target,
		Issues:     map[string]int{},
		OpenIssues: len(open),
		Fixes:      map[string]int{},
	}
	if !lastScan.IsZero() {
		out.LastScanAt = &lastScan
	}
	for _, issue := range open {
		out.Issues[string(issue.Severity)]++
	}
	for _, rec := range records {
		out.Fixes[string(rec.Status)]++
	}
	if runState != nil {
		scan := &scanRunOutput{
			RunID:     runState.RunID,
			StartedAt: runState.StartedAt,
			Total:     len(runState.Agents),
		}
		for _, agent := range runState.Agents {
			switch agent.Status {
			case store.AgentCompleted:
				scan.Completed++
			case store.AgentError:
				scan.Errored++
			}
		}
		out.Scan = scan
	}
	return out
}

func renderStatus(w io.Writer, out statusOutput, open []store.ApprovedIssue, records []store.FixRecord, runState *store.BatchRunState) {
	fmt.Fprintln(w, headerStyle.Render("Rover status"))
	if out.LastScanAt != nil {
		fmt.Fprintf(w, "Last scan: %s\n", out.LastScanAt.Local().Format("2006-01-02 15:04"))
	} else {
		fmt.Fprintln(w, "Last scan: never")
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%s %d open\n", headerStyle.Render("Issues:"), len(open))
	for _, sev := range store.Severities() {
		if n := out.Issues[string(sev)]; n > 0 {
			fmt.Fprintf(w, "  %s %d\n", severityStyle(sev).Render(fmt.Sprintf("%-8s", sev)), n)
		}
	}
	if len(open) == 0 {
		fmt.Fprintln(w, dimStyle.Render("  none"))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%s %d record(s)\n", headerStyle.Render("Fixes:"), len(records))
	for _, status := range []store.FixStatus{store.FixInProgress, store.FixReadyForReview, store.FixPRCreated, store.FixMerged, store.FixError} {
		if n := out.Fixes[string(status)]; n > 0 {
			fmt.Fprintf(w, "  %s %d\n", fixStatusStyle(status).Render(fmt.Sprintf("%-17s", status)), n)
		}
	}
	if len(records) == 0 {
		fmt.Fprintln(w, dimStyle.Render("  none"))
	}

	if runState != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headerStyle.Render("Resumable scan"))
		renderScanProgress(w, out.Scan)
		fmt.Fprintln(w, dimStyle.Render("Re-run the original scan command to resume."))
	}
}

// renderScanProgress draws a static progress bar over the agents that
// have finished. ViewAs renders a one-shot frame, so no TUI loop is
// involved.
func renderScanProgress(w io.Writer, scan *scanRunOutput) {
	const progressBarWidth = 40

	bar := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(progressBarWidth),
		progress.WithoutPercentage(),
	)
	done := scan.Completed + scan.Errored
	pct := 0.0
	if scan.Total > 0 {
		pct = float64(done) / float64(scan.Total)
	}
	fmt.Fprintf(w, "%s %.0f%% (%d/%d agents", bar.ViewAs(pct), pct*100, done, scan.Total)
	if scan.Errored > 0 {
		fmt.Fprintf(w, ", %s", errStyle.Render(fmt.Sprintf("%d errored", scan.Errored)))
	}
	fmt.Fprintln(w, ")")
}
