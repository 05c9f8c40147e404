// Package review manages the post-fix lifecycle of a fix branch: listing
// reviewable worktrees, opening pull requests through the gh CLI, and
// cleaning worktrees up once their branch has been dealt with.
//
// The manager owns every fix-record mutation after the fix loop ends. On a
// successful submit the record moves to pr_created and the issue leaves the
// issue store; the ticket file stays where it is, because the work is now
// tracked upstream.
package review

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/roverhq/rover/internal/git"
	"github.com/roverhq/rover/internal/logging"
	"github.com/roverhq/rover/internal/store"
)

var (
	// ErrPRExists is returned when a pull request for the fix branch is
	// already open. Submit treats it as a friendly no-op: nothing is pushed
	// and no state changes.
	ErrPRExists = errors.New("pull request already exists")

	// ErrNotReady is returned when submit is asked for a record that has
	// not finished its fix loop.
	ErrNotReady = errors.New("fix is not ready for review")

	// ErrWorktreeMissing is returned when a record's worktree is gone from
	// disk. `rover review clean` removes such records.
	ErrWorktreeMissing = errors.New("worktree no longer exists")
)

// validBranchNameRe guards branch names interpolated into gh arguments.
var validBranchNameRe = regexp.MustCompile(`^[a-zA-Z0-9_./-]+$`)

// prNumberRe extracts the numeric id from a GitHub pull request URL.
var prNumberRe = regexp.MustCompile(`/pull/(\d+)`)

// Manager lists, submits, and cleans fix records for one target repository.
type Manager struct {
	git    *git.Client
	issues *store.IssueStore
	fixes  *store.FixStateStore
	logger *log.Logger

	// GhBin is the GitHub CLI binary. Defaults to "gh".
	GhBin string
}

// NewManager wires a review manager over the target's git client and stores.
func NewManager(gitClient *git.Client, issues *store.IssueStore, fixes *store.FixStateStore, logger *log.Logger) *Manager {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Manager{
		git:    gitClient,
		issues: issues,
		fixes:  fixes,
		logger: logger,
		GhBin:  "gh",
	}
}

// CheckPrerequisites verifies that the gh CLI is installed and
// authenticated. It is called once per submit command, not per record.
func (m *Manager) CheckPrerequisites(ctx context.Context) error {
	bin := m.ghBin()
	if _, err := exec.LookPath(bin); err != nil {
		return fmt.Errorf("review: %s is not installed (https://cli.github.com): %w", bin, err)
	}
	if exitCode, _, stderr, err := m.runGH(ctx, "", "auth", "status"); err != nil || exitCode != 0 {
		if stderr != "" {
			return fmt.Errorf("review: gh is not authenticated: %s", stderr)
		}
		return fmt.Errorf("review: gh is not authenticated: %w", err)
	}
	return nil
}

// List returns the fix records worth showing: records whose worktree still
// exists, plus merged records, which are kept for history even after their
// worktree is gone.
func (m *Manager) List() ([]store.FixRecord, error) {
	all, err := m.fixes.All()
	if err != nil {
		return nil, fmt.Errorf("review: listing fix records: %w", err)
	}

	records := make([]store.FixRecord, 0, len(all))
	for _, rec := range all {
		if rec.Status != store.FixMerged && !dirExists(rec.WorktreePath) {
			m.logger.Debug("hiding record with missing worktree", "issue", rec.IssueID, "worktree", rec.WorktreePath)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// SubmitResult is the outcome of one record's submit.
type SubmitResult struct {
	IssueID    string
	BranchName string

	// URL and Number identify the pull request. They are set both for
	// freshly created PRs and for AlreadyExists results when the existing
	// URL is known.
	URL    string
	Number int

	// AlreadyExists is true when a PR for the branch was already open and
	// nothing was pushed or mutated.
	AlreadyExists bool

	// Err is set by SubmitAll when this record's submit failed.
	Err error
}

// Submit pushes the record's branch to origin and opens a pull request
// against the target's current branch. On success the record becomes
// pr_created and the issue is removed from the issue store. Submitting a
// record whose PR is already open is a no-op reporting AlreadyExists.
func (m *Manager) Submit(ctx context.Context, issueID string, draft bool) (*SubmitResult, error) {
	rec, err := m.fixes.Get(issueID)
	if err != nil {
		return nil, fmt.Errorf("review: %w", err)
	}
	return m.submitRecord(ctx, rec, draft)
}

// SubmitAll submits every record that is ready for review. Per-record
// failures land in the result's Err; one branch's failure never stops the
// others.
func (m *Manager) SubmitAll(ctx context.Context, draft bool) ([]*SubmitResult, error) {
	all, err := m.fixes.All()
	if err != nil {
		return nil, fmt.Errorf("review: listing fix records: %w", err)
	}

	var results []*SubmitResult
	for _, rec := range all {
		if rec.Status != store.FixReadyForReview {
			continue
		}
		res, err := m.submitRecord(ctx, rec, draft)
		if err != nil {
			res = &SubmitResult{IssueID: rec.IssueID, BranchName: rec.BranchName, Err: err}
		}
		results = append(results, res)
	}
	return results, nil
}

// submitRecord runs the push-and-create flow for one record. Pushes happen
// sequentially across records so gh and the remote see one branch at a time.
func (m *Manager) submitRecord(ctx context.Context, rec store.FixRecord, draft bool) (*SubmitResult, error) {
	result := &SubmitResult{IssueID: rec.IssueID, BranchName: rec.BranchName}
	logger := m.logger.With("issue", rec.IssueID, "branch", rec.BranchName)

	// A record that already carries a PR is done; do not push again.
	if rec.Status == store.FixPRCreated || rec.Status == store.FixMerged {
		result.AlreadyExists = true
		result.URL = rec.PRURL
		result.Number = rec.PRNumber
		logger.Info("pull request already exists", "url", rec.PRURL)
		return result, nil
	}
	if rec.Status != store.FixReadyForReview {
		return nil, fmt.Errorf("review: %s: %w (status %s)", rec.IssueID, ErrNotReady, rec.Status)
	}
	if !dirExists(rec.WorktreePath) {
		return nil, fmt.Errorf("review: %s: %w: %s", rec.IssueID, ErrWorktreeMissing, rec.WorktreePath)
	}
	if !validBranchNameRe.MatchString(rec.BranchName) {
		return nil, fmt.Errorf("review: %s: invalid branch name %q", rec.IssueID, rec.BranchName)
	}

	base, err := m.git.CurrentBranch(ctx)
	if err != nil {
		return nil, fmt.Errorf("review: resolving base branch: %w", err)
	}
	if base == rec.BranchName {
		return nil, fmt.Errorf("review: %s: fix branch %q is checked out in the target; switch back to the base branch first", rec.IssueID, base)
	}

	logger.Info("pushing branch", "remote", "origin")
	wt := m.git.At(rec.WorktreePath)
	if err := wt.Push(ctx, "origin", true); err != nil {
		return nil, fmt.Errorf("review: %s: %w", rec.IssueID, err)
	}

	title := BuildPRTitle(rec)
	body, err := BuildPRBody(ctx, wt, rec, base)
	if err != nil {
		return nil, fmt.Errorf("review: %s: %w", rec.IssueID, err)
	}

	url, number, err := m.createPR(ctx, rec.WorktreePath, title, body, base, draft)
	if err != nil {
		if errors.Is(err, ErrPRExists) {
			result.AlreadyExists = true
			result.URL = url
			result.Number = number
			logger.Info("pull request already exists", "url", url)
			return result, nil
		}
		return nil, fmt.Errorf("review: %s: %w", rec.IssueID, err)
	}
	result.URL = url
	result.Number = number

	rec.Status = store.FixPRCreated
	rec.PRURL = url
	rec.PRNumber = number
	if err := m.fixes.Upsert(rec); err != nil {
		return nil, fmt.Errorf("review: %s: persisting fix record: %w", rec.IssueID, err)
	}

	// The PR now tracks the work; drop the issue from the local store. The
	// ticket file stays for reference.
	if issue, err := m.issues.Get(rec.IssueID); err == nil {
		if err := m.issues.Remove(issue.ID); err != nil {
			logger.Warn("removing issue from store", "error", err)
		}
	} else if !errors.Is(err, store.ErrIssueNotFound) {
		logger.Warn("looking up issue", "error", err)
	}

	logger.Info("pull request created", "url", url, "number", number)
	return result, nil
}

// createPR invokes gh pr create inside the worktree and parses the PR URL
// from its output. The body travels through a temp file so arbitrary
// markdown never hits the argument list.
func (m *Manager) createPR(ctx context.Context, dir, title, body, base string, draft bool) (string, int, error) {
	bodyFile, err := os.CreateTemp("", "rover-pr-body-*.md")
	if err != nil {
		return "", 0, fmt.Errorf("creating PR body file: %w", err)
	}
	defer os.Remove(bodyFile.Name())
	if err := os.Chmod(bodyFile.Name(), 0o600); err != nil {
		bodyFile.Close()
		return "", 0, fmt.Errorf("restricting PR body file: %w", err)
	}
	if _, err := bodyFile.WriteString(body); err != nil {
		bodyFile.Close()
		return "", 0, fmt.Errorf("writing PR body file: %w", err)
	}
	if err := bodyFile.Close(); err != nil {
		return "", 0, fmt.Errorf("closing PR body file: %w", err)
	}

	args := []string{
		"pr", "create",
		"--title", title,
		"--body-file", bodyFile.Name(),
		"--base", base,
	}
	if draft {
		args = append(args, "--draft")
	}

	m.logger.Debug("creating pull request", "cmd", m.ghBin()+" "+strings.Join(args, " "))
	exitCode, stdout, stderr, err := m.runGH(ctx, dir, args...)
	combined := stdout + "\n" + stderr

	if exitCode != 0 || err != nil {
		// gh reports an existing PR for the branch as an error; surface it
		// as the sentinel with whatever URL it printed.
		if strings.Contains(combined, "already exists") {
			url := extractPRURL(combined)
			return url, extractPRNumber(url), ErrPRExists
		}
		if stderr != "" {
			return "", 0, fmt.Errorf("gh pr create: %s", stderr)
		}
		return "", 0, fmt.Errorf("gh pr create: %w", err)
	}

	url := extractPRURL(stdout)
	if url == "" {
		return "", 0, fmt.Errorf("gh pr create: no PR URL in output: %q", strings.TrimSpace(stdout))
	}
	return url, extractPRNumber(url), nil
}

// Clean removes the record's worktree and deletes the record. Ticket files
// are untouched. A worktree that is already gone is not an error, so clean
// also disposes of records left behind by manual deletion.
func (m *Manager) Clean(ctx context.Context, issueID string) error {
	rec, err := m.fixes.Get(issueID)
	if err != nil {
		return fmt.Errorf("review: %w", err)
	}
	return m.cleanRecord(ctx, rec)
}

// CleanAll cleans every fix record and returns how many were removed.
func (m *Manager) CleanAll(ctx context.Context) (int, error) {
	all, err := m.fixes.All()
	if err != nil {
		return 0, fmt.Errorf("review: listing fix records: %w", err)
	}

	cleaned := 0
	for _, rec := range all {
		if err := m.cleanRecord(ctx, rec); err != nil {
			m.logger.Warn("cleaning fix record", "issue", rec.IssueID, "error", err)
			continue
		}
		cleaned++
	}
	return cleaned, nil
}

func (m *Manager) cleanRecord(ctx context.Context, rec store.FixRecord) error {
	logger := m.logger.With("issue", rec.IssueID)

	if dirExists(rec.WorktreePath) {
		logger.Info("removing worktree", "path", rec.WorktreePath)
		if err := m.git.WorktreeRemove(ctx, rec.WorktreePath, true); err != nil {
			return err
		}
	} else if err := m.git.WorktreePrune(ctx); err != nil {
		logger.Warn("pruning worktree metadata", "error", err)
	}

	if err := m.fixes.Delete(rec.IssueID); err != nil {
		return fmt.Errorf("deleting fix record: %w", err)
	}
	logger.Info("fix record cleaned", "branch", rec.BranchName)
	return nil
}

// runGH executes a gh command and returns the exit code, stdout, stderr,
// and an error. exitCode is -1 when the process could not be started.
func (m *Manager) runGH(ctx context.Context, dir string, args ...string) (int, string, string, error) {
	cmd := exec.CommandContext(ctx, m.ghBin(), args...)
	cmd.Dir = dir

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	runErr := cmd.Run()
	stdout := stdoutBuf.String()
	stderr := strings.TrimSpace(stderrBuf.String())

	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			return exitErr.ExitCode(), stdout, stderr, fmt.Errorf("exit status %d: %s", exitErr.ExitCode(), stderr)
		}
		return -1, "", "", runErr
	}
	return 0, stdout, stderr, nil
}

func (m *Manager) ghBin() string {
	if m.GhBin == "" {
		return "gh"
	}
	return m.GhBin
}

// extractPRURL returns the last GitHub pull request URL in the output. gh
// prints the created PR's URL as the final line of stdout.
func extractPRURL(output string) string {
	lines := strings.Split(output, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "https://") && strings.Contains(line, "/pull/") {
			return line
		}
	}
	// Fall back to a URL embedded mid-line ("a pull request ... already
	// exists: <url>").
	if idx := strings.LastIndex(output, "https://"); idx >= 0 {
		rest := output[idx:]
		if end := strings.IndexAny(rest, " \t\n"); end >= 0 {
			rest = rest[:end]
		}
		if strings.Contains(rest, "/pull/") {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

// extractPRNumber parses the numeric id out of a pull request URL. Returns
// 0 when the URL does not carry one.
func extractPRNumber(url string) int {
	match := prNumberRe.FindStringSubmatch(url)
	if len(match) < 2 {
		return 0
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return n
}

// dirExists reports whether path exists and is a directory.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
