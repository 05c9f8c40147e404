package cli

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roverhq/rover/internal/store"
)

// seedIssueTarget creates a target directory holding two open issues with
// real ticket files: ISSUE-001 (high) and ISSUE-002 (medium).
func seedIssueTarget(t *testing.T) string {
	t.Helper()
	target := t.TempDir()
	require.NoError(t, store.EnsureLayout(target))

	issues := store.NewIssueStore(target, nil)

	first := store.ApprovedIssue{
		CandidateIssue: store.CandidateIssue{
			ID:          "cache-nil-map",
			AgentID:     "concurrency",
			Title:       "Nil map write in cache warmup",
			Description: "warmCache writes to entries before the map is allocated.",
			Severity:    store.SeverityHigh,
			Category:    "concurrency",
			FilePath:    "internal/cache.go",
		},
		ApprovedAt: time.Now().UTC(),
		Status:     store.StatusOpen,
	}
	path, _, err := store.WriteTicket(target, first, "Concurrency Reviewer", nil)
	require.NoError(t, err)
	first.TicketPath = path

	second := store.ApprovedIssue{
		CandidateIssue: store.CandidateIssue{
			ID:          "config-dead-flag",
			AgentID:     "maintainability",
			Title:       "Dead feature flag never flips",
			Description: "enableV2 is hardcoded false and guards unreachable code.",
			Severity:    store.SeverityMedium,
			Category:    "maintainability",
			FilePath:    "internal/config.go",
		},
		ApprovedAt: time.Now().UTC(),
		Status:     store.StatusOpen,
	}
	path, _, err = store.WriteTicket(target, second, "Maintainability Reviewer", nil)
	require.NoError(t, err)
	second.TicketPath = path

	added, err := issues.Add(first, second)
	require.NoError(t, err)
	require.Equal(t, 2, added)

	return target
}

func TestIssuesCmd_ListEmpty(t *testing.T) {
	target := t.TempDir()
	require.NoError(t, store.EnsureLayout(target))
	chdir(t, target)

	stdout, _, err := execCommand(t, newIssuesCmd())
	require.NoError(t, err)
	assert.Contains(t, stdout, "No issues")
	assert.Contains(t, stdout, "rover scan")
}

func TestIssuesCmd_ListShowsOpenIssues(t *testing.T) {
	target := seedIssueTarget(t)
	chdir(t, target)

	stdout, _, err := execCommand(t, newIssuesCmd())
	require.NoError(t, err)

	assert.Contains(t, stdout, "2 issue(s)")
	assert.Contains(t, stdout, "ISSUE-001")
	assert.Contains(t, stdout, "Nil map write in cache warmup")
	assert.Contains(t, stdout, "ISSUE-002")
	assert.Contains(t, stdout, "Dead feature flag never flips")

	// High sorts before medium.
	assert.Less(t, strings.Index(stdout, "ISSUE-001"), strings.Index(stdout, "ISSUE-002"))
}

func TestIssuesCmd_SeverityFilter(t *testing.T) {
	target := seedIssueTarget(t)
	chdir(t, target)

	stdout, _, err := execCommand(t, newIssuesCmd(), "--severity", "high")
	require.NoError(t, err)

	assert.Contains(t, stdout, "ISSUE-001")
	assert.NotContains(t, stdout, "ISSUE-002")
}

func TestIssuesCmd_InvalidSeverity(t *testing.T) {
	target := seedIssueTarget(t)
	chdir(t, target)

	_, _, err := execCommand(t, newIssuesCmd(), "--severity", "banana")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown severity "banana"`)
}

func TestIssuesCmd_AllIncludesDismissed(t *testing.T) {
	target := seedIssueTarget(t)
	chdir(t, target)

	_, _, err := execCommand(t, newIssuesCmd(), "ignore", "ISSUE-002")
	require.NoError(t, err)

	stdout, _, err := execCommand(t, newIssuesCmd())
	require.NoError(t, err)
	assert.NotContains(t, stdout, "ISSUE-002", "dismissed issues are hidden by default")

	stdout, _, err = execCommand(t, newIssuesCmd(), "--all")
	require.NoError(t, err)
	assert.Contains(t, stdout, "ISSUE-002")
	assert.Contains(t, stdout, "wont_fix")
}

func TestIssuesViewCmd_PrintsTicket(t *testing.T) {
	target := seedIssueTarget(t)
	chdir(t, target)

	stdout, _, err := execCommand(t, newIssuesViewCmd(), "ISSUE-001")
	require.NoError(t, err)

	assert.Contains(t, stdout, "ISSUE-001")
	assert.Contains(t, stdout, "Nil map write in cache warmup")
	assert.Contains(t, stdout, "internal/cache.go")
}

func TestIssuesViewCmd_AcceptsStoreID(t *testing.T) {
	target := seedIssueTarget(t)
	chdir(t, target)

	stdout, _, err := execCommand(t, newIssuesViewCmd(), "cache-nil-map")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Nil map write in cache warmup")
}

func TestIssuesViewCmd_NotFound(t *testing.T) {
	target := seedIssueTarget(t)
	chdir(t, target)

	_, _, err := execCommand(t, newIssuesViewCmd(), "ISSUE-999")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrIssueNotFound)
}

func TestIssuesCopyCmd(t *testing.T) {
	target := seedIssueTarget(t)
	chdir(t, target)

	stdout, stderr, err := execCommand(t, newIssuesCopyCmd(), "ISSUE-001")
	require.NoError(t, err)

	// With a clipboard the ticket is copied; without one (CI) it is
	// printed so it can still be piped.
	if strings.Contains(stderr, "Copied") {
		assert.Empty(t, stdout)
	} else {
		assert.Contains(t, stdout, "Nil map write in cache warmup")
	}
}

func TestIssuesRemoveCmd_DeletesIssueAndTicket(t *testing.T) {
	target := seedIssueTarget(t)
	chdir(t, target)

	stdout, _, err := execCommand(t, newIssuesRemoveCmd(), "ISSUE-001")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Removed 1 issue(s).")

	issues := store.NewIssueStore(target, nil)
	_, err = issues.Get("ISSUE-001")
	assert.ErrorIs(t, err, store.ErrIssueNotFound)

	_, err = store.FindTicketPath(target, "ISSUE-001")
	assert.ErrorIs(t, err, store.ErrTicketNotFound, "ticket file should be deleted")

	// The other issue is untouched.
	_, err = issues.Get("ISSUE-002")
	assert.NoError(t, err)
	_, err = store.FindTicketPath(target, "ISSUE-002")
	assert.NoError(t, err)
}

func TestIssuesRemoveCmd_UnknownID(t *testing.T) {
	target := seedIssueTarget(t)
	chdir(t, target)

	_, _, err := execCommand(t, newIssuesRemoveCmd(), "ISSUE-999")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrIssueNotFound)
}

func TestIssuesIgnoreCmd_KeepsTicketFile(t *testing.T) {
	target := seedIssueTarget(t)
	chdir(t, target)

	stdout, _, err := execCommand(t, newIssuesIgnoreCmd(), "ISSUE-001")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Dismissed 1 issue(s).")

	issues := store.NewIssueStore(target, nil)
	got, err := issues.Get("ISSUE-001")
	require.NoError(t, err)
	assert.Equal(t, store.StatusWontFix, got.Status)

	// Ticket stays on disk as a suppression record.
	ticketPath, err := store.FindTicketPath(target, "ISSUE-001")
	require.NoError(t, err)
	_, err = os.Stat(ticketPath)
	assert.NoError(t, err)

	open, err := issues.Open()
	require.NoError(t, err)
	for _, issue := range open {
		assert.NotEqual(t, "cache-nil-map", issue.ID, "dismissed issue must leave the open set")
	}
}
