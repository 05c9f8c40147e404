package fix

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roverhq/rover/internal/config"
	"github.com/roverhq/rover/internal/git"
	"github.com/roverhq/rover/internal/llm"
	"github.com/roverhq/rover/internal/logging"
	"github.com/roverhq/rover/internal/store"
)

// fixFlow scripts every call class one fix run makes: fix-session replies
// pop in order, every aspect reviewer answers aspect, parse and dismissal
// replies pop in order. Unexpected calls fail the run loudly.
type fixFlow struct {
	mu      sync.Mutex
	fixes   []*llm.Result
	aspect  string
	parses  []string
	dismiss []string
}

func (f *fixFlow) runner() *llm.Mock {
	return llm.NewMock().WithRunFunc(func(_ context.Context, req llm.Request) (*llm.Result, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch {
		case strings.Contains(req.Prompt, "Convert the code review notes"):
			return popReply(&f.parses, "parse")
		case strings.Contains(req.Prompt, "disputes the review findings"):
			return popReply(&f.dismiss, "dismissal")
		case strings.Contains(req.Prompt, "STRUCTURAL"),
			strings.Contains(req.Prompt, "BUGS"),
			strings.Contains(req.Prompt, "COMPLETENESS"):
			return &llm.Result{Text: f.aspect, CostUSD: 0.01}, nil
		case strings.Contains(req.Prompt, "You are fixing one reported issue"),
			strings.Contains(req.Prompt, "Reviewers examined your fix"):
			if len(f.fixes) == 0 {
				return nil, fmt.Errorf("unexpected fix call")
			}
			res := f.fixes[0]
			f.fixes = f.fixes[1:]
			return res, nil
		default:
			return nil, fmt.Errorf("unexpected prompt: %.60s", req.Prompt)
		}
	})
}

func popReply(queue *[]string, kind string) (*llm.Result, error) {
	if len(*queue) == 0 {
		return nil, fmt.Errorf("unexpected %s call", kind)
	}
	text := (*queue)[0]
	*queue = (*queue)[1:]
	return &llm.Result{Text: text, CostUSD: 0.02}, nil
}

// fixTarget is a scratch git repository with the .rover layout and an
// orchestrator wired over it.
type fixTarget struct {
	path   string
	orch   *Orchestrator
	issues *store.IssueStore
	fixes  *store.FixStateStore
	traces *store.TraceWriter
}

func newFixTarget(t *testing.T, runner llm.Runner) *fixTarget {
	t.Helper()
	dir := t.TempDir()

	gitIn(t, dir, "init", "-b", "main")
	gitIn(t, dir, "config", "user.email", "test@example.com")
	gitIn(t, dir, "config", "user.name", "Test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))
	gitIn(t, dir, "add", ".")
	gitIn(t, dir, "commit", "-m", "Initial commit")
	require.NoError(t, store.EnsureLayout(dir))

	client, err := git.NewClient(dir)
	require.NoError(t, err)

	ft := &fixTarget{
		path:   dir,
		issues: store.NewIssueStore(dir, nil),
		fixes:  store.NewFixStateStore(dir, nil),
		traces: store.NewTraceWriter(dir, nil),
	}
	ft.orch = NewOrchestrator(runner, client, ft.issues, ft.fixes, ft.traces, config.FixConfig{}, nil)
	return ft
}

func gitIn(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

// seedIssue tickets and stores one open issue, returning its ticket id.
func (ft *fixTarget) seedIssue(t *testing.T, storeID, title string) string {
	t.Helper()
	issue := store.ApprovedIssue{
		CandidateIssue: store.CandidateIssue{
			ID:          storeID,
			AgentID:     "security",
			Title:       title,
			Description: "User input reaches the query string unescaped.",
			Severity:    store.SeverityCritical,
			Category:    "security",
			FilePath:    "auth/login.go",
		},
		Votes: []store.Vote{
			{VoterID: "voter-1", IssueID: storeID, Approve: true, Reasoning: "query is built by concatenation"},
			{VoterID: "voter-2", IssueID: storeID, Approve: true, Reasoning: "confirmed injectable"},
		},
		Status: store.StatusOpen,
	}
	ticketPath, ticketID, err := store.WriteTicket(ft.path, issue, "Security Review", nil)
	require.NoError(t, err)
	issue.TicketPath = ticketPath

	_, err = ft.issues.Add(issue)
	require.NoError(t, err)
	return ticketID
}

func TestOrchestratorRun_CompleteOnCleanReview(t *testing.T) {
	t.Parallel()

	flow := &fixFlow{
		fixes:  []*llm.Result{{Text: "staged and committed\nCOMMIT_COMPLETE", SessionID: "sess-1", CostUSD: 0.50}},
		aspect: "No findings.",
		parses: []string{cleanAnalysisJSON},
	}
	mock := flow.runner()
	ft := newFixTarget(t, mock)
	id := ft.seedIssue(t, "c1", "SQL injection in login handler")

	results, err := ft.orch.Run(context.Background(), ft.path, []string{id}, 1, 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	res := results[0]

	require.NoError(t, res.Err)
	assert.Equal(t, StatusComplete, res.Status)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, "fix/"+id, res.BranchName)
	assert.Equal(t, store.WorktreePath(ft.path, "fix/"+id), res.WorktreePath)
	// Fix call + three aspects + one parse.
	assert.InDelta(t, 0.50+3*0.01+0.02, res.CostUSD, 1e-9)

	// The worktree stays behind for `review submit`.
	_, statErr := os.Stat(res.WorktreePath)
	require.NoError(t, statErr)

	rec, err := ft.fixes.Get(id)
	require.NoError(t, err)
	assert.Equal(t, store.FixReadyForReview, rec.Status)
	require.NotNil(t, rec.CompletedAt)
	assert.Equal(t, "fix/"+id, rec.BranchName)
	assert.Contains(t, rec.IssueContent, "# "+id+": SQL injection in login handler")
	assert.Equal(t, "SQL injection in login handler", rec.IssueSummary)

	// The first call is the fix session: ticket embedded, run inside the
	// worktree, fresh session.
	calls := mock.Calls()
	require.NotEmpty(t, calls)
	assert.Contains(t, calls[0].Prompt, "# "+id+": SQL injection in login handler")
	assert.Equal(t, res.WorktreePath, calls[0].WorkDir)
	assert.Empty(t, calls[0].ResumeSessionID)

	trace, err := ft.traces.Read(id)
	require.NoError(t, err)
	require.Len(t, trace.Entries, 2)
	assert.Equal(t, "fix", trace.Entries[0].Stage)
	assert.Contains(t, trace.Entries[0].Markers, "COMMIT_COMPLETE")
	assert.Equal(t, "sess-1", trace.Entries[0].SessionID)
	assert.Equal(t, "review", trace.Entries[1].Stage)
	assert.Len(t, trace.Entries[1].Aspects, 3)
}

func TestOrchestratorRun_AlreadyFixedCleansUp(t *testing.T) {
	t.Parallel()

	flow := &fixFlow{fixes: []*llm.Result{{Text: "ALREADY_FIXED", CostUSD: 0.10}}}
	ft := newFixTarget(t, flow.runner())
	id := ft.seedIssue(t, "c1", "SQL injection in login handler")

	results, err := ft.orch.Run(context.Background(), ft.path, []string{id}, 1, 3)
	require.NoError(t, err)
	res := results[0]

	assert.Equal(t, StatusAlreadyFixed, res.Status)
	assert.Empty(t, res.WorktreePath)
	assert.InDelta(t, 0.10, res.CostUSD, 1e-9)

	// Worktree, issue, and fix record are all gone.
	_, statErr := os.Stat(store.WorktreePath(ft.path, "fix/"+id))
	assert.True(t, os.IsNotExist(statErr))

	has, err := ft.issues.Has("c1")
	require.NoError(t, err)
	assert.False(t, has)

	_, err = ft.fixes.Get(id)
	assert.ErrorIs(t, err, store.ErrFixNotFound)
}

func TestOrchestratorRun_IterationLimitKeepsWorktree(t *testing.T) {
	t.Parallel()

	flow := &fixFlow{
		fixes: []*llm.Result{
			{Text: "COMMIT_COMPLETE", SessionID: "sess-1", CostUSD: 0.30},
			{Text: "COMMIT_COMPLETE", SessionID: "sess-2", CostUSD: 0.30},
		},
		aspect: "MUST FIX: error path still concatenates SQL (auth/login.go)",
		parses: []string{oneMustFixAnalysisJSON, oneMustFixAnalysisJSON},
	}
	mock := flow.runner()
	ft := newFixTarget(t, mock)
	id := ft.seedIssue(t, "c1", "SQL injection in login handler")

	results, err := ft.orch.Run(context.Background(), ft.path, []string{id}, 1, 2)
	require.NoError(t, err)
	res := results[0]

	assert.Equal(t, StatusIterationLimit, res.Status)
	assert.Equal(t, 2, res.Iterations)

	// An exhausted fix is still reviewable; a human decides what to do.
	rec, err := ft.fixes.Get(id)
	require.NoError(t, err)
	assert.Equal(t, store.FixReadyForReview, rec.Status)
	_, statErr := os.Stat(res.WorktreePath)
	require.NoError(t, statErr)

	// The second round resumes the session from the first and leads with
	// the blocking finding.
	var fixCalls []llm.Request
	for _, call := range mock.Calls() {
		if strings.Contains(call.Prompt, "You are fixing one reported issue") ||
			strings.Contains(call.Prompt, "Reviewers examined your fix") {
			fixCalls = append(fixCalls, call)
		}
	}
	require.Len(t, fixCalls, 2)
	assert.Empty(t, fixCalls[0].ResumeSessionID)
	assert.Equal(t, "sess-1", fixCalls[1].ResumeSessionID)
	assert.Contains(t, fixCalls[1].Prompt, "1. error path still concatenates SQL (auth/login.go)")
}

func TestOrchestratorRun_FixSessionExitFailure(t *testing.T) {
	t.Parallel()

	flow := &fixFlow{fixes: []*llm.Result{{ExitCode: 2, Stderr: "model overloaded", CostUSD: 0.05}}}
	ft := newFixTarget(t, flow.runner())
	id := ft.seedIssue(t, "c1", "SQL injection in login handler")

	results, err := ft.orch.Run(context.Background(), ft.path, []string{id}, 1, 3)
	require.NoError(t, err)
	res := results[0]

	assert.Equal(t, StatusError, res.Status)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "fix session exited 2")
	assert.Contains(t, res.Err.Error(), "model overloaded")
	// Cost accrued before the failure is still accounted for.
	assert.InDelta(t, 0.05, res.CostUSD, 1e-9)

	rec, err := ft.fixes.Get(id)
	require.NoError(t, err)
	assert.Equal(t, store.FixError, rec.Status)
	assert.Contains(t, rec.Error, "fix session exited 2")

	// The worktree is kept for inspection.
	_, statErr := os.Stat(res.WorktreePath)
	require.NoError(t, statErr)
}

func TestOrchestratorRun_BlockedMarker(t *testing.T) {
	t.Parallel()

	flow := &fixFlow{fixes: []*llm.Result{{Text: "BLOCKED cannot locate the handler the ticket names"}}}
	ft := newFixTarget(t, flow.runner())
	id := ft.seedIssue(t, "c1", "SQL injection in login handler")

	results, err := ft.orch.Run(context.Background(), ft.path, []string{id}, 1, 3)
	require.NoError(t, err)
	res := results[0]

	assert.Equal(t, StatusError, res.Status)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "agent blocked: cannot locate the handler the ticket names")
}

func TestOrchestratorRun_DisputeAccepted(t *testing.T) {
	t.Parallel()

	flow := &fixFlow{
		fixes: []*llm.Result{
			{Text: "COMMIT_COMPLETE", SessionID: "sess-1", CostUSD: 0.30},
			{Text: "REVIEW_NOT_APPLICABLE the guard two lines up already rejects empty input"},
		},
		aspect:  "MUST FIX: error path still concatenates SQL",
		parses:  []string{oneMustFixAnalysisJSON},
		dismiss: []string{`{"valid_item_numbers": []}`},
	}
	ft := newFixTarget(t, flow.runner())
	id := ft.seedIssue(t, "c1", "SQL injection in login handler")

	results, err := ft.orch.Run(context.Background(), ft.path, []string{id}, 1, 3)
	require.NoError(t, err)
	res := results[0]

	require.NoError(t, res.Err)
	assert.Equal(t, StatusComplete, res.Status)
	assert.Equal(t, 2, res.Iterations)

	trace, err := ft.traces.Read(id)
	require.NoError(t, err)
	require.Len(t, trace.Entries, 4)
	assert.Equal(t, "dismissal", trace.Entries[3].Stage)
	assert.Contains(t, trace.Entries[3].Output, "0 of 1 disputed findings upheld")
}

func TestOrchestratorRun_DisputeRejectedContinues(t *testing.T) {
	t.Parallel()

	flow := &fixFlow{
		fixes: []*llm.Result{
			{Text: "COMMIT_COMPLETE", SessionID: "sess-1"},
			{Text: "REVIEW_NOT_APPLICABLE the finding misreads the guard"},
			{Text: "COMMIT_COMPLETE"},
		},
		aspect:  "MUST FIX: error path still concatenates SQL",
		parses:  []string{oneMustFixAnalysisJSON, cleanAnalysisJSON},
		dismiss: []string{`{"valid_item_numbers": [1]}`},
	}
	mock := flow.runner()
	ft := newFixTarget(t, mock)
	id := ft.seedIssue(t, "c1", "SQL injection in login handler")

	results, err := ft.orch.Run(context.Background(), ft.path, []string{id}, 1, 3)
	require.NoError(t, err)
	res := results[0]

	require.NoError(t, res.Err)
	assert.Equal(t, StatusComplete, res.Status)
	assert.Equal(t, 3, res.Iterations)

	// The upheld finding drives the third round's prompt.
	var fixPrompts []string
	for _, call := range mock.Calls() {
		if strings.Contains(call.Prompt, "Reviewers examined your fix") {
			fixPrompts = append(fixPrompts, call.Prompt)
		}
	}
	require.Len(t, fixPrompts, 2)
	assert.Contains(t, fixPrompts[1], "1. error path still concatenates SQL")
}

func TestOrchestratorRun_MissingTicketFallsBackToStore(t *testing.T) {
	t.Parallel()

	flow := &fixFlow{fixes: []*llm.Result{{Text: "ALREADY_FIXED"}}}
	mock := flow.runner()
	ft := newFixTarget(t, mock)
	id := ft.seedIssue(t, "c1", "SQL injection in login handler")

	issue, err := ft.issues.Get(id)
	require.NoError(t, err)
	require.NoError(t, os.Remove(issue.TicketPath))

	results, err := ft.orch.Run(context.Background(), ft.path, []string{id}, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyFixed, results[0].Status)

	// The fix prompt still carries the issue, rendered from the store.
	calls := mock.Calls()
	require.NotEmpty(t, calls)
	assert.Contains(t, calls[0].Prompt, "SQL injection in login handler")
}

func TestOrchestratorRun_UnknownIssue(t *testing.T) {
	t.Parallel()

	mock := llm.NewMock()
	ft := newFixTarget(t, mock)

	results, err := ft.orch.Run(context.Background(), ft.path, []string{"ISSUE-999"}, 1, 3)
	require.NoError(t, err)
	res := results[0]

	assert.Equal(t, StatusError, res.Status)
	assert.ErrorIs(t, res.Err, store.ErrIssueNotFound)
	assert.Empty(t, res.WorktreePath)
	assert.Zero(t, mock.CallCount())
}

func TestOrchestratorRun_NoIssues(t *testing.T) {
	t.Parallel()

	ft := newFixTarget(t, llm.NewMock())
	_, err := ft.orch.Run(context.Background(), ft.path, nil, 1, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no issues to fix")
}

func TestOrchestratorRun_ResultsStayIndexAligned(t *testing.T) {
	t.Parallel()

	flow := &fixFlow{fixes: []*llm.Result{{Text: "ALREADY_FIXED"}}}
	ft := newFixTarget(t, flow.runner())
	id := ft.seedIssue(t, "c1", "SQL injection in login handler")

	results, err := ft.orch.Run(context.Background(), ft.path, []string{"ISSUE-999", id}, 2, 3)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "ISSUE-999", results[0].IssueID)
	assert.Equal(t, StatusError, results[0].Status)

	assert.Equal(t, id, results[1].IssueID)
	assert.Equal(t, StatusAlreadyFixed, results[1].Status)
}

func TestCallWithRetry_RecoversAfterTransportError(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	attempts := 0
	mock := llm.NewMock().WithRunFunc(func(context.Context, llm.Request) (*llm.Result, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return nil, errors.New("spawn failed")
		}
		return &llm.Result{Text: "ok"}, nil
	})
	o := &Orchestrator{runner: mock, cfg: config.FixConfig{Retries: 1}, logger: logging.Nop()}

	res, err := o.callWithRetry(context.Background(), llm.Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, 2, attempts)
}

func TestCallWithRetry_NonZeroExitIsNotRetried(t *testing.T) {
	t.Parallel()

	mock := llm.NewMock().WithResponse(&llm.Result{ExitCode: 1, Stderr: "bad flag"})
	o := &Orchestrator{runner: mock, cfg: config.FixConfig{Retries: 3}, logger: logging.Nop()}

	res, err := o.callWithRetry(context.Background(), llm.Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, 1, mock.CallCount())
}

func TestCallWithRetry_CancelledContextStopsRetries(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mock := llm.NewMock().WithRunFunc(func(context.Context, llm.Request) (*llm.Result, error) {
		return nil, errors.New("spawn failed")
	})
	o := &Orchestrator{runner: mock, cfg: config.FixConfig{Retries: 3}, logger: logging.Nop()}

	_, err := o.callWithRetry(ctx, llm.Request{Prompt: "p"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, mock.CallCount())
}
