// Package fix drives the per-issue fix loop: an isolated git worktree on
// its own branch, an LLM fix session with full tool access, a multi-aspect
// review with read-only tools, and bounded iteration until the reviews
// come back clean.
//
// Workers operate on disjoint worktrees; the only shared mutable state is
// the fix-state file, which the store serializes. One issue's failure
// never stops the others.
package fix

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/roverhq/rover/internal/config"
	"github.com/roverhq/rover/internal/git"
	"github.com/roverhq/rover/internal/llm"
	"github.com/roverhq/rover/internal/logging"
	"github.com/roverhq/rover/internal/store"
)

// retryBaseDelay scales the backoff between transport retries: the n-th
// retry waits n times this long.
const retryBaseDelay = time.Second

// Status is a fix attempt's terminal outcome.
type Status string

const (
	// StatusComplete means the reviews came back clean; the worktree and
	// branch await `rover review submit`.
	StatusComplete Status = "complete"

	// StatusAlreadyFixed means the code no longer exhibits the issue. The
	// worktree is removed and the issue leaves the store.
	StatusAlreadyFixed Status = "already_fixed"

	// StatusIterationLimit means the bound was hit with findings still
	// open. The worktree is kept for manual follow-up.
	StatusIterationLimit Status = "iteration_limit"

	// StatusError means the fix stopped on an unrecoverable error. A
	// provisioned worktree is kept for inspection.
	StatusError Status = "error"
)

// Result is the outcome of one issue's trip through the fix loop.
type Result struct {
	// IssueID is the id the caller asked for (store id or ticket id).
	IssueID string

	Status       Status
	BranchName   string
	WorktreePath string
	Iterations   int
	CostUSD      float64
	Duration     time.Duration

	// Err is set when Status is error.
	Err error
}

// Orchestrator runs fix sessions for approved issues against one target
// repository.
type Orchestrator struct {
	runner   llm.Runner
	reviewer *reviewer
	git      *git.Client
	issues   *store.IssueStore
	fixes    *store.FixStateStore
	traces   *store.TraceWriter
	cfg      config.FixConfig
	logger   *log.Logger
}

// NewOrchestrator wires a fix orchestrator over the target's git client
// and stores.
func NewOrchestrator(runner llm.Runner, gitClient *git.Client, issues *store.IssueStore, fixes *store.FixStateStore, traces *store.TraceWriter, cfg config.FixConfig, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Orchestrator{
		runner:   runner,
		reviewer: &reviewer{runner: runner, logger: logger},
		git:      gitClient,
		issues:   issues,
		fixes:    fixes,
		traces:   traces,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run fixes the named issues with at most concurrency workers pulling from
// a shared queue. The result slice is index-aligned with issueIDs; one
// issue's failure never stops the others.
func (o *Orchestrator) Run(ctx context.Context, targetPath string, issueIDs []string, concurrency, maxIterations int) ([]*Result, error) {
	if len(issueIDs) == 0 {
		return nil, fmt.Errorf("no issues to fix")
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if maxIterations < 1 {
		maxIterations = 1
	}

	results := make([]*Result, len(issueIDs))

	workers := min(concurrency, len(issueIDs))
	queue := make(chan int)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for idx := range queue {
				results[idx] = o.fixOne(gctx, targetPath, issueIDs[idx], maxIterations)
			}
			// Per-issue failures land in their Result; the group only
			// stops on context cancellation.
			return nil
		})
	}

feed:
	for i := range issueIDs {
		select {
		case queue <- i:
		case <-gctx.Done():
			break feed
		}
	}
	close(queue)
	g.Wait() //nolint:errcheck // workers always return nil

	for i, res := range results {
		if res == nil {
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			results[i] = &Result{IssueID: issueIDs[i], Status: StatusError, Err: err}
		}
	}
	return results, nil
}

// fixJob carries one issue's state through the iterate loop.
type fixJob struct {
	issue      store.ApprovedIssue
	fixID      string
	ticket     string
	branch     string
	worktree   string
	baseCommit string
	record     store.FixRecord
	logger     *log.Logger
}

// fixOne drives a single issue through the state machine: branch, worktree,
// fix record, iterate loop, terminal bookkeeping. Every path returns a
// Result; errors ride inside it.
func (o *Orchestrator) fixOne(ctx context.Context, targetPath, issueID string, maxIterations int) *Result {
	start := time.Now()
	result := &Result{IssueID: issueID, Status: StatusError}
	defer func() { result.Duration = time.Since(start) }()

	issue, err := o.issues.Get(issueID)
	if err != nil {
		result.Err = err
		return result
	}

	fixID := issue.TicketID()
	if fixID == "" {
		fixID = issue.ID
	}
	logger := o.logger.With("issue", fixID)

	branch, err := pickBranchName(ctx, o.git, fixID)
	if err != nil {
		result.Err = err
		return result
	}
	result.BranchName = branch

	baseCommit, err := o.git.HeadCommit(ctx)
	if err != nil {
		result.Err = fmt.Errorf("resolving base commit: %w", err)
		return result
	}

	worktree := store.WorktreePath(targetPath, branch)
	logger.Info("provisioning worktree", "branch", branch, "path", worktree)
	if err := o.git.WorktreeAdd(ctx, worktree, branch, ""); err != nil {
		result.Err = err
		return result
	}
	result.WorktreePath = worktree
	copyLocalConfig(targetPath, worktree, logger)

	ticket := o.ticketContent(targetPath, issue, logger)
	job := &fixJob{
		issue:      issue,
		fixID:      fixID,
		ticket:     ticket,
		branch:     branch,
		worktree:   worktree,
		baseCommit: baseCommit,
		logger:     logger,
		record: store.FixRecord{
			IssueID:      fixID,
			BranchName:   branch,
			WorktreePath: worktree,
			Status:       store.FixInProgress,
			StartedAt:    start.UTC(),
			IssueContent: ticket,
			IssueSummary: issue.Title,
		},
	}
	if err := o.fixes.Upsert(job.record); err != nil {
		result.Err = fmt.Errorf("persisting fix record: %w", err)
		return result
	}

	result.Status = o.iterate(ctx, job, maxIterations, result)
	o.finalize(ctx, job, result)

	logger.Info("fix finished",
		"status", result.Status,
		"iterations", result.Iterations,
		"costUsd", fmt.Sprintf("%.4f", result.CostUSD),
		"duration", result.Duration.Round(time.Second))
	return result
}

// iterate runs fix and review rounds until a terminal state. The round
// counter counts fix calls; hitting the bound with findings still open is
// iteration_limit, not an error.
func (o *Orchestrator) iterate(ctx context.Context, job *fixJob, maxIterations int, result *Result) Status {
	session := ""
	var actionable []ReviewItem
	var lastMustFix []ReviewItem

	for iteration := 1; iteration <= maxIterations; iteration++ {
		result.Iterations = iteration
		job.record.Iterations = iteration
		if err := o.fixes.Upsert(job.record); err != nil {
			job.logger.Warn("persisting fix record", "error", err)
		}

		var prompt string
		if iteration == 1 {
			prompt = fixPrompt(job.fixID, job.ticket)
		} else {
			prompt = iterationPrompt(job.fixID, actionable)
		}

		job.logger.Info("fixing", "iteration", iteration)
		res, err := o.callWithRetry(ctx, llm.Request{
			Prompt:          prompt,
			WorkDir:         job.worktree,
			ResumeSessionID: session,
		})
		if err != nil {
			result.Err = fmt.Errorf("fix call: %w", err)
			return StatusError
		}
		result.CostUSD += res.CostUSD
		o.trace(job, store.TraceEntry{
			Iteration: iteration,
			Stage:     "fix",
			SessionID: res.SessionID,
			ExitCode:  res.ExitCode,
			Markers:   DetectMarkers(res.Text),
			Output:    res.Text,
		})
		// Later rounds resume the session captured from the first call so
		// the agent keeps its context.
		if session == "" {
			session = res.SessionID
		}
		if !res.Success() {
			result.Err = fmt.Errorf("fix session exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
			return StatusError
		}

		if iteration == 1 && hasMarker(res.Text, MarkerAlreadyFixed) {
			job.logger.Info("agent reports issue already fixed")
			return StatusAlreadyFixed
		}
		if iteration > 1 && hasMarker(res.Text, MarkerNotApplicable) {
			upheld, ok := o.checkDismissal(ctx, job, res.Text, lastMustFix, result)
			if !ok {
				return StatusError
			}
			if len(upheld) == 0 {
				job.logger.Info("review dispute accepted")
				return StatusComplete
			}
			job.logger.Info("review dispute rejected", "upheld", len(upheld))
			actionable = upheld
			continue
		}
		if hasMarker(res.Text, MarkerBlocked) {
			reason := markerDetail(res.Text, MarkerBlocked)
			if reason == "" {
				reason = "no reason given"
			}
			result.Err = fmt.Errorf("agent blocked: %s", reason)
			return StatusError
		}
		if !hasMarker(res.Text, MarkerCommitComplete) {
			job.logger.Warn("fix round ended without COMMIT_COMPLETE", "iteration", iteration)
		}

		job.logger.Info("reviewing", "iteration", iteration)
		round, err := o.reviewer.run(ctx, job.worktree, o.worktreeDiff(ctx, job), job.ticket)
		result.CostUSD += round.cost
		entry := store.TraceEntry{Iteration: iteration, Stage: "review", Aspects: round.aspects}
		if err != nil {
			entry.Error = err.Error()
			o.trace(job, entry)
			result.Err = fmt.Errorf("review round: %w", err)
			return StatusError
		}
		o.trace(job, entry)

		actionable = round.analysis.Actionable()
		lastMustFix = round.analysis.MustFix()
		if len(actionable) == 0 {
			job.logger.Info("reviews clean", "iterations", iteration)
			return StatusComplete
		}
		job.logger.Info("review found problems", "actionable", len(actionable), "mustFix", len(lastMustFix))
	}

	job.logger.Warn("iteration limit reached", "limit", maxIterations)
	return StatusIterationLimit
}

// checkDismissal runs the skeptical pass over disputed blocking findings.
// The bool is false when the check itself failed.
func (o *Orchestrator) checkDismissal(ctx context.Context, job *fixJob, output string, disputed []ReviewItem, result *Result) ([]ReviewItem, bool) {
	justification := markerDetail(output, MarkerNotApplicable)

	upheld, cost, err := o.reviewer.verifyDismissal(ctx, job.worktree, disputed, justification)
	result.CostUSD += cost
	entry := store.TraceEntry{
		Iteration: result.Iterations,
		Stage:     "dismissal",
		Output:    fmt.Sprintf("%d of %d disputed findings upheld", len(upheld), len(disputed)),
	}
	if err != nil {
		entry.Error = err.Error()
		o.trace(job, entry)
		result.Err = fmt.Errorf("dismissal check: %w", err)
		return nil, false
	}
	o.trace(job, entry)
	return upheld, true
}

// finalize maps the terminal status onto the fix record and worktree.
func (o *Orchestrator) finalize(ctx context.Context, job *fixJob, result *Result) {
	now := time.Now().UTC()

	switch result.Status {
	case StatusAlreadyFixed:
		// Nothing to review: drop the worktree, the issue, and the record.
		if err := o.git.WorktreeRemove(ctx, job.worktree, true); err != nil {
			job.logger.Warn("removing worktree", "error", err)
		}
		if err := o.issues.Remove(job.issue.ID); err != nil {
			job.logger.Warn("removing issue from store", "error", err)
		}
		if err := o.fixes.Delete(job.record.IssueID); err != nil {
			job.logger.Warn("deleting fix record", "error", err)
		}
		result.WorktreePath = ""
		return

	case StatusComplete, StatusIterationLimit:
		// Both leave a reviewable worktree behind; iteration_limit just
		// means a human should look before submitting.
		job.record.Status = store.FixReadyForReview
		job.record.CompletedAt = &now

	case StatusError:
		job.record.Status = store.FixError
		if result.Err != nil {
			job.record.Error = result.Err.Error()
		}
		job.record.CompletedAt = &now
	}

	if err := o.fixes.Upsert(job.record); err != nil {
		job.logger.Warn("persisting fix record", "error", err)
	}
}

// ticketContent loads the issue's ticket markdown, falling back to an
// in-memory rendering when the file is unreadable or was never written.
func (o *Orchestrator) ticketContent(targetPath string, issue store.ApprovedIssue, logger *log.Logger) string {
	if ticketID := issue.TicketID(); ticketID != "" {
		content, _, err := store.ReadTicket(targetPath, ticketID)
		if err == nil {
			return content
		}
		logger.Warn("reading ticket, rendering from store instead", "ticket", ticketID, "error", err)
	}
	return store.RenderTicket(issue.ID, issue, issue.AgentID, nil)
}

// worktreeDiff renders everything the fix committed on its branch. An
// unreadable diff degrades to empty; reviewers then inspect the worktree
// directly.
func (o *Orchestrator) worktreeDiff(ctx context.Context, job *fixJob) string {
	diff, err := o.git.At(job.worktree).DiffUnified(ctx, job.baseCommit)
	if err != nil {
		job.logger.Warn("reading worktree diff", "error", err)
		return ""
	}
	return diff
}

// trace appends one audit entry, logging instead of failing: a broken
// trace must not kill a healthy fix.
func (o *Orchestrator) trace(job *fixJob, entry store.TraceEntry) {
	if err := o.traces.Append(job.record.IssueID, entry); err != nil {
		job.logger.Warn("appending trace", "error", err)
	}
}

// callWithRetry runs one LLM request, retrying spawn and transport
// failures with a growing delay. Non-zero exits are results, not transport
// errors, and are never retried. Each retry spawns a fresh process, so a
// session only accumulates across successful calls.
func (o *Orchestrator) callWithRetry(ctx context.Context, req llm.Request) (*llm.Result, error) {
	attempts := o.cfg.Retries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, time.Duration(attempt-1)*retryBaseDelay); err != nil {
				return nil, err
			}
		}
		res, err := o.runner.Run(ctx, req)
		if err == nil {
			return res, nil
		}
		lastErr = err
		o.logger.Warn("llm call failed", "attempt", attempt, "attempts", attempts, "error", err)
	}
	return nil, lastErr
}

// sleepCtx waits for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
