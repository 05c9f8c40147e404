// Package batch runs the scan pipeline for many agents at once: a bounded
// worker pool pulls agents off a shared queue while every status change is
// persisted, so an interrupted run resumes exactly where it stopped.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/roverhq/rover/internal/catalog"
	"github.com/roverhq/rover/internal/logging"
	"github.com/roverhq/rover/internal/scan"
	"github.com/roverhq/rover/internal/store"
)

// Outcome is one agent's final disposition within a run.
type Outcome struct {
	AgentID string
	Name    string
	Status  store.AgentStatus

	// Skipped marks agents completed by a previous invocation and not
	// re-run after resume.
	Skipped bool

	// Err holds the failure message when Status is error.
	Err string

	// Result is the persisted per-agent summary (counts, cost, duration).
	Result *store.AgentResult

	// Approved carries the full issues for agents that ran in this
	// invocation; resumed-as-skipped agents only have Result.
	Approved []store.ApprovedIssue
}

// Summary aggregates a whole batch run.
type Summary struct {
	RunID     string
	Resumed   bool
	Outcomes  []Outcome
	TotalCost float64
	Duration  time.Duration
}

// Errors returns the outcomes that ended in error.
func (s *Summary) Errors() []Outcome {
	var errs []Outcome
	for _, o := range s.Outcomes {
		if o.Status == store.AgentError {
			errs = append(errs, o)
		}
	}
	return errs
}

// Runner schedules scan pipelines over a persisted batch state.
type Runner struct {
	registry *catalog.Registry
	pipeline *scan.Pipeline
	states   *store.BatchStateStore
	logger   *log.Logger
}

// NewRunner wires a batch runner over the given pipeline and state store.
func NewRunner(registry *catalog.Registry, pipeline *scan.Pipeline, states *store.BatchStateStore, logger *log.Logger) *Runner {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Runner{registry: registry, pipeline: pipeline, states: states, logger: logger}
}

// RunAll processes agentIDs with at most concurrency agents in flight.
// A fresh, matching batch state is resumed: completed agents are skipped,
// pending and errored ones rescheduled. One agent's failure never stops
// the others; per-agent errors land in the summary.
func (r *Runner) RunAll(ctx context.Context, targetPath string, agentIDs []string, concurrency int) (*Summary, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	start := time.Now()

	state, resumed, err := r.loadOrCreateState(targetPath, agentIDs, concurrency)
	if err != nil {
		return nil, err
	}
	if err := r.states.Save(state); err != nil {
		return nil, err
	}

	pending := state.Unresolved()
	if resumed {
		r.logger.Info("resuming batch run",
			"runId", state.RunID,
			"skipped", len(agentIDs)-len(pending),
			"remaining", len(pending))
	}

	// One mutex guards both the shared state document and the outcome
	// list; Save happens inside the critical section so transitions are
	// persisted in order.
	var mu sync.Mutex
	var outcomes []Outcome

	workers := min(concurrency, len(pending))
	if workers > 0 {
		queue := make(chan string)
		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < workers; i++ {
			g.Go(func() error {
				for agentID := range queue {
					outcome := r.runOne(gctx, state, targetPath, agentID, &mu)
					mu.Lock()
					outcomes = append(outcomes, outcome)
					mu.Unlock()
				}
				// Per-agent failures are recorded, never returned; the
				// group only stops on context cancellation.
				return nil
			})
		}

	feed:
		for _, id := range pending {
			select {
			case queue <- id:
			case <-gctx.Done():
				break feed
			}
		}
		close(queue)
		g.Wait() //nolint:errcheck // workers always return nil
	}

	// Report agents completed by an earlier invocation as skipped.
	for _, entry := range state.Agents {
		if entry.Status == store.AgentCompleted && !containsOutcome(outcomes, entry.AgentID) {
			outcomes = append(outcomes, Outcome{
				AgentID: entry.AgentID,
				Name:    entry.Name,
				Status:  store.AgentCompleted,
				Skipped: true,
				Result:  entry.Result,
			})
		}
	}

	if ctx.Err() == nil && state.Resolved() {
		now := time.Now().UTC()
		state.CompletedAt = &now
		if err := r.states.Save(state); err != nil {
			return nil, err
		}
	}

	summary := &Summary{
		RunID:    state.RunID,
		Resumed:  resumed,
		Outcomes: outcomes,
		Duration: time.Since(start),
	}
	for _, o := range outcomes {
		if o.Result != nil {
			summary.TotalCost += o.Result.CostUSD
		}
	}
	return summary, nil
}

// loadOrCreateState resumes a fresh matching state or builds a new run.
func (r *Runner) loadOrCreateState(targetPath string, agentIDs []string, concurrency int) (*store.BatchRunState, bool, error) {
	prior, err := r.states.Load(time.Now())
	if err != nil {
		return nil, false, err
	}
	// Only an interrupted run of the same agent set resumes. A finished
	// run (completedAt set) means the user wants a new scan.
	if prior != nil && prior.CompletedAt == nil && prior.MatchesRequest(agentIDs) {
		prior.Concurrency = concurrency
		return prior, true, nil
	}
	if prior != nil && prior.CompletedAt == nil {
		r.logger.Info("existing batch state covers a different agent set, starting fresh",
			"priorRunId", prior.RunID)
	}

	entries := make([]store.AgentState, len(agentIDs))
	for i, id := range agentIDs {
		name := id
		if spec, err := r.registry.Get(id); err == nil {
			name = spec.Name
		}
		entries[i] = store.AgentState{AgentID: id, Name: name}
	}
	state := store.NewBatchRunState(uuid.NewString(), targetPath, entries, concurrency)
	return state, false, nil
}

// runOne drives a single agent through running to completed or error,
// persisting each transition.
func (r *Runner) runOne(ctx context.Context, state *store.BatchRunState, targetPath, agentID string, mu *sync.Mutex) Outcome {
	mu.Lock()
	entry := state.Agent(agentID)
	entry.Status = store.AgentRunning
	entry.Error = ""
	entry.CompletedAt = nil
	if err := r.states.Save(state); err != nil {
		r.logger.Warn("persisting batch state", "error", err)
	}
	name := entry.Name
	mu.Unlock()

	result, err := r.pipeline.RunAgent(ctx, targetPath, agentID)

	now := time.Now().UTC()
	mu.Lock()
	defer mu.Unlock()

	if err != nil {
		r.logger.Error("agent failed", "agent", agentID, "error", err)
		entry.Status = store.AgentError
		entry.Error = err.Error()
		entry.CompletedAt = &now
		entry.Result = nil
		if saveErr := r.states.Save(state); saveErr != nil {
			r.logger.Warn("persisting batch state", "error", saveErr)
		}
		return Outcome{AgentID: agentID, Name: name, Status: store.AgentError, Err: err.Error()}
	}

	persisted := &store.AgentResult{
		Approved:    len(result.Approved),
		Rejected:    len(result.Rejected),
		TicketPaths: result.TicketPaths,
		CostUSD:     result.CostUSD,
		DurationMS:  result.Duration.Milliseconds(),
	}
	entry.Status = store.AgentCompleted
	entry.Error = ""
	entry.CompletedAt = &now
	entry.Result = persisted
	if saveErr := r.states.Save(state); saveErr != nil {
		r.logger.Warn("persisting batch state", "error", saveErr)
	}
	return Outcome{
		AgentID:  agentID,
		Name:     name,
		Status:   store.AgentCompleted,
		Result:   persisted,
		Approved: result.Approved,
	}
}

func containsOutcome(outcomes []Outcome, agentID string) bool {
	for _, o := range outcomes {
		if o.AgentID == agentID {
			return true
		}
	}
	return false
}
