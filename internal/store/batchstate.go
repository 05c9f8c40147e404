package store

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/roverhq/rover/internal/logging"
)

// batchStateVersion is the schema version stamped into batch-run-state.json.
const batchStateVersion = 1

// BatchStateMaxAge bounds how old a run may be and still resume. Anything
// older is treated as abandoned and replaced by a fresh run.
const BatchStateMaxAge = 24 * time.Hour

// AgentStatus is an agent's position in a batch run.
type AgentStatus string

const (
	AgentPending   AgentStatus = "pending"
	AgentRunning   AgentStatus = "running"
	AgentCompleted AgentStatus = "completed"
	AgentError     AgentStatus = "error"
)

// AgentResult is the per-agent summary persisted once an agent finishes.
type AgentResult struct {
	Approved    int      `json:"approved"`
	Rejected    int      `json:"rejected"`
	TicketPaths []string `json:"ticketPaths,omitempty"`
	CostUSD     float64  `json:"costUsd"`
	DurationMS  int64    `json:"durationMs"`
}

// AgentState is one agent's entry in a batch run.
type AgentState struct {
	AgentID     string       `json:"agentId"`
	Name        string       `json:"name"`
	Status      AgentStatus  `json:"status"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
	Error       string       `json:"error,omitempty"`
	Result      *AgentResult `json:"result,omitempty"`
}

// BatchRunState is the resumable record of one multi-agent scan run.
type BatchRunState struct {
	RunID             string       `json:"runId"`
	Version           int          `json:"version"`
	TargetPath        string       `json:"targetPath"`
	RequestedAgentIDs []string     `json:"requestedAgentIds"`
	Agents            []AgentState `json:"agents"`
	StartedAt         time.Time    `json:"startedAt"`
	CompletedAt       *time.Time   `json:"completedAt"`
	Concurrency       int          `json:"concurrency"`
}

// NewBatchRunState builds a fresh state with every agent pending.
func NewBatchRunState(runID, targetPath string, agents []AgentState, concurrency int) *BatchRunState {
	ids := make([]string, len(agents))
	for i := range agents {
		agents[i].Status = AgentPending
		ids[i] = agents[i].AgentID
	}
	return &BatchRunState{
		RunID:             runID,
		Version:           batchStateVersion,
		TargetPath:        targetPath,
		RequestedAgentIDs: ids,
		Agents:            agents,
		StartedAt:         time.Now().UTC(),
		Concurrency:       concurrency,
	}
}

// Stale reports whether the run started more than BatchStateMaxAge ago.
func (s *BatchRunState) Stale(now time.Time) bool {
	return now.Sub(s.StartedAt) > BatchStateMaxAge
}

// Agent returns the entry for an agent id, or nil.
func (s *BatchRunState) Agent(id string) *AgentState {
	for i := range s.Agents {
		if s.Agents[i].AgentID == id {
			return &s.Agents[i]
		}
	}
	return nil
}

// Unresolved returns the agent ids still needing a run: pending entries
// plus errored ones, which a resume retries. Completed agents are final.
func (s *BatchRunState) Unresolved() []string {
	var ids []string
	for _, a := range s.Agents {
		if a.Status != AgentCompleted {
			ids = append(ids, a.AgentID)
		}
	}
	return ids
}

// Resolved reports whether every agent reached completed or error.
func (s *BatchRunState) Resolved() bool {
	for _, a := range s.Agents {
		if a.Status != AgentCompleted && a.Status != AgentError {
			return false
		}
	}
	return true
}

// MatchesRequest reports whether the state covers exactly the given agent
// ids, ignoring order. A run started for a different agent set is not
// resumable by this request.
func (s *BatchRunState) MatchesRequest(agentIDs []string) bool {
	if len(agentIDs) != len(s.RequestedAgentIDs) {
		return false
	}
	want := make(map[string]bool, len(agentIDs))
	for _, id := range agentIDs {
		want[id] = true
	}
	for _, id := range s.RequestedAgentIDs {
		if !want[id] {
			return false
		}
	}
	return true
}

// BatchStateStore persists the batch-run state for one target.
type BatchStateStore struct {
	path   string
	logger *log.Logger
}

// NewBatchStateStore returns a store bound to targetPath's batch state.
func NewBatchStateStore(targetPath string, logger *log.Logger) *BatchStateStore {
	if logger == nil {
		logger = logging.Nop()
	}
	return &BatchStateStore{path: BatchStatePath(targetPath), logger: logger}
}

// Load returns the persisted state, or nil when there is nothing worth
// resuming: no file, unreadable file, or a stale run. Staleness and
// corruption are logged, never errors.
func (s *BatchStateStore) Load(now time.Time) (*BatchRunState, error) {
	unlock := lockFile(s.path)
	defer unlock()

	var state BatchRunState
	found, err := readJSON(s.path, &state)
	if err != nil {
		if errors.Is(err, errCorrupt) {
			s.logger.Warn("batch state corrupt, starting fresh", "path", s.path, "error", err)
			return nil, nil
		}
		return nil, err
	}
	if !found {
		return nil, nil
	}
	if state.Stale(now) {
		s.logger.Info("batch state is stale, starting fresh",
			"startedAt", state.StartedAt.Format(time.RFC3339),
			"maxAge", BatchStateMaxAge)
		return nil, nil
	}
	return &state, nil
}

// Save writes the state atomically. Called after every agent transition
// so a crash loses at most the in-flight agent.
func (s *BatchStateStore) Save(state *BatchRunState) error {
	unlock := lockFile(s.path)
	defer unlock()

	if err := writeJSONAtomic(s.path, state); err != nil {
		return fmt.Errorf("saving batch state: %w", err)
	}
	return nil
}

// Clear removes the state file; missing is fine.
func (s *BatchStateStore) Clear() error {
	unlock := lockFile(s.path)
	defer unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clearing batch state: %w", err)
	}
	return nil
}
