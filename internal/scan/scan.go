// Package scan runs the three-phase consensus pipeline for a single
// review agent: a Scanner call proposes candidate issues, a pool of
// voters judges every candidate independently, and the Arbitrator turns
// sufficient approval into markdown tickets and issue-store entries.
//
// The pipeline degrades instead of failing wherever an LLM response is
// involved: unparseable scanner output means zero candidates, a failed
// voter call is an implicit rejection with the error as reasoning. Only
// transport failure of the scanner itself or storage errors abort a run.
package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/roverhq/rover/internal/catalog"
	"github.com/roverhq/rover/internal/config"
	"github.com/roverhq/rover/internal/llm"
	"github.com/roverhq/rover/internal/logging"
	"github.com/roverhq/rover/internal/store"
)

// AgentRunResult summarizes one agent's trip through the pipeline.
type AgentRunResult struct {
	AgentID     string
	AgentName   string
	Approved    []store.ApprovedIssue
	Rejected    []store.CandidateIssue
	TicketPaths []string
	CostUSD     float64
	Duration    time.Duration
}

// Pipeline wires one target repository's scan dependencies together.
type Pipeline struct {
	registry *catalog.Registry
	runner   llm.Runner
	issues   *store.IssueStore
	cfg      config.ScanConfig
	logger   *log.Logger
}

// NewPipeline returns a pipeline over the given registry, driver, and
// issue store.
func NewPipeline(registry *catalog.Registry, runner llm.Runner, issues *store.IssueStore, cfg config.ScanConfig, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Pipeline{
		registry: registry,
		runner:   runner,
		issues:   issues,
		cfg:      cfg,
		logger:   logger,
	}
}

// RunAgent executes scanner, voters, and arbitrator for one agent against
// targetPath. Unknown agent ids fail with catalog.ErrNotFound; scanner
// transport errors and storage errors propagate. Everything else degrades
// into the result counts.
func (p *Pipeline) RunAgent(ctx context.Context, targetPath, agentID string) (*AgentRunResult, error) {
	spec, err := p.registry.Get(agentID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result := &AgentRunResult{AgentID: spec.ID, AgentName: spec.Name}
	logger := p.logger.With("agent", spec.ID)

	logger.Info("scanning", "target", targetPath)
	candidates, scanCost, err := p.runScanner(ctx, targetPath, spec)
	if err != nil {
		return nil, fmt.Errorf("scanner for agent %q: %w", spec.ID, err)
	}
	result.CostUSD += scanCost

	if len(candidates) == 0 {
		logger.Info("no candidates found")
		if err := p.issues.TouchLastScan(time.Now().UTC()); err != nil {
			logger.Warn("recording scan timestamp", "error", err)
		}
		result.Duration = time.Since(start)
		return result, nil
	}

	logger.Info("voting", "candidates", len(candidates), "voters", p.cfg.Voters)
	votes, voteCost := p.runVoters(ctx, targetPath, candidates)
	result.CostUSD += voteCost

	logger.Info("arbitrating", "votes", len(votes))
	approved, rejected, ticketPaths, err := p.arbitrate(targetPath, spec, candidates, votes)
	if err != nil {
		return nil, fmt.Errorf("arbitrating for agent %q: %w", spec.ID, err)
	}
	result.Approved = approved
	result.Rejected = rejected
	result.TicketPaths = ticketPaths

	if err := p.issues.TouchLastScan(time.Now().UTC()); err != nil {
		logger.Warn("recording scan timestamp", "error", err)
	}

	result.Duration = time.Since(start)
	logger.Info("completed",
		"approved", len(approved),
		"rejected", len(rejected),
		"costUsd", fmt.Sprintf("%.4f", result.CostUSD),
		"duration", result.Duration.Round(time.Second))
	return result, nil
}
