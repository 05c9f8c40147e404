package consolidate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/roverhq/rover/internal/config"
	"github.com/roverhq/rover/internal/jsonutil"
	"github.com/roverhq/rover/internal/llm"
	"github.com/roverhq/rover/internal/logging"
	"github.com/roverhq/rover/internal/store"
)

// ConsolidatorAgentID marks merged issues in the store and on tickets.
const ConsolidatorAgentID = "consolidator"

// consolidatorName is the human-readable "Detected by" on merged tickets.
const consolidatorName = "Consolidator"

var readOnlyTools = []string{"Read", "Glob", "Grep"}

// mergedPayload is the JSON object the merge prompt demands.
type mergedPayload struct {
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	Category        string           `json:"category"`
	Recommendation  string           `json:"recommendation"`
	PrimaryFilePath string           `json:"primaryFilePath"`
	LineRange       *store.LineRange `json:"lineRange"`
	CodeSnippet     string           `json:"codeSnippet,omitempty"`
}

// MergedCluster records one successful consolidation.
type MergedCluster struct {
	Cluster     Cluster
	Issue       store.ApprovedIssue
	TicketPath  string
	ReplacedIDs []string
}

// SkippedCluster records a cluster left untouched after a failure.
type SkippedCluster struct {
	Cluster Cluster
	Reason  string
}

// Result summarizes one consolidation run.
type Result struct {
	OpenIssues int
	Clusters   []Cluster
	Merged     []MergedCluster
	Skipped    []SkippedCluster
	CostUSD    float64
	DryRun     bool
}

// Reduced returns how many issues the run removed from the open set:
// each merged cluster of n issues becomes one.
func (r *Result) Reduced() int {
	total := 0
	for _, m := range r.Merged {
		total += len(m.Cluster.Issues) - 1
	}
	return total
}

// Consolidator merges clusters of related open issues.
type Consolidator struct {
	runner llm.Runner
	issues *store.IssueStore
	cfg    config.ConsolidateConfig
	logger *log.Logger
}

// NewConsolidator wires a consolidator over the issue store.
func NewConsolidator(runner llm.Runner, issues *store.IssueStore, cfg config.ConsolidateConfig, logger *log.Logger) *Consolidator {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Consolidator{runner: runner, issues: issues, cfg: cfg, logger: logger}
}

// Run clusters the open issues and merges each cluster through the LLM.
// Merge calls run concurrently up to the configured limit; every file and
// store mutation happens serially afterwards so the ticket sequence is
// never raced. With dryRun only the clustering is reported.
func (c *Consolidator) Run(ctx context.Context, targetPath string, dryRun bool) (*Result, error) {
	open, err := c.issues.Open()
	if err != nil {
		return nil, err
	}

	clusters := clusterIssues(open, c.cfg.SimilarityThreshold)
	result := &Result{OpenIssues: len(open), Clusters: clusters, DryRun: dryRun}
	if len(clusters) == 0 {
		c.logger.Info("nothing to consolidate", "openIssues", len(open))
		return result, nil
	}
	c.logger.Info("clustered issues", "openIssues", len(open), "clusters", len(clusters))
	if dryRun {
		return result, nil
	}

	type mergeOutcome struct {
		payload mergedPayload
		cost    float64
		err     error
	}
	outcomes := make([]mergeOutcome, len(clusters))

	g, gctx := errgroup.WithContext(ctx)
	limit := c.cfg.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, cluster := range clusters {
		g.Go(func() error {
			payload, cost, err := c.merge(gctx, targetPath, cluster)
			outcomes[i] = mergeOutcome{payload: payload, cost: cost, err: err}
			// Failed clusters are skipped, not fatal.
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers always return nil

	for i, cluster := range clusters {
		out := outcomes[i]
		result.CostUSD += out.cost
		if out.err != nil {
			c.logger.Warn("skipping cluster", "cluster", cluster.ID, "error", out.err)
			result.Skipped = append(result.Skipped, SkippedCluster{Cluster: cluster, Reason: out.err.Error()})
			continue
		}
		merged, err := c.apply(targetPath, cluster, out.payload)
		if err != nil {
			c.logger.Warn("skipping cluster", "cluster", cluster.ID, "error", err)
			result.Skipped = append(result.Skipped, SkippedCluster{Cluster: cluster, Reason: err.Error()})
			continue
		}
		result.Merged = append(result.Merged, merged)
		c.logger.Info("consolidated",
			"cluster", cluster.ID,
			"into", merged.Issue.ID,
			"replaced", len(merged.ReplacedIDs))
	}
	return result, nil
}

// merge asks the LLM for a single issue covering the whole cluster.
func (c *Consolidator) merge(ctx context.Context, targetPath string, cluster Cluster) (mergedPayload, float64, error) {
	res, err := c.runner.Run(ctx, llm.Request{
		Prompt:       mergePrompt(cluster),
		WorkDir:      targetPath,
		MaxTurns:     c.cfg.MaxTurns,
		AllowedTools: readOnlyTools,
	})
	if err != nil {
		return mergedPayload{}, 0, fmt.Errorf("merge call: %w", err)
	}
	var payload mergedPayload
	if err := jsonutil.ExtractInto(res.Text, &payload); err != nil {
		return mergedPayload{}, res.CostUSD, fmt.Errorf("parsing merge response: %w", err)
	}
	if strings.TrimSpace(payload.Title) == "" {
		return mergedPayload{}, res.CostUSD, fmt.Errorf("merge response has no title")
	}
	return payload, res.CostUSD, nil
}

// apply performs the serial mutation phase for one cluster: write the
// consolidated ticket, swap the originals for the replacement in one store
// write, then delete the original tickets. The new ticket is written first
// so its number is allocated while the originals still occupy theirs.
func (c *Consolidator) apply(targetPath string, cluster Cluster, payload mergedPayload) (MergedCluster, error) {
	originalIDs := make([]string, 0, len(cluster.Issues))
	fromTickets := make([]string, 0, len(cluster.Issues))
	severity := cluster.Issues[0].Severity
	for _, is := range cluster.Issues {
		originalIDs = append(originalIDs, is.ID)
		if tid := is.TicketID(); tid != "" {
			fromTickets = append(fromTickets, tid)
		}
		if is.Severity.Rank() < severity.Rank() {
			severity = is.Severity
		}
	}

	category := payload.Category
	if category == "" {
		category = cluster.Issues[0].Category
	}
	merged := store.ApprovedIssue{
		CandidateIssue: store.CandidateIssue{
			AgentID:        ConsolidatorAgentID,
			Title:          payload.Title,
			Description:    payload.Description,
			Severity:       severity,
			Category:       category,
			FilePath:       payload.PrimaryFilePath,
			Recommendation: payload.Recommendation,
			CodeSnippet:    payload.CodeSnippet,
		},
		ApprovedAt: time.Now().UTC(),
		Status:     store.StatusOpen,
	}
	if payload.LineRange != nil {
		merged.LineRange = *payload.LineRange
	}

	ticketPath, ticketID, err := store.WriteTicket(targetPath, merged, consolidatorName, fromTickets)
	if err != nil {
		return MergedCluster{}, fmt.Errorf("writing consolidated ticket: %w", err)
	}
	merged.ID = ticketID
	merged.TicketPath = ticketPath

	if err := c.issues.Consolidate(originalIDs, merged); err != nil {
		// Roll the fresh ticket back so the backlog stays untouched.
		if delErr := store.DeleteTicket(targetPath, ticketID); delErr != nil {
			c.logger.Warn("removing orphaned ticket", "ticket", ticketID, "error", delErr)
		}
		return MergedCluster{}, fmt.Errorf("updating issue store: %w", err)
	}

	for _, tid := range fromTickets {
		if err := store.DeleteTicket(targetPath, tid); err != nil {
			c.logger.Warn("removing replaced ticket", "ticket", tid, "error", err)
		}
	}
	return MergedCluster{
		Cluster:     cluster,
		Issue:       merged,
		TicketPath:  ticketPath,
		ReplacedIDs: originalIDs,
	}, nil
}

// mergePrompt builds the consolidation prompt for one cluster.
func mergePrompt(cluster Cluster) string {
	var b strings.Builder
	b.WriteString("You are consolidating related code review findings into one actionable ticket.\n\n")
	b.WriteString("These issues were grouped because of ")
	b.WriteString(cluster.Reason)
	b.WriteString(".\n\n## Issues\n\n")
	for i, is := range cluster.Issues {
		fmt.Fprintf(&b, "### Issue %d: %s\n", i+1, is.Title)
		fmt.Fprintf(&b, "- Severity: %s\n", is.Severity)
		fmt.Fprintf(&b, "- Category: %s\n", is.Category)
		if is.FilePath != "" {
			fmt.Fprintf(&b, "- File: %s\n", is.Location())
		}
		fmt.Fprintf(&b, "\n%s\n", is.Description)
		if is.Recommendation != "" {
			fmt.Fprintf(&b, "\nRecommendation: %s\n", is.Recommendation)
		}
		b.WriteString("\n")
	}
	b.WriteString(`## Your task

Read the affected files if you need more context, then merge the issues
above into a single coherent finding. Keep every distinct problem; drop
only the duplication. The description should explain the underlying
problem once and enumerate the affected locations.

Respond with exactly one JSON object:

{
  "title": "one line covering the merged finding",
  "description": "the merged description",
  "category": "category for the merged issue",
  "recommendation": "one actionable recommendation covering all members",
  "primaryFilePath": "the file most central to the fix",
  "lineRange": {"start": 1, "end": 2} or null,
  "codeSnippet": "optional representative snippet"
}
`)
	return b.String()
}
