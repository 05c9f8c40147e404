package consolidate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/roverhq/rover/internal/config"
	"github.com/roverhq/rover/internal/jsonutil"
	"github.com/roverhq/rover/internal/llm"
	"github.com/roverhq/rover/internal/logging"
	"github.com/roverhq/rover/internal/store"
)

// Dependency is one edge in the inferred issue graph.
type Dependency struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
}

// dependencyTypes are the edge kinds the planner understands. Edges with
// any other type are dropped during post-processing.
var dependencyTypes = map[string]bool{
	"blocks":    true,
	"conflicts": true,
	"enables":   true,
}

// PlanGroup is a set of issues that can be fixed in parallel.
type PlanGroup struct {
	Name     string   `json:"name"`
	IssueIDs []string `json:"issueIds"`
}

// planPayload is the JSON object the planning prompt demands.
type planPayload struct {
	Summary          string       `json:"summary"`
	Dependencies     []Dependency `json:"dependencies"`
	ParallelGroups   []PlanGroup  `json:"parallelGroups"`
	ExecutionOrder   []string     `json:"executionOrder"`
	CommandsMarkdown string       `json:"commandsMarkdown"`
}

// Plan is the post-processed execution plan.
type Plan struct {
	Summary          string
	Dependencies     []Dependency
	Groups           []PlanGroup
	ExecutionOrder   []string
	CommandsMarkdown string
	Markdown         string
	Path             string
	CostUSD          float64
}

// Planner turns a set of open issues into an ordered execution plan.
type Planner struct {
	runner llm.Runner
	cfg    config.ConsolidateConfig
	logger *log.Logger
}

// NewPlanner wires a planner over the LLM runner.
func NewPlanner(runner llm.Runner, cfg config.ConsolidateConfig, logger *log.Logger) *Planner {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Planner{runner: runner, cfg: cfg, logger: logger}
}

// Run asks the LLM for a dependency graph and grouping over the given
// issues, repairs the response so every issue lands in exactly one group,
// renders the plan as markdown with a Mermaid flowchart, and saves it
// under .rover/plans/.
func (p *Planner) Run(ctx context.Context, targetPath string, issues []store.ApprovedIssue) (*Plan, error) {
	if len(issues) == 0 {
		return nil, fmt.Errorf("no open issues to plan")
	}

	p.logger.Info("planning", "issues", len(issues))
	res, err := p.runner.Run(ctx, llm.Request{
		Prompt:       planPrompt(issues),
		WorkDir:      targetPath,
		MaxTurns:     p.cfg.MaxTurns,
		AllowedTools: readOnlyTools,
	})
	if err != nil {
		return nil, fmt.Errorf("plan call: %w", err)
	}

	var payload planPayload
	if err := jsonutil.ExtractInto(res.Text, &payload); err != nil {
		return nil, fmt.Errorf("parsing plan response: %w", err)
	}

	plan := buildPlan(issues, payload)
	plan.CostUSD = res.CostUSD
	plan.Markdown = renderPlan(issues, plan)

	if err := store.EnsureLayout(targetPath); err != nil {
		return nil, err
	}
	name := time.Now().Format("2006-01-02-150405") + "-plan.md"
	path := filepath.Join(store.PlansDir(targetPath), name)
	if err := os.WriteFile(path, []byte(plan.Markdown), 0o644); err != nil {
		return nil, fmt.Errorf("saving plan: %w", err)
	}
	plan.Path = path
	p.logger.Info("plan saved", "path", path, "groups", len(plan.Groups))
	return plan, nil
}

// displayID is the id the plan shows for an issue: the ticket id when one
// exists, the store id otherwise.
func displayID(is store.ApprovedIssue) string {
	if tid := is.TicketID(); tid != "" {
		return tid
	}
	return is.ID
}

// buildPlan repairs the raw payload: unknown ids are dropped, every issue
// lands in exactly one group (stragglers in "Independent"), the execution
// order always covers all issues, and malformed dependency edges vanish.
func buildPlan(issues []store.ApprovedIssue, payload planPayload) *Plan {
	known := make(map[string]bool, len(issues))
	inputOrder := make([]string, len(issues))
	for i, is := range issues {
		id := displayID(is)
		known[id] = true
		inputOrder[i] = id
	}

	placed := make(map[string]bool, len(issues))
	var groups []PlanGroup
	for _, g := range payload.ParallelGroups {
		var ids []string
		for _, id := range g.IssueIDs {
			if known[id] && !placed[id] {
				ids = append(ids, id)
				placed[id] = true
			}
		}
		if len(ids) == 0 {
			continue
		}
		name := strings.TrimSpace(g.Name)
		if name == "" {
			name = fmt.Sprintf("Group %d", len(groups)+1)
		}
		groups = append(groups, PlanGroup{Name: name, IssueIDs: ids})
	}
	var leftovers []string
	for _, id := range inputOrder {
		if !placed[id] {
			leftovers = append(leftovers, id)
		}
	}
	if len(leftovers) > 0 {
		groups = append(groups, PlanGroup{Name: "Independent", IssueIDs: leftovers})
	}

	ordered := make([]string, 0, len(issues))
	inOrder := make(map[string]bool, len(issues))
	for _, id := range payload.ExecutionOrder {
		if known[id] && !inOrder[id] {
			ordered = append(ordered, id)
			inOrder[id] = true
		}
	}
	for _, id := range inputOrder {
		if !inOrder[id] {
			ordered = append(ordered, id)
		}
	}

	var deps []Dependency
	for _, d := range payload.Dependencies {
		d.Type = strings.ToLower(strings.TrimSpace(d.Type))
		if known[d.From] && known[d.To] && dependencyTypes[d.Type] {
			deps = append(deps, d)
		}
	}

	return &Plan{
		Summary:          strings.TrimSpace(payload.Summary),
		Dependencies:     deps,
		Groups:           groups,
		ExecutionOrder:   ordered,
		CommandsMarkdown: strings.TrimSpace(payload.CommandsMarkdown),
	}
}

// renderPlan produces the saved markdown document.
func renderPlan(issues []store.ApprovedIssue, plan *Plan) string {
	titles := make(map[string]string, len(issues))
	for _, is := range issues {
		titles[displayID(is)] = is.Title
	}

	var b strings.Builder
	b.WriteString("# Fix Execution Plan\n\n")
	fmt.Fprintf(&b, "_Generated by rover on %s._\n\n", time.Now().Format("2006-01-02 15:04"))

	if plan.Summary != "" {
		b.WriteString("## Summary\n\n")
		b.WriteString(plan.Summary)
		b.WriteString("\n\n")
	}

	b.WriteString("## Execution Order\n\n")
	for i, id := range plan.ExecutionOrder {
		fmt.Fprintf(&b, "%d. **%s**: %s\n", i+1, id, titles[id])
	}
	b.WriteString("\n## Parallel Groups\n\n")
	for _, g := range plan.Groups {
		fmt.Fprintf(&b, "### %s\n\n", g.Name)
		for _, id := range g.IssueIDs {
			fmt.Fprintf(&b, "- **%s**: %s\n", id, titles[id])
		}
		b.WriteString("\n")
	}

	b.WriteString("## Dependency Graph\n\n")
	if len(plan.Dependencies) == 0 {
		b.WriteString("No dependencies between these issues; any order works.\n\n")
	} else {
		b.WriteString("```mermaid\n")
		b.WriteString(renderFlowchart(plan.ExecutionOrder, titles, plan.Dependencies))
		b.WriteString("```\n\n")
	}

	b.WriteString("## Suggested Commands\n\n")
	if plan.CommandsMarkdown != "" {
		b.WriteString(plan.CommandsMarkdown)
		b.WriteString("\n")
	} else {
		b.WriteString("```bash\n")
		for _, id := range plan.ExecutionOrder {
			fmt.Fprintf(&b, "rover fix %s\n", id)
		}
		b.WriteString("```\n")
	}
	return b.String()
}

// renderFlowchart emits a Mermaid flowchart with one node per issue and
// one labeled edge per dependency.
func renderFlowchart(order []string, titles map[string]string, deps []Dependency) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	for _, id := range order {
		fmt.Fprintf(&b, "    %s[\"%s: %s\"]\n", nodeID(id), id, mermaidLabel(titles[id]))
	}
	for _, d := range deps {
		fmt.Fprintf(&b, "    %s -->|%s| %s\n", nodeID(d.From), d.Type, nodeID(d.To))
	}
	return b.String()
}

// nodeID makes an id safe as a Mermaid node identifier.
func nodeID(id string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, id)
}

// mermaidLabel trims and de-quotes a title for use inside a node label.
func mermaidLabel(title string) string {
	title = strings.ReplaceAll(title, `"`, "'")
	const limit = 60
	if len(title) > limit {
		return title[:limit-3] + "..."
	}
	return title
}

// planPrompt builds the planning prompt over the full issue payload.
func planPrompt(issues []store.ApprovedIssue) string {
	var b strings.Builder
	b.WriteString("You are planning the execution order for fixing the code issues below.\n")
	b.WriteString("Explore the repository with your read-only tools to judge which fixes touch the same code.\n\n")
	b.WriteString("## Issues\n\n")
	for _, is := range issues {
		fmt.Fprintf(&b, "### %s: %s\n", displayID(is), is.Title)
		fmt.Fprintf(&b, "- Severity: %s\n", is.Severity)
		fmt.Fprintf(&b, "- Category: %s\n", is.Category)
		if is.FilePath != "" {
			fmt.Fprintf(&b, "- File: %s\n", is.Location())
		}
		fmt.Fprintf(&b, "\n%s\n\n", is.Description)
	}
	b.WriteString(`## Your task

Work out how these fixes relate: which must land first (blocks), which
touch the same code and should not run in parallel (conflicts), and which
make another fix easier (enables). Group issues that can be fixed
concurrently without stepping on each other.

Respond with exactly one JSON object:

{
  "summary": "2-4 sentences on the overall approach",
  "dependencies": [{"from": "ISSUE-001", "to": "ISSUE-002", "type": "blocks"}],
  "parallelGroups": [{"name": "short group name", "issueIds": ["ISSUE-001"]}],
  "executionOrder": ["ISSUE-001", "ISSUE-002"],
  "commandsMarkdown": "a fenced bash block with the rover fix commands in order"
}

Use only the issue ids listed above. Every issue belongs to exactly one
parallel group.
`)
	return b.String()
}
