package scan

import (
	"fmt"
	"strings"

	"github.com/roverhq/rover/internal/catalog"
	"github.com/roverhq/rover/internal/store"
)

// readOnlyTools is the tool surface granted to scanners and voters. Fix
// sessions get full access; scan-side calls must never mutate the repo.
var readOnlyTools = []string{"Read", "Glob", "Grep"}

// scannerPrompt assembles the single scanner request: dedup preamble
// first with the suppression directive, then the agent's charter, scope,
// reviewer memory, and the output contract.
func scannerPrompt(spec catalog.AgentSpec, dedupSummary, memory string) string {
	var b strings.Builder

	b.WriteString("## Previously detected issues\n\n")
	b.WriteString(strings.TrimSpace(dedupSummary))
	b.WriteString("\n\nDO NOT report issues matching any above.\n\n---\n\n")

	b.WriteString(strings.TrimSpace(spec.SystemPrompt))
	b.WriteString("\n")

	if len(spec.FilePatterns) > 0 {
		b.WriteString("\n## Scope\n\nOnly report issues in files matching these patterns (a leading \"!\" excludes):\n")
		for _, pat := range spec.FilePatterns {
			fmt.Fprintf(&b, "- `%s`\n", pat)
		}
	}

	if m := strings.TrimSpace(memory); m != "" {
		b.WriteString("\n## Reviewer notes\n\nThe user supplied standing context. Respect it when deciding what to report:\n\n")
		b.WriteString(m)
		b.WriteString("\n")
	}

	b.WriteString(`
## Output

Explore the repository with your read-only tools, then respond with ONE JSON object and nothing else:

{"issues": [{"id": "...", "title": "...", "description": "...", "severity": "critical|high|medium|low", "category": "...", "filePath": "...", "lineRange": {"start": 1, "end": 1}, "recommendation": "...", "codeSnippet": "..."}]}

Rules:
- id: a short kebab-case slug derived from the problem and its location (e.g. "sql-injection-login-handler"). The same underlying problem must always yield the same id.
- filePath: relative to the repository root.
- lineRange: start and end of the affected lines, start <= end; omit when the issue is not line-scoped.
- description: enough detail that someone who has not read the file understands the problem.
- recommendation: the concrete change you would make.
- codeSnippet: the offending lines verbatim, when line-scoped.
- Report only findings inside your charter. If nothing qualifies, respond {"issues": []}.
`)
	return b.String()
}

// voterPrompt asks one voter to independently verify one candidate.
func voterPrompt(cand store.CandidateIssue) string {
	var b strings.Builder

	b.WriteString("You are an independent reviewer deciding whether a reported code issue is real and worth fixing.\n\n## Reported issue\n\n")
	fmt.Fprintf(&b, "Title: %s\n", cand.Title)
	fmt.Fprintf(&b, "Severity: %s\n", cand.Severity)
	if cand.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", cand.Category)
	}
	if loc := cand.Location(); loc != "" {
		fmt.Fprintf(&b, "Location: %s\n", loc)
	}
	fmt.Fprintf(&b, "\nDescription:\n%s\n", strings.TrimSpace(cand.Description))
	if rec := strings.TrimSpace(cand.Recommendation); rec != "" {
		fmt.Fprintf(&b, "\nProposed fix:\n%s\n", rec)
	}
	if snippet := strings.TrimSpace(cand.CodeSnippet); snippet != "" {
		fmt.Fprintf(&b, "\nCited code:\n```\n%s\n```\n", snippet)
	}

	b.WriteString(`
## Your task

Open the cited file and verify the claim yourself. Approve only when the issue is real, present at the cited location, and actionable. Reject false positives, intended behavior, style preferences, and problems the code already handles.

Respond with ONE JSON object and nothing else:

{"approve": true, "reasoning": "one or two sentences"}
`)
	return b.String()
}
