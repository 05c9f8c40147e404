package scan

import (
	"context"
	"fmt"
	"strings"

	"github.com/roverhq/rover/internal/llm"
	"github.com/roverhq/rover/internal/store"
)

const (
	// noExistingIssues is the dedup preamble for a virgin store.
	noExistingIssues = "No existing issues detected yet."

	// summarizeMaxTurns bounds the condensation call; it is pure text work.
	summarizeMaxTurns = 5

	// maxDirectLines truncates the fallback listing when condensation
	// fails on a very large store.
	maxDirectLines = 40
)

// dedupSummary renders the current issue store into the preamble that
// tells the scanner what not to re-report. Small stores are listed
// directly; past the configured threshold an LLM condenses the list,
// falling back to a truncated direct listing on any failure. Dismissed
// (wont_fix) issues are always listed verbatim.
func (p *Pipeline) dedupSummary(ctx context.Context, targetPath string) string {
	open, err := p.issues.Open()
	if err != nil {
		p.logger.Warn("loading issue store for dedup summary", "error", err)
		return noExistingIssues
	}
	dismissed, err := p.issues.WontFix()
	if err != nil {
		p.logger.Warn("loading dismissed issues for dedup summary", "error", err)
	}

	if len(open) == 0 && len(dismissed) == 0 {
		return noExistingIssues
	}

	var b strings.Builder
	if len(open) > 0 {
		b.WriteString("Known issues already on file:\n\n")
		b.WriteString(p.openSummary(ctx, open))
		b.WriteString("\n")
	}
	if len(dismissed) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Dismissed as won't-fix; never report these or structurally similar findings:\n\n")
		b.WriteString(strings.Join(directLines(dismissed), "\n"))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// openSummary lists open issues directly when at or under the threshold,
// otherwise asks the LLM for a condensed fingerprint list grouped by file.
func (p *Pipeline) openSummary(ctx context.Context, open []store.ApprovedIssue) string {
	lines := directLines(open)
	if len(open) <= p.cfg.DedupSummaryThreshold {
		return strings.Join(lines, "\n")
	}

	condensed, err := p.condense(ctx, lines)
	if err != nil {
		p.logger.Warn("dedup condensation failed, falling back to direct listing", "error", err)
		return strings.Join(truncateLines(lines, maxDirectLines), "\n")
	}
	return condensed
}

// condense asks the LLM to shrink the issue listing while keeping every
// distinct problem recognizable.
func (p *Pipeline) condense(ctx context.Context, lines []string) (string, error) {
	prompt := fmt.Sprintf(`Condense the following list of known code issues into a short fingerprint list grouped by file. Keep every distinct problem recognizable in a single line; drop prose, keep identifiers and paths. Output only the condensed list, no preamble.

%s`, strings.Join(lines, "\n"))

	res, err := p.runner.Run(ctx, llm.Request{
		Prompt:   prompt,
		MaxTurns: summarizeMaxTurns,
	})
	if err != nil {
		return "", err
	}
	condensed := strings.TrimSpace(res.Text)
	if condensed == "" {
		return "", fmt.Errorf("empty condensation response")
	}
	return condensed, nil
}

// directLines renders one `- [category] "title" in path:lines` line per
// issue, the stable format voters and scanners are prompted with.
func directLines(issues []store.ApprovedIssue) []string {
	lines := make([]string, 0, len(issues))
	for _, issue := range issues {
		loc := issue.Location()
		if loc == "" {
			loc = "unknown location"
		}
		lines = append(lines, fmt.Sprintf("- [%s] %q in %s", issue.Category, issue.Title, loc))
	}
	return lines
}

func truncateLines(lines []string, limit int) []string {
	if len(lines) <= limit {
		return lines
	}
	out := make([]string, limit, limit+1)
	copy(out, lines[:limit])
	return append(out, fmt.Sprintf("... and %d more", len(lines)-limit))
}
