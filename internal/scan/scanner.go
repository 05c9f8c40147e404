package scan

import (
	"context"
	"path"
	"strings"

	"github.com/roverhq/rover/internal/catalog"
	"github.com/roverhq/rover/internal/jsonutil"
	"github.com/roverhq/rover/internal/llm"
	"github.com/roverhq/rover/internal/store"
)

// scanPayload is the JSON object the scanner must answer with.
type scanPayload struct {
	Issues []store.CandidateIssue `json:"issues"`
}

// runScanner issues the single scanner call and returns normalized
// candidates. An unparseable response yields zero candidates and a
// warning; only transport errors propagate.
func (p *Pipeline) runScanner(ctx context.Context, targetPath string, spec catalog.AgentSpec) ([]store.CandidateIssue, float64, error) {
	dedup := p.dedupSummary(ctx, targetPath)

	memory, err := store.ReadMemory(targetPath)
	if err != nil {
		p.logger.Warn("reading memory file", "error", err)
		memory = ""
	}

	res, err := p.runner.Run(ctx, llm.Request{
		Prompt:       scannerPrompt(spec, dedup, memory),
		WorkDir:      targetPath,
		MaxTurns:     p.cfg.ScannerMaxTurns,
		AllowedTools: readOnlyTools,
	})
	if err != nil {
		return nil, 0, err
	}

	var payload scanPayload
	if err := jsonutil.ExtractInto(res.Text, &payload); err != nil {
		p.logger.Warn("scanner response not parseable, treating as zero candidates",
			"agent", spec.ID, "error", err)
		return nil, res.CostUSD, nil
	}

	return p.normalizeCandidates(spec, payload.Issues), res.CostUSD, nil
}

// normalizeCandidates enforces the candidate contract: ids present and
// unique within the scan, severity valid, line ranges ordered, paths
// repo-relative. Violations drop the candidate (or mend it) with a log
// line rather than failing the scan.
func (p *Pipeline) normalizeCandidates(spec catalog.AgentSpec, raw []store.CandidateIssue) []store.CandidateIssue {
	seen := make(map[string]bool, len(raw))
	out := make([]store.CandidateIssue, 0, len(raw))
	for _, c := range raw {
		c.ID = strings.TrimSpace(c.ID)
		c.Title = strings.TrimSpace(c.Title)
		if c.ID == "" || c.Title == "" {
			p.logger.Warn("dropping candidate without id or title", "agent", spec.ID, "id", c.ID, "title", c.Title)
			continue
		}
		if seen[c.ID] {
			p.logger.Warn("dropping candidate with duplicate id", "agent", spec.ID, "id", c.ID)
			continue
		}
		seen[c.ID] = true

		c.AgentID = spec.ID
		c.Severity = store.ParseSeverity(string(c.Severity))
		c.FilePath = normalizeRelPath(c.FilePath)
		if c.LineRange.Start < 0 || c.LineRange.End < 0 {
			c.LineRange = store.LineRange{}
		}
		if c.LineRange.End != 0 && c.LineRange.End < c.LineRange.Start {
			c.LineRange.Start, c.LineRange.End = c.LineRange.End, c.LineRange.Start
		}
		out = append(out, c)
	}
	return out
}

// normalizeRelPath cleans a scanner-reported path into a slash-separated
// repo-relative form.
func normalizeRelPath(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return ""
	}
	return path.Clean(p)
}
