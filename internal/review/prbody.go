package review

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/roverhq/rover/internal/git"
	"github.com/roverhq/rover/internal/store"
)

//go:embed prbody.tmpl
var prBodyTemplateText string

// maxPRBodyBytes is the GitHub hard limit on PR body length.
const maxPRBodyBytes = 65536

// prBodyTemplate uses [[ ]] delimiters so the markdown it produces can
// carry literal braces.
var prBodyTemplate = template.Must(
	template.New("prbody").Delims("[[", "]]").Parse(prBodyTemplateText),
)

// prBodyData is the data bag passed to the body template.
type prBodyData struct {
	Summary       string
	IssueID       string
	Iterations    int
	BranchName    string
	BaseBranch    string
	Commits       []git.LogEntry
	TicketContent string
}

// BuildPRTitle produces the pull request title for a fix record:
// "fix(ISSUE-NNN): <summary>".
func BuildPRTitle(rec store.FixRecord) string {
	summary := strings.TrimSpace(rec.IssueSummary)
	if summary == "" {
		summary = "automated issue fix"
	}
	return fmt.Sprintf("fix(%s): %s", rec.IssueID, summary)
}

// BuildPRBody renders the pull request body for a fix record: the issue
// summary, the branch's commit log, a reviewer checklist, and the original
// ticket in a collapsed block. wt must be a client rooted in the record's
// worktree. The body is truncated to GitHub's 65,536 byte limit.
func BuildPRBody(ctx context.Context, wt *git.Client, rec store.FixRecord, base string) (string, error) {
	data := prBodyData{
		Summary:       strings.TrimSpace(rec.IssueSummary),
		IssueID:       rec.IssueID,
		Iterations:    rec.Iterations,
		BranchName:    rec.BranchName,
		BaseBranch:    base,
		TicketContent: demoteHeadings(strings.TrimSpace(rec.IssueContent)),
	}
	if data.Summary == "" {
		data.Summary = "Automated fix produced by the rover fix loop."
	}
	if data.Iterations < 1 {
		data.Iterations = 1
	}

	// The commit log is informative only; an unreadable log never blocks
	// the PR.
	if commits, err := wt.CommitsSince(ctx, base); err == nil {
		data.Commits = commits
	}

	var buf bytes.Buffer
	if err := prBodyTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering PR body: %w", err)
	}
	body := buf.String()

	if len(body) > maxPRBodyBytes {
		const notice = "\n\n---\n*PR body truncated to fit GitHub's 65,536 character limit.*\n"
		cutoff := maxPRBodyBytes - len(notice)
		body = body[:cutoff] + notice
	}
	return body, nil
}

// headingRe matches ATX headings at the start of a line.
var headingRe = regexp.MustCompile(`(?m)^(#{1,6}) `)

// demoteHeadings pushes markdown headings down two levels (capped at h6)
// so embedded ticket content cannot collide with the body's own sections.
func demoteHeadings(markdown string) string {
	return headingRe.ReplaceAllStringFunc(markdown, func(match string) string {
		level := len(strings.TrimRight(match, " "))
		level += 2
		if level > 6 {
			level = 6
		}
		return strings.Repeat("#", level) + " "
	})
}
