package fix

import (
	"fmt"
	"strings"
)

// readOnlyTools is the tool surface granted to reviewers and the dismissal
// check. The fix session itself runs with the CLI's full default toolset.
var readOnlyTools = []string{"Read", "Glob", "Grep"}

// maxPromptDiffBytes caps the diff embedded in review prompts. Reviewers
// keep read-only file access, so anything the cap cuts off stays reachable.
const maxPromptDiffBytes = 50 * 1024 // 50KB

// fixPrompt opens a fix session: the full ticket plus the commit discipline
// the orchestrator depends on to keep branches reviewable.
func fixPrompt(ticketID, ticketContent string) string {
	var b strings.Builder

	b.WriteString("You are fixing one reported issue in this repository. Work only on this issue.\n\n## Ticket\n\n")
	b.WriteString(strings.TrimSpace(ticketContent))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, `## Rules

1. Investigate before changing anything. If the code already handles the reported problem, print ALREADY_FIXED on its own line and stop without committing.
2. Fix only what the ticket describes. No drive-by refactors, no unrelated cleanups.
3. Fix the issue properly; do not defer for backwards compatibility.
4. Stage files one by one with specific "git add <path>" commands, never "git add ." or "git add -A".
5. Run "git diff --staged" before committing and confirm every staged hunk belongs to this fix.
6. Commit with a message starting "fix(%s): " followed by a short imperative summary.
7. After the commit succeeds, print COMMIT_COMPLETE on its own line.
8. If you cannot make progress, print BLOCKED followed by the reason on the same line and stop.
`, ticketID)
	return b.String()
}

// iterationPrompt turns review findings into the next fix request within
// the same session. Blocking items lead; suggestions never drive a round.
func iterationPrompt(ticketID string, items []ReviewItem) string {
	var mustFix, shouldFix []ReviewItem
	for _, item := range items {
		switch item.Severity {
		case ItemMustFix:
			mustFix = append(mustFix, item)
		case ItemShouldFix:
			shouldFix = append(shouldFix, item)
		}
	}

	var b strings.Builder
	b.WriteString("Reviewers examined your fix and found problems. Address them in this worktree.\n")

	n := 0
	if len(mustFix) > 0 {
		b.WriteString("\n## Must fix\n\n")
		for _, item := range mustFix {
			n++
			writeReviewItem(&b, n, item)
		}
	}
	if len(shouldFix) > 0 {
		b.WriteString("\n## Should fix\n\n")
		for _, item := range shouldFix {
			n++
			writeReviewItem(&b, n, item)
		}
	}

	fmt.Fprintf(&b, `
## Rules

1. Address every item above. If you are confident a finding is wrong, print REVIEW_NOT_APPLICABLE followed by your justification on the same line and stop; a skeptical second review will judge the dispute.
2. Stage files one by one with specific "git add <path>" commands and verify with "git diff --staged".
3. Commit with a message starting "fix(%s): " and print COMMIT_COMPLETE on its own line when done.
`, ticketID)
	return b.String()
}

// writeReviewItem renders one numbered finding, locating it when the
// reviewer named a file.
func writeReviewItem(b *strings.Builder, n int, item ReviewItem) {
	if item.File != "" {
		fmt.Fprintf(b, "%d. %s (%s)\n", n, item.Description, item.File)
	} else {
		fmt.Fprintf(b, "%d. %s\n", n, item.Description)
	}
}

// reviewAspect is one independent angle of the multi-aspect review.
type reviewAspect struct {
	name   string
	prompt string
}

// reviewAspects builds the review round: architecture and bugs always,
// completeness only when the original ticket text is available to check
// the fix against.
func reviewAspects(diff, issueContent string) []reviewAspect {
	aspects := []reviewAspect{
		{name: "architecture", prompt: architectureReviewPrompt(diff)},
		{name: "bugs", prompt: bugReviewPrompt(diff)},
	}
	if strings.TrimSpace(issueContent) != "" {
		aspects = append(aspects, reviewAspect{name: "completeness", prompt: completenessReviewPrompt(diff, issueContent)})
	}
	return aspects
}

// reviewOutputContract is the shared tail of every aspect prompt. Findings
// stay free-form; a dedicated parsing call structures the combined text.
const reviewOutputContract = `Read any file you need for context.

Report each finding on its own line, prefixed with its weight:
- "MUST FIX:" for problems that make the change wrong or unsafe.
- "SHOULD FIX:" for real problems that do not block the fix.
- "SUGGESTION:" for improvements worth mentioning.

Name the file a finding lives in. If the changes are clean from your angle, respond with exactly "No findings."
`

func architectureReviewPrompt(diff string) string {
	var b strings.Builder
	b.WriteString("You are reviewing a committed fix in this worktree for STRUCTURAL problems only; other reviewers cover bugs and completeness.\n\n")
	writePromptDiff(&b, diff)
	b.WriteString(`## Your task

Judge how the change sits in the codebase: layering violations, logic placed in the wrong module, duplicated responsibilities, leaked abstractions, new coupling between previously independent parts, and public API shapes that will be hard to live with.

`)
	b.WriteString(reviewOutputContract)
	return b.String()
}

func bugReviewPrompt(diff string) string {
	var b strings.Builder
	b.WriteString("You are reviewing a committed fix in this worktree for BUGS only; other reviewers cover structure and completeness.\n\n")
	writePromptDiff(&b, diff)
	b.WriteString(`## Your task

Hunt for implementation errors in the changed code: broken logic, off-by-one and boundary mistakes, nil or missing-value handling, swallowed or mishandled errors, races and unsafe shared state, resource leaks, and edge cases the change forgot.

`)
	b.WriteString(reviewOutputContract)
	return b.String()
}

func completenessReviewPrompt(diff, issueContent string) string {
	var b strings.Builder
	b.WriteString("You are reviewing a committed fix in this worktree for COMPLETENESS only: does it fully resolve the ticket below?\n\n## Original ticket\n\n")
	b.WriteString(strings.TrimSpace(issueContent))
	b.WriteString("\n\n")
	writePromptDiff(&b, diff)
	b.WriteString(`## Your task

Walk through every requirement and affected location the ticket names and verify the change covers it. Flag anything the ticket asks for that the change does not deliver.

`)
	b.WriteString(reviewOutputContract)
	return b.String()
}

// writePromptDiff embeds the fix's diff, truncated at the prompt cap.
func writePromptDiff(b *strings.Builder, diff string) {
	diff = strings.TrimSpace(diff)
	if diff == "" {
		b.WriteString("## Changes under review\n\nThe fix branch has no committed changes yet. Inspect the worktree directly.\n\n")
		return
	}
	if len(diff) > maxPromptDiffBytes {
		diff = diff[:maxPromptDiffBytes] + "\n... [diff truncated at 50KB] ..."
	}
	b.WriteString("## Changes under review\n\n```diff\n")
	b.WriteString(diff)
	b.WriteString("\n```\n\n")
}

// parseAnalysisPrompt asks for a faithful transcription of free-form review
// notes into the structure the iterate loop consumes.
func parseAnalysisPrompt(reviews string) string {
	var b strings.Builder
	b.WriteString("Convert the code review notes below into structured JSON. Transcribe; do not add, merge, or re-judge findings.\n\n## Review notes\n\n")
	b.WriteString(strings.TrimSpace(reviews))
	b.WriteString(`

## Output

Respond with ONE JSON object and nothing else:

{"isClean": false, "items": [{"severity": "must_fix|should_fix|suggestion", "description": "...", "file": "path/when/named"}]}

Rules:
- isClean is true only when the notes contain no findings at all.
- severity: MUST FIX maps to must_fix, SHOULD FIX to should_fix, everything else to suggestion.
- description: one finding per item, self-contained enough to act on.
- file: include only when the notes name one.
`)
	return b.String()
}

// dismissalPrompt re-checks disputed blocking findings with a skeptical
// second reviewer. Items it upholds go back on the actionable list.
func dismissalPrompt(items []ReviewItem, justification string) string {
	var b strings.Builder
	b.WriteString("A code-fixing agent disputes the review findings below instead of addressing them.\n\n## Disputed findings\n\n")
	for i, item := range items {
		writeReviewItem(&b, i+1, item)
	}
	b.WriteString("\n## The agent's justification\n\n")
	if j := strings.TrimSpace(justification); j != "" {
		b.WriteString(j)
	} else {
		b.WriteString("(none given)")
	}
	b.WriteString(`

## Your task

Be skeptical. Verify the claims against the code with your read-only tools. A finding stands unless the justification, or the code itself, clearly shows it is wrong, already handled, or outside this fix's scope.

Respond with ONE JSON object and nothing else:

{"valid_item_numbers": [1, 3]}

List the numbers of the findings that still stand. An empty list accepts the dispute in full.
`)
	return b.String()
}
