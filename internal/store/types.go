package store

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Severity ranks how urgent an issue is. It doubles as the ticket folder
// name, so values are stable on disk.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities returns all severities from most to least urgent. The order
// is used for ticket folder scans and display sorting.
func Severities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}
}

// ParseSeverity normalizes a free-form severity string. Unrecognized
// values fall back to medium so a sloppy scanner response never derails
// the pipeline.
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityHigh:
		return SeverityHigh
	case SeverityMedium:
		return SeverityMedium
	case SeverityLow:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// Rank returns a sort key: lower is more urgent.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

// LineRange marks where an issue lives inside its file. Zero values mean
// the scanner did not pin the issue to specific lines.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// IsZero reports whether the range is unset.
func (r LineRange) IsZero() bool { return r.Start == 0 && r.End == 0 }

// String renders "12" or "12-40" for ticket and summary output.
func (r LineRange) String() string {
	if r.IsZero() {
		return ""
	}
	if r.End == 0 || r.End == r.Start {
		return strconv.Itoa(r.Start)
	}
	return strconv.Itoa(r.Start) + "-" + strconv.Itoa(r.End)
}

// CandidateIssue is a scanner finding before voting. The id is assigned
// by the scanner and doubles as the long-term dedup key, so the prompt
// asks for stable descriptive slugs rather than counters.
type CandidateIssue struct {
	ID             string    `json:"id"`
	AgentID        string    `json:"agentId"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Severity       Severity  `json:"severity"`
	Category       string    `json:"category"`
	FilePath       string    `json:"filePath"`
	LineRange      LineRange `json:"lineRange,omitzero"`
	Recommendation string    `json:"recommendation,omitempty"`
	CodeSnippet    string    `json:"codeSnippet,omitempty"`
}

// Location renders "path/to/file.go:12-40" for summaries and tickets.
func (c CandidateIssue) Location() string {
	if c.FilePath == "" {
		return ""
	}
	if c.LineRange.IsZero() {
		return c.FilePath
	}
	return c.FilePath + ":" + c.LineRange.String()
}

// Vote is one voter's verdict on one candidate.
type Vote struct {
	VoterID   string `json:"voterId"`
	IssueID   string `json:"issueId"`
	Approve   bool   `json:"approve"`
	Reasoning string `json:"reasoning"`
}

// IssueStatus tracks an approved issue's lifecycle inside the store.
type IssueStatus string

const (
	// StatusOpen marks an issue awaiting a fix.
	StatusOpen IssueStatus = "open"

	// StatusWontFix marks an issue the user dismissed. It is hidden from
	// default listings and fed to the scanner as a suppression hint so
	// structurally similar findings are not re-ticketed.
	StatusWontFix IssueStatus = "wont_fix"
)

// ApprovedIssue is a candidate that cleared the vote threshold and earned
// a ticket.
type ApprovedIssue struct {
	CandidateIssue

	Votes      []Vote      `json:"votes"`
	ApprovedAt time.Time   `json:"approvedAt"`
	TicketPath string      `json:"ticketPath,omitempty"`
	Status     IssueStatus `json:"status"`
}

// TicketID derives the external identity (ISSUE-NNN) from the ticket
// filename. Empty when the ticket has not been written yet.
func (a ApprovedIssue) TicketID() string {
	if a.TicketPath == "" {
		return ""
	}
	return strings.TrimSuffix(filepath.Base(a.TicketPath), ".md")
}
