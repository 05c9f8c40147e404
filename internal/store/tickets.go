package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrTicketNotFound is returned when no severity folder holds the ticket.
var ErrTicketNotFound = errors.New("ticket not found")

// ticketFileRe matches ticket filenames and captures the sequence number.
var ticketFileRe = regexp.MustCompile(`^ISSUE-(\d+)\.md$`)

// ticketHeaderRe captures the id and title from a ticket's first heading.
var ticketHeaderRe = regexp.MustCompile(`(?m)^#\s+(ISSUE-\d+):\s*(.+)$`)

// FormatTicketID renders a sequence number as an external ticket id.
// Three digits minimum; the counter keeps going past 999.
func FormatTicketID(n int) string {
	return fmt.Sprintf("ISSUE-%03d", n)
}

// NextTicketNumber scans every severity folder and returns one past the
// highest sequence seen. Numbers are never reused: deleting ISSUE-007
// still leaves the counter beyond 7 as long as any later ticket exists,
// and consolidation always allocates fresh numbers.
//
// Callers that go on to write a ticket must hold the tickets lock across
// scan and write; WriteTicket does this itself.
func NextTicketNumber(targetPath string) (int, error) {
	unlock := lockFile(TicketsDir(targetPath))
	defer unlock()
	return nextTicketNumber(targetPath)
}

func nextTicketNumber(targetPath string) (int, error) {
	highest := 0
	for _, sev := range Severities() {
		entries, err := os.ReadDir(SeverityDir(targetPath, sev))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, fmt.Errorf("scanning ticket folder %q: %w", sev, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			m := ticketFileRe.FindStringSubmatch(entry.Name())
			if m == nil {
				continue
			}
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			if n > highest {
				highest = n
			}
		}
	}
	return highest + 1, nil
}

// WriteTicket allocates the next ticket id, renders the markdown, and
// writes it under the issue's severity folder. Sequence scan and file
// write happen under the tickets lock so concurrent arbitrators never
// allocate the same number.
func WriteTicket(targetPath string, issue ApprovedIssue, agentName string, consolidatedFrom []string) (ticketPath, ticketID string, err error) {
	unlock := lockFile(TicketsDir(targetPath))
	defer unlock()

	n, err := nextTicketNumber(targetPath)
	if err != nil {
		return "", "", err
	}
	ticketID = FormatTicketID(n)

	dir := SeverityDir(targetPath, issue.Severity)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("creating ticket folder: %w", err)
	}

	ticketPath = filepath.Join(dir, ticketID+".md")
	content := RenderTicket(ticketID, issue, agentName, consolidatedFrom)
	if err := os.WriteFile(ticketPath, []byte(content), 0o644); err != nil {
		return "", "", fmt.Errorf("writing ticket %s: %w", ticketID, err)
	}
	return ticketPath, ticketID, nil
}

// RenderTicket produces the stable markdown ticket format.
func RenderTicket(ticketID string, issue ApprovedIssue, agentName string, consolidatedFrom []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s: %s\n\n", ticketID, issue.Title)

	fmt.Fprintf(&b, "**Severity**: %s\n", capitalize(string(issue.Severity)))
	if issue.Category != "" {
		fmt.Fprintf(&b, "**Category**: %s\n", issue.Category)
	}
	detectedBy := issue.AgentID
	if agentName != "" && agentName != issue.AgentID {
		detectedBy = fmt.Sprintf("%s (%s)", agentName, issue.AgentID)
	}
	if detectedBy != "" {
		fmt.Fprintf(&b, "**Detected by**: %s\n", detectedBy)
	}
	if loc := issue.Location(); loc != "" {
		fmt.Fprintf(&b, "**File**: %s\n", loc)
	}
	if len(consolidatedFrom) > 0 {
		fmt.Fprintf(&b, "**Consolidated from**: %s\n", strings.Join(consolidatedFrom, ", "))
	}

	fmt.Fprintf(&b, "\n## Description\n\n%s\n", strings.TrimSpace(issue.Description))

	if snippet := strings.TrimSpace(issue.CodeSnippet); snippet != "" {
		fmt.Fprintf(&b, "\n## Problematic Code\n\n```\n%s\n```\n", snippet)
	}

	if rec := strings.TrimSpace(issue.Recommendation); rec != "" {
		fmt.Fprintf(&b, "\n## Recommendation\n\n%s\n", rec)
	}

	fmt.Fprintf(&b, "\n---\n*Detected by rover on %s*\n", time.Now().UTC().Format("2006-01-02"))
	return b.String()
}

// FindTicketPath resolves a ticket id to its file by checking each
// severity folder.
func FindTicketPath(targetPath, ticketID string) (string, error) {
	for _, sev := range Severities() {
		path := filepath.Join(SeverityDir(targetPath, sev), ticketID+".md")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrTicketNotFound, ticketID)
}

// ReadTicket returns a ticket's markdown content and path.
func ReadTicket(targetPath, ticketID string) (content, path string, err error) {
	path, err = FindTicketPath(targetPath, ticketID)
	if err != nil {
		return "", "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("reading ticket %s: %w", ticketID, err)
	}
	return string(data), path, nil
}

// DeleteTicket removes a ticket file by id. Missing tickets are not an
// error so consolidation cleanup is idempotent.
func DeleteTicket(targetPath, ticketID string) error {
	path, err := FindTicketPath(targetPath, ticketID)
	if err != nil {
		if errors.Is(err, ErrTicketNotFound) {
			return nil
		}
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("deleting ticket %s: %w", ticketID, err)
	}
	return nil
}

// TicketTitle extracts the title from rendered ticket markdown; empty
// when the heading is missing or malformed.
func TicketTitle(content string) string {
	m := ticketHeaderRe.FindStringSubmatch(content)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[2])
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
