package git

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// DiffEntry is a single changed file in a diff.
type DiffEntry struct {
	// Status is the single-character status code from git:
	// "A" (added), "M" (modified), "D" (deleted), "R" (renamed).
	Status string
	// Path is the file path relative to the repository root.
	Path string
}

// DiffStats summarises a diff.
type DiffStats struct {
	FilesChanged int
	Insertions   int
	Deletions    int
}

// DiffUnified returns the full unified diff between base and HEAD.
func (c *Client) DiffUnified(ctx context.Context, base string) (string, error) {
	out, err := c.run(ctx, "diff", base+"...HEAD")
	if err != nil {
		return "", fmt.Errorf("git: diff from %q: %w", base, err)
	}
	return out, nil
}

// DiffFiles returns the files changed between base and HEAD.
func (c *Client) DiffFiles(ctx context.Context, base string) ([]DiffEntry, error) {
	out, err := c.run(ctx, "diff", "--name-status", base+"...HEAD")
	if err != nil {
		return nil, fmt.Errorf("git: diff files from %q: %w", base, err)
	}
	return parseDiffNameStatus(out), nil
}

// DiffStat returns aggregate change statistics between base and HEAD.
func (c *Client) DiffStat(ctx context.Context, base string) (*DiffStats, error) {
	out, err := c.run(ctx, "diff", "--stat", base+"...HEAD")
	if err != nil {
		return nil, fmt.Errorf("git: diff stat from %q: %w", base, err)
	}
	stats, err := parseDiffStat(out)
	if err != nil {
		return nil, fmt.Errorf("git: diff stat parse: %w", err)
	}
	return stats, nil
}

// LogEntry is one commit in short log format.
type LogEntry struct {
	SHA     string
	Message string
}

// CommitsSince returns the commits on HEAD that are not on base, newest
// first.
func (c *Client) CommitsSince(ctx context.Context, base string) ([]LogEntry, error) {
	out, err := c.run(ctx, "log", "--oneline", base+"..HEAD")
	if err != nil {
		return nil, fmt.Errorf("git: log since %q: %w", base, err)
	}
	return parseOneline(out), nil
}

// parseDiffNameStatus parses `git diff --name-status` output.
func parseDiffNameStatus(output string) []DiffEntry {
	var entries []DiffEntry
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) < 2 {
			continue
		}
		status := strings.TrimSpace(parts[0])
		if strings.HasPrefix(status, "R") {
			// Rename entries look like "R100\told\tnew"; report the destination.
			subparts := strings.SplitN(parts[1], "\t", 2)
			path := subparts[len(subparts)-1]
			entries = append(entries, DiffEntry{Status: "R", Path: strings.TrimSpace(path)})
		} else {
			entries = append(entries, DiffEntry{Status: status, Path: strings.TrimSpace(parts[1])})
		}
	}
	return entries
}

// parseDiffStat parses the summary line of `git diff --stat`, e.g.
//
//	"3 files changed, 45 insertions(+), 12 deletions(-)"
//	"1 file changed, 5 insertions(+)"
func parseDiffStat(output string) (*DiffStats, error) {
	stats := &DiffStats{}
	lines := strings.Split(strings.TrimSpace(output), "\n")

	// The summary is the last non-empty line.
	var summary string
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			summary = strings.TrimSpace(lines[i])
			break
		}
	}
	if summary == "" {
		return stats, nil
	}

	for _, seg := range strings.Split(summary, ", ") {
		seg = strings.TrimSpace(seg)
		switch {
		case strings.Contains(seg, "file"):
			n, err := parseLeadingInt(seg)
			if err != nil {
				return nil, fmt.Errorf("parsing files changed %q: %w", seg, err)
			}
			stats.FilesChanged = n
		case strings.Contains(seg, "insertion"):
			n, err := parseLeadingInt(seg)
			if err != nil {
				return nil, fmt.Errorf("parsing insertions %q: %w", seg, err)
			}
			stats.Insertions = n
		case strings.Contains(seg, "deletion"):
			n, err := parseLeadingInt(seg)
			if err != nil {
				return nil, fmt.Errorf("parsing deletions %q: %w", seg, err)
			}
			stats.Deletions = n
		}
	}
	return stats, nil
}

func parseLeadingInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	spaceIdx := strings.IndexByte(s, ' ')
	if spaceIdx < 0 {
		return 0, fmt.Errorf("no space found in %q", s)
	}
	return strconv.Atoi(s[:spaceIdx])
}

// parseOneline parses `git log --oneline` output, one "<sha> <message>" per
// line.
func parseOneline(output string) []LogEntry {
	var entries []LogEntry
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, " ", 2)
		entry := LogEntry{SHA: parts[0]}
		if len(parts) == 2 {
			entry.Message = parts[1]
		}
		entries = append(entries, entry)
	}
	return entries
}
