package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/roverhq/rover/internal/logging"
)

const (
	// maxTraceOutputBytes caps one entry's captured output. Fix sessions
	// can stream megabytes; the trace keeps the head and tail.
	maxTraceOutputBytes = 64 * 1024

	traceTruncationLines = 100
)

// FixTrace is the append-only audit log for one issue's fix run.
type FixTrace struct {
	IssueID string       `json:"issueId"`
	Entries []TraceEntry `json:"entries"`
}

// TraceEntry records one LLM interaction inside the fix loop.
type TraceEntry struct {
	Iteration int               `json:"iteration"`
	Stage     string            `json:"stage"`
	SessionID string            `json:"sessionId,omitempty"`
	ExitCode  int               `json:"exitCode"`
	Markers   []string          `json:"markers,omitempty"`
	Output    string            `json:"output,omitempty"`
	Aspects   map[string]string `json:"aspects,omitempty"`
	Error     string            `json:"error,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// TraceWriter appends trace entries under .rover/traces/.
type TraceWriter struct {
	targetPath string
	logger     *log.Logger
}

// NewTraceWriter returns a writer for targetPath's trace directory.
func NewTraceWriter(targetPath string, logger *log.Logger) *TraceWriter {
	if logger == nil {
		logger = logging.Nop()
	}
	return &TraceWriter{targetPath: targetPath, logger: logger}
}

// Append adds an entry to the issue's trace file, creating it on first
// use. Output is truncated to keep traces reviewable; an unreadable
// existing trace is replaced rather than blocking the fix run.
func (w *TraceWriter) Append(issueID string, entry TraceEntry) error {
	if issueID == "" {
		return fmt.Errorf("appending trace: issue id must not be empty")
	}
	path := TracePath(w.targetPath, issueID)

	unlock := lockFile(path)
	defer unlock()

	trace := &FixTrace{IssueID: issueID}
	if _, err := readJSON(path, trace); err != nil {
		if !errors.Is(err, errCorrupt) {
			return err
		}
		w.logger.Warn("trace file corrupt, replacing", "path", path, "error", err)
		trace = &FixTrace{IssueID: issueID}
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.Output = truncateTraceOutput(entry.Output)
	for aspect, out := range entry.Aspects {
		entry.Aspects[aspect] = truncateTraceOutput(out)
	}

	trace.IssueID = issueID
	trace.Entries = append(trace.Entries, entry)
	return writeJSONAtomic(path, trace)
}

// Read returns the trace for an issue; an empty trace when none exists.
func (w *TraceWriter) Read(issueID string) (*FixTrace, error) {
	path := TracePath(w.targetPath, issueID)

	unlock := lockFile(path)
	defer unlock()

	trace := &FixTrace{IssueID: issueID}
	if _, err := readJSON(path, trace); err != nil && !errors.Is(err, errCorrupt) {
		return nil, err
	}
	return trace, nil
}

// truncateTraceOutput keeps output within maxTraceOutputBytes, preserving
// the first and last traceTruncationLines lines around a notice.
func truncateTraceOutput(output string) string {
	if len(output) <= maxTraceOutputBytes {
		return output
	}

	lines := strings.Split(output, "\n")
	if len(lines) <= traceTruncationLines*2 {
		const notice = "\n... (output truncated)"
		cutoff := maxTraceOutputBytes - len(notice)
		if cutoff < 0 {
			cutoff = 0
		}
		return output[:cutoff] + notice
	}

	head := strings.Join(lines[:traceTruncationLines], "\n")
	tail := strings.Join(lines[len(lines)-traceTruncationLines:], "\n")
	omitted := len(lines) - traceTruncationLines*2
	return fmt.Sprintf("%s\n... (%d lines truncated)\n%s", head, omitted, tail)
}
