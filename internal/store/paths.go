// Package store persists everything rover knows about a target repository
// under its .rover/ directory: the issue database, markdown tickets split
// by severity, batch-run and fix state, per-issue traces, execution plans,
// and the user-maintained memory file.
//
// All JSON documents are written atomically (temp file + rename) and every
// read-modify-write cycle runs under a process-local per-file lock, so
// concurrent pipeline workers can share the same files safely.
package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirName is the rover state directory created inside the target repo.
const DirName = ".rover"

// Root returns the .rover directory for a target.
func Root(targetPath string) string {
	return filepath.Join(targetPath, DirName)
}

// IssuesPath returns the issue database path.
func IssuesPath(targetPath string) string {
	return filepath.Join(Root(targetPath), "issues.json")
}

// TicketsDir returns the root tickets directory.
func TicketsDir(targetPath string) string {
	return filepath.Join(Root(targetPath), "tickets")
}

// SeverityDir returns the ticket folder for one severity.
func SeverityDir(targetPath string, sev Severity) string {
	return filepath.Join(TicketsDir(targetPath), string(sev))
}

// BatchStatePath returns the batch-run state path.
func BatchStatePath(targetPath string) string {
	return filepath.Join(Root(targetPath), "batch-run-state.json")
}

// FixStatePath returns the fix state path.
func FixStatePath(targetPath string) string {
	return filepath.Join(Root(targetPath), "fix-state.json")
}

// TracesDir returns the per-issue trace directory.
func TracesDir(targetPath string) string {
	return filepath.Join(Root(targetPath), "traces")
}

// TracePath returns the trace file for one issue.
func TracePath(targetPath, issueID string) string {
	return filepath.Join(TracesDir(targetPath), issueID+".json")
}

// PlansDir returns the execution-plan directory.
func PlansDir(targetPath string) string {
	return filepath.Join(Root(targetPath), "plans")
}

// MemoryPath returns the user-maintained memory file.
func MemoryPath(targetPath string) string {
	return filepath.Join(Root(targetPath), "memory.md")
}

// WorktreePath returns where the fix worktree for a branch lives. Branch
// names contain slashes (fix/ISSUE-007), so this nests directories under
// .rover; git creates the intermediate path on worktree add.
func WorktreePath(targetPath, branchName string) string {
	return filepath.Join(Root(targetPath), filepath.FromSlash(branchName))
}

// EnsureLayout creates the .rover directory tree. Called by `rover init`
// and lazily by writers; existing directories are left untouched.
func EnsureLayout(targetPath string) error {
	dirs := []string{
		Root(targetPath),
		TicketsDir(targetPath),
		TracesDir(targetPath),
		PlansDir(targetPath),
	}
	for _, sev := range Severities() {
		dirs = append(dirs, SeverityDir(targetPath, sev))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %q: %w", dir, err)
		}
	}
	return nil
}
