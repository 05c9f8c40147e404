package catalog

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// skipDirs are directory names never walked when counting scope, matching
// the directories the scanner itself is told to ignore.
var skipDirs = map[string]bool{
	".git":         true,
	".rover":       true,
	"node_modules": true,
	"dist":         true,
	"vendor":       true,
}

// InScope reports whether relPath (slash-separated, relative to the scan
// target) falls inside the agent's file patterns.
//
// Patterns are evaluated doublestar-style. A leading "!" excludes matches.
// With no positive patterns every path is included by default, so a scope
// of only exclusions means "everything but". Malformed patterns match
// nothing and exclude nothing.
func (s AgentSpec) InScope(relPath string) bool {
	relPath = filepath.ToSlash(relPath)

	hasPositive := false
	included := false
	for _, pattern := range s.FilePatterns {
		if negated := strings.HasPrefix(pattern, "!"); negated {
			if ok, err := doublestar.Match(pattern[1:], relPath); err == nil && ok {
				return false
			}
			continue
		}
		hasPositive = true
		if ok, err := doublestar.Match(pattern, relPath); err == nil && ok {
			included = true
		}
	}
	if !hasPositive {
		return true
	}
	return included
}

// CountScope walks the target tree and returns how many files fall inside
// the agent's scope. Used by dry-run output; unreadable subtrees are
// skipped rather than failing the count.
func (s AgentSpec) CountScope(targetPath string) (int, error) {
	count := 0
	err := filepath.WalkDir(targetPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != targetPath && skipDirs[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(targetPath, path)
		if relErr != nil {
			return nil
		}
		if s.InScope(rel) {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
