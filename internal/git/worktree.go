package git

import (
	"context"
	"fmt"
	"strings"
)

// Worktree is one entry from `git worktree list`.
type Worktree struct {
	// Path is the absolute directory of the worktree.
	Path string
	// Branch is the checked-out branch name, empty for a detached worktree.
	Branch string
	// Head is the commit SHA checked out in the worktree.
	Head string
}

// WorktreeAdd creates a worktree at path on a new branch created from base.
// The branch must not already exist.
func (c *Client) WorktreeAdd(ctx context.Context, path, branch, base string) error {
	args := []string{"worktree", "add", "-b", branch, path}
	if base != "" {
		args = append(args, base)
	}
	if _, err := c.run(ctx, args...); err != nil {
		return fmt.Errorf("git: worktree add %q on branch %q: %w", path, branch, err)
	}
	return nil
}

// WorktreeRemove removes the worktree at path. force discards uncommitted
// changes; removal of a dirty worktree fails without it.
func (c *Client) WorktreeRemove(ctx context.Context, path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	if _, err := c.run(ctx, args...); err != nil {
		return fmt.Errorf("git: worktree remove %q: %w", path, err)
	}
	return nil
}

// WorktreePrune removes stale worktree administrative files, e.g. after a
// worktree directory was deleted manually.
func (c *Client) WorktreePrune(ctx context.Context) error {
	if _, err := c.run(ctx, "worktree", "prune"); err != nil {
		return fmt.Errorf("git: worktree prune: %w", err)
	}
	return nil
}

// WorktreeList returns all worktrees of the repository, including the main
// one (always first).
func (c *Client) WorktreeList(ctx context.Context) ([]Worktree, error) {
	out, err := c.run(ctx, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("git: worktree list: %w", err)
	}
	return parseWorktreeList(out), nil
}

// parseWorktreeList parses `git worktree list --porcelain` output. Entries
// are separated by blank lines:
//
//	worktree /path/to/repo
//	HEAD abc123...
//	branch refs/heads/main
func parseWorktreeList(output string) []Worktree {
	var (
		worktrees []Worktree
		current   Worktree
		started   bool
	)
	flush := func() {
		if started {
			worktrees = append(worktrees, current)
			current = Worktree{}
			started = false
		}
	}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "worktree "):
			flush()
			current.Path = strings.TrimPrefix(line, "worktree ")
			started = true
		case strings.HasPrefix(line, "HEAD "):
			current.Head = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			current.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		}
	}
	flush()
	return worktrees
}
