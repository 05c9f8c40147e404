// Package git wraps the git CLI for the operations the fix and review flows
// need: branch inspection, worktree management, diffs, and pushes. All
// methods shell out to the git binary, following the same pattern as gh,
// lazygit, and k9s.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Client runs git commands against one repository (or one worktree).
type Client struct {
	// WorkDir is the working directory for git commands.
	// If empty, commands run in the current directory.
	WorkDir string

	// GitBin is the path to the git binary. Defaults to "git".
	GitBin string
}

// NewClient creates a Client for the given directory and verifies that the
// directory is inside a git repository.
func NewClient(workDir string) (*Client, error) {
	c := &Client{WorkDir: workDir, GitBin: "git"}
	if _, err := c.run(context.Background(), "rev-parse", "--git-dir"); err != nil {
		return nil, fmt.Errorf("git: %s is not a git repository (or git is not installed): %w", workDir, err)
	}
	return c, nil
}

// At returns a Client sharing this client's binary but rooted at dir. Used
// to run commands inside a worktree.
func (c *Client) At(dir string) *Client {
	return &Client{WorkDir: dir, GitBin: c.GitBin}
}

// CurrentBranch returns the name of the checked-out branch. It returns an
// error in a detached HEAD state.
func (c *Client) CurrentBranch(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git: current branch: %w", err)
	}
	branch := strings.TrimSpace(out)
	if branch == "HEAD" {
		return "", fmt.Errorf("git: current branch: detached HEAD state")
	}
	return branch, nil
}

// BranchExists reports whether the named local branch exists.
func (c *Client) BranchExists(ctx context.Context, branch string) (bool, error) {
	exitCode, stdout, _, err := c.runSilent(ctx, "rev-parse", "--verify", "refs/heads/"+branch)
	if err != nil && exitCode == -1 {
		// exec itself failed (e.g. git binary not found).
		return false, fmt.Errorf("git: branch exists %q: %w", branch, err)
	}
	return exitCode == 0 && strings.TrimSpace(stdout) != "", nil
}

// HeadCommit returns the short SHA of the current HEAD commit.
func (c *Client) HeadCommit(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git: head commit: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// HasUncommittedChanges reports whether the working tree has uncommitted or
// untracked changes.
func (c *Client) HasUncommittedChanges(ctx context.Context) (bool, error) {
	out, err := c.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("git: status: %w", err)
	}
	return strings.TrimSpace(out) != "", nil
}

// RemoteURL returns the URL of the named remote, or an error when the remote
// is not configured.
func (c *Client) RemoteURL(ctx context.Context, remote string) (string, error) {
	out, err := c.run(ctx, "remote", "get-url", remote)
	if err != nil {
		return "", fmt.Errorf("git: remote %q not configured: %w", remote, err)
	}
	return strings.TrimSpace(out), nil
}

// Push pushes the current branch to the named remote. When setUpstream is
// true the upstream tracking reference is set (-u).
func (c *Client) Push(ctx context.Context, remote string, setUpstream bool) error {
	branch, err := c.CurrentBranch(ctx)
	if err != nil {
		return fmt.Errorf("git: push: %w", err)
	}
	args := []string{"push"}
	if setUpstream {
		args = append(args, "-u")
	}
	args = append(args, remote, branch)
	if _, err := c.run(ctx, args...); err != nil {
		return fmt.Errorf("git: push %s %s: %w", remote, branch, err)
	}
	return nil
}

// run executes a git command and returns stdout. stderr is included in the
// error message when the command fails.
func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	_, stdout, stderr, err := c.runSilent(ctx, args...)
	if err != nil {
		return "", err
	}
	if stdout == "" && stderr != "" {
		// Some git commands (e.g. worktree add) report on stderr on success.
		return stderr, nil
	}
	return stdout, nil
}

// runSilent executes a git command and returns the exit code, stdout, stderr,
// and an error. The error is non-nil for both exec failures (exitCode=-1,
// e.g. git binary not found) and non-zero git exits (exitCode>0). Callers
// that need to distinguish the two check whether exitCode == -1.
func (c *Client) runSilent(ctx context.Context, args ...string) (int, string, string, error) {
	bin := c.GitBin
	if bin == "" {
		bin = "git"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = c.WorkDir

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	runErr := cmd.Run()

	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode := exitErr.ExitCode()
			stderr := strings.TrimSpace(stderrBuf.String())
			stdout := strings.TrimSpace(stdoutBuf.String())
			return exitCode, stdout, stderr, fmt.Errorf("exit status %d: %s", exitCode, stderr)
		}
		// The process could not be started at all.
		return -1, "", "", runErr
	}

	return 0, stdoutBuf.String(), stderrBuf.String(), nil
}
