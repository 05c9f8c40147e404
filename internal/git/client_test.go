package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRepo initialises a temporary git repository with one commit on main
// and returns a Client pointing at it.
func newTestRepo(t *testing.T) *Client {
	t.Helper()
	dir := t.TempDir()

	mustRun(t, dir, "git", "init", "-b", "main")
	mustRun(t, dir, "git", "config", "user.email", "test@example.com")
	mustRun(t, dir, "git", "config", "user.name", "Test")

	writeFile(t, dir, "README.md", "# Test\n")
	mustRun(t, dir, "git", "add", ".")
	mustRun(t, dir, "git", "commit", "-m", "Initial commit")

	c, err := NewClient(dir)
	require.NoError(t, err)
	return c
}

func mustRun(t *testing.T, dir, name string, args ...string) {
	t.Helper()
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "command failed: %s %v\n%s", name, args, out)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func commitFile(t *testing.T, dir, name, content, message string) {
	t.Helper()
	writeFile(t, dir, name, content)
	mustRun(t, dir, "git", "add", ".")
	mustRun(t, dir, "git", "commit", "-m", message)
}

// ---------------------------------------------------------------------------
// NewClient
// ---------------------------------------------------------------------------

func TestNewClient_ValidRepo(t *testing.T) {
	c := newTestRepo(t)
	assert.NotNil(t, c)
}

func TestNewClient_NotARepo(t *testing.T) {
	_, err := NewClient(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a git repository")
}

func TestClient_At(t *testing.T) {
	c := newTestRepo(t)
	other := c.At("/elsewhere")
	assert.Equal(t, "/elsewhere", other.WorkDir)
	assert.Equal(t, c.GitBin, other.GitBin)
	// Original is untouched.
	assert.NotEqual(t, "/elsewhere", c.WorkDir)
}

// ---------------------------------------------------------------------------
// Branch operations
// ---------------------------------------------------------------------------

func TestCurrentBranch(t *testing.T) {
	c := newTestRepo(t)
	branch, err := c.CurrentBranch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "main", branch)
}

func TestCurrentBranch_DetachedHead(t *testing.T) {
	c := newTestRepo(t)
	ctx := context.Background()

	head, err := c.HeadCommit(ctx)
	require.NoError(t, err)
	mustRun(t, c.WorkDir, "git", "checkout", "--detach", head)

	_, err = c.CurrentBranch(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detached HEAD")
}

func TestBranchExists(t *testing.T) {
	c := newTestRepo(t)
	ctx := context.Background()

	exists, err := c.BranchExists(ctx, "main")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = c.BranchExists(ctx, "fix/ISSUE-001")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestHeadCommit(t *testing.T) {
	c := newTestRepo(t)
	sha, err := c.HeadCommit(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, sha)
	assert.LessOrEqual(t, len(sha), 12)
}

func TestHasUncommittedChanges(t *testing.T) {
	c := newTestRepo(t)
	ctx := context.Background()

	dirty, err := c.HasUncommittedChanges(ctx)
	require.NoError(t, err)
	assert.False(t, dirty)

	writeFile(t, c.WorkDir, "new.txt", "hello\n")
	dirty, err = c.HasUncommittedChanges(ctx)
	require.NoError(t, err)
	assert.True(t, dirty)
}

func TestRemoteURL_NotConfigured(t *testing.T) {
	c := newTestRepo(t)
	_, err := c.RemoteURL(context.Background(), "origin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "origin")
}

func TestRemoteURL_Configured(t *testing.T) {
	c := newTestRepo(t)
	mustRun(t, c.WorkDir, "git", "remote", "add", "origin", "https://github.com/acme/demo.git")

	url, err := c.RemoteURL(context.Background(), "origin")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/demo.git", url)
}

// ---------------------------------------------------------------------------
// Push (against a local bare remote)
// ---------------------------------------------------------------------------

func TestPush_ToLocalBareRemote(t *testing.T) {
	c := newTestRepo(t)
	ctx := context.Background()

	bare := t.TempDir()
	mustRun(t, bare, "git", "init", "--bare")
	mustRun(t, c.WorkDir, "git", "remote", "add", "origin", bare)

	require.NoError(t, c.Push(ctx, "origin", true))

	// The bare remote now has main.
	cmd := exec.Command("git", "branch", "--list", "main")
	cmd.Dir = bare
	out, err := cmd.CombinedOutput()
	require.NoError(t, err)
	assert.Contains(t, string(out), "main")
}

func TestPush_NoRemote(t *testing.T) {
	c := newTestRepo(t)
	err := c.Push(context.Background(), "origin", false)
	require.Error(t, err)
}
