package git

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newDivergedRepo creates a repo where a fix branch has two commits on top
// of main: one modifying README.md and one adding handler.go.
func newDivergedRepo(t *testing.T) *Client {
	t.Helper()
	c := newTestRepo(t)
	mustRun(t, c.WorkDir, "git", "checkout", "-b", "fix/ISSUE-001")
	commitFile(t, c.WorkDir, "README.md", "# Test\n\nMore docs.\n", "fix(ISSUE-001): expand docs")
	commitFile(t, c.WorkDir, "handler.go", "package main\n", "fix(ISSUE-001): add handler")
	return c
}

func TestDiffUnified(t *testing.T) {
	c := newDivergedRepo(t)
	diff, err := c.DiffUnified(context.Background(), "main")
	require.NoError(t, err)
	assert.Contains(t, diff, "README.md")
	assert.Contains(t, diff, "handler.go")
	assert.Contains(t, diff, "+More docs.")
}

func TestDiffFiles(t *testing.T) {
	c := newDivergedRepo(t)
	entries, err := c.DiffFiles(context.Background(), "main")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byPath := map[string]string{}
	for _, e := range entries {
		byPath[e.Path] = e.Status
	}
	assert.Equal(t, "M", byPath["README.md"])
	assert.Equal(t, "A", byPath["handler.go"])
}

func TestDiffStat(t *testing.T) {
	c := newDivergedRepo(t)
	stats, err := c.DiffStat(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesChanged)
	assert.Greater(t, stats.Insertions, 0)
}

func TestDiffStat_NoChanges(t *testing.T) {
	c := newTestRepo(t)
	stats, err := c.DiffStat(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.FilesChanged)
	assert.Equal(t, 0, stats.Insertions)
	assert.Equal(t, 0, stats.Deletions)
}

func TestCommitsSince(t *testing.T) {
	c := newDivergedRepo(t)
	entries, err := c.CommitsSince(context.Background(), "main")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	assert.Contains(t, entries[0].Message, "add handler")
	assert.Contains(t, entries[1].Message, "expand docs")
	assert.NotEmpty(t, entries[0].SHA)
}

func TestCommitsSince_NoCommits(t *testing.T) {
	c := newTestRepo(t)
	entries, err := c.CommitsSince(context.Background(), "main")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// ---------------------------------------------------------------------------
// Pure parser tests
// ---------------------------------------------------------------------------

func TestParseDiffNameStatus(t *testing.T) {
	t.Parallel()

	output := "M\tinternal/api/server.go\nA\tinternal/api/routes.go\nD\told.go\nR100\tpkg/a.go\tpkg/b.go\n"
	entries := parseDiffNameStatus(output)
	require.Len(t, entries, 4)

	assert.Equal(t, DiffEntry{Status: "M", Path: "internal/api/server.go"}, entries[0])
	assert.Equal(t, DiffEntry{Status: "A", Path: "internal/api/routes.go"}, entries[1])
	assert.Equal(t, DiffEntry{Status: "D", Path: "old.go"}, entries[2])
	// Renames report the destination path.
	assert.Equal(t, DiffEntry{Status: "R", Path: "pkg/b.go"}, entries[3])
}

func TestParseDiffStat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		output string
		want   DiffStats
	}{
		{
			name:   "full summary",
			output: " a.go | 10 ++++\n b.go | 5 --\n 3 files changed, 45 insertions(+), 12 deletions(-)\n",
			want:   DiffStats{FilesChanged: 3, Insertions: 45, Deletions: 12},
		},
		{
			name:   "insertions only",
			output: " 1 file changed, 5 insertions(+)\n",
			want:   DiffStats{FilesChanged: 1, Insertions: 5},
		},
		{
			name:   "deletions only",
			output: " 1 file changed, 3 deletions(-)\n",
			want:   DiffStats{FilesChanged: 1, Deletions: 3},
		},
		{
			name:   "empty output",
			output: "",
			want:   DiffStats{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseDiffStat(tt.output)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestParseOneline(t *testing.T) {
	t.Parallel()

	output := "abc1234 fix(ISSUE-001): handle nil pointer\ndef5678 fix(ISSUE-001): add regression test\n"
	entries := parseOneline(output)
	require.Len(t, entries, 2)
	assert.Equal(t, "abc1234", entries[0].SHA)
	assert.Equal(t, "fix(ISSUE-001): handle nil pointer", entries[0].Message)
	assert.Equal(t, "def5678", entries[1].SHA)
}
