package e2e_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnknownSubcommandFails(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	out, exitCode := tp.runExpectFailure("nonexistent-command")
	assert.NotEqual(t, 0, exitCode)
	assert.Contains(t, out, "unknown command")
}

func TestScanRequiresAgentSelection(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	out, exitCode := tp.runExpectFailure("scan", ".")
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, out, "no agents selected")
	assert.Empty(t, tp.agentCalls())
}

func TestScanRejectsUnknownAgent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	out, _ := tp.runExpectFailure("scan", ".", "--agent", "nonexistent-agent-999")
	assert.Contains(t, out, `unknown agent "nonexistent-agent-999"`)
	assert.Contains(t, out, "security")
}

func TestScanAllAndAgentAreMutuallyExclusive(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	out, _ := tp.runExpectFailure("scan", ".", "--all", "--agent", "security")
	assert.Contains(t, out, "--all and --agent are mutually exclusive")
}

func TestScanWithoutAPIKeyFails(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	cmd := tp.runWithEnv([]string{"ANTHROPIC_API_KEY="}, "scan", ".", "--all")
	out, err := cmd.CombinedOutput()
	require.Error(t, err, "scan without credentials should fail:\n%s", out)
	assert.Contains(t, string(out), "ANTHROPIC_API_KEY is not set")
	assert.Empty(t, tp.agentCalls())
}

func TestFixOutsideGitRepositoryFails(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	// No initGitRepo: the target is a plain directory.
	tp := newTestProject(t)
	out, exitCode := tp.runExpectFailure("fix", "ISSUE-001")
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, out, "not a git repository")
}

func TestFixUnknownIssueFails(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	initGitRepo(t, tp.Dir)

	out, exitCode := tp.runExpectFailure("fix", "ISSUE-404")
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, out, "issue not found")
	assert.Contains(t, out, "all fixes failed")
}

func TestMalformedConfigFails(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	tp.writeConfig("this is not valid toml ][")

	out, exitCode := tp.runExpectFailure("agents")
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, out, "loading config")
}

func TestConfigValidateRejectsImpossibleVoteThreshold(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	tp.writeConfig("[scan]\nvoters = 3\nvotes_required = 5\n")

	out, exitCode := tp.runExpectFailure("config", "validate")
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, out, "scan.votes_required")
	assert.Contains(t, out, "cannot exceed scan.voters")
	assert.Contains(t, out, "configuration has 1 error(s)")
}

func TestIssuesViewUnknownTicketFails(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	out, exitCode := tp.runExpectFailure("issues", "view", "ISSUE-404")
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, out, "issue not found")
}
