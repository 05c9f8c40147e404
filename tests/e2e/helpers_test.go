package e2e_test

import (
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// testProject is an isolated target repository with a freshly built rover
// binary and a fake agent CLI on PATH. The fake routes each call by prompt
// content to a canned reply file, so tests script the scanner, voters,
// reviewers, and fix sessions before invoking the binary.
type testProject struct {
	Dir        string
	BinaryPath string

	binDir       string // holds the fake `claude`, prepended to PATH
	responsesDir string
	callsDir     string // one file per agent invocation, for prompt assertions

	t *testing.T
}

// fakeAgentScript impersonates the agent CLI. It extracts the --prompt
// value, records it, picks a reply file by prompt content, and prints that
// file as the stream-json stdout. Fix-session prompts additionally run an
// optional hook so tests can commit into the worktree like a real agent
// would.
const fakeAgentScript = `#!/usr/bin/env bash
set -eu

dir="$(cd "$(dirname "$0")" && pwd)"
responses="$dir/responses"

prompt=""
prev=""
for arg in "$@"; do
  if [ "$prev" = "--prompt" ]; then
    prompt="$arg"
  fi
  prev="$arg"
done

printf '%s' "$prompt" > "$(mktemp "$dir/calls/call-XXXXXX")"

reply="default"
case "$prompt" in
  *"You are fixing one reported issue"*|*"Reviewers examined your fix"*)
    if [ -x "$responses/fix-hook.sh" ]; then
      "$responses/fix-hook.sh" >/dev/null
    fi
    reply="fix"
    ;;
  *"Previously detected issues"*)        reply="scanner" ;;
  *"independent reviewer"*)              reply="voter" ;;
  *"Convert the code review notes"*)     reply="parse" ;;
  *"disputes the review findings"*)      reply="dismissal" ;;
  *"You are reviewing a committed fix"*) reply="aspect" ;;
esac

cat "$responses/$reply.json"
`

// newTestProject builds the rover binary, installs the fake agent CLI with
// a default all-clean scenario, and returns a testProject rooted in a fresh
// temp directory.
func newTestProject(t *testing.T) *testProject {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("E2E tests with a bash fake agent are not supported on Windows")
	}

	dir := t.TempDir()

	binary := filepath.Join(dir, "rover")
	build := exec.Command("go", "build", "-o", binary, "./cmd/rover")
	build.Dir = projectRoot()
	out, err := build.CombinedOutput()
	require.NoError(t, err, "building rover: %s", string(out))

	tp := &testProject{
		Dir:          dir,
		BinaryPath:   binary,
		binDir:       filepath.Join(dir, "fake-bin"),
		responsesDir: filepath.Join(dir, "fake-bin", "responses"),
		callsDir:     filepath.Join(dir, "fake-bin", "calls"),
		t:            t,
	}
	require.NoError(t, os.MkdirAll(tp.responsesDir, 0o755))
	require.NoError(t, os.MkdirAll(tp.callsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tp.binDir, "claude"), []byte(fakeAgentScript), 0o755))

	tp.seedDefaultScenario()
	return tp
}

// projectRoot returns the absolute path to the root of the rover
// repository. It uses runtime.Caller(0) to find this source file's location
// and navigates two directories up (tests/e2e/ -> tests/ -> repo root).
func projectRoot() string {
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(thisFile), "..", "..")
}

// seedDefaultScenario scripts the happy path: the scanner reports one
// issue, every voter approves it, reviews come back clean, and fix
// sessions commit and finish in one round.
func (tp *testProject) seedDefaultScenario() {
	tp.writeScannerIssues(defaultIssue())
	tp.writeVoterReply(true, "verified against the cited file")
	tp.writeAgentReply("aspect", "No findings.")
	tp.writeAgentReply("parse", `{"isClean": true, "items": []}`)
	tp.writeAgentReply("fix", "Applied the fix and committed.\nCOMMIT_COMPLETE")
	tp.writeAgentReply("dismissal", `{"valid_item_numbers": []}`)
	tp.writeAgentReply("default", "")
}

// defaultIssue is the candidate the default scanner scenario reports. Its
// file exists in repositories created by initGitRepo.
func defaultIssue() map[string]any {
	return map[string]any{
		"id":          "unchecked-rows-close",
		"title":       "rows.Close error ignored in ListUsers",
		"description": "The deferred rows.Close in ListUsers drops its error, so a truncated result set is silently returned as success.",
		"severity":    "high",
		"category":    "error-handling",
		"filePath":    "db/users.go",
		"lineRange":   map[string]any{"start": 4, "end": 6},
		"recommendation": "Capture the error from rows.Close and return it from ListUsers " +
			"when no earlier error is pending.",
		"codeSnippet": "defer rows.Close()",
	}
}

// writeAgentReply installs the reply for one route as a single stream-json
// result event, the same shape the real CLI ends its stream with.
func (tp *testProject) writeAgentReply(route, text string) {
	tp.t.Helper()
	event := map[string]any{
		"type":           "result",
		"subtype":        "success",
		"session_id":     "e2e-session-" + route,
		"result":         text,
		"total_cost_usd": 0.01,
		"num_turns":      1,
	}
	data, err := json.Marshal(event)
	require.NoError(tp.t, err)
	path := filepath.Join(tp.responsesDir, route+".json")
	require.NoError(tp.t, os.WriteFile(path, append(data, '\n'), 0o644))
}

// writeScannerIssues scripts the scanner to report exactly these
// candidates. Call with no arguments for a clean scan.
func (tp *testProject) writeScannerIssues(issues ...map[string]any) {
	tp.t.Helper()
	if issues == nil {
		issues = []map[string]any{}
	}
	payload, err := json.Marshal(map[string]any{"issues": issues})
	require.NoError(tp.t, err)
	tp.writeAgentReply("scanner", string(payload))
}

// writeVoterReply scripts every voter's verdict.
func (tp *testProject) writeVoterReply(approve bool, reasoning string) {
	tp.t.Helper()
	payload, err := json.Marshal(map[string]any{"approve": approve, "reasoning": reasoning})
	require.NoError(tp.t, err)
	tp.writeAgentReply("voter", string(payload))
}

// enableFixCommits installs a fix-session hook that appends to the scanned
// file and commits it inside the worktree, so review rounds see a real
// branch diff.
func (tp *testProject) enableFixCommits() {
	tp.t.Helper()
	hook := `#!/usr/bin/env bash
set -eu
printf '\n// rows.Close error now propagated\n' >> db/users.go
git add db/users.go
git commit -q -m "fix: propagate rows.Close error from ListUsers"
`
	path := filepath.Join(tp.responsesDir, "fix-hook.sh")
	require.NoError(tp.t, os.WriteFile(path, []byte(hook), 0o755))
}

// agentCalls returns the prompt of every fake-agent invocation so far, in
// no particular order.
func (tp *testProject) agentCalls() []string {
	tp.t.Helper()
	entries, err := os.ReadDir(tp.callsDir)
	require.NoError(tp.t, err)
	calls := make([]string, 0, len(entries))
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(tp.callsDir, entry.Name()))
		require.NoError(tp.t, err)
		calls = append(calls, string(data))
	}
	return calls
}

// callsContaining counts agent calls whose prompt includes substr.
func (tp *testProject) callsContaining(substr string) int {
	tp.t.Helper()
	n := 0
	for _, call := range tp.agentCalls() {
		if strings.Contains(call, substr) {
			n++
		}
	}
	return n
}

// writeConfig writes content to rover.toml in tp.Dir.
func (tp *testProject) writeConfig(content string) {
	tp.t.Helper()
	err := os.WriteFile(filepath.Join(tp.Dir, "rover.toml"), []byte(content), 0o644)
	require.NoError(tp.t, err)
}

// run creates an exec.Cmd for rover with the fake agent CLI prepended to
// PATH and a dummy API key so prerequisite checks pass.
func (tp *testProject) run(args ...string) *exec.Cmd {
	cmd := exec.Command(tp.BinaryPath, args...)
	cmd.Dir = tp.Dir
	cmd.Env = append(os.Environ(),
		"PATH="+tp.binDir+string(os.PathListSeparator)+os.Getenv("PATH"),
		"ANTHROPIC_API_KEY=sk-e2e-test",
		"NO_COLOR=1",
	)
	return cmd
}

// runWithEnv is run with extra environment entries appended, for tests
// that need to break the default environment.
func (tp *testProject) runWithEnv(extra []string, args ...string) *exec.Cmd {
	cmd := tp.run(args...)
	cmd.Env = append(cmd.Env, extra...)
	return cmd
}

// runExpectSuccess runs rover and asserts exit code 0.
// Returns combined stdout+stderr output.
func (tp *testProject) runExpectSuccess(args ...string) string {
	tp.t.Helper()
	cmd := tp.run(args...)
	out, err := cmd.CombinedOutput()
	require.NoError(tp.t, err, "rover %v failed:\n%s", args, string(out))
	return string(out)
}

// runExpectFailure runs rover and asserts a non-zero exit code.
// Returns combined output and the exit code.
func (tp *testProject) runExpectFailure(args ...string) (string, int) {
	tp.t.Helper()
	cmd := tp.run(args...)
	out, err := cmd.CombinedOutput()
	require.Error(tp.t, err, "rover %v expected to fail but succeeded:\n%s", args, string(out))
	var exitErr *exec.ExitError
	require.True(tp.t, errors.As(err, &exitErr), "expected *exec.ExitError, got %T: %v", err, err)
	return string(out), exitErr.ExitCode()
}

// initGitRepo initialises a git repository in dir with the sample source
// file the default scanner scenario reports on, plus a .gitignore that
// keeps .rover/ out of the tree.
func initGitRepo(t *testing.T, dir string) {
	t.Helper()
	for _, args := range [][]string{
		{"git", "init"},
		{"git", "config", "user.email", "test@example.com"},
		{"git", "config", "user.name", "Test User"},
	} {
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "%v failed: %s", args, string(out))
	}

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "db"), 0o755))
	source := `package db

func ListUsers() ([]string, error) {
	rows, err := query("SELECT name FROM users")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows), nil
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "db", "users.go"), []byte(source), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(".rover/\nrover\nfake-bin/\n"), 0o644))

	for _, args := range [][]string{
		{"git", "add", ".gitignore", "db"},
		{"git", "commit", "-m", "seed sample source"},
	} {
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "%v failed: %s", args, string(out))
	}
}

// gitOutput runs a git command in dir and returns trimmed stdout.
func gitOutput(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v failed: %s", args, string(out))
	return string(out)
}

// singleVoterConfig is a rover.toml that shrinks the vote pool to one
// voter, so tests that count agent calls stay readable.
const singleVoterConfig = `[scan]
voters = 1
votes_required = 1
concurrency = 1
`
