package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentsCmd_ListsBuiltins(t *testing.T) {
	target := t.TempDir()

	stdout, _, err := execCommand(t, newAgentsCmd(), target)
	require.NoError(t, err)

	assert.Contains(t, stdout, "7 agent(s)")
	for _, id := range []string{
		"security", "performance", "concurrency", "error-handling",
		"maintainability", "testing", "dependencies",
	} {
		assert.Contains(t, stdout, id)
	}
	assert.Contains(t, stdout, "(builtin)")
	assert.NotContains(t, stdout, "(custom)")
}

func TestAgentsCmd_IncludesCustomAgents(t *testing.T) {
	target := t.TempDir()
	cfgFile := `[agents.sql]
name = "SQL Reviewer"
description = "Finds unsafe query construction."
system_prompt = "You review SQL usage."
file_patterns = ["**/*.sql", "**/queries/**"]
`
	require.NoError(t, os.WriteFile(filepath.Join(target, "rover.toml"), []byte(cfgFile), 0o644))

	stdout, _, err := execCommand(t, newAgentsCmd(), target)
	require.NoError(t, err)

	assert.Contains(t, stdout, "8 agent(s)")
	assert.Contains(t, stdout, "sql")
	assert.Contains(t, stdout, "SQL Reviewer")
	assert.Contains(t, stdout, "(custom)")
	assert.Contains(t, stdout, "**/*.sql, **/queries/**")
}

func TestAgentsCmd_ShowsScanScope(t *testing.T) {
	target := t.TempDir()

	stdout, _, err := execCommand(t, newAgentsCmd(), target)
	require.NoError(t, err)

	// Most builtins scan everything; dependencies narrows to manifests.
	assert.Contains(t, stdout, "scope: entire tree")
	assert.Contains(t, stdout, "**/go.mod")
}
