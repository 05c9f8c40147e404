package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigShowCmd_AllDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	stdout, _, err := execCommand(t, newConfigShowCmd())
	require.NoError(t, err)

	assert.Contains(t, stdout, "Config file: none found (all defaults)")
	assert.Contains(t, stdout, "[scan]")
	assert.Contains(t, stdout, "voters")
	assert.Contains(t, stdout, "3")
	assert.Contains(t, stdout, "(default)")
	assert.NotContains(t, stdout, "(file)")
	assert.Contains(t, stdout, "[llm]")
	assert.Contains(t, stdout, `"claude"`)
}

func TestConfigShowCmd_MarksFileValues(t *testing.T) {
	target := t.TempDir()
	cfgFile := `[scan]
voters = 5
votes_required = 4

[agents.sql]
name = "SQL Reviewer"
system_prompt = "You review SQL."
file_patterns = ["**/*.sql"]
`
	require.NoError(t, os.WriteFile(filepath.Join(target, "rover.toml"), []byte(cfgFile), 0o644))
	chdir(t, target)

	stdout, _, err := execCommand(t, newConfigShowCmd())
	require.NoError(t, err)

	assert.Contains(t, stdout, "Config file: "+filepath.Join(target, "rover.toml"))
	assert.Contains(t, stdout, "5")
	assert.Contains(t, stdout, "(file)")
	// Untouched keys keep their default annotation.
	assert.Contains(t, stdout, "(default)")
	assert.Contains(t, stdout, "[agents.sql]")
	assert.Contains(t, stdout, `"SQL Reviewer"`)
}

func TestConfigValidateCmd_OK(t *testing.T) {
	target := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(target, "rover.toml"), []byte("[scan]\nvoters = 5\nvotes_required = 3\n"), 0o644))
	chdir(t, target)

	stdout, _, err := execCommand(t, newConfigValidateCmd())
	require.NoError(t, err)
	assert.Contains(t, stdout, "Configuration OK.")
}

func TestConfigValidateCmd_ReportsErrors(t *testing.T) {
	target := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(target, "rover.toml"), []byte("[scan]\nvoters = 2\nvotes_required = 3\n"), 0o644))
	chdir(t, target)

	stdout, _, err := execCommand(t, newConfigValidateCmd())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration has 1 error(s)")
	assert.Contains(t, stdout, "Errors:")
	assert.Contains(t, stdout, "[scan.votes_required]")
	assert.Contains(t, stdout, "cannot exceed scan.voters (3 > 2)")
	assert.Contains(t, stdout, "1 error(s), 0 warning(s)")
}

func TestConfigValidateCmd_WarnsOnUnknownKeys(t *testing.T) {
	target := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(target, "rover.toml"), []byte("[scan]\nvoters = 3\nvoterz = 9\n"), 0o644))
	chdir(t, target)

	stdout, _, err := execCommand(t, newConfigValidateCmd())
	require.NoError(t, err)
	assert.Contains(t, stdout, "Warnings:")
	assert.Contains(t, stdout, "[scan.voterz]")
	assert.Contains(t, stdout, "unknown configuration key")
	assert.Contains(t, stdout, "0 error(s), 1 warning(s)")
}

func TestConfigCmd_ShowsHelpWithoutSubcommand(t *testing.T) {
	stdout, _, err := execCommand(t, newConfigCmd())
	require.NoError(t, err)
	assert.Contains(t, stdout, "show")
	assert.Contains(t, stdout, "validate")
}
