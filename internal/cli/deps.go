package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/roverhq/rover/internal/catalog"
	"github.com/roverhq/rover/internal/config"
	"github.com/roverhq/rover/internal/llm"
	"github.com/roverhq/rover/internal/logging"
)

// resolveTarget turns an optional positional path argument into an absolute
// directory path, defaulting to the current directory.
func resolveTarget(args []string) (string, error) {
	target := "."
	if len(args) > 0 && args[0] != "" {
		target = args[0]
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolving target path %q: %w", target, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("target path %q: %w", target, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("target path %q is not a directory", target)
	}
	return abs, nil
}

// loadConfig resolves configuration for a target directory: defaults
// overlaid with the nearest rover.toml found walking up from the target.
func loadConfig(targetDir string) (*config.Config, error) {
	cfg, source, _, err := config.Load(targetDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if source != "" {
		logging.New("config").Debug("loaded config file", "path", source)
	}
	return cfg, nil
}

// buildRegistry assembles the agent catalog: built-in personas plus any
// [agents.<id>] sections from rover.toml.
func buildRegistry(cfg *config.Config) (*catalog.Registry, error) {
	registry, err := catalog.Load(cfg.Agents)
	if err != nil {
		return nil, fmt.Errorf("loading agent catalog: %w", err)
	}
	return registry, nil
}

// newRunner builds the LLM process driver and verifies its prerequisites
// (CLI binary on PATH, API key in the environment).
func newRunner(cfg *config.Config) (llm.Runner, error) {
	runner := llm.NewClient(cfg.LLM, logging.New("llm"))
	if err := runner.CheckPrerequisites(); err != nil {
		return nil, err
	}
	return runner, nil
}
