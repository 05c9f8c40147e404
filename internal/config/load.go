package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ConfigFileName is the name of the Rover configuration file.
const ConfigFileName = "rover.toml"

// FindConfigFile walks up from the given directory to find rover.toml.
// Returns the absolute path to the config file, or an empty string if not
// found. Stops at the filesystem root.
func FindConfigFile(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root.
			return "", nil
		}
		dir = parent
	}
}

// LoadFromFile parses the TOML file at the given path and returns the
// configuration and TOML metadata. The metadata can be used to detect
// unknown keys via MetaData.Undecoded().
func LoadFromFile(path string) (*Config, toml.MetaData, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, md, fmt.Errorf("loading config %s: %w", path, err)
	}
	return &cfg, md, nil
}

// Load resolves the effective configuration for a target directory: defaults
// first, then whatever rover.toml (found by walking up from startDir)
// overrides. The returned path is empty when no file was found; the metadata
// pointer is nil in that case.
func Load(startDir string) (*Config, string, *toml.MetaData, error) {
	cfg := NewDefaults()

	path, err := FindConfigFile(startDir)
	if err != nil {
		return nil, "", nil, err
	}
	if path == "" {
		return cfg, "", nil, nil
	}

	fileCfg, md, err := LoadFromFile(path)
	if err != nil {
		return nil, path, nil, err
	}
	applyFile(cfg, fileCfg, md)
	return cfg, path, &md, nil
}

// applyFile copies values from the parsed file over the defaults. Only keys
// actually present in the TOML are applied, so a partial rover.toml keeps
// the remaining defaults intact.
func applyFile(dst, src *Config, md toml.MetaData) {
	if md.IsDefined("scan", "voters") {
		dst.Scan.Voters = src.Scan.Voters
	}
	if md.IsDefined("scan", "votes_required") {
		dst.Scan.VotesRequired = src.Scan.VotesRequired
	}
	if md.IsDefined("scan", "dedup_summary_threshold") {
		dst.Scan.DedupSummaryThreshold = src.Scan.DedupSummaryThreshold
	}
	if md.IsDefined("scan", "scanner_max_turns") {
		dst.Scan.ScannerMaxTurns = src.Scan.ScannerMaxTurns
	}
	if md.IsDefined("scan", "voter_max_turns") {
		dst.Scan.VoterMaxTurns = src.Scan.VoterMaxTurns
	}
	if md.IsDefined("scan", "concurrency") {
		dst.Scan.Concurrency = src.Scan.Concurrency
	}

	if md.IsDefined("fix", "max_iterations") {
		dst.Fix.MaxIterations = src.Fix.MaxIterations
	}
	if md.IsDefined("fix", "concurrency") {
		dst.Fix.Concurrency = src.Fix.Concurrency
	}
	if md.IsDefined("fix", "retries") {
		dst.Fix.Retries = src.Fix.Retries
	}

	if md.IsDefined("consolidate", "concurrency") {
		dst.Consolidate.Concurrency = src.Consolidate.Concurrency
	}
	if md.IsDefined("consolidate", "max_turns") {
		dst.Consolidate.MaxTurns = src.Consolidate.MaxTurns
	}
	if md.IsDefined("consolidate", "similarity_threshold") {
		dst.Consolidate.SimilarityThreshold = src.Consolidate.SimilarityThreshold
	}

	if md.IsDefined("llm", "command") {
		dst.LLM.Command = src.LLM.Command
	}
	if md.IsDefined("llm", "model") {
		dst.LLM.Model = src.LLM.Model
	}
	if md.IsDefined("llm", "permission_mode") {
		dst.LLM.PermissionMode = src.LLM.PermissionMode
	}

	for id, agent := range src.Agents {
		dst.Agents[id] = agent
	}
}
