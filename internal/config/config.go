// Package config loads, validates, and renders rover.toml. Loading layers an
// optional config file over compiled-in defaults; every knob works with no
// file present.
package config

// Config is the top-level configuration structure mapping to rover.toml.
type Config struct {
	Scan        ScanConfig             `toml:"scan"`
	Fix         FixConfig              `toml:"fix"`
	Consolidate ConsolidateConfig      `toml:"consolidate"`
	LLM         LLMConfig              `toml:"llm"`
	Agents      map[string]AgentConfig `toml:"agents"`
}

// ScanConfig maps to the [scan] section. It tunes the consensus pipeline:
// how many voters see each candidate, how many approvals a candidate needs,
// and how large the issue store may grow before the dedup summary switches
// from the direct listing to an LLM condensation.
type ScanConfig struct {
	Voters                int `toml:"voters"`
	VotesRequired         int `toml:"votes_required"`
	DedupSummaryThreshold int `toml:"dedup_summary_threshold"`
	ScannerMaxTurns       int `toml:"scanner_max_turns"`
	VoterMaxTurns         int `toml:"voter_max_turns"`
	Concurrency           int `toml:"concurrency"`
}

// FixConfig maps to the [fix] section.
type FixConfig struct {
	MaxIterations int `toml:"max_iterations"`
	Concurrency   int `toml:"concurrency"`
	Retries       int `toml:"retries"`
}

// ConsolidateConfig maps to the [consolidate] section.
type ConsolidateConfig struct {
	Concurrency         int     `toml:"concurrency"`
	MaxTurns            int     `toml:"max_turns"`
	SimilarityThreshold float64 `toml:"similarity_threshold"`
}

// LLMConfig maps to the [llm] section and configures the external agent CLI.
type LLMConfig struct {
	// Command is the CLI executable name (e.g., "claude").
	Command string `toml:"command"`

	// Model is the model identifier passed through to the CLI. Empty uses
	// the CLI's own default.
	Model string `toml:"model"`

	// PermissionMode is forwarded as --permission-mode (e.g.,
	// "acceptEdits"). Empty omits the flag.
	PermissionMode string `toml:"permission_mode"`
}

// AgentConfig maps to an [agents.<id>] section and defines a custom scan
// agent that is registered alongside the built-in catalog. The section key
// is the agent id.
type AgentConfig struct {
	Name         string   `toml:"name"`
	Description  string   `toml:"description"`
	SystemPrompt string   `toml:"system_prompt"`
	FilePatterns []string `toml:"file_patterns"`
}
