package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

// ValidationSeverity indicates whether a validation issue is an error or warning.
type ValidationSeverity string

const (
	// SeverityError indicates a fatal validation issue; the configuration is unusable.
	SeverityError ValidationSeverity = "error"
	// SeverityWarning indicates an informational validation issue; the
	// configuration works but may have problems.
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue represents a single validation finding.
type ValidationIssue struct {
	Severity ValidationSeverity
	Field    string // dotted path, e.g., "scan.voters"
	Message  string
}

// ValidationResult holds all validation findings.
type ValidationResult struct {
	Issues []ValidationIssue
}

// HasErrors returns true if any issue has error severity.
func (vr *ValidationResult) HasErrors() bool {
	for _, issue := range vr.Issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns only error-severity issues.
func (vr *ValidationResult) Errors() []ValidationIssue {
	var errs []ValidationIssue
	for _, issue := range vr.Issues {
		if issue.Severity == SeverityError {
			errs = append(errs, issue)
		}
	}
	return errs
}

// Warnings returns only warning-severity issues.
func (vr *ValidationResult) Warnings() []ValidationIssue {
	var warns []ValidationIssue
	for _, issue := range vr.Issues {
		if issue.Severity == SeverityWarning {
			warns = append(warns, issue)
		}
	}
	return warns
}

// agentIDRe validates custom agent ids: alphanumeric and hyphens, starting
// alphanumeric.
var agentIDRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]*$`)

// Validate checks the configuration for correctness and completeness.
// meta may be nil when no file was loaded; unknown-key detection is skipped
// in that case. Check HasErrors() to determine if the config is usable.
func Validate(cfg *Config, meta *toml.MetaData) *ValidationResult {
	vr := &ValidationResult{}

	if cfg == nil {
		addError(vr, "", "configuration is nil")
		return vr
	}

	validateScan(vr, &cfg.Scan)
	validateFix(vr, &cfg.Fix)
	validateConsolidate(vr, &cfg.Consolidate)
	validateLLM(vr, &cfg.LLM)
	validateAgents(vr, cfg.Agents)
	validateUnknownKeys(vr, meta)

	return vr
}

func validateScan(vr *ValidationResult, s *ScanConfig) {
	if s.Voters < 1 {
		addError(vr, "scan.voters", "must be at least 1")
	}
	if s.VotesRequired < 1 {
		addError(vr, "scan.votes_required", "must be at least 1")
	}
	if s.VotesRequired > s.Voters {
		addError(vr, "scan.votes_required",
			fmt.Sprintf("cannot exceed scan.voters (%d > %d)", s.VotesRequired, s.Voters))
	}
	if s.DedupSummaryThreshold < 0 {
		addError(vr, "scan.dedup_summary_threshold", "must not be negative")
	}
	if s.ScannerMaxTurns < 1 {
		addError(vr, "scan.scanner_max_turns", "must be at least 1")
	}
	if s.VoterMaxTurns < 1 {
		addError(vr, "scan.voter_max_turns", "must be at least 1")
	}
	if s.Concurrency < 1 {
		addError(vr, "scan.concurrency", "must be at least 1")
	}
}

func validateFix(vr *ValidationResult, f *FixConfig) {
	if f.MaxIterations < 1 {
		addError(vr, "fix.max_iterations", "must be at least 1")
	}
	if f.Concurrency < 1 {
		addError(vr, "fix.concurrency", "must be at least 1")
	}
	if f.Retries < 0 {
		addError(vr, "fix.retries", "must not be negative")
	}
}

func validateConsolidate(vr *ValidationResult, c *ConsolidateConfig) {
	if c.Concurrency < 1 {
		addError(vr, "consolidate.concurrency", "must be at least 1")
	}
	if c.MaxTurns < 1 {
		addError(vr, "consolidate.max_turns", "must be at least 1")
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		addError(vr, "consolidate.similarity_threshold",
			fmt.Sprintf("must be in (0, 1], got %v", c.SimilarityThreshold))
	}
}

func validateLLM(vr *ValidationResult, l *LLMConfig) {
	if l.Command == "" {
		addError(vr, "llm.command", "must not be empty")
	}
}

func validateAgents(vr *ValidationResult, agents map[string]AgentConfig) {
	for id, agent := range agents {
		prefix := "agents." + id

		if !agentIDRe.MatchString(id) {
			addError(vr, prefix, "agent id must be alphanumeric with hyphens")
		}
		if agent.SystemPrompt == "" {
			addError(vr, prefix+".system_prompt", "must not be empty")
		}
		if len(agent.FilePatterns) == 0 {
			addWarning(vr, prefix+".file_patterns",
				"no file patterns; the agent will scan the whole tree")
		}
		for i, pat := range agent.FilePatterns {
			if strings.TrimSpace(pat) == "" {
				addError(vr, fmt.Sprintf("%s.file_patterns[%d]", prefix, i),
					"must not be an empty string")
			}
		}
	}
}

// validateUnknownKeys checks for TOML keys that did not map to any config
// struct field.
func validateUnknownKeys(vr *ValidationResult, meta *toml.MetaData) {
	if meta == nil {
		return
	}

	for _, key := range meta.Undecoded() {
		path := strings.Join(key, ".")
		addWarning(vr, path, "unknown configuration key")
	}
}

func addError(vr *ValidationResult, field, message string) {
	vr.Issues = append(vr.Issues, ValidationIssue{
		Severity: SeverityError,
		Field:    field,
		Message:  message,
	})
}

func addWarning(vr *ValidationResult, field, message string) {
	vr.Issues = append(vr.Issues, ValidationIssue{
		Severity: SeverityWarning,
		Field:    field,
		Message:  message,
	})
}
