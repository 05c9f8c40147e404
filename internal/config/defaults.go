package config

// Pipeline defaults. The voter count and approval threshold drive the
// consensus rule "approved iff at least VotesRequired of Voters approve";
// the dedup threshold is the store size at which the scanner's dedup summary
// switches from a direct listing to an LLM condensation.
const (
	DefaultVoters                = 3
	DefaultVotesRequired         = 2
	DefaultDedupSummaryThreshold = 5
	DefaultScannerMaxTurns       = 50
	DefaultVoterMaxTurns         = 10
	DefaultScanConcurrency       = 2

	DefaultFixMaxIterations = 10
	DefaultFixConcurrency   = 2
	DefaultFixRetries       = 2

	DefaultConsolidateConcurrency = 2
	DefaultConsolidateMaxTurns    = 20
	DefaultSimilarityThreshold    = 0.40

	DefaultLLMCommand = "claude"
)

// NewDefaults returns a Config populated with all default values.
func NewDefaults() *Config {
	return &Config{
		Scan: ScanConfig{
			Voters:                DefaultVoters,
			VotesRequired:         DefaultVotesRequired,
			DedupSummaryThreshold: DefaultDedupSummaryThreshold,
			ScannerMaxTurns:       DefaultScannerMaxTurns,
			VoterMaxTurns:         DefaultVoterMaxTurns,
			Concurrency:           DefaultScanConcurrency,
		},
		Fix: FixConfig{
			MaxIterations: DefaultFixMaxIterations,
			Concurrency:   DefaultFixConcurrency,
			Retries:       DefaultFixRetries,
		},
		Consolidate: ConsolidateConfig{
			Concurrency:         DefaultConsolidateConcurrency,
			MaxTurns:            DefaultConsolidateMaxTurns,
			SimilarityThreshold: DefaultSimilarityThreshold,
		},
		LLM: LLMConfig{
			Command: DefaultLLMCommand,
		},
		Agents: map[string]AgentConfig{},
	}
}
