package llm

import (
	"context"
	"time"
)

// Request describes a single call to the external agent CLI.
type Request struct {
	// Prompt is the full prompt text. Large prompts are written to a temp
	// file automatically by the client.
	Prompt string

	// WorkDir is the working directory for the spawned process. The agent's
	// file tools resolve relative paths against it.
	WorkDir string

	// Model overrides the configured model when non-empty.
	Model string

	// MaxTurns bounds the agent's tool-use turns. Zero leaves the CLI's own
	// default in place.
	MaxTurns int

	// AllowedTools restricts the agent's tool surface (e.g. Read, Grep,
	// Glob for read-only calls). Empty grants the CLI's full tool access.
	AllowedTools []string

	// ResumeSessionID continues a prior session so context accumulates
	// across fix iterations. Empty starts a fresh session.
	ResumeSessionID string

	// Env is appended to the inherited environment.
	Env []string

	// Events receives decoded stream events in real time when non-nil.
	// Sends are non-blocking; slow consumers drop events. The channel is
	// never closed by the client.
	Events chan<- StreamEvent
}

// Result captures the outcome of one agent call.
type Result struct {
	// Text is the agent's final answer: the result event's payload, or the
	// concatenated assistant text when the CLI produced no result event.
	Text string `json:"text"`

	// SessionID identifies the CLI session for later resumption. Captured
	// from the first stream event that carries one.
	SessionID string `json:"session_id,omitempty"`

	CostUSD  float64       `json:"cost_usd"`
	NumTurns int           `json:"num_turns"`
	ExitCode int           `json:"exit_code"`
	Stderr   string        `json:"stderr,omitempty"`
	Duration time.Duration `json:"duration"`

	// RateLimit is populated when the output carried a rate-limit signal.
	RateLimit *RateLimitInfo `json:"rate_limit,omitempty"`
}

// Success returns true if the agent exited with code 0.
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// WasRateLimited returns true if the result indicates a rate-limit condition.
func (r *Result) WasRateLimited() bool {
	return r.RateLimit != nil && r.RateLimit.IsLimited
}

// RateLimitInfo describes a detected rate-limit condition.
// ResetAfter is serialized as nanoseconds (int64) in JSON.
type RateLimitInfo struct {
	IsLimited  bool          `json:"is_limited"`
	ResetAfter time.Duration `json:"reset_after"`
	Message    string        `json:"message"`
}

// Runner is the call surface the pipelines depend on. *Client implements it
// against the real CLI; tests substitute *Mock.
type Runner interface {
	// Run executes one prompt and blocks until the process exits.
	Run(ctx context.Context, req Request) (*Result, error)

	// CheckPrerequisites verifies the CLI binary and credentials are
	// available, returning a descriptive error when they are not.
	CheckPrerequisites() error
}
