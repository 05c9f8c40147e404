// Package llm drives the external agent CLI (claude by default) as a
// subprocess. Every call runs with --output-format stream-json; the client
// decodes the JSONL stream as it arrives, forwards events to interested
// callers, and folds the stream into a Result carrying the final answer
// text, session id, cost, and turn count.
package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/roverhq/rover/internal/config"
)

// Compile-time check that Client implements Runner.
var _ Runner = (*Client)(nil)

// ErrMissingAPIKey is returned by CheckPrerequisites when no Anthropic
// credential is present in the environment.
var ErrMissingAPIKey = errors.New("ANTHROPIC_API_KEY is not set")

// maxInlinePromptBytes is the threshold above which a prompt is written to a
// temp file instead of being passed directly on the command line.
const maxInlinePromptBytes = 100 * 1024 // 100 KiB

var (
	// reRateLimit matches common rate-limit phrases in agent output.
	reRateLimit = regexp.MustCompile(`(?i)(?:rate limit|too many requests|rate.?limited)`)

	// reResetTime matches "reset in N seconds/minutes/hours" patterns.
	reResetTime = regexp.MustCompile(`(?i)reset\s+(?:in\s+)?(\d+)\s*(seconds?|minutes?|hours?)`)

	// reTryAgain matches "try again in N seconds/minutes/hours" patterns.
	reTryAgain = regexp.MustCompile(`(?i)try\s+again\s+in\s+(\d+)\s*(seconds?|minutes?|hours?)`)
)

// Client executes prompts via the agent CLI. It handles argument
// construction, subprocess execution, stream decoding, and rate-limit
// detection.
type Client struct {
	cfg    config.LLMConfig
	logger *log.Logger
}

// NewClient creates a Client for the given CLI configuration. The logger may
// be nil, in which case debug messages are discarded.
func NewClient(cfg config.LLMConfig, logger *log.Logger) *Client {
	return &Client{cfg: cfg, logger: logger}
}

// CheckPrerequisites verifies that the agent CLI binary is on PATH and that
// an API credential is present.
func (c *Client) CheckPrerequisites() error {
	cmd := c.command()
	if _, err := exec.LookPath(cmd); err != nil {
		return fmt.Errorf("agent CLI not found (looked for %q): %w", cmd, err)
	}
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// Run executes the request and blocks until the subprocess exits. Stdout is
// decoded as a JSONL event stream; the full stream is folded into the
// returned Result. When req.Events is non-nil each decoded event is also
// forwarded with a non-blocking send.
//
// A non-zero exit code is not an error here; callers inspect
// Result.ExitCode. Run returns an error only when the process could not be
// spawned or waited on.
func (c *Client) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	cmd, cleanup := c.buildCommand(ctx, req)
	defer cleanup()

	if c.logger != nil {
		c.logger.Debug("running agent CLI",
			"command", cmd.Path,
			"work_dir", cmd.Dir,
			"max_turns", req.MaxTurns,
			"resume", req.ResumeSessionID != "",
		)
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	var (
		acc       streamAccumulator
		stderrBuf bytes.Buffer
		wg        sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		decoder := NewStreamDecoder(stdoutPipe)
		for {
			event, derr := decoder.Next()
			if derr != nil {
				// io.EOF or a malformed line past recovery; stop reading.
				return
			}
			acc.observe(event)
			if req.Events != nil {
				select {
				case req.Events <- *event:
				default:
				}
			}
		}
	}()
	go func() {
		defer wg.Done()
		_, _ = stderrBuf.ReadFrom(stderrPipe)
	}()

	if err := cmd.Start(); err != nil {
		// Go closes the pipe write ends on Start failure, so the readers
		// see EOF and exit.
		wg.Wait()
		return nil, fmt.Errorf("starting %s: %w", c.command(), err)
	}

	// Drain all output before calling Wait.
	wg.Wait()

	waitErr := cmd.Wait()
	duration := time.Since(start)

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("waiting for %s: %w", c.command(), waitErr)
		}
	}

	result := acc.result()
	result.ExitCode = exitCode
	result.Stderr = stderrBuf.String()
	result.Duration = duration

	combined := result.Text + result.Stderr
	result.RateLimit, _ = ParseRateLimit(combined)
	if result.WasRateLimited() && c.logger != nil {
		c.logger.Warn("agent CLI reported a rate limit",
			"reset_after", result.RateLimit.ResetAfter)
	}

	return result, nil
}

// ParseRateLimit examines agent output for rate-limit signals. It returns a
// populated *RateLimitInfo and true when a rate-limit phrase is detected.
func ParseRateLimit(output string) (*RateLimitInfo, bool) {
	if !reRateLimit.MatchString(output) {
		return nil, false
	}

	var resetAfter time.Duration
	if m := reResetTime.FindStringSubmatch(output); len(m) == 3 {
		resetAfter = parseResetDuration(m[1], m[2])
	} else if m := reTryAgain.FindStringSubmatch(output); len(m) == 3 {
		resetAfter = parseResetDuration(m[1], m[2])
	}

	return &RateLimitInfo{
		IsLimited:  true,
		ResetAfter: resetAfter,
		Message:    output,
	}, true
}

func (c *Client) command() string {
	if c.cfg.Command != "" {
		return c.cfg.Command
	}
	return config.DefaultLLMCommand
}

// buildCommand constructs the *exec.Cmd for the request. The returned
// cleanup removes any temp prompt file and is safe to call unconditionally.
func (c *Client) buildCommand(ctx context.Context, req Request) (*exec.Cmd, func()) {
	args, cleanup := c.buildArgs(req)

	cmd := exec.CommandContext(ctx, c.command(), args...)
	if req.WorkDir != "" {
		cmd.Dir = req.WorkDir
	}

	env := os.Environ()
	env = append(env, req.Env...)
	cmd.Env = env

	return cmd, cleanup
}

// buildArgs constructs the CLI argument slice. Prompts above
// maxInlinePromptBytes are written to a temp file to avoid arg-length
// limits; the returned cleanup deletes it.
func (c *Client) buildArgs(req Request) ([]string, func()) {
	cleanup := func() {}

	permissionMode := c.cfg.PermissionMode
	if permissionMode == "" {
		permissionMode = "acceptEdits"
	}

	args := []string{
		"--permission-mode", permissionMode,
		"--print",
		"--output-format", "stream-json",
		"--verbose",
	}

	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	if model != "" {
		args = append(args, "--model", model)
	}

	if len(req.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(req.AllowedTools, ","))
	}
	if req.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(req.MaxTurns))
	}
	if req.ResumeSessionID != "" {
		args = append(args, "--resume", req.ResumeSessionID)
	}

	if len(req.Prompt) > maxInlinePromptBytes {
		if path, err := writePromptFile(req.Prompt); err == nil {
			cleanup = func() { _ = os.Remove(path) }
			args = append(args, "--prompt-file", path)
			return args, cleanup
		}
		// Temp file creation failed; fall through to inline.
	}
	args = append(args, "--prompt", req.Prompt)

	return args, cleanup
}

func writePromptFile(prompt string) (string, error) {
	f, err := os.CreateTemp("", "rover-prompt-*.md")
	if err != nil {
		return "", err
	}
	if _, err := io.WriteString(f, prompt); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// parseResetDuration converts a numeric string and a time unit word into a
// time.Duration. Unrecognised units return 0.
func parseResetDuration(amount string, unit string) time.Duration {
	n, err := strconv.Atoi(amount)
	if err != nil || n <= 0 {
		return 0
	}

	unit = strings.ToLower(unit)
	switch {
	case strings.HasPrefix(unit, "second"):
		return time.Duration(n) * time.Second
	case strings.HasPrefix(unit, "minute"):
		return time.Duration(n) * time.Minute
	case strings.HasPrefix(unit, "hour"):
		return time.Duration(n) * time.Hour
	default:
		return 0
	}
}
