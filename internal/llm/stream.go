package llm

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// StreamEventType identifies the kind of a stream-json event.
type StreamEventType string

const (
	// StreamEventSystem is emitted once at startup with session metadata.
	StreamEventSystem StreamEventType = "system"
	// StreamEventAssistant carries an assistant message (text or tool use).
	StreamEventAssistant StreamEventType = "assistant"
	// StreamEventUser carries tool results fed back to the model.
	StreamEventUser StreamEventType = "user"
	// StreamEventResult is the final event with the answer and run stats.
	StreamEventResult StreamEventType = "result"
)

// StreamEvent is a single line of the agent CLI's stream-json output.
type StreamEvent struct {
	Type       StreamEventType `json:"type"`
	Subtype    string          `json:"subtype,omitempty"`
	SessionID  string          `json:"session_id,omitempty"`
	Tools      []string        `json:"tools,omitempty"`
	MCPServers json.RawMessage `json:"mcp_servers,omitempty"`
	Model      string          `json:"model,omitempty"`

	// Message is set on assistant and user events.
	Message *StreamMessage `json:"message,omitempty"`

	// Result fields, set on the final event.
	Result       string  `json:"result,omitempty"`
	CostUSD      float64 `json:"cost_usd,omitempty"`
	TotalCostUSD float64 `json:"total_cost_usd,omitempty"`
	DurationMS   int64   `json:"duration_ms,omitempty"`
	IsError      bool    `json:"is_error,omitempty"`
	NumTurns     int     `json:"num_turns,omitempty"`
}

// StreamMessage is the message payload of an assistant or user event.
type StreamMessage struct {
	Role    string          `json:"role,omitempty"`
	Content []ContentBlock  `json:"content,omitempty"`
	Usage   json.RawMessage `json:"usage,omitempty"`
}

// ContentBlock is one block of message content.
type ContentBlock struct {
	Type string `json:"type"`

	// Text blocks.
	Text string `json:"text,omitempty"`

	// Tool use blocks.
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// Tool result blocks.
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

// IsText reports whether the block is plain text.
func (b ContentBlock) IsText() bool { return b.Type == "text" }

// IsToolUse reports whether the block is a tool invocation.
func (b ContentBlock) IsToolUse() bool { return b.Type == "tool_use" }

// IsToolResult reports whether the block is a tool result.
func (b ContentBlock) IsToolResult() bool { return b.Type == "tool_result" }

// InputString renders the tool input as compact JSON for logging.
func (b ContentBlock) InputString() string {
	if len(b.Input) == 0 {
		return ""
	}
	return string(b.Input)
}

// TextContent concatenates the text blocks of the event's message.
func (e *StreamEvent) TextContent() string {
	if e.Message == nil {
		return ""
	}
	var sb strings.Builder
	for _, block := range e.Message.Content {
		if block.IsText() {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// ToolUseBlocks returns the tool invocation blocks of the event's message.
func (e *StreamEvent) ToolUseBlocks() []ContentBlock {
	if e.Message == nil {
		return nil
	}
	var blocks []ContentBlock
	for _, block := range e.Message.Content {
		if block.IsToolUse() {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

// maxScannerBuffer bounds a single stream-json line. Tool results can carry
// entire file contents, so the default bufio limit is far too small.
const maxScannerBuffer = 1 << 20 // 1 MiB

// StreamDecoder reads stream-json events line by line.
type StreamDecoder struct {
	scanner *bufio.Scanner
}

// NewStreamDecoder creates a decoder over r.
func NewStreamDecoder(r io.Reader) *StreamDecoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScannerBuffer)
	return &StreamDecoder{scanner: scanner}
}

// Next returns the next event, skipping blank lines. It returns io.EOF when
// the stream ends.
func (d *StreamDecoder) Next() (*StreamEvent, error) {
	for d.scanner.Scan() {
		line := strings.TrimSpace(d.scanner.Text())
		if line == "" {
			continue
		}
		var event StreamEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			return nil, fmt.Errorf("decoding stream event: %w", err)
		}
		return &event, nil
	}
	if err := d.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// streamAccumulator folds a sequence of events into a Result. The final
// result event is authoritative for text and stats; assistant text is kept
// as a fallback for streams that end without one.
type streamAccumulator struct {
	sessionID     string
	resultText    string
	sawResult     bool
	assistantText strings.Builder
	costUSD       float64
	numTurns      int
	isError       bool
}

func (a *streamAccumulator) observe(event *StreamEvent) {
	if a.sessionID == "" && event.SessionID != "" {
		a.sessionID = event.SessionID
	}

	switch event.Type {
	case StreamEventAssistant:
		if text := event.TextContent(); text != "" {
			a.assistantText.WriteString(text)
		}
	case StreamEventResult:
		a.sawResult = true
		a.resultText = event.Result
		a.isError = event.IsError
		if event.NumTurns > 0 {
			a.numTurns = event.NumTurns
		}
		switch {
		case event.TotalCostUSD > 0:
			a.costUSD = event.TotalCostUSD
		case event.CostUSD > 0:
			a.costUSD = event.CostUSD
		}
	}
}

func (a *streamAccumulator) result() *Result {
	text := a.resultText
	if !a.sawResult || text == "" {
		text = a.assistantText.String()
	}
	return &Result{
		Text:      text,
		SessionID: a.sessionID,
		CostUSD:   a.costUSD,
		NumTurns:  a.numTurns,
	}
}
