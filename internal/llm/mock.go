package llm

import (
	"context"
	"sync"
)

// Compile-time check that Mock implements Runner.
var _ Runner = (*Mock)(nil)

// Mock is a configurable Runner for tests. It records every request it
// receives; recording is safe for concurrent use because voters and batch
// workers call Run from multiple goroutines.
type Mock struct {
	// RunFunc handles each call when set. Otherwise Run returns Response
	// (or a generic success when Response is nil too).
	RunFunc func(ctx context.Context, req Request) (*Result, error)

	// Response is returned verbatim when RunFunc is nil.
	Response *Result

	// PrereqError is returned by CheckPrerequisites.
	PrereqError error

	mu    sync.Mutex
	calls []Request
}

// NewMock creates a Mock that succeeds with empty output.
func NewMock() *Mock {
	return &Mock{}
}

// WithRunFunc sets the per-call handler and returns the mock.
func (m *Mock) WithRunFunc(fn func(ctx context.Context, req Request) (*Result, error)) *Mock {
	m.RunFunc = fn
	return m
}

// WithResponse sets a fixed result and returns the mock.
func (m *Mock) WithResponse(res *Result) *Mock {
	m.Response = res
	return m
}

// WithText sets a fixed successful result whose Text is text.
func (m *Mock) WithText(text string) *Mock {
	m.Response = &Result{Text: text}
	return m
}

// WithPrereqError makes CheckPrerequisites fail and returns the mock.
func (m *Mock) WithPrereqError(err error) *Mock {
	m.PrereqError = err
	return m
}

// Run records the request and dispatches to RunFunc or Response.
func (m *Mock) Run(ctx context.Context, req Request) (*Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx, req)
	}
	if m.Response != nil {
		res := *m.Response
		return &res, nil
	}
	return &Result{Text: "ok"}, nil
}

// CheckPrerequisites returns PrereqError.
func (m *Mock) CheckPrerequisites() error {
	return m.PrereqError
}

// Calls returns a copy of the recorded requests.
func (m *Mock) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times Run was invoked.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
