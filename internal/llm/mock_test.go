package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMock_DefaultSuccess(t *testing.T) {
	t.Parallel()

	m := NewMock()
	res, err := m.Run(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, 1, m.CallCount())
}

func TestMock_WithText(t *testing.T) {
	t.Parallel()

	m := NewMock().WithText(`{"approve":true,"reasoning":"confirmed"}`)
	res, err := m.Run(context.Background(), Request{Prompt: "vote"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"approve":true,"reasoning":"confirmed"}`, res.Text)
}

func TestMock_WithRunFunc(t *testing.T) {
	t.Parallel()

	m := NewMock().WithRunFunc(func(_ context.Context, req Request) (*Result, error) {
		if req.MaxTurns == 0 {
			return nil, errors.New("missing turn bound")
		}
		return &Result{Text: "ok", NumTurns: req.MaxTurns}, nil
	})

	_, err := m.Run(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)

	res, err := m.Run(context.Background(), Request{Prompt: "p", MaxTurns: 10})
	require.NoError(t, err)
	assert.Equal(t, 10, res.NumTurns)
	assert.Equal(t, 2, m.CallCount())
}

func TestMock_ResponseCopied(t *testing.T) {
	t.Parallel()

	m := NewMock().WithResponse(&Result{Text: "fixed"})
	res1, _ := m.Run(context.Background(), Request{})
	res1.Text = "mutated"

	res2, _ := m.Run(context.Background(), Request{})
	assert.Equal(t, "fixed", res2.Text, "callers must not share the same Result")
}

func TestMock_PrereqError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("claude not installed")
	m := NewMock().WithPrereqError(wantErr)
	assert.ErrorIs(t, m.CheckPrerequisites(), wantErr)

	assert.NoError(t, NewMock().CheckPrerequisites())
}

func TestMock_ConcurrentCallsRecorded(t *testing.T) {
	t.Parallel()

	m := NewMock().WithText("ok")

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, _ = m.Run(context.Background(), Request{Prompt: fmt.Sprintf("call-%d", i)})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, m.CallCount())
	assert.Len(t, m.Calls(), n)
}

func TestMock_CallsReturnsCopy(t *testing.T) {
	t.Parallel()

	m := NewMock()
	_, _ = m.Run(context.Background(), Request{Prompt: "original"})

	calls := m.Calls()
	calls[0].Prompt = "mutated"

	assert.Equal(t, "original", m.Calls()[0].Prompt)
}
