package toolsvc

import (
	"context"
	"sync"

	"github.com/loomwork/loomwork/model"
)

// MockTool is a test implementation of Tool. It cycles through a
// configured sequence of messages, repeating the last one once exhausted,
// and records every call for later assertion.
type MockTool struct {
	ToolName   string
	ToolDesc   string
	ToolLabels []string

	// Responses is the sequence of messages Call returns, one per call.
	// Each is stamped with Role=TOOL before being returned. If empty,
	// Call returns an empty non-error TOOL message.
	Responses []model.Message

	// Err, if set, is returned by Call instead of a response.
	Err error

	mu        sync.Mutex
	calls     []map[string]any
	callIndex int
}

func (m *MockTool) Name() string            { return m.ToolName }
func (m *MockTool) Description() string     { return m.ToolDesc }
func (m *MockTool) Labels() []string        { return m.ToolLabels }
func (m *MockTool) Schema() map[string]any  { return nil }

// Call implements Tool.
func (m *MockTool) Call(ctx context.Context, input map[string]any) (model.Message, error) {
	if ctx.Err() != nil {
		return model.Message{}, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, input)

	if m.Err != nil {
		return model.Message{}, m.Err
	}
	if len(m.Responses) == 0 {
		return model.Message{Role: model.RoleTool}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	msg := m.Responses[idx]
	msg.Role = model.RoleTool
	return msg, nil
}

// Calls returns a copy of the recorded input history.
func (m *MockTool) Calls() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]any, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of times Call has been invoked.
func (m *MockTool) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears call history and the response cursor.
func (m *MockTool) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.callIndex = 0
}
