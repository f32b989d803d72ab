package classify

import (
	"context"
	"sync"
)

// MockClient is a scripted test implementation of the oracle Client. Each
// call consumes the next scripted response; when the script runs out the
// last entry repeats.
type MockClient struct {
	err       error
	errOn     map[int]error
	responses []string
	prompts   []string
	calls     int
	mu        sync.Mutex
}

// NewMockClient creates a mock oracle that replays the given responses.
func NewMockClient(responses ...string) *MockClient {
	return &MockClient{responses: responses, errOn: make(map[int]error)}
}

// FailWith makes every call return err.
func (m *MockClient) FailWith(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// FailOnCall makes the nth call (1-based) return err instead of its
// scripted response.
func (m *MockClient) FailOnCall(n int, err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errOn[n] = err
	return m
}

// Complete implements Client.
func (m *MockClient) Complete(_ context.Context, _, prompt string) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prompts = append(m.prompts, prompt)
	m.calls++

	if m.err != nil {
		return Response{}, m.err
	}
	if err, ok := m.errOn[m.calls]; ok {
		return Response{}, err
	}

	if len(m.responses) == 0 {
		return Response{}, nil
	}
	idx := m.calls - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	return Response{
		Text:         m.responses[idx],
		InputTokens:  100,
		OutputTokens: 20,
	}, nil
}

// Calls returns how many times Complete was invoked.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Prompts returns the prompts received, in order.
func (m *MockClient) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}
