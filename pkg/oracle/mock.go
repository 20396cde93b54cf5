package oracle

import (
	"context"
	"sync"
)

// MockClient is a scriptable Client for tests and demo mode. Responses are
// consumed in FIFO order; when the queue is empty the default response is
// returned.
type MockClient struct {
	mu              sync.Mutex
	queued          []mockResult
	defaultResponse Response
	calls           []Request
	model           string
}

type mockResult struct {
	resp Response
	err  error
}

// NewMockClient creates a mock oracle client with a canned default response.
func NewMockClient(defaultContent string) *MockClient {
	return &MockClient{
		defaultResponse: Response{Content: defaultContent, StopReason: "end_turn"},
		model:           "mock-model",
	}
}

// QueueResponse appends a successful response to the script.
func (m *MockClient) QueueResponse(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued = append(m.queued, mockResult{resp: Response{Content: content, StopReason: "end_turn"}})
}

// QueueError appends a failure to the script.
func (m *MockClient) QueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued = append(m.queued, mockResult{err: err})
}

// Complete implements the Client interface.
func (m *MockClient) Complete(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)

	if len(m.queued) > 0 {
		next := m.queued[0]
		m.queued = m.queued[1:]
		if next.err != nil {
			return Response{}, next.err
		}
		return next.resp, nil
	}
	return m.defaultResponse, nil
}

// ModelName returns the mock model name.
func (m *MockClient) ModelName() string {
	return m.model
}

// CallCount returns the number of Complete calls observed.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastRequest returns the most recent request, or false if none were made.
func (m *MockClient) LastRequest() (Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return Request{}, false
	}
	return m.calls[len(m.calls)-1], true
}
