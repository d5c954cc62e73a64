package llm

import (
	"context"
	"sync"
)

// MockClient is a scriptable Client for tests. Responses are consumed in
// order; when the queue is empty the last response repeats. Set Err to
// fail every call, or push a one-shot error with QueueError.
type MockClient struct {
	mu        sync.Mutex
	responses []GenerateResponse
	errs      []error
	Err       error

	// Embedding returned by CreateEmbedding; defaults to a unit vector.
	EmbeddingVec []float32
	HealthErr    error

	Requests []GenerateRequest // every Generate call, in order
	EmbedReqs []string
}

// NewMockClient creates a mock that answers every generation with text.
func NewMockClient(text string) *MockClient {
	return &MockClient{responses: []GenerateResponse{{Text: text}}}
}

// QueueResponse appends a scripted response.
func (m *MockClient) QueueResponse(text string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, GenerateResponse{Text: text})
	return m
}

// QueueError appends a one-shot error consumed before any response.
func (m *MockClient) QueueError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, err)
	return m
}

func (m *MockClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.responses) == 0 {
		return &GenerateResponse{}, nil
	}
	resp := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return &resp, nil
}

func (m *MockClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EmbedReqs = append(m.EmbedReqs, text)
	if m.Err != nil {
		return nil, m.Err
	}
	if m.EmbeddingVec != nil {
		return m.EmbeddingVec, nil
	}
	vec := make([]float32, 768)
	vec[0] = 1
	return vec, nil
}

func (m *MockClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		emb, err := m.CreateEmbedding(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, emb)
	}
	return out, nil
}

func (m *MockClient) CheckHealth(ctx context.Context) error { return m.HealthErr }
func (m *MockClient) Model() string                         { return "mock-model" }
func (m *MockClient) Endpoint() string                      { return "mock://" }
