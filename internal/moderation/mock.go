package moderation

import (
	"context"
	"sync"
)

// MockClient is a test double for the moderation Client interface.
type MockClient struct {
	Decision *Decision
	Err      error

	mu    sync.Mutex
	Calls []string // records texts reviewed
}

// Review records the call and returns the mock decision.
func (m *MockClient) Review(ctx context.Context, text string) (*Decision, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, text)
	m.mu.Unlock()
	return m.Decision, m.Err
}
