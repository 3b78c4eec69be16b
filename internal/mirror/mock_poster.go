package mirror

import (
	"context"
	"fmt"
	"sync"
)

// MockPoster implements Poster for testing. It records posted messages and
// hands out sequential thread IDs.
type MockPoster struct {
	mu      sync.Mutex
	name    string
	posted  []Message
	postErr error
	closed  bool
	threads int
	notify  chan struct{}
}

// NewMockPoster creates a MockPoster with the given name.
func NewMockPoster(name string) *MockPoster {
	return &MockPoster{name: name, notify: make(chan struct{}, 100)}
}

// Name implements Poster.
func (m *MockPoster) Name() string { return m.name }

// Post records msg. A new thread ID is returned when msg starts a thread.
func (m *MockPoster) Post(ctx context.Context, msg Message) (string, error) {
	m.mu.Lock()
	defer func() {
		m.mu.Unlock()
		select {
		case m.notify <- struct{}{}:
		default:
		}
	}()
	if m.closed {
		return "", fmt.Errorf("mock poster: closed")
	}
	if m.postErr != nil {
		return "", m.postErr
	}
	m.posted = append(m.posted, msg)
	if msg.ThreadID != "" {
		return msg.ThreadID, nil
	}
	m.threads++
	return fmt.Sprintf("%s-thread-%d", m.name, m.threads), nil
}

// Close implements Poster.
func (m *MockPoster) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// --- Test helpers ---

// Posted returns a copy of every recorded message.
func (m *MockPoster) Posted() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.posted))
	copy(out, m.posted)
	return out
}

// SetPostErr makes subsequent posts fail with err.
func (m *MockPoster) SetPostErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.postErr = err
}

// Closed reports whether Close was called.
func (m *MockPoster) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Notify returns a channel that receives after every Post attempt.
func (m *MockPoster) Notify() <-chan struct{} {
	return m.notify
}
