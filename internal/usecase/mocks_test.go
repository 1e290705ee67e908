// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"telegram-memo-assistant/internal/domain/model"
	"telegram-memo-assistant/internal/domain/ports/adapter"
)

// mockAI lets each test script the model's reply.
type mockAI struct {
	CompleteFunc func(ctx context.Context, messages []adapter.Message) (string, error)
	Calls        int
}

func (m *mockAI) Complete(ctx context.Context, messages []adapter.Message) (string, error) {
	m.Calls++
	return m.CompleteFunc(ctx, messages)
}

func (m *mockAI) Name() string { return "mock" }

// memSink captures enqueued notifications.
type memSink struct {
	mu         sync.Mutex
	Enqueued   []*model.Notification
	EnqueueErr error
}

func (s *memSink) Enqueue(ctx context.Context, n *model.Notification) error {
	if s.EnqueueErr != nil {
		return s.EnqueueErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Enqueued = append(s.Enqueued, n)
	return nil
}

func (s *memSink) last() *model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Enqueued) == 0 {
		return nil
	}
	return s.Enqueued[len(s.Enqueued)-1]
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}
