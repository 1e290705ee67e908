package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"telegram-memo-assistant/internal/domain"
	"telegram-memo-assistant/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*MultiAIAdapter)(nil)

// MultiAIAdapter tries providers in order, falling through only when a
// provider is unavailable. A provider that answered with unusable content
// is NOT retried elsewhere: that failure belongs to the invalid-response
// budget, and a second provider would muddy whose output was bad.
type MultiAIAdapter struct {
	providers []adapter.AIServiceAdapter
}

func NewMultiAIAdapter(providers ...adapter.AIServiceAdapter) (*MultiAIAdapter, error) {
	if len(providers) == 0 {
		return nil, errors.New("multi adapter needs at least one provider")
	}
	return &MultiAIAdapter{providers: providers}, nil
}

func (m *MultiAIAdapter) Name() string {
	names := make([]string, 0, len(m.providers))
	for _, p := range m.providers {
		names = append(names, p.Name())
	}
	return strings.Join(names, "+")
}

func (m *MultiAIAdapter) Complete(ctx context.Context, messages []adapter.Message) (string, error) {
	var lastErr error
	for _, p := range m.providers {
		reply, err := p.Complete(ctx, messages)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if !errors.Is(err, domain.ErrUnavailable) {
			return "", err
		}
	}
	return "", fmt.Errorf("all providers failed: %w", lastErr)
}
