// File: internal/domain/ports/adapter/ai.go
package adapter

import "context"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AIServiceAdapter is the remote classification backend. Implementations
// wrap transport-level failures (refused, timeout, 5xx) with
// domain.ErrUnavailable; content-level problems are the caller's to judge.
type AIServiceAdapter interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	Name() string
}
