package ai

import (
	"context"
	"strings"
	"time"

	"telegram-memo-assistant/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAI)(nil)

// NoopAI is a dev-mode backend that answers with canned classifications so
// the pipeline can be exercised without credentials.
type NoopAI struct{}

func NewNoopAI() *NoopAI { return &NoopAI{} }

func (NoopAI) Name() string { return "noop" }

func (NoopAI) Complete(ctx context.Context, messages []adapter.Message) (string, error) {
	content := ""
	if len(messages) > 0 {
		content = strings.ToLower(messages[len(messages)-1].Content)
	}
	switch {
	case strings.Contains(content, "remind"):
		return `{"intent":"reminder","action":"dev reminder","time":"` +
			time.Now().Add(time.Hour).Format(time.RFC3339) + `"}`, nil
	case strings.Contains(content, "find"), strings.Contains(content, "search"):
		return `{"intent":"search","query":"dev query","results":[{"title":"dev note","snippet":"..."}]}`, nil
	case strings.Contains(content, "?"):
		return `{"intent":"ambiguous","question":"Did you mean a task or a note?"}`, nil
	default:
		return `{"intent":"note","tags":["dev","noop"]}`, nil
	}
}
