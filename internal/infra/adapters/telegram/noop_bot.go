package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"telegram-memo-assistant/internal/domain/ports/adapter"
)

var _ adapter.ChatGatewayAdapter = (*NoopBotAdapter)(nil)

// NoopBotAdapter logs outbound messages instead of sending them. Used in dev
// mode when no bot token is configured.
type NoopBotAdapter struct {
	log *zerolog.Logger
}

func NewNoopBotAdapter(logger *zerolog.Logger) *NoopBotAdapter {
	compLog := logger.With().Str("component", "NoopBot").Logger()
	return &NoopBotAdapter{log: &compLog}
}

func (n *NoopBotAdapter) SendText(ctx context.Context, userID int64, text string) error {
	n.log.Info().Int64("user_id", userID).Str("text", text).Msg("noop send text")
	return nil
}

func (n *NoopBotAdapter) SendChoice(ctx context.Context, userID int64, text string, options []adapter.ChoiceOption) error {
	labels := make([]string, 0, len(options))
	for _, o := range options {
		labels = append(labels, o.Label)
	}
	n.log.Info().Int64("user_id", userID).Str("text", text).Strs("options", labels).Msg("noop send choice")
	return nil
}

func (n *NoopBotAdapter) SendPlainPrompt(ctx context.Context, userID int64, text string) error {
	n.log.Info().Int64("user_id", userID).Str("text", text).Msg("noop send prompt")
	return nil
}
