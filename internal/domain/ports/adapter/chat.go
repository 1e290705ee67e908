// File: internal/domain/ports/adapter/chat.go
package adapter

import "context"

type ChoiceOption struct {
	ID    string
	Label string
}

// ChatGatewayAdapter renders text and buttons to an end user. Button
// presses and free-text replies come back through the gateway's own intake,
// not through return values here.
type ChatGatewayAdapter interface {
	SendText(ctx context.Context, userID int64, text string) error
	SendChoice(ctx context.Context, userID int64, text string, options []ChoiceOption) error
	SendPlainPrompt(ctx context.Context, userID int64, text string) error
}
