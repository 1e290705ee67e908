package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"github.com/pkoukk/tiktoken-go"

	"telegram-memo-assistant/internal/domain"
	"telegram-memo-assistant/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.AIServiceAdapter = (*OpenAIAdapter)(nil)

// OpenAIAdapter implements the classification backend on the official
// OpenAI client. Prompts are trimmed to a token budget before sending so a
// long forwarded email cannot blow past the model's context window.
type OpenAIAdapter struct {
	client       openai.Client
	model        string
	promptBudget int
	enc          *tiktoken.Tiktoken
}

func NewOpenAIAdapter(apiKey, model string, promptBudget int) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if promptBudget <= 0 {
		promptBudget = 4096
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Unknown model name; cl100k_base is the family default.
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	return &OpenAIAdapter{
		client:       openai.NewClient(option.WithAPIKey(apiKey)),
		model:        model,
		promptBudget: promptBudget,
		enc:          enc,
	}, nil
}

func (o *OpenAIAdapter) Name() string { return "openai" }

func (o *OpenAIAdapter) Complete(ctx context.Context, messages []adapter.Message) (string, error) {
	messages = o.trim(messages)

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}
	for _, m := range messages {
		switch m.Role {
		case "system":
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case "assistant":
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: openai: %v", domain.ErrUnavailable, err)
	}
	for _, c := range resp.Choices {
		if c.Message.Content != "" {
			return c.Message.Content, nil
		}
	}
	return "", fmt.Errorf("%w: openai returned no choice content", domain.ErrInvalidResponse)
}

// trim drops content from the end of oversized user messages until the
// whole prompt fits the budget. The system message is never touched.
func (o *OpenAIAdapter) trim(messages []adapter.Message) []adapter.Message {
	total := 0
	counts := make([]int, len(messages))
	for i, m := range messages {
		counts[i] = len(o.enc.Encode(m.Content, nil, nil))
		total += counts[i]
	}
	if total <= o.promptBudget {
		return messages
	}

	out := make([]adapter.Message, len(messages))
	copy(out, messages)
	over := total - o.promptBudget
	for i := len(out) - 1; i >= 0 && over > 0; i-- {
		if out[i].Role == "system" {
			continue
		}
		tokens := o.enc.Encode(out[i].Content, nil, nil)
		if len(tokens) <= over {
			over -= len(tokens)
			out[i].Content = ""
			continue
		}
		out[i].Content = o.enc.Decode(tokens[:len(tokens)-over])
		over = 0
	}
	return out
}
