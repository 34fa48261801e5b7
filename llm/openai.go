// Package llm provides the expensive operation the dedup layer wraps: a
// chat completion call against the OpenAI API.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Message roles understood by Complete.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat sends chat completion requests to OpenAI for a fixed model. It is
// safe for concurrent use.
type Chat struct {
	client      openai.Client
	model       string
	temperature float64
}

// NewChat creates a Chat caller. The optional baseURL parameter allows
// overriding the API endpoint (pass "" for the default).
func NewChat(apiKey, model, baseURL string) (*Chat, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llm: api key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Chat{
		client:      openai.NewClient(opts...),
		model:       model,
		temperature: 0.3,
	}, nil
}

// Model returns the model this caller is bound to.
func (c *Chat) Model() string {
	return c.model
}

// Complete sends the conversation and returns the assistant's reply,
// whitespace-trimmed.
func (c *Chat) Complete(ctx context.Context, messages []Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    buildMessages(messages),
		Temperature: openai.Float(c.temperature),
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty choices in response")
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}

// buildMessages converts Messages to the openai-go SDK union type.
func buildMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}
