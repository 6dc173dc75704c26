package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel     = "claude-3-5-haiku-20241022"
	defaultAnthropicMaxTokens = 1024
)

// AnthropicLLMClient implements LLMClient on the Claude Messages API.
type AnthropicLLMClient struct {
	client  *anthropic.Client
	modelID string
}

// NewAnthropicLLMClient builds a client; extra options (base URL, retries)
// are passed through to the SDK.
func NewAnthropicLLMClient(apiKey, modelID string, opts ...option.RequestOption) (*AnthropicLLMClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("agent: anthropic api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = defaultAnthropicModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicLLMClient{client: anthropic.NewClient(opts...), modelID: modelID}, nil
}

func (c *AnthropicLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	model := c.modelID
	if strings.TrimSpace(req.Model) != "" {
		model = req.Model
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	var system []anthropic.TextBlockParam
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, block := range req.System {
		if strings.TrimSpace(block) != "" {
			system = append(system, anthropicText(block))
		}
	}
	for _, msg := range req.Messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		switch msg.Role {
		case ChatRoleSystem:
			system = append(system, anthropicText(content))
		case ChatRoleUser, ChatRoleAssistant:
			messages = append(messages, anthropic.MessageParam{
				Role:    anthropic.F(anthropic.MessageParamRole(msg.Role)),
				Content: anthropic.F([]anthropic.ContentBlockParamUnion{anthropicText(content)}),
			})
		default:
			return LLMResponse{}, fmt.Errorf("agent: unsupported role %q", msg.Role)
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.F(model),
		MaxTokens: anthropic.F(maxTokens),
		Messages:  anthropic.F(messages),
	}
	if len(system) > 0 {
		params.System = anthropic.F(system)
	}
	if req.Temperature >= 0 {
		params.Temperature = anthropic.F(float64(req.Temperature))
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("agent: anthropic messages: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			sb.WriteString(block.Text)
		}
	}
	in, out := int32(resp.Usage.InputTokens), int32(resp.Usage.OutputTokens)
	return LLMResponse{
		Text:       strings.TrimSpace(sb.String()),
		StopReason: string(resp.StopReason),
		Usage:      TokenUsage{InputTokens: in, OutputTokens: out, TotalTokens: in + out},
	}, nil
}

func anthropicText(text string) anthropic.TextBlockParam {
	return anthropic.TextBlockParam{
		Type: anthropic.F(anthropic.TextBlockParamTypeText),
		Text: anthropic.F(text),
	}
}
