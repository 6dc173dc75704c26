package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/wolfman30/whatsapp-commerce/internal/agent"
	appconfig "github.com/wolfman30/whatsapp-commerce/internal/config"
	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

// BuildLLMClient builds the configured model backend, wrapped with the
// fallback provider when one is set. Provider "none" returns nil and the
// agent answers with its rule responder only.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (agent.LLMClient, string, error) {
	if cfg == nil {
		return nil, "", fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	primary, model, err := llmFor(ctx, cfg.LLMProvider, cfg, awsCfg)
	if err != nil {
		return nil, "", err
	}
	if primary == nil {
		logger.Warn("no LLM provider configured; using rule responder only")
		return nil, "", nil
	}

	fallbackProvider := strings.TrimSpace(cfg.LLMFallbackProvider)
	if fallbackProvider == "" || strings.EqualFold(fallbackProvider, cfg.LLMProvider) {
		logger.Info("using LLM provider", "provider", cfg.LLMProvider, "model", model)
		return primary, model, nil
	}
	fallback, _, err := llmFor(ctx, fallbackProvider, cfg, awsCfg)
	if err != nil || fallback == nil {
		logger.Warn("fallback LLM unavailable", "provider", fallbackProvider, "error", err)
		return primary, model, nil
	}
	logger.Info("using LLM provider with fallback", "provider", cfg.LLMProvider, "fallback", fallbackProvider, "model", model)
	return agent.NewFallbackLLMClient(primary, fallback, logger), model, nil
}

func llmFor(ctx context.Context, provider string, cfg *appconfig.Config, awsCfg aws.Config) (agent.LLMClient, string, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "none":
		return nil, "", nil
	case "bedrock":
		if cfg.BedrockModelID == "" {
			return nil, "", fmt.Errorf("bootstrap: BEDROCK_MODEL_ID required")
		}
		return agent.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID), cfg.BedrockModelID, nil
	case "gemini":
		client, err := agent.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, "", err
		}
		return client, cfg.GeminiModelID, nil
	case "anthropic":
		client, err := agent.NewAnthropicLLMClient(cfg.AnthropicAPIKey, cfg.AnthropicModelID)
		if err != nil {
			return nil, "", err
		}
		return client, cfg.AnthropicModelID, nil
	case "openai":
		client, err := agent.NewOpenAILLMClient(cfg.OpenAIAPIKey, cfg.OpenAIModelID)
		if err != nil {
			return nil, "", err
		}
		return client, cfg.OpenAIModelID, nil
	default:
		return nil, "", fmt.Errorf("bootstrap: unknown LLM provider %q", provider)
	}
}
