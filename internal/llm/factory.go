package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/FurqatMashrabjonov/speech-coach/internal/store"
)

// NewProvider creates a Provider from configuration, wrapped as
// caller -> timeout -> retry -> logging -> base. eventRepo may be nil.
func NewProvider(ctx context.Context, cfg Config, eventRepo store.EventRepo, logger zerolog.Logger) (Provider, error) {
	var base Provider
	var err error

	switch cfg.Provider {
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "openrouter":
		base, err = NewOpenRouterProvider(cfg.OpenRouter)
	case "mock":
		base = &MockProvider{Respond: func(Request) MockResponse {
			return MockResponse{Content: json.RawMessage(offlineReply)}
		}}
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	logger = logger.With().Str("component", "llm").Logger()
	p := WithLogging(base, cfg.Provider, eventRepo, logger)
	p = WithRetry(p, cfg.Retry, logger)
	return WithTimeout(p, cfg.Timeout), nil
}

// offlineReply is what the mock provider answers when selected by config,
// so the service can run end to end without credentials.
const offlineReply = `{"overallScore":7,"clarity":7,"confidence":6,"engagement":7,"relevance":8,` +
	`"summary":"Offline scoring: no model was consulted.",` +
	`"strengths":["Completed the session"],"improvements":["Configure a model provider for real feedback"]}`
