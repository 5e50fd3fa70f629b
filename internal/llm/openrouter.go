package llm

import (
	"context"
	"errors"
	"net/http"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// openRouterModels maps the model names used elsewhere in the config to
// OpenRouter's vendor-prefixed IDs.
var openRouterModels = map[string]string{
	"gemini-2.5-flash":  "google/gemini-2.5-flash",
	"gemini-2.5-pro":    "google/gemini-2.5-pro",
	"claude-haiku-4-5":  "anthropic/claude-haiku-4-5",
	"claude-sonnet-4-5": "anthropic/claude-sonnet-4-5",
	"gpt-4o-mini":       "openai/gpt-4o-mini",
}

// openRouterHeader identifies the app on OpenRouter's dashboard.
var openRouterHeader = http.Header{
	"X-Title":      {"Speech Coach"},
	"Http-Referer": {"https://github.com/FurqatMashrabjonov/speech-coach"},
}

// OpenRouterProvider sends feedback requests through OpenRouter's
// OpenAI-compatible endpoint.
type OpenRouterProvider struct {
	chat *OpenAIProvider
}

// NewOpenRouterProvider creates a provider for the OpenRouter API.
func NewOpenRouterProvider(cfg OpenRouterConfig) (*OpenRouterProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openrouter API key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	return &OpenRouterProvider{chat: &OpenAIProvider{
		client: newChatClient(cfg.APIKey, baseURL, openRouterHeader),
		model:  resolveModel(cfg.Model, openRouterModels),
	}}, nil
}

func (p *OpenRouterProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	return p.chat.Generate(ctx, req)
}

func (p *OpenRouterProvider) ModelID() string {
	return p.chat.ModelID()
}
