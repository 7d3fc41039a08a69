package factory

import (
	"fmt"

	"gemini-chat-be/pkg/llm"
	"gemini-chat-be/pkg/llm/gemini"
	"gemini-chat-be/pkg/llm/ollama"
)

type ProviderConfig struct {
	Provider      string
	APIKey        string
	ModelName     string
	GeminiBaseURL string
	OllamaBaseURL string
}

func NewLLMProvider(cfg ProviderConfig) (llm.LLMProvider, error) {
	switch cfg.Provider {
	case "", "gemini":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini provider requires an API key")
		}
		return gemini.NewGeminiProvider(cfg.APIKey, cfg.GeminiBaseURL, cfg.ModelName), nil
	case "ollama":
		baseURL := cfg.OllamaBaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434" // Default
		}
		return ollama.NewOllamaProvider(baseURL, cfg.ModelName), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
