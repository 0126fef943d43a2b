package embedding

import (
	"fmt"

	"github.com/tbourn/go-rag-backend/internal/config"
)

// FromConfig builds the embedder selected by cfg.Provider. The OpenAI and
// Ollama backends take their endpoints from the language-model settings.
func FromConfig(cfg config.EmbeddingConfig, llmCfg config.LLMConfig) (Embedder, error) {
	switch cfg.Provider {
	case "hashing", "":
		return NewHashing(cfg.Dimension), nil
	case "openai":
		if llmCfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai embeddings require OPENAI_API_KEY")
		}
		return NewOpenAI(OpenAIConfig{
			APIKey:      llmCfg.OpenAIAPIKey,
			BaseURL:     llmCfg.OpenAIBaseURL,
			Model:       cfg.Model,
			Dimension:   cfg.Dimension,
			RPS:         cfg.RPS,
			Concurrency: cfg.Concurrency,
		}), nil
	case "ollama":
		return NewOllama(OllamaConfig{
			ServerURL: llmCfg.OllamaURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
