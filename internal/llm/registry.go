package llm

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/tbourn/go-rag-backend/internal/config"
	"github.com/tbourn/go-rag-backend/internal/domain"
)

// Registry maps selectable model names to generators.
type Registry struct {
	mu   sync.RWMutex
	gens map[string]Generator
	def  string
}

// NewRegistry returns an empty registry whose default model is def.
func NewRegistry(def string) *Registry {
	return &Registry{gens: map[string]Generator{}, def: strings.ToLower(def)}
}

// FromConfig registers the two hosted and the two local models. Hosted
// models are only registered when an API key is configured.
func FromConfig(cfg config.LLMConfig) (*Registry, error) {
	r := NewRegistry(cfg.DefaultModel)
	if cfg.OpenAIAPIKey != "" {
		for name, model := range map[string]string{"gpt-4o": openai.GPT4o, "gpt-4o-mini": openai.GPT4oMini} {
			r.Register(name, NewOpenAI(OpenAIConfig{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL, Model: model}))
		}
	}
	for name, tag := range map[string]string{"llama3.1": cfg.Llama31Tag, "llama3.2": cfg.Llama32Tag} {
		g, err := NewOllama(OllamaConfig{ServerURL: cfg.OllamaURL, Model: tag})
		if err != nil {
			return nil, err
		}
		r.Register(name, g)
	}
	return r, nil
}

// Register binds name to g, replacing any previous binding.
func (r *Registry) Register(name string, g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gens[strings.ToLower(name)] = g
}

// Default returns the default model name.
func (r *Registry) Default() string { return r.def }

// Resolve returns the canonical model name and its generator. An empty
// name selects the default model.
func (r *Registry) Resolve(name string) (string, Generator, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = r.def
	}
	if !config.IsSupportedModel(name) {
		return "", nil, fmt.Errorf("%w: unsupported model %q (choose one of: %s)",
			domain.ErrValidation, name, strings.Join(config.SupportedModels(), ", "))
	}
	r.mu.RLock()
	g, ok := r.gens[name]
	r.mu.RUnlock()
	if !ok {
		return "", nil, fmt.Errorf("%w: model %q is not configured", domain.ErrValidation, name)
	}
	return name, g, nil
}

// Names lists the registered model names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.gens))
	for n := range r.gens {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
