package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaConfig configures a locally-run model served by Ollama.
type OllamaConfig struct {
	ServerURL string
	Model     string // Ollama tag, e.g. "llama3.1:latest"
}

// Ollama generates through a local Ollama server.
type Ollama struct {
	llm   llms.Model
	model string
}

// NewOllama builds an Ollama generator. No request is made until Generate.
func NewOllama(cfg OllamaConfig) (*Ollama, error) {
	if cfg.ServerURL == "" {
		cfg.ServerURL = "http://localhost:11434"
	}
	m, err := ollama.New(ollama.WithModel(cfg.Model), ollama.WithServerURL(cfg.ServerURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}
	return &Ollama{llm: m, model: cfg.Model}, nil
}

// Name implements Generator.
func (g *Ollama) Name() string { return "ollama/" + g.model }

// Generate implements Generator.
func (g *Ollama) Generate(ctx context.Context, req Request) (string, error) {
	content := make([]llms.MessageContent, 0, 2+2*len(req.History))
	if req.System != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	for _, t := range req.History {
		content = append(content,
			llms.TextParts(llms.ChatMessageTypeHuman, t.Question),
			llms.TextParts(llms.ChatMessageTypeAI, t.Answer),
		)
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	resp, err := g.llm.GenerateContent(ctx, content)
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Content, nil
}
