package embedding

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	ServerURL string
	Model     string // e.g. nomic-embed-text:latest
	Dimension int
}

// Ollama embeds through a local Ollama server.
type Ollama struct {
	llm   *ollama.LLM
	model string
	dim   int
}

// NewOllama builds an Ollama embedder. It does not contact the server.
func NewOllama(cfg OllamaConfig) (*Ollama, error) {
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text:latest"
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = "http://localhost:11434"
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 768
	}
	llm, err := ollama.New(ollama.WithModel(cfg.Model), ollama.WithServerURL(cfg.ServerURL))
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: %w", err)
	}
	return &Ollama{llm: llm, model: cfg.Model, dim: cfg.Dimension}, nil
}

// Dimension implements Embedder.
func (e *Ollama) Dimension() int { return e.dim }

// Name implements Embedder.
func (e *Ollama) Name() string { return "ollama/" + e.model }

// EmbedDocuments implements Embedder.
func (e *Ollama) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := e.llm.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("ollama embeddings: got %d vectors for %d inputs", len(vecs), len(texts))
	}
	for _, v := range vecs {
		Normalize(v)
	}
	if err := checkDim(vecs, e.dim); err != nil {
		return nil, err
	}
	return vecs, nil
}

// EmbedQuery implements Embedder.
func (e *Ollama) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
