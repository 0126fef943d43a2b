package embedding

import (
	"context"
	"fmt"
	"sort"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// maxInputsPerRequest stays well below the API's per-request input cap.
const maxInputsPerRequest = 256

// OpenAIConfig configures the OpenAI embedder.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string // optional, for compatible gateways
	Model       string // e.g. text-embedding-3-small
	Dimension   int
	RPS         float64 // request pacing, 0 = unlimited
	Concurrency int     // parallel sub-batch requests
}

// OpenAI embeds through the OpenAI embeddings endpoint. Large inputs are
// split into sub-batches sent concurrently (bounded) and paced by a token
// bucket.
type OpenAI struct {
	client  *openai.Client
	model   string
	dim     int
	limiter *rate.Limiter
	workers int
}

// NewOpenAI builds an OpenAI embedder.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 1536
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.RPS > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}
	return &OpenAI{
		client:  openai.NewClientWithConfig(oc),
		model:   cfg.Model,
		dim:     cfg.Dimension,
		limiter: lim,
		workers: cfg.Concurrency,
	}
}

// Dimension implements Embedder.
func (e *OpenAI) Dimension() int { return e.dim }

// Name implements Embedder.
func (e *OpenAI) Name() string { return "openai/" + e.model }

// EmbedQuery implements Embedder.
func (e *OpenAI) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedDocuments implements Embedder. Output order matches input order.
func (e *OpenAI) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for start := 0; start < len(texts); start += maxInputsPerRequest {
		end := min(start+maxInputsPerRequest, len(texts))
		g.Go(func() error {
			vecs, err := e.request(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *OpenAI) request(ctx context.Context, inputs []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: inputs,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(inputs))
	}
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		v := make([]float32, len(d.Embedding))
		copy(v, d.Embedding)
		Normalize(v)
		out[i] = v
	}
	if err := checkDim(out, e.dim); err != nil {
		return nil, err
	}
	return out, nil
}
