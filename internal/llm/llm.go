// Package llm puts the hosted and locally-run language models behind one
// Generator interface. Which backend answers a request is decided by the
// model name through a Registry.
package llm

import (
	"context"
	"errors"
)

// Turn is one earlier question/answer exchange of a conversation.
type Turn struct {
	Question string
	Answer   string
}

// Request is a fully composed prompt: system instructions, earlier turns
// (oldest first) and the user message for this call.
type Request struct {
	System  string
	History []Turn
	Prompt  string
}

// Generator completes a Request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

// ErrEmptyCompletion is returned when a backend answers with no choices.
var ErrEmptyCompletion = errors.New("model returned no completion")

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Name implements Generator.
func (GeneratorFunc) Name() string { return "func" }
