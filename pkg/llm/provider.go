// Package llm defines the backend-agnostic contract for text generation and
// embedding used by the pipeline stages.
package llm

import "context"

// Message is one turn of a chat exchange.
type Message struct {
	Role    string // "system", "user" or "assistant"
	Content string
}

// Options tune a single generation call.
type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string // overrides the provider default
	JSON        bool   // ask the backend for a JSON object
}

type Option func(*Options)

func WithTemperature(t float64) Option { return func(o *Options) { o.Temperature = t } }
func WithMaxTokens(n int) Option { return func(o *Options) { o.MaxTokens = n } }
func WithModel(m string) Option { return func(o *Options) { o.Model = m } }

// WithJSON requests structured JSON output.
func WithJSON() Option { return func(o *Options) { o.JSON = true } }

// Apply folds opts over defaults.
func Apply(defaults Options, opts ...Option) Options {
	for _, opt := range opts {
		opt(&defaults)
	}
	return defaults
}

// Provider generates text.
type Provider interface {
	Chat(ctx context.Context, history []Message, opts ...Option) (string, error)
	Generate(ctx context.Context, prompt string, opts ...Option) (string, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
