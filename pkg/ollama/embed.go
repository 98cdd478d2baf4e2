package ollama

import (
	"context"
	"fmt"

	"github.com/tacticalcatboy/legit-rag/engine/domain"
	"github.com/tacticalcatboy/legit-rag/pkg/llm"
)

// EmbedClient implements llm.Embedder over /api/embeddings.
type EmbedClient struct {
	client
	model string
}

var _ llm.Embedder = (*EmbedClient)(nil)

func NewEmbedClient(cfg Config, model string) *EmbedClient {
	return &EmbedClient{client: newClient(cfg), model: model}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

func (c *EmbedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp embedResponse
	if err := c.post(ctx, "/api/embeddings", embedRequest{Model: c.model, Prompt: text}, &resp); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("ollama embed: %w", domain.Malformed("empty embedding", nil))
	}
	out := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}
