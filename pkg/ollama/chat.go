package ollama

import (
	"context"

	"github.com/tacticalcatboy/legit-rag/pkg/llm"
)

// ChatClient implements llm.Provider over /api/chat.
type ChatClient struct {
	client
	model string
}

var _ llm.Provider = (*ChatClient)(nil)

// NewChatClient creates a chat client whose default model is model.
func NewChatClient(cfg Config, model string) *ChatClient {
	return &ChatClient{client: newClient(cfg), model: model}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
	Options  chatOptions   `json:"options"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// Chat sends history and returns the assistant reply. Temperature defaults
// to 0 so stage outputs stay as repeatable as the model allows.
func (c *ChatClient) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	o := llm.Apply(llm.Options{Model: c.model}, opts...)

	req := chatRequest{
		Model:    o.Model,
		Messages: make([]chatMessage, len(history)),
		Options:  chatOptions{Temperature: o.Temperature, NumPredict: o.MaxTokens},
	}
	for i, m := range history {
		req.Messages[i] = chatMessage{Role: m.Role, Content: m.Content}
	}
	if o.JSON {
		req.Format = "json"
	}

	var resp chatResponse
	if err := c.post(ctx, "/api/chat", req, &resp); err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// Generate sends a single user prompt.
func (c *ChatClient) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return c.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}
