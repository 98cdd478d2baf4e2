package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tacticalcatboy/legit-rag/engine/domain"
	"github.com/tacticalcatboy/legit-rag/pkg/fn"
	"github.com/tacticalcatboy/legit-rag/pkg/llm"
	"github.com/tacticalcatboy/legit-rag/pkg/resilience"
)

func TestChatSendsRequest(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(chatResponse{Message: chatMessage{Role: "assistant", Content: "ANSWER"}, Done: true})
	}))
	defer srv.Close()

	c := NewChatClient(Config{BaseURL: srv.URL}, "llama3.1:8b")
	out, err := c.Generate(context.Background(), "classify", llm.WithJSON(), llm.WithMaxTokens(8))
	require.NoError(t, err)
	assert.Equal(t, "ANSWER", out)
	assert.Equal(t, "llama3.1:8b", got.Model)
	assert.Equal(t, "json", got.Format)
	assert.False(t, got.Stream)
	assert.Equal(t, 8, got.Options.NumPredict)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
}

func TestChatModelOverride(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"ok"}}`))
	}))
	defer srv.Close()

	_, err := NewChatClient(Config{BaseURL: srv.URL}, "a").Generate(context.Background(), "p", llm.WithModel("b"))
	require.NoError(t, err)
	assert.Equal(t, "b", got.Model)
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		_, _ = w.Write([]byte(`{"embedding":[0.5,-1,2]}`))
	}))
	defer srv.Close()

	v, err := NewEmbedClient(Config{BaseURL: srv.URL}, "nomic-embed-text").Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -1, 2}, v)
}

func TestEmbedEmptyIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[]}`))
	}))
	defer srv.Close()

	_, err := NewEmbedClient(Config{BaseURL: srv.URL}, "m").Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrMalformedOutput)
}

func TestGuardRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"message":{"content":"REJECT"}}`))
	}))
	defer srv.Close()

	guard := &resilience.Guard{
		Breaker: resilience.NewBreaker(resilience.BreakerOpts{}),
		Limiter: resilience.NewLimiter(resilience.LimiterOpts{}),
		Retry:   fn.RetryOpts{MaxAttempts: 2, InitialWait: time.Millisecond, Retryable: retryable},
	}
	out, err := NewChatClient(Config{BaseURL: srv.URL, Guard: guard}, "m").Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "REJECT", out)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "no such model", http.StatusNotFound)
	}))
	defer srv.Close()

	guard := &resilience.Guard{Retry: fn.RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond, Retryable: retryable}}
	_, err := NewChatClient(Config{BaseURL: srv.URL, Guard: guard}, "m").Generate(context.Background(), "p")
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
