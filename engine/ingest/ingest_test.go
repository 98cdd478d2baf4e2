package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tacticalcatboy/legit-rag/engine/domain"
)

type recordingAdder struct {
	mu      sync.Mutex
	offsets []uint64
	docs    [][]domain.Document
	err     error
}

func (a *recordingAdder) AddDocumentsAt(_ context.Context, offset uint64, docs []domain.Document) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return 0, a.err
	}
	a.offsets = append(a.offsets, offset)
	a.docs = append(a.docs, docs)
	return len(docs), nil
}

type fakeConn struct {
	published []*nats.Msg
	handler   nats.MsgHandler
	subject   string
}

func (f *fakeConn) PublishMsg(m *nats.Msg) error {
	f.published = append(f.published, m)
	return nil
}

func (f *fakeConn) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	f.subject = subject
	f.handler = cb
	return &nats.Subscription{}, nil
}

func TestIngestNormalizesAndStores(t *testing.T) {
	a := &recordingAdder{}
	ing := New(Deps{Adder: a, Logger: zaptest.NewLogger(t)})

	n, err := ing.Ingest(context.Background(), Batch{Offset: 10, Documents: []domain.Document{
		{Text: "  Python was released in 1991. ", Metadata: map[string]any{"source": "wiki", "text": "shadow"}},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, a.docs, 1)
	assert.Equal(t, uint64(10), a.offsets[0])
	assert.Equal(t, domain.Document{Text: "Python was released in 1991.", Metadata: map[string]any{"source": "wiki"}}, a.docs[0][0])
}

func TestIngestRejectsInvalidBatches(t *testing.T) {
	a := &recordingAdder{}
	ing := New(Deps{Adder: a})

	_, err := ing.Ingest(context.Background(), Batch{})
	assert.ErrorIs(t, err, domain.ErrInvalidDocument)

	_, err = ing.Ingest(context.Background(), Batch{Documents: []domain.Document{{Text: "ok"}, {Text: " "}}})
	assert.ErrorIs(t, err, domain.ErrInvalidDocument)
	assert.Empty(t, a.docs)
}

func TestIngestPropagatesStoreFailure(t *testing.T) {
	ing := New(Deps{Adder: &recordingAdder{err: domain.ErrBackendUnavailable}})
	_, err := ing.Ingest(context.Background(), Batch{Documents: []domain.Document{{Text: "ok"}}})
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}

func TestIngestChunksLongDocuments(t *testing.T) {
	a := &recordingAdder{}
	ing := New(Deps{Adder: a, ChunkSize: 6, Overlap: -1})

	text := "One two three four. Five six seven eight. Nine ten eleven twelve."
	n, err := ing.Ingest(context.Background(), Batch{Documents: []domain.Document{
		{Text: text, Metadata: map[string]any{"source": "book"}},
		{Text: "Short one."},
	}})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	docs := a.docs[0]
	assert.Equal(t, "One two three four.", docs[0].Text)
	assert.Equal(t, "Five six seven eight.", docs[1].Text)
	assert.Equal(t, "Nine ten eleven twelve.", docs[2].Text)
	assert.Equal(t, map[string]any{"source": "book", "chunk_index": 2, "chunk_count": 3}, docs[2].Metadata)
	assert.Equal(t, "Short one.", docs[3].Text)
}

func TestChunkSentencesOverlap(t *testing.T) {
	sentences := []string{"a b c.", "d e f.", "g h i.", "j k l."}
	got := chunkSentences(sentences, 6, 3)
	assert.Equal(t, []string{"a b c. d e f.", "d e f. g h i.", "g h i. j k l."}, got)
	assert.Nil(t, chunkSentences(nil, 6, 0))
	assert.Nil(t, chunkSentences(sentences, 0, 0))
}

func TestChunkSentencesOversizedSentenceStillProgresses(t *testing.T) {
	got := chunkSentences([]string{"one two three four five", "six"}, 2, 5)
	assert.Equal(t, []string{"one two three four five", "six"}, got)
}

func TestSplitSentences(t *testing.T) {
	assert.Equal(t, []string{"Version 3.12 is out.", "Really?", "Yes"}, splitSentences("Version 3.12 is out. Really? Yes"))
	assert.Equal(t, []string{"line one", "line two"}, splitSentences("line one\nline two"))
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name, format, in string
		want             Batch
	}{
		{
			name:   "json object",
			format: "json",
			in:     `{"offset": 2, "documents": [{"text": "a", "metadata": {"source": "x"}}]}`,
			want:   Batch{Offset: 2, Documents: []domain.Document{{Text: "a", Metadata: map[string]any{"source": "x"}}}},
		},
		{
			name:   "json list",
			format: "json",
			in:     ` [{"text": "a"}, {"text": "b"}]`,
			want:   Batch{Documents: []domain.Document{{Text: "a"}, {Text: "b"}}},
		},
		{
			name:   "yaml object",
			format: "yaml",
			in:     "documents:\n  - text: a\n    metadata:\n      source: x\n",
			want:   Batch{Documents: []domain.Document{{Text: "a", Metadata: map[string]any{"source": "x"}}}},
		},
		{
			name:   "yaml list",
			format: "yaml",
			in:     "- text: a\n- text: b\n",
			want:   Batch{Documents: []domain.Document{{Text: "a"}, {Text: "b"}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(strings.NewReader(tt.in), tt.format)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Decode(strings.NewReader("{"), "json")
	assert.Error(t, err)
	_, err = Decode(strings.NewReader("x"), "toml")
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.yml")
	require.NoError(t, os.WriteFile(path, []byte("- text: hello\n"), 0o644))

	b, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []domain.Document{{Text: "hello"}}, b.Documents)

	_, err = LoadFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func batchMsg(t *testing.T, b Batch, retries string) *nats.Msg {
	data, err := json.Marshal(b)
	require.NoError(t, err)
	msg := &nats.Msg{Subject: Subject, Data: data, Header: nats.Header{}}
	if retries != "" {
		msg.Header.Set(retryHeader, retries)
	}
	return msg
}

func TestSubscribeIngests(t *testing.T) {
	a := &recordingAdder{}
	fc := &fakeConn{}
	ing := New(Deps{Adder: a, Logger: zaptest.NewLogger(t)})
	_, err := ing.Subscribe(fc, "")
	require.NoError(t, err)
	assert.Equal(t, Subject, fc.subject)

	fc.handler(batchMsg(t, Batch{Documents: []domain.Document{{Text: "hello"}}}, ""))
	require.Len(t, a.docs, 1)
	assert.Empty(t, fc.published)

	fc.handler(&nats.Msg{Subject: Subject, Data: []byte("not json")})
	assert.Len(t, a.docs, 1)
}

func TestSubscribeRetriesThenDeadLetters(t *testing.T) {
	fc := &fakeConn{}
	ing := New(Deps{Adder: &recordingAdder{err: errors.New("store down")}, Logger: zaptest.NewLogger(t)})
	_, err := ing.Subscribe(fc, "docs")
	require.NoError(t, err)

	b := Batch{Documents: []domain.Document{{Text: "hello"}}}
	fc.handler(batchMsg(t, b, ""))
	require.Len(t, fc.published, 1)
	assert.Equal(t, "docs", fc.published[0].Subject)
	assert.Equal(t, "1", fc.published[0].Header.Get(retryHeader))

	fc.handler(batchMsg(t, b, "2"))
	require.Len(t, fc.published, 2)
	dlq := fc.published[1]
	assert.Equal(t, "docs"+DLQSuffix, dlq.Subject)

	var got dlqMessage
	require.NoError(t, json.Unmarshal(dlq.Data, &got))
	assert.Equal(t, 3, got.Retries)
	assert.Contains(t, got.Error, "store down")
	assert.Equal(t, b, got.Batch)
}
