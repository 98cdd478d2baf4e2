// Package retrieve implements the hybrid retriever: a semantic search and a
// keyword search against one document store, fused into a single ranking.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tacticalcatboy/legit-rag/engine/docstore"
	"github.com/tacticalcatboy/legit-rag/engine/domain"
	"github.com/tacticalcatboy/legit-rag/pkg/fn"
	"github.com/tacticalcatboy/legit-rag/pkg/llm"
	"github.com/tacticalcatboy/legit-rag/pkg/metrics"
)

const (
	// DefaultTopK is the number of results requested from each search.
	DefaultTopK = 5
	// KeywordScore is the fixed score of every keyword hit.
	KeywordScore = 1.0

	defaultWorkers = 4
)

// Hybrid is the retriever stage. It is safe for concurrent use.
type Hybrid struct {
	store    docstore.Store
	embedder llm.Embedder
	topK     int
	workers  int
	log      *zap.Logger
	metrics  *metrics.Pipeline
}

type Option func(*Hybrid)

func WithTopK(k int) Option { return func(h *Hybrid) { h.topK = k } }
func WithWorkers(n int) Option { return func(h *Hybrid) { h.workers = n } }
func WithLogger(l *zap.Logger) Option { return func(h *Hybrid) { h.log = l } }
func WithMetrics(m *metrics.Pipeline) Option { return func(h *Hybrid) { h.metrics = m } }

func NewHybrid(store docstore.Store, embedder llm.Embedder, opts ...Option) *Hybrid {
	h := &Hybrid{store: store, embedder: embedder, topK: DefaultTopK, workers: defaultWorkers, log: zap.NewNop()}
	for _, o := range opts {
		o(h)
	}
	if h.topK <= 0 {
		h.topK = DefaultTopK
	}
	return h
}

// Retrieve runs both searches concurrently and fuses their results. Either
// search failing fails the retrieval.
func (h *Hybrid) Retrieve(ctx context.Context, q domain.ReformulatedQuery) ([]domain.Candidate, error) {
	var semantic, keyword []domain.Candidate
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		semantic, err = h.SemanticSearch(gctx, q.RefinedText, h.topK)
		return err
	})
	g.Go(func() error {
		var err error
		keyword, err = h.KeywordSearch(gctx, q.Keywords, h.topK)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := Fuse(semantic, keyword)
	h.log.Debug("retrieved",
		zap.Int("semantic", len(semantic)),
		zap.Int("keyword", len(keyword)),
		zap.Int("fused", len(fused)))
	return fused, nil
}

// SemanticSearch embeds text and returns up to k nearest documents, scored
// by similarity.
func (h *Hybrid) SemanticSearch(ctx context.Context, text string, k int) ([]domain.Candidate, error) {
	vec, err := h.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("retrieve: embed query: %w", err)
	}
	hits, err := h.store.SearchByVector(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("retrieve: semantic search: %w", err)
	}
	return fn.Map(hits, func(hit docstore.Hit) domain.Candidate { return candidate(hit, hit.Score) }), nil
}

// KeywordSearch returns up to k documents containing any keyword, each
// scored KeywordScore. No keywords means no results, not an error.
func (h *Hybrid) KeywordSearch(ctx context.Context, keywords []string, k int) ([]domain.Candidate, error) {
	terms := fn.Filter(keywords, func(s string) bool { return strings.TrimSpace(s) != "" })
	if len(terms) == 0 {
		return []domain.Candidate{}, nil
	}
	hits, err := h.store.SearchByText(ctx, terms, k)
	if err != nil {
		return nil, fmt.Errorf("retrieve: keyword search: %w", err)
	}
	return fn.Map(hits, func(hit docstore.Hit) domain.Candidate { return candidate(hit, KeywordScore) }), nil
}

// AddDocuments embeds docs and upserts them under ids derived from their
// position in docs, so re-adding the same list replaces it. It returns the
// number of documents stored.
func (h *Hybrid) AddDocuments(ctx context.Context, docs []domain.Document) (int, error) {
	return h.AddDocumentsAt(ctx, 0, docs)
}

// AddDocumentsAt is AddDocuments for a slice of a larger corpus that starts
// at position offset.
func (h *Hybrid) AddDocumentsAt(ctx context.Context, offset uint64, docs []domain.Document) (int, error) {
	normalized := make([]domain.Document, len(docs))
	for i, d := range docs {
		n, err := domain.NormalizeDocument(d)
		if err != nil {
			return 0, fmt.Errorf("retrieve: document %d: %w", i, err)
		}
		normalized[i] = n
	}
	if len(normalized) == 0 {
		return 0, nil
	}

	vecs := fn.ParMapResult(ctx, normalized, h.workers, func(ctx context.Context, d domain.Document) fn.Result[[]float32] {
		return fn.FromPair(h.embedder.Embed(ctx, d.Text))
	})
	points := make([]docstore.Point, len(normalized))
	var errs []error
	for i, r := range vecs {
		vec, err := r.Unwrap()
		if err != nil {
			errs = append(errs, fmt.Errorf("document %d: %w", i, err))
			continue
		}
		payload := maps.Clone(normalized[i].Metadata)
		payload[docstore.TextKey] = normalized[i].Text
		points[i] = docstore.Point{ID: offset + uint64(i), Vector: vec, Payload: payload}
	}
	if err := errors.Join(errs...); err != nil {
		return 0, fmt.Errorf("retrieve: embed documents: %w", err)
	}

	if err := h.store.Upsert(ctx, points); err != nil {
		return 0, fmt.Errorf("retrieve: upsert: %w", err)
	}
	h.metrics.AddIngested(len(points))
	h.log.Info("documents added", zap.Int("count", len(points)))
	return len(points), nil
}

// candidate splits a hit's payload into text and metadata.
func candidate(hit docstore.Hit, score float64) domain.Candidate {
	meta := make(map[string]any, len(hit.Payload))
	for k, v := range hit.Payload {
		if k != docstore.TextKey {
			meta[k] = v
		}
	}
	return domain.Candidate{Text: hit.Text(), Embedding: hit.Vector, Metadata: meta, Score: score}
}
