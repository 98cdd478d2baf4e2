// Package docstore holds the document backends the hybrid retriever searches:
// an in-process store, Qdrant, and Postgres with pgvector.
package docstore

import (
	"context"
	"errors"
	"math"
)

// TextKey is the payload field that carries a document's text.
const TextKey = "text"

var (
	ErrDimension = errors.New("docstore: vector dimension mismatch")
	ErrEmptyText = errors.New("docstore: point has no text")
)

// Point is one stored document: its vector and its payload. The payload
// holds the text under TextKey next to the caller's metadata.
type Point struct {
	ID      uint64
	Vector  []float32
	Payload map[string]any
}

func (p Point) Text() string {
	s, _ := p.Payload[TextKey].(string)
	return s
}

// Hit is a search result. Score is the similarity for vector searches and
// zero for text matches. Vector is set only by backends that return it.
type Hit struct {
	ID      uint64
	Score   float64
	Payload map[string]any
	Vector  []float32
}

func (h Hit) Text() string {
	s, _ := h.Payload[TextKey].(string)
	return s
}

// Store is the contract the retriever needs from a backend.
type Store interface {
	// Upsert inserts or replaces points by id.
	Upsert(ctx context.Context, points []Point) error
	// SearchByVector returns up to k points ranked by cosine similarity.
	SearchByVector(ctx context.Context, vec []float32, k int) ([]Hit, error)
	// SearchByText returns up to k points whose text contains any of terms.
	SearchByText(ctx context.Context, terms []string, k int) ([]Hit, error)
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func validatePoints(points []Point) error {
	for _, p := range points {
		if p.Text() == "" {
			return ErrEmptyText
		}
	}
	return nil
}
