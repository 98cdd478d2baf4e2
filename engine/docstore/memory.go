package docstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Store. Searches scan every point.
type Memory struct {
	mu     sync.RWMutex
	points map[uint64]Point
	dims   int
}

func NewMemory() *Memory {
	return &Memory{points: make(map[uint64]Point)}
}

func (m *Memory) Upsert(_ context.Context, points []Point) error {
	if err := validatePoints(points); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(points) == 0 {
		return nil
	}
	dims := m.dims
	if dims == 0 {
		dims = len(points[0].Vector)
	}
	for _, p := range points {
		if len(p.Vector) != dims {
			return fmt.Errorf("%w: point %d has %d, store has %d", ErrDimension, p.ID, len(p.Vector), dims)
		}
	}
	m.dims = dims
	for _, p := range points {
		m.points[p.ID] = Point{ID: p.ID, Vector: slices.Clone(p.Vector), Payload: maps.Clone(p.Payload)}
	}
	return nil
}

// Len returns the number of stored points.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}

func (m *Memory) SearchByVector(_ context.Context, vec []float32, k int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.points) == 0 {
		return []Hit{}, nil
	}
	if len(vec) != m.dims {
		return nil, fmt.Errorf("%w: query has %d, store has %d", ErrDimension, len(vec), m.dims)
	}
	hits := make([]Hit, 0, len(m.points))
	for _, id := range m.ids() {
		p := m.points[id]
		hits = append(hits, hit(p, cosine(vec, p.Vector)))
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return hits[:min(k, len(hits))], nil
}

// SearchByText matches terms case-insensitively as substrings, in id order.
func (m *Memory) SearchByText(_ context.Context, terms []string, k int) ([]Hit, error) {
	lowered := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			lowered = append(lowered, t)
		}
	}
	hits := []Hit{}
	if k <= 0 || len(lowered) == 0 {
		return hits, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.ids() {
		p := m.points[id]
		text := strings.ToLower(p.Text())
		if slices.ContainsFunc(lowered, func(t string) bool { return strings.Contains(text, t) }) {
			hits = append(hits, hit(p, 0))
			if len(hits) == k {
				break
			}
		}
	}
	return hits, nil
}

func (m *Memory) ids() []uint64 {
	return slices.Sorted(maps.Keys(m.points))
}

func hit(p Point, score float64) Hit {
	return Hit{ID: p.ID, Score: score, Payload: maps.Clone(p.Payload), Vector: slices.Clone(p.Vector)}
}
