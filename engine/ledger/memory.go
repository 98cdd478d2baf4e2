package ledger

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps encoded records in process memory. Records are stored
// serialized so callers can never mutate a logged entry.
type MemoryStore struct {
	mu        sync.RWMutex
	steps     map[string][]byte
	workflows map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		steps:     make(map[string][]byte),
		workflows: make(map[string][]byte),
	}
}

func (m *MemoryStore) AppendStep(_ context.Context, rec StepRecord) error {
	if err := rec.validate(); err != nil {
		return err
	}
	data, err := encode(rec)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.steps[rec.StepID]; ok {
		return fmt.Errorf("%w: step %s", ErrDuplicateID, rec.StepID)
	}
	m.steps[rec.StepID] = data
	return nil
}

func (m *MemoryStore) AppendWorkflow(_ context.Context, rec WorkflowRecord) error {
	if err := rec.validate(); err != nil {
		return err
	}
	data, err := encode(rec)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[rec.WorkflowID]; ok {
		return fmt.Errorf("%w: workflow %s", ErrDuplicateID, rec.WorkflowID)
	}
	m.workflows[rec.WorkflowID] = data
	return nil
}

func (m *MemoryStore) Step(_ context.Context, id string) (StepRecord, error) {
	m.mu.RLock()
	data, ok := m.steps[id]
	m.mu.RUnlock()
	if !ok {
		return StepRecord{}, fmt.Errorf("%w: step %s", ErrNotFound, id)
	}
	return decode[StepRecord](data)
}

func (m *MemoryStore) Workflow(_ context.Context, id string) (WorkflowRecord, error) {
	m.mu.RLock()
	data, ok := m.workflows[id]
	m.mu.RUnlock()
	if !ok {
		return WorkflowRecord{}, fmt.Errorf("%w: workflow %s", ErrNotFound, id)
	}
	return decode[WorkflowRecord](data)
}

func (m *MemoryStore) Workflows(_ context.Context, r Range) ([]WorkflowRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []WorkflowRecord
	for _, data := range m.workflows {
		w, err := decode[WorkflowRecord](data)
		if err != nil {
			return nil, err
		}
		if r.Contains(w.StartedAt) {
			out = append(out, w)
		}
	}
	sortWorkflows(out)
	return out, nil
}
