package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Trace is a workflow with its steps resolved, in execution order.
type Trace struct {
	Workflow WorkflowRecord `json:"workflow"`
	Steps    []StepRecord   `json:"steps"`
}

// LoadTrace resolves a workflow's step references. A reference to a step
// that is not in the store yields ErrDanglingStep.
func LoadTrace(ctx context.Context, s Store, workflowID string) (Trace, error) {
	w, err := s.Workflow(ctx, workflowID)
	if err != nil {
		return Trace{}, err
	}
	return resolve(ctx, s, w)
}

// LoadTraces resolves every workflow started within r.
func LoadTraces(ctx context.Context, s Store, r Range) ([]Trace, error) {
	ws, err := s.Workflows(ctx, r)
	if err != nil {
		return nil, err
	}
	out := make([]Trace, 0, len(ws))
	for _, w := range ws {
		t, err := resolve(ctx, s, w)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func resolve(ctx context.Context, s Store, w WorkflowRecord) (Trace, error) {
	t := Trace{Workflow: w, Steps: make([]StepRecord, 0, len(w.StepIDs))}
	for _, id := range w.StepIDs {
		step, err := s.Step(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return Trace{}, fmt.Errorf("%w: workflow %s step %s", ErrDanglingStep, w.WorkflowID, id)
		}
		if err != nil {
			return Trace{}, err
		}
		t.Steps = append(t.Steps, step)
	}
	return t, nil
}
