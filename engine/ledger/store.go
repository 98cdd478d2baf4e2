package ledger

import (
	"context"
	"sort"
)

// Store persists records by unique id. Appends never overwrite: a second
// append with the same id fails with ErrDuplicateID. Implementations must be
// safe for concurrent use.
type Store interface {
	AppendStep(ctx context.Context, rec StepRecord) error
	AppendWorkflow(ctx context.Context, rec WorkflowRecord) error
	Step(ctx context.Context, id string) (StepRecord, error)
	Workflow(ctx context.Context, id string) (WorkflowRecord, error)
	// Workflows returns the workflows started within r, oldest first.
	Workflows(ctx context.Context, r Range) ([]WorkflowRecord, error)
}

func sortWorkflows(ws []WorkflowRecord) {
	sort.SliceStable(ws, func(i, j int) bool {
		if ws[i].StartedAt.Equal(ws[j].StartedAt) {
			return ws[i].WorkflowID < ws[j].WorkflowID
		}
		return ws[i].StartedAt.Before(ws[j].StartedAt)
	})
}
