// Package evaluate scores recorded pipeline steps, either with deterministic
// checks or by asking an LLM to judge them.
package evaluate

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tacticalcatboy/legit-rag/engine/ledger"
)

// ErrNoCheck means an evaluator has nothing to say about a step.
var ErrNoCheck = errors.New("evaluate: no check for step")

// Evaluation is the verdict on one step.
type Evaluation struct {
	StepID   string         `json:"step_id"`
	StepName string         `json:"step_name"`
	Score    float64        `json:"score"`
	Feedback string         `json:"feedback"`
	Metadata map[string]any `json:"metadata"`
}

type Evaluator interface {
	Evaluate(ctx context.Context, step ledger.StepRecord) (Evaluation, error)
}

// Report is the evaluation of a whole workflow.
type Report struct {
	WorkflowID string       `json:"workflow_id"`
	Query      string       `json:"query"`
	Outcome    string       `json:"outcome"`
	Steps      []Evaluation `json:"steps"`
	Mean       float64      `json:"mean_score"`
}

// EvaluateWorkflow loads a workflow's trace and evaluates each step in
// order. Steps the evaluator has no check for are skipped.
func EvaluateWorkflow(ctx context.Context, store ledger.Store, ev Evaluator, workflowID string, log *zap.Logger) (Report, error) {
	if log == nil {
		log = zap.NewNop()
	}
	trace, err := ledger.LoadTrace(ctx, store, workflowID)
	if err != nil {
		return Report{}, fmt.Errorf("evaluate: load %s: %w", workflowID, err)
	}
	rep := Report{
		WorkflowID: workflowID,
		Query:      trace.Workflow.Query,
		Outcome:    trace.Workflow.Outcome,
		Steps:      []Evaluation{},
	}
	var sum float64
	for _, step := range trace.Steps {
		e, err := ev.Evaluate(ctx, step)
		if errors.Is(err, ErrNoCheck) {
			log.Debug("no evaluation for step", zap.String("step", step.StepName))
			continue
		}
		if err != nil {
			return Report{}, fmt.Errorf("evaluate: step %s: %w", step.StepID, err)
		}
		rep.Steps = append(rep.Steps, e)
		sum += e.Score
	}
	if len(rep.Steps) > 0 {
		rep.Mean = sum / float64(len(rep.Steps))
	}
	return rep, nil
}
