package ledger

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
)

// Example is one fine-tuning sample: a successful stage's input and output.
type Example struct {
	WorkflowID string         `json:"workflow_id"`
	Query      string         `json:"query"`
	StepName   string         `json:"step_name"`
	Input      map[string]any `json:"input"`
	Output     map[string]any `json:"output"`
}

// Examples extracts samples from successful steps of successful workflows,
// optionally limited to the named steps.
func Examples(traces []Trace, steps ...string) []Example {
	var out []Example
	for _, t := range traces {
		if !t.Workflow.Success {
			continue
		}
		for _, st := range t.Steps {
			if !st.Success || (len(steps) > 0 && !slices.Contains(steps, st.StepName)) {
				continue
			}
			out = append(out, Example{
				WorkflowID: t.Workflow.WorkflowID,
				Query:      t.Workflow.Query,
				StepName:   st.StepName,
				Input:      st.Input,
				Output:     st.Output,
			})
		}
	}
	return out
}

// WriteJSONL writes one example per line and returns how many were written.
func WriteJSONL(w io.Writer, examples []Example) (int, error) {
	enc := json.NewEncoder(w)
	for i, ex := range examples {
		if err := enc.Encode(ex); err != nil {
			return i, fmt.Errorf("ledger: export: %w", err)
		}
	}
	return len(examples), nil
}
