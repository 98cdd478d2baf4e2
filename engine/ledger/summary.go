package ledger

import (
	"sort"
	"time"
)

// Summary aggregates a set of traces for the stats endpoint and CLI.
type Summary struct {
	Workflows   int            `json:"workflows"`
	Succeeded   int            `json:"succeeded"`
	SuccessRate float64        `json:"success_rate"`
	Outcomes    map[string]int `json:"outcomes"`
	MeanMS      float64        `json:"mean_duration_ms"`
	Steps       []StepSummary  `json:"steps"`
}

// StepSummary aggregates the invocations of one stage.
type StepSummary struct {
	Name        string  `json:"step_name"`
	Count       int     `json:"count"`
	Failures    int     `json:"failures"`
	SuccessRate float64 `json:"success_rate"`
	MeanMS      float64 `json:"mean_duration_ms"`
	MaxMS       float64 `json:"max_duration_ms"`
}

func Summarize(traces []Trace) Summary {
	sum := Summary{Outcomes: make(map[string]int)}
	byStep := make(map[string]*StepSummary)
	var totalMS float64

	for _, t := range traces {
		sum.Workflows++
		if t.Workflow.Success {
			sum.Succeeded++
		}
		sum.Outcomes[t.Workflow.Outcome]++
		totalMS += float64(t.Workflow.Duration()) / float64(time.Millisecond)

		for _, st := range t.Steps {
			agg, ok := byStep[st.StepName]
			if !ok {
				agg = &StepSummary{Name: st.StepName}
				byStep[st.StepName] = agg
			}
			agg.Count++
			if !st.Success {
				agg.Failures++
			}
			agg.MeanMS += st.DurationMS
			agg.MaxMS = max(agg.MaxMS, st.DurationMS)
		}
	}

	if sum.Workflows > 0 {
		sum.SuccessRate = float64(sum.Succeeded) / float64(sum.Workflows)
		sum.MeanMS = totalMS / float64(sum.Workflows)
	}
	for _, agg := range byStep {
		agg.SuccessRate = float64(agg.Count-agg.Failures) / float64(agg.Count)
		agg.MeanMS /= float64(agg.Count)
		sum.Steps = append(sum.Steps, *agg)
	}
	sort.Slice(sum.Steps, func(i, j int) bool { return sum.Steps[i].Name < sum.Steps[j].Name })
	return sum
}
