package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/tacticalcatboy/legit-rag/engine/domain"
	"github.com/tacticalcatboy/legit-rag/engine/evaluate"
	"github.com/tacticalcatboy/legit-rag/engine/ledger"
)

var (
	good = color.New(color.FgGreen).SprintFunc()
	warn = color.New(color.FgYellow).SprintFunc()
	bad  = color.New(color.FgRed).SprintFunc()
)

// outcome colours a workflow outcome.
func outcome(s string) string {
	switch s {
	case "done":
		return good(s)
	case "rejected", "insufficient":
		return warn(s)
	}
	return bad(s)
}

func score(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	switch {
	case v >= 0.7:
		return good(s)
	case v >= 0.4:
		return warn(s)
	}
	return bad(s)
}

func status(ok bool) string {
	if ok {
		return good("ok")
	}
	return bad("failed")
}

func newTable(header ...any) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row(header))
	return t
}

func renderCitations(cs []domain.Citation) string {
	t := newTable("#", "Relevance", "Source", "Text")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 4, WidthMax: 70},
	})
	for i, c := range cs {
		t.AppendRow(table.Row{i + 1, score(c.RelevanceScore), c.Metadata["source"], c.Text})
	}
	return t.Render()
}

func renderWorkflows(ws []ledger.WorkflowRecord) string {
	t := newTable("Workflow", "Started", "Outcome", "Duration", "Query")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, WidthMax: 50},
	})
	for _, w := range ws {
		t.AppendRow(table.Row{
			w.WorkflowID,
			w.StartedAt.Local().Format(time.DateTime),
			outcome(w.Outcome),
			w.Duration().Round(time.Millisecond),
			w.Query,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "total", len(ws)})
	return t.Render()
}

func renderSteps(steps []ledger.StepRecord) string {
	t := newTable("#", "Step", "Status", "Duration", "Error")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, WidthMax: 60},
	})
	for i, s := range steps {
		t.AppendRow(table.Row{i + 1, s.StepName, status(s.Success), s.Duration().Round(time.Microsecond), s.Error})
	}
	return t.Render()
}

func renderSummary(s ledger.Summary) string {
	head := newTable("Workflows", "Succeeded", "Success rate", "Mean duration")
	head.AppendRow(table.Row{s.Workflows, s.Succeeded, score(s.SuccessRate), fmt.Sprintf("%.1f ms", s.MeanMS)})

	outcomes := newTable("Outcome", "Count")
	names := make([]string, 0, len(s.Outcomes))
	for name := range s.Outcomes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		outcomes.AppendRow(table.Row{outcome(name), s.Outcomes[name]})
	}

	steps := newTable("Step", "Count", "Failures", "Success rate", "Mean ms", "Max ms")
	for _, st := range s.Steps {
		steps.AppendRow(table.Row{
			st.Name, st.Count, st.Failures, score(st.SuccessRate),
			fmt.Sprintf("%.1f", st.MeanMS), fmt.Sprintf("%.1f", st.MaxMS),
		})
	}
	return head.Render() + "\n" + outcomes.Render() + "\n" + steps.Render()
}

func renderReport(r evaluate.Report) string {
	t := newTable("Step", "Score", "Feedback")
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 3, WidthMax: 70}})
	for _, e := range r.Steps {
		t.AppendRow(table.Row{e.StepName, score(e.Score), e.Feedback})
	}
	t.AppendFooter(table.Row{"mean", score(r.Mean), ""})
	return t.Render()
}
