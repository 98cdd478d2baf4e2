package evaluate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tacticalcatboy/legit-rag/engine/docstore"
	"github.com/tacticalcatboy/legit-rag/engine/domain"
	"github.com/tacticalcatboy/legit-rag/engine/ledger"
	"github.com/tacticalcatboy/legit-rag/engine/retrieve"
	"github.com/tacticalcatboy/legit-rag/engine/stage"
	"github.com/tacticalcatboy/legit-rag/engine/workflow"
	"github.com/tacticalcatboy/legit-rag/pkg/llm"
)

func runWorkflow(t *testing.T, query string) (ledger.Store, string) {
	t.Helper()
	h := retrieve.NewHybrid(docstore.NewMemory(), retrieve.HashEmbedder{})
	_, err := h.AddDocuments(context.Background(), []domain.Document{
		{Text: "Python was created by Guido van Rossum. It was released in 1991.", Metadata: map[string]any{"source": "wiki"}},
		{Text: "OpenAI was founded in 2015.", Metadata: map[string]any{"source": "news"}},
	})
	require.NoError(t, err)

	store := ledger.NewMemoryStore()
	o, err := workflow.New(workflow.Stages{
		Router:       stage.RuleRouter{},
		Reformulator: stage.KeywordReformulator{},
		Retriever:    h,
		Checker:      stage.OverlapChecker{},
		Generator:    stage.ExtractiveGenerator{},
	}, store)
	require.NoError(t, err)
	res, err := o.Process(context.Background(), query)
	require.NoError(t, err)
	return store, res.Workflow.WorkflowID
}

func TestEvaluateWorkflowWithDefaultChecks(t *testing.T) {
	store, id := runWorkflow(t, "Who created Python?")

	rep, err := EvaluateWorkflow(context.Background(), store, NewScriptEvaluator(nil), id, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "done", rep.Outcome)
	require.Len(t, rep.Steps, 5)
	for _, e := range rep.Steps {
		assert.Equal(t, 1.0, e.Score, "%s: %s", e.StepName, e.Feedback)
		assert.Equal(t, "script", e.Metadata["evaluation_type"])
	}
	assert.Equal(t, 1.0, rep.Mean)
}

func TestEvaluateWorkflowSkipsUncheckedSteps(t *testing.T) {
	store, id := runWorkflow(t, "Who created Python?")
	ev := NewScriptEvaluator(map[string]Check{
		workflow.StepRouter: func(_, _ map[string]any) (float64, string) { return 0.25, "custom" },
	})

	rep, err := EvaluateWorkflow(context.Background(), store, ev, id, nil)
	require.NoError(t, err)
	require.Len(t, rep.Steps, 1)
	assert.Equal(t, 0.25, rep.Mean)
	assert.Equal(t, "custom", rep.Steps[0].Feedback)
}

func TestEvaluateWorkflowMissing(t *testing.T) {
	_, err := EvaluateWorkflow(context.Background(), ledger.NewMemoryStore(), NewScriptEvaluator(nil), "nope", nil)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestScriptEvaluatorFailedStep(t *testing.T) {
	e, err := NewScriptEvaluator(nil).Evaluate(context.Background(), ledger.StepRecord{
		StepID: "s1", StepName: workflow.StepRouter, Success: false, Error: "backend down",
	})
	require.NoError(t, err)
	assert.Zero(t, e.Score)
	assert.Equal(t, "step failed: backend down", e.Feedback)

	_, err = NewScriptEvaluator(nil).Evaluate(context.Background(), ledger.StepRecord{StepName: "other", Success: true})
	assert.ErrorIs(t, err, ErrNoCheck)
}

func TestDefaultChecks(t *testing.T) {
	cand := func(text string, score float64) any { return map[string]any{"text": text, "score": score} }
	tests := []struct {
		name    string
		check   Check
		in, out map[string]any
		want    float64
	}{
		{"router ok", checkRouter, nil, map[string]any{"intent": "CLARIFY"}, 1},
		{"router bad", checkRouter, nil, map[string]any{"intent": "MAYBE"}, 0},
		{"reformulation ok", checkReformulation, nil, map[string]any{"refined_text": "q", "keywords": []any{"a"}}, 1},
		{"reformulation no keywords", checkReformulation, nil, map[string]any{"refined_text": "q", "keywords": []any{}}, 0.5},
		{"reformulation empty", checkReformulation, nil, map[string]any{"refined_text": " "}, 0},
		{"fusion ok", checkFusion, nil, map[string]any{"candidates": []any{cand("a", 1), cand("b", 0.5)}}, 1},
		{"fusion duplicate", checkFusion, nil, map[string]any{"candidates": []any{cand("a", 1), cand("a", 1)}}, 0.75},
		{"fusion misordered", checkFusion, nil, map[string]any{"candidates": []any{cand("a", 0.1), cand("b", 0.9)}}, 0.75},
		{"score ok", checkScore, nil, map[string]any{"score": 0.3}, 1},
		{"score out of range", checkScore, nil, map[string]any{"score": 1.3}, 0},
		{"score missing", checkScore, nil, map[string]any{}, 0},
		{
			"answer half grounded", checkAnswer,
			map[string]any{"candidates": []any{cand("Python was released in 1991.", 1)}},
			map[string]any{"confidence_score": 0.9, "citations": []any{
				map[string]any{"text": "released in 1991"},
				map[string]any{"text": "invented in 1980"},
			}},
			0.5,
		},
		{"answer no citations", checkAnswer, nil, map[string]any{"confidence_score": 0.9, "citations": []any{}}, 0.5},
		{"answer bad confidence", checkAnswer, nil, map[string]any{"confidence_score": 2.0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, feedback := tt.check(tt.in, tt.out)
			assert.Equal(t, tt.want, got, feedback)
			assert.NotEmpty(t, feedback)
		})
	}
}

type judge struct {
	reply  string
	err    error
	prompt string
	opts   llm.Options
}

func (j *judge) Generate(_ context.Context, prompt string, opts ...llm.Option) (string, error) {
	j.prompt = prompt
	j.opts = llm.Apply(llm.Options{}, opts...)
	return j.reply, j.err
}

func (j *judge) Chat(ctx context.Context, h []llm.Message, opts ...llm.Option) (string, error) {
	return j.Generate(ctx, h[len(h)-1].Content, opts...)
}

func TestLLMEvaluator(t *testing.T) {
	j := &judge{reply: "```json\n{\"score\": 0.8, \"feedback\": \"Reasonable routing.\"}\n```"}
	e, err := LLMEvaluator{Provider: j, Model: "judge-model"}.Evaluate(context.Background(), ledger.StepRecord{
		StepID: "s1", StepName: workflow.StepRouter, Success: true,
		Input: map[string]any{"query": "Who created Python?"}, Output: map[string]any{"intent": "ANSWER"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.8, e.Score)
	assert.Equal(t, "Reasonable routing.", e.Feedback)
	assert.Equal(t, map[string]any{"evaluation_type": "llm", "model": "judge-model"}, e.Metadata)
	assert.Equal(t, "judge-model", j.opts.Model)
	assert.Contains(t, j.prompt, `"query":"Who created Python?"`)
	assert.Contains(t, j.prompt, "intent classification")
}

func TestLLMEvaluatorErrors(t *testing.T) {
	step := ledger.StepRecord{StepID: "s1", StepName: "custom", Success: true}

	_, err := LLMEvaluator{Provider: &judge{reply: `{"score": 3, "feedback": "x"}`}}.Evaluate(context.Background(), step)
	assert.ErrorIs(t, err, domain.ErrMalformedOutput)

	_, err = LLMEvaluator{Provider: &judge{reply: "great job"}}.Evaluate(context.Background(), step)
	assert.ErrorIs(t, err, domain.ErrMalformedOutput)

	boom := errors.New("timeout")
	_, err = LLMEvaluator{Provider: &judge{err: boom}}.Evaluate(context.Background(), step)
	assert.ErrorIs(t, err, boom)
}
