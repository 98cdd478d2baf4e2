package evaluate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/tacticalcatboy/legit-rag/engine/domain"
	"github.com/tacticalcatboy/legit-rag/engine/ledger"
	"github.com/tacticalcatboy/legit-rag/engine/workflow"
	"github.com/tacticalcatboy/legit-rag/pkg/llm"
)

var criteria = map[string]string{
	workflow.StepRouter:       "Was the intent classification appropriate for the query?",
	workflow.StepReformulator: "Is the refined query clearer without being broader, and are the keywords relevant?",
	workflow.StepRetriever:    "Are the retrieved candidates relevant to the query?",
	workflow.StepCompletion:   "Does the score reflect how well the context covers the query?",
	workflow.StepAnswer:       "Is the answer correct, supported by the context, and are the citations accurate quotes?",
}

const judgePrompt = `Evaluate one step of a question-answering pipeline.
Step: %s
Criterion: %s

Input: %s
Output: %s

Return only a JSON object: {"score": <number between 0 and 1>, "feedback": "<one or two sentences>"}`

var verdictSchema = gojsonschema.NewStringLoader(`{
	"type": "object",
	"required": ["score", "feedback"],
	"properties": {
		"score": {"type": "number", "minimum": 0, "maximum": 1},
		"feedback": {"type": "string"}
	}
}`)

// LLMEvaluator asks a model to judge each step.
type LLMEvaluator struct {
	Provider llm.Provider
	Model    string
}

func (e LLMEvaluator) Evaluate(ctx context.Context, step ledger.StepRecord) (Evaluation, error) {
	criterion, ok := criteria[step.StepName]
	if !ok {
		criterion = "Did the step do its job correctly?"
	}
	in, _ := json.Marshal(step.Input)
	out, _ := json.Marshal(step.Output)

	opts := []llm.Option{llm.WithTemperature(0), llm.WithJSON()}
	if e.Model != "" {
		opts = append(opts, llm.WithModel(e.Model))
	}
	raw, err := e.Provider.Generate(ctx, fmt.Sprintf(judgePrompt, step.StepName, criterion, in, out), opts...)
	if err != nil {
		return Evaluation{}, fmt.Errorf("llm evaluator: %w", err)
	}

	doc := strings.TrimSpace(raw)
	if i, j := strings.Index(doc, "{"), strings.LastIndex(doc, "}"); i >= 0 && j > i {
		doc = doc[i : j+1]
	}
	res, err := gojsonschema.Validate(verdictSchema, gojsonschema.NewStringLoader(doc))
	if err != nil {
		return Evaluation{}, domain.Malformed("evaluation", err)
	}
	if !res.Valid() {
		return Evaluation{}, domain.Malformed("evaluation", fmt.Errorf("%v", res.Errors()))
	}
	var verdict struct {
		Score    float64 `json:"score"`
		Feedback string  `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(doc), &verdict); err != nil {
		return Evaluation{}, domain.Malformed("evaluation", err)
	}

	meta := map[string]any{"evaluation_type": "llm"}
	if e.Model != "" {
		meta["model"] = e.Model
	}
	return Evaluation{
		StepID:   step.StepID,
		StepName: step.StepName,
		Score:    verdict.Score,
		Feedback: verdict.Feedback,
		Metadata: meta,
	}, nil
}
