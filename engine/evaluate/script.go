package evaluate

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/tacticalcatboy/legit-rag/engine/domain"
	"github.com/tacticalcatboy/legit-rag/engine/ledger"
	"github.com/tacticalcatboy/legit-rag/engine/workflow"
)

// Check scores a step from its recorded input and output.
type Check func(input, output map[string]any) (score float64, feedback string)

// ScriptEvaluator runs a Check chosen by step name.
type ScriptEvaluator struct {
	checks map[string]Check
}

// NewScriptEvaluator uses checks, or DefaultChecks when checks is nil.
func NewScriptEvaluator(checks map[string]Check) *ScriptEvaluator {
	if checks == nil {
		checks = DefaultChecks()
	}
	return &ScriptEvaluator{checks: checks}
}

func (s *ScriptEvaluator) Evaluate(_ context.Context, step ledger.StepRecord) (Evaluation, error) {
	check, ok := s.checks[step.StepName]
	if !ok {
		return Evaluation{}, fmt.Errorf("%w %q", ErrNoCheck, step.StepName)
	}
	e := Evaluation{
		StepID:   step.StepID,
		StepName: step.StepName,
		Metadata: map[string]any{"evaluation_type": "script"},
	}
	if !step.Success {
		e.Feedback = "step failed: " + step.Error
		return e, nil
	}
	e.Score, e.Feedback = check(step.Input, step.Output)
	return e, nil
}

// DefaultChecks covers the five pipeline stages.
func DefaultChecks() map[string]Check {
	return map[string]Check{
		workflow.StepRouter:       checkRouter,
		workflow.StepReformulator: checkReformulation,
		workflow.StepRetriever:    checkFusion,
		workflow.StepCompletion:   checkScore,
		workflow.StepAnswer:       checkAnswer,
	}
}

func checkRouter(_, out map[string]any) (float64, string) {
	s, _ := out["intent"].(string)
	if domain.Intent(s).Valid() {
		return 1, "intent " + s
	}
	return 0, fmt.Sprintf("unknown intent %q", s)
}

func checkReformulation(_, out map[string]any) (float64, string) {
	refined, _ := out["refined_text"].(string)
	keywords, _ := out["keywords"].([]any)
	switch {
	case strings.TrimSpace(refined) == "":
		return 0, "refined text is empty"
	case len(keywords) == 0:
		return 0.5, "no keywords; keyword search was skipped"
	}
	return 1, fmt.Sprintf("%d keywords", len(keywords))
}

func checkFusion(_, out map[string]any) (float64, string) {
	cands := candidates(out)
	if len(cands) == 0 {
		return 1, "no candidates"
	}
	seen := map[string]bool{}
	dups, misordered := 0, 0
	for i, c := range cands {
		if seen[c.Text] {
			dups++
		}
		seen[c.Text] = true
		if i > 0 && cands[i-1].Score < c.Score {
			misordered++
		}
	}
	if dups == 0 && misordered == 0 {
		return 1, fmt.Sprintf("%d unique candidates in score order", len(cands))
	}
	bad := float64(dups+misordered) / float64(2*len(cands))
	return 1 - bad, fmt.Sprintf("%d duplicate texts, %d out-of-order candidates", dups, misordered)
}

func checkScore(_, out map[string]any) (float64, string) {
	v, ok := out["score"].(float64)
	if !ok {
		return 0, "score missing"
	}
	if err := domain.CheckScore("score", v); err != nil {
		return 0, err.Error()
	}
	return 1, fmt.Sprintf("score %.2f", v)
}

func checkAnswer(in, out map[string]any) (float64, string) {
	conf, ok := out["confidence_score"].(float64)
	if !ok || math.IsNaN(conf) || conf < 0 || conf > 1 {
		return 0, "confidence score missing or out of range"
	}
	cites, _ := out["citations"].([]any)
	if len(cites) == 0 {
		return 0.5, "answer has no citations"
	}
	texts := make([]string, 0)
	for _, c := range candidates(in) {
		texts = append(texts, c.Text)
	}
	grounded := 0
	for _, c := range cites {
		m, _ := c.(map[string]any)
		quote, _ := m["text"].(string)
		for _, t := range texts {
			if quote != "" && strings.Contains(t, quote) {
				grounded++
				break
			}
		}
	}
	score := float64(grounded) / float64(len(cites))
	return score, fmt.Sprintf("%d of %d citations grounded in context", grounded, len(cites))
}

// candidates reads the "candidates" list of a snapshot.
func candidates(snap map[string]any) []domain.Candidate {
	list, _ := snap["candidates"].([]any)
	out := make([]domain.Candidate, 0, len(list))
	for _, item := range list {
		m, _ := item.(map[string]any)
		text, _ := m["text"].(string)
		score, _ := m["score"].(float64)
		out = append(out, domain.Candidate{Text: text, Score: score})
	}
	return out
}
