// Package stage provides the pipeline stage implementations: LLM-backed
// stages over an llm.Provider and deterministic rule-based stages.
package stage

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/tacticalcatboy/legit-rag/engine/domain"
	"github.com/tacticalcatboy/legit-rag/pkg/fn"
	"github.com/tacticalcatboy/legit-rag/pkg/llm"
)

// LLMRouter classifies intent with a single short generation.
type LLMRouter struct {
	Provider llm.Provider
}

func (r LLMRouter) Route(ctx context.Context, query string) (domain.Intent, error) {
	out, err := r.Provider.Generate(ctx, fmt.Sprintf(routerPrompt, query),
		llm.WithTemperature(0), llm.WithMaxTokens(10))
	if err != nil {
		return "", fmt.Errorf("router: %w", err)
	}
	return domain.ParseIntent(out)
}

var reformulationSchema = mustSchema(`{
	"type": "object",
	"properties": {
		"refined_query": {"type": "string", "minLength": 1},
		"refined_text": {"type": "string", "minLength": 1},
		"keywords": {"type": "array", "items": {"type": "string"}}
	},
	"anyOf": [{"required": ["refined_query"]}, {"required": ["refined_text"]}],
	"required": ["keywords"]
}`)

// LLMReformulator asks the backend for a refined query and keywords.
type LLMReformulator struct {
	Provider llm.Provider
}

func (r LLMReformulator) Reformulate(ctx context.Context, query string) (domain.ReformulatedQuery, error) {
	out, err := r.Provider.Generate(ctx, fmt.Sprintf(reformulatorPrompt, query),
		llm.WithTemperature(0), llm.WithJSON())
	if err != nil {
		return domain.ReformulatedQuery{}, fmt.Errorf("reformulator: %w", err)
	}
	var parsed struct {
		RefinedQuery string   `json:"refined_query"`
		RefinedText  string   `json:"refined_text"`
		Keywords     []string `json:"keywords"`
	}
	if err := decodeValidated("reformulation", reformulationSchema, out, &parsed); err != nil {
		return domain.ReformulatedQuery{}, err
	}
	refined := parsed.RefinedQuery
	if refined == "" {
		refined = parsed.RefinedText
	}
	return domain.ReformulatedQuery{
		RefinedText: strings.TrimSpace(refined),
		Keywords:    cleanKeywords(parsed.Keywords),
	}, nil
}

// cleanKeywords trims keywords and drops blanks and case-insensitive duplicates.
func cleanKeywords(ks []string) []string {
	seen := make(map[string]bool, len(ks))
	out := make([]string, 0, len(ks))
	for _, k := range ks {
		k = strings.TrimSpace(k)
		key := strings.ToLower(k)
		if k == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, k)
	}
	return out
}

// LLMCompletionChecker asks the backend for a sufficiency score. Output that
// is not a number in [0,1] is scored 0.
type LLMCompletionChecker struct {
	Provider llm.Provider
	Log      *zap.Logger
}

func (c LLMCompletionChecker) Check(ctx context.Context, query string, candidates []domain.Candidate) (float64, error) {
	out, err := c.Provider.Generate(ctx, fmt.Sprintf(completionPrompt, formatContext(candidates), query),
		llm.WithTemperature(0), llm.WithMaxTokens(10))
	if err != nil {
		return 0, fmt.Errorf("completion checker: %w", err)
	}
	score, ok := parseScore(out)
	if !ok {
		log := c.Log
		if log == nil {
			log = zap.NewNop()
		}
		log.Warn("unscoreable completion output, using 0", zap.String("output", out))
		return 0, nil
	}
	return score, nil
}

func parseScore(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || v < 0 || v > 1 {
		return 0, false
	}
	return v, true
}

var answerSchema = mustSchema(`{
	"type": "object",
	"required": ["answer", "citations", "confidence_score"],
	"properties": {
		"answer": {"type": "string"},
		"confidence_score": {"type": "number", "minimum": 0, "maximum": 1},
		"citations": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["text", "relevance_score"],
				"properties": {
					"text": {"type": "string"},
					"relevance_score": {"type": "number", "minimum": 0, "maximum": 1}
				}
			}
		}
	}
}`)

// LLMAnswerGenerator produces a cited answer. Citations that do not quote a
// candidate are dropped; the rest carry the quoted candidate's metadata.
type LLMAnswerGenerator struct {
	Provider llm.Provider
	Log      *zap.Logger
}

func (g LLMAnswerGenerator) Generate(ctx context.Context, query string, candidates []domain.Candidate) (domain.Answer, error) {
	out, err := g.Provider.Generate(ctx, fmt.Sprintf(answerPrompt, formatContext(candidates), query),
		llm.WithTemperature(0), llm.WithMaxTokens(1000), llm.WithJSON())
	if err != nil {
		return domain.Answer{}, fmt.Errorf("answer generator: %w", err)
	}
	var ans domain.Answer
	if err := decodeValidated("answer", answerSchema, out, &ans); err != nil {
		return domain.Answer{}, err
	}
	grounded, dropped := Ground(ans.Citations, candidates)
	if len(dropped) > 0 {
		log := g.Log
		if log == nil {
			log = zap.NewNop()
		}
		log.Warn("dropped ungrounded citations", zap.Strings("citations", fn.Map(dropped, func(c domain.Citation) string { return c.Text })))
	}
	ans.Citations = grounded
	return ans, nil
}
