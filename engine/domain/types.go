// Package domain holds the value types that flow between pipeline stages.
package domain

import (
	"fmt"
	"math"
	"strings"
)

// Intent is the router's verdict on how a query should be handled.
type Intent string

const (
	IntentAnswer  Intent = "ANSWER"
	IntentClarify Intent = "CLARIFY"
	IntentReject  Intent = "REJECT"
)

// Valid reports whether i is one of the three known intents.
func (i Intent) Valid() bool {
	return i == IntentAnswer || i == IntentClarify || i == IntentReject
}

// ParseIntent maps a backend label onto an Intent. Surrounding whitespace,
// quotes and case are ignored; anything else outside the three labels is an
// ErrUnknownIntent.
func ParseIntent(label string) (Intent, error) {
	s := strings.ToUpper(strings.Trim(strings.TrimSpace(label), "\"'`."))
	if Intent(s).Valid() {
		return Intent(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownIntent, label)
}

// ReformulatedQuery is the retriever-facing rewrite of a query.
type ReformulatedQuery struct {
	RefinedText string   `json:"refined_text"`
	Keywords    []string `json:"keywords"`
}

// Candidate is a single retrieved passage. Its Text is its identity.
type Candidate struct {
	Text      string         `json:"text"`
	Embedding []float32      `json:"embedding,omitempty"`
	Metadata  map[string]any `json:"metadata"`
	Score     float64        `json:"score"`
}

// Document is an ingestible unit of the knowledge base.
type Document struct {
	Text     string         `json:"text" yaml:"text"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Citation quotes a candidate passage in support of an answer.
type Citation struct {
	Text           string         `json:"text"`
	RelevanceScore float64        `json:"relevance_score"`
	Metadata       map[string]any `json:"metadata"`
}

// Answer is the terminal artifact of a successful pipeline run.
type Answer struct {
	Text       string     `json:"answer"`
	Citations  []Citation `json:"citations"`
	Confidence float64    `json:"confidence_score"`
}

// CheckScore returns ErrScoreOutOfRange unless v is a finite value in [0,1].
func CheckScore(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%w: %s=%v", ErrScoreOutOfRange, name, v)
	}
	return nil
}

// Texts returns the candidate texts in order.
func Texts(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Text
	}
	return out
}
