package stage

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/tacticalcatboy/legit-rag/engine/domain"
	"github.com/tacticalcatboy/legit-rag/pkg/fn"
)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "can": true, "shall": true, "to": true,
	"of": true, "in": true, "for": true, "on": true, "with": true,
	"at": true, "by": true, "from": true, "as": true, "into": true,
	"through": true, "during": true, "before": true, "after": true,
	"what": true, "where": true, "when": true, "how": true, "which": true,
	"who": true, "whom": true, "why": true, "this": true, "that": true,
	"these": true, "those": true, "i": true, "me": true, "my": true,
	"it": true, "its": true, "and": true, "but": true, "or": true,
	"not": true, "you": true, "your": true, "tell": true, "about": true,
	"please": true, "explain": true, "more": true, "some": true, "any": true,
	"there": true, "their": true, "they": true, "them": true, "than": true,
}

// Keywords extracts lowercase content words, dropping stop words, words of
// two characters or fewer, and duplicates.
func Keywords(text string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, "?.,!;:'\"()")
		if len(w) > 2 && !stopWords[w] {
			words = append(words, w)
		}
	}
	return fn.Unique(words)
}

// RuleRouter screens queries with domain.ValidateQuery. Injection and
// profanity are rejected; queries that are too short or carry no content
// words need clarification.
type RuleRouter struct{}

func (RuleRouter) Route(_ context.Context, query string) (domain.Intent, error) {
	err := domain.ValidateQuery(query)
	switch {
	case errors.Is(err, domain.ErrQueryInjection), errors.Is(err, domain.ErrQueryProfanity):
		return domain.IntentReject, nil
	case errors.Is(err, domain.ErrQueryTooShort):
		return domain.IntentClarify, nil
	case err != nil:
		return "", err
	}
	if len(Keywords(query)) == 0 {
		return domain.IntentClarify, nil
	}
	return domain.IntentAnswer, nil
}

// KeywordReformulator keeps the query text and extracts its keywords.
type KeywordReformulator struct{}

func (KeywordReformulator) Reformulate(_ context.Context, query string) (domain.ReformulatedQuery, error) {
	return domain.ReformulatedQuery{
		RefinedText: strings.TrimSpace(query),
		Keywords:    Keywords(query),
	}, nil
}

// OverlapChecker scores the fraction of the query's keywords found in at
// least one candidate.
type OverlapChecker struct{}

func (OverlapChecker) Check(_ context.Context, query string, candidates []domain.Candidate) (float64, error) {
	return coverage(Keywords(query), candidates), nil
}

func coverage(keywords []string, candidates []domain.Candidate) float64 {
	if len(keywords) == 0 || len(candidates) == 0 {
		return 0
	}
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = strings.ToLower(c.Text)
	}
	found := 0
	for _, k := range keywords {
		for _, t := range texts {
			if strings.Contains(t, k) {
				found++
				break
			}
		}
	}
	return float64(found) / float64(len(keywords))
}

// ExtractiveGenerator answers with the candidate sentences that mention the
// query's keywords, citing each verbatim.
type ExtractiveGenerator struct {
	// MaxSentences caps the answer length. Zero means 3.
	MaxSentences int
}

func (g ExtractiveGenerator) Generate(_ context.Context, query string, candidates []domain.Candidate) (domain.Answer, error) {
	if len(candidates) == 0 {
		return domain.Answer{}, domain.ErrNoContext
	}
	limit := g.MaxSentences
	if limit <= 0 {
		limit = 3
	}
	keywords := Keywords(query)

	type pick struct {
		sentence string
		score    float64
		meta     map[string]any
	}
	var picks []pick
	seen := map[string]bool{}
	for _, c := range candidates {
		for _, s := range splitSentences(c.Text) {
			if seen[s] {
				continue
			}
			seen[s] = true
			if score := matchFraction(s, keywords); score > 0 {
				picks = append(picks, pick{sentence: s, score: score, meta: c.Metadata})
			}
		}
	}
	// Keep the best sentences, preserving their order of appearance.
	for len(picks) > limit {
		worst := 0
		for i, p := range picks {
			if p.score < picks[worst].score || (p.score == picks[worst].score && i > worst) {
				worst = i
			}
		}
		picks = append(picks[:worst], picks[worst+1:]...)
	}

	ans := domain.Answer{Citations: []domain.Citation{}, Confidence: coverage(keywords, candidates)}
	if len(picks) == 0 {
		ans.Text = "The available context does not address the question directly."
		return ans, nil
	}
	parts := make([]string, len(picks))
	for i, p := range picks {
		parts[i] = p.sentence
		ans.Citations = append(ans.Citations, domain.Citation{Text: p.sentence, RelevanceScore: p.score, Metadata: p.meta})
	}
	ans.Text = strings.Join(parts, " ")
	ans.Citations, _ = Ground(ans.Citations, candidates)
	return ans, nil
}

func matchFraction(sentence string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(sentence)
	n := 0
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			n++
		}
	}
	return float64(n) / float64(len(keywords))
}

// splitSentences splits text after '.', '!', '?' or a newline when followed
// by whitespace or the end of the text.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if r != '.' && r != '!' && r != '?' && r != '\n' {
			continue
		}
		if r == '\n' || i == len(runes)-1 || unicode.IsSpace(runes[i+1]) {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
