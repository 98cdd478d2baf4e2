package stage

import (
	"maps"
	"strings"

	"github.com/tacticalcatboy/legit-rag/engine/domain"
)

// Ground keeps the citations whose text occurs in some candidate, giving each
// the metadata of the first such candidate. The rest are returned as dropped.
func Ground(citations []domain.Citation, candidates []domain.Candidate) (grounded, dropped []domain.Citation) {
	grounded = make([]domain.Citation, 0, len(citations))
	for _, c := range citations {
		c.Text = strings.TrimSpace(c.Text)
		src, ok := source(c.Text, candidates)
		if !ok {
			dropped = append(dropped, c)
			continue
		}
		c.Metadata = maps.Clone(src.Metadata)
		if c.Metadata == nil {
			c.Metadata = map[string]any{}
		}
		grounded = append(grounded, c)
	}
	return grounded, dropped
}

// IsGrounded reports whether every citation of a occurs in some candidate.
func IsGrounded(a domain.Answer, candidates []domain.Candidate) bool {
	for _, c := range a.Citations {
		if _, ok := source(c.Text, candidates); !ok {
			return false
		}
	}
	return true
}

func source(quote string, candidates []domain.Candidate) (domain.Candidate, bool) {
	if quote == "" {
		return domain.Candidate{}, false
	}
	for _, cand := range candidates {
		if strings.Contains(cand.Text, quote) {
			return cand, true
		}
	}
	return domain.Candidate{}, false
}
