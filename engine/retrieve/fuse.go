package retrieve

import (
	"sort"

	"github.com/tacticalcatboy/legit-rag/engine/domain"
)

// Fuse merges semantic and keyword results into one list keyed by text.
// Semantic results go in first. A keyword result is added when its text is
// new and replaces an existing entry only if its score is strictly greater;
// a replaced entry keeps its original position. The merged list is then
// stably sorted by descending score, so ties keep insertion order.
func Fuse(semantic, keyword []domain.Candidate) []domain.Candidate {
	pos := make(map[string]int, len(semantic)+len(keyword))
	out := make([]domain.Candidate, 0, len(semantic)+len(keyword))

	put := func(c domain.Candidate, replaceOnlyIfBetter bool) {
		i, seen := pos[c.Text]
		switch {
		case !seen:
			pos[c.Text] = len(out)
			out = append(out, c)
		case !replaceOnlyIfBetter || c.Score > out[i].Score:
			out[i] = c
		}
	}
	for _, c := range semantic {
		put(c, false)
	}
	for _, c := range keyword {
		put(c, true)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
