package retrieve

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultHashDims is the vector size of HashEmbedder when none is given.
const DefaultHashDims = 256

// HashEmbedder is an offline llm.Embedder. Each lowercased word is hashed
// into one of Dims buckets with a sign taken from the hash, and the result
// is L2-normalized. Texts sharing words get positive cosine similarity.
type HashEmbedder struct {
	Dims int
}

func (e HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	dims := e.Dims
	if dims <= 0 {
		dims = DefaultHashDims
	}
	vec := make([]float32, dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New64a()
		h.Write([]byte(w))
		sum := h.Sum64()
		sign := float32(1)
		if sum>>63 == 1 {
			sign = -1
		}
		vec[sum%uint64(dims)] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}
