package ingest

import (
	"maps"
	"strings"
	"unicode"

	"github.com/tacticalcatboy/legit-rag/engine/domain"
)

// DefaultOverlap is the number of overlapping words between chunks.
const DefaultOverlap = 20

// splitSentences splits text into sentences using punctuation and newlines.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	runes := []rune(text)

	for i, r := range runes {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			// End of sentence only when followed by whitespace or the end.
			if r == '\n' || i == len(runes)-1 || unicode.IsSpace(runes[i+1]) {
				if s := strings.TrimSpace(current.String()); s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// chunkSentences groups sentences into chunks of about chunkSize words, with
// roughly overlap words repeated between neighbouring chunks.
func chunkSentences(sentences []string, chunkSize, overlap int) []string {
	if len(sentences) == 0 || chunkSize <= 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}

	var chunks []string
	start := 0
	for start < len(sentences) {
		var buf strings.Builder
		words := 0
		end := start
		for end < len(sentences) {
			n := wordCount(sentences[end])
			if words+n > chunkSize && words > 0 {
				break
			}
			if buf.Len() > 0 {
				buf.WriteRune(' ')
			}
			buf.WriteString(sentences[end])
			words += n
			end++
		}
		chunks = append(chunks, buf.String())
		if end == len(sentences) {
			break
		}

		// Step back by the overlap, but always move forward.
		overlapWords := 0
		next := end
		for next > start+1 && overlapWords < overlap {
			next--
			overlapWords += wordCount(sentences[next])
		}
		start = next
	}
	return chunks
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// chunkDocument splits d into chunks of about chunkSize words. Documents that
// already fit are returned unchanged. Each chunk carries the source metadata
// plus chunk_index and chunk_count.
func chunkDocument(d domain.Document, chunkSize, overlap int) []domain.Document {
	if chunkSize <= 0 || wordCount(d.Text) <= chunkSize {
		return []domain.Document{d}
	}
	texts := chunkSentences(splitSentences(d.Text), chunkSize, overlap)
	out := make([]domain.Document, len(texts))
	for i, text := range texts {
		meta := maps.Clone(d.Metadata)
		if meta == nil {
			meta = map[string]any{}
		}
		meta["chunk_index"] = i
		meta["chunk_count"] = len(texts)
		out[i] = domain.Document{Text: text, Metadata: meta}
	}
	return out
}
