package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Injection patterns: SQL/NoSQL/template fragments and prompt-override phrasing.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(DROP|DELETE|INSERT|UPDATE|ALTER|EXEC|UNION)\b.*\b(TABLE|FROM|INTO|SELECT|SET)\b`),
	regexp.MustCompile(`(?i)(--|;)\s*(DROP|DELETE|SELECT)`),
	regexp.MustCompile(`(?i)\$\{.*\}`),
	regexp.MustCompile(`(?i)\{\s*"\$[a-z]+"\s*:`),
	regexp.MustCompile(`(?i)\bignore\b.{0,20}\b(previous|above|prior)\b.{0,20}\binstructions?\b`),
}

var profanityWords = map[string]bool{
	"fuck": true, "shit": true, "ass": true, "bitch": true,
	"damn": true, "cunt": true, "dick": true, "piss": true,
}

const minQueryLength = 5

// ValidateQuery screens a raw query before it reaches any backend.
func ValidateQuery(query string) error {
	text := strings.TrimSpace(query)

	if utf8.RuneCountInString(text) < minQueryLength {
		return NewValidationError("query", text, ErrQueryTooShort)
	}

	for _, pat := range injectionPatterns {
		if pat.MatchString(text) {
			return NewValidationError("query", text, ErrQueryInjection)
		}
	}

	for _, word := range strings.Fields(strings.ToLower(text)) {
		cleaned := strings.Trim(word, ".,!?;:'\"()-")
		if profanityWords[cleaned] {
			return NewValidationError("query", cleaned, ErrQueryProfanity)
		}
	}
	return nil
}

// NormalizeDocument trims the text and drops a "text" metadata key, which
// would otherwise shadow the document text in the stored payload.
func NormalizeDocument(d Document) (Document, error) {
	text := strings.TrimSpace(d.Text)
	if text == "" {
		return Document{}, NewValidationError("text", d.Text, ErrInvalidDocument)
	}
	meta := make(map[string]any, len(d.Metadata))
	for k, v := range d.Metadata {
		if k == "text" {
			continue
		}
		meta[k] = v
	}
	return Document{Text: text, Metadata: meta}, nil
}
