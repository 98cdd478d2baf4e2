package stage

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/tacticalcatboy/legit-rag/engine/domain"
)

// mustSchema compiles a JSON schema at init.
func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("stage: bad schema: %v", err))
	}
	return s
}

// extractJSON strips markdown fences and any prose around the outermost
// JSON object.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start, end := strings.Index(s, "{"), strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return strings.TrimSpace(s)
}

// decodeValidated checks raw against schema and decodes it into v. Any
// failure is reported as domain.ErrMalformedOutput.
func decodeValidated(what string, schema *gojsonschema.Schema, raw string, v any) error {
	doc := extractJSON(raw)
	res, err := schema.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return domain.Malformed(what, err)
	}
	if !res.Valid() {
		errs := make([]string, len(res.Errors()))
		for i, desc := range res.Errors() {
			errs[i] = desc.String()
		}
		return domain.Malformed(what, fmt.Errorf("%s", strings.Join(errs, "; ")))
	}
	if err := json.Unmarshal([]byte(doc), v); err != nil {
		return domain.Malformed(what, err)
	}
	return nil
}

// formatContext numbers candidate texts for a prompt.
func formatContext(candidates []domain.Candidate) string {
	if len(candidates) == 0 {
		return "(no context)"
	}
	parts := make([]string, len(candidates))
	for i, c := range candidates {
		parts[i] = fmt.Sprintf("Context %d:\n%s", i+1, c.Text)
	}
	return strings.Join(parts, "\n\n")
}
