package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tacticalcatboy/legit-rag/engine/domain"
)

// LoadFile reads a corpus from path. Files ending in .yaml or .yml are read
// as YAML; anything else as JSON.
func LoadFile(path string) (Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return Batch{}, fmt.Errorf("ingest: open corpus: %w", err)
	}
	defer f.Close()

	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	return Decode(f, format)
}

// Decode reads a corpus in format "json" or "yaml". The corpus is either a
// batch object ({"documents": [...]}) or a bare list of documents.
func Decode(r io.Reader, format string) (Batch, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Batch{}, fmt.Errorf("ingest: read corpus: %w", err)
	}
	var (
		b    Batch
		docs []domain.Document
	)
	switch format {
	case "json":
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			err = json.Unmarshal(trimmed, &docs)
			b.Documents = docs
		} else {
			err = json.Unmarshal(trimmed, &b)
		}
	case "yaml":
		var node yaml.Node
		if err = yaml.Unmarshal(data, &node); err == nil && len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
			err = node.Decode(&docs)
			b.Documents = docs
		} else if err == nil {
			err = node.Decode(&b)
		}
	default:
		return Batch{}, fmt.Errorf("ingest: unknown corpus format %q", format)
	}
	if err != nil {
		return Batch{}, fmt.Errorf("ingest: decode %s corpus: %w", format, err)
	}
	return b, nil
}
