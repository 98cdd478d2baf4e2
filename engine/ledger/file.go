package ledger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore writes one JSON file per record under <dir>/steps and
// <dir>/workflows. Each record is written to a temp file and hard-linked
// into place, so a record appears atomically and never replaces another.
type FileStore struct {
	dir string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the directory layout under dir.
func NewFileStore(dir string) (*FileStore, error) {
	for _, sub := range []string{"steps", "workflows"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("ledger: create %s: %w", sub, err)
		}
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(kind, id string) string {
	return filepath.Join(f.dir, kind, id+".json")
}

func (f *FileStore) create(kind, id string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Join(f.dir, kind), "."+id+".*.tmp")
	if err != nil {
		return fmt.Errorf("ledger: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("ledger: write %s %s: %w", kind, id, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("ledger: sync %s %s: %w", kind, id, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("ledger: close %s %s: %w", kind, id, err)
	}
	if err := os.Link(tmp.Name(), f.path(kind, id)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s %s", ErrDuplicateID, kind, id)
		}
		return fmt.Errorf("ledger: publish %s %s: %w", kind, id, err)
	}
	return nil
}

func (f *FileStore) read(kind, id string) ([]byte, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path(kind, id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return data, err
}

func (f *FileStore) AppendStep(_ context.Context, rec StepRecord) error {
	if err := rec.validate(); err != nil {
		return err
	}
	data, err := encode(rec)
	if err != nil {
		return err
	}
	return f.create("steps", rec.StepID, data)
}

func (f *FileStore) AppendWorkflow(_ context.Context, rec WorkflowRecord) error {
	if err := rec.validate(); err != nil {
		return err
	}
	data, err := encode(rec)
	if err != nil {
		return err
	}
	return f.create("workflows", rec.WorkflowID, data)
}

func (f *FileStore) Step(_ context.Context, id string) (StepRecord, error) {
	data, err := f.read("steps", id)
	if err != nil {
		return StepRecord{}, err
	}
	return decode[StepRecord](data)
}

func (f *FileStore) Workflow(_ context.Context, id string) (WorkflowRecord, error) {
	data, err := f.read("workflows", id)
	if err != nil {
		return WorkflowRecord{}, err
	}
	return decode[WorkflowRecord](data)
}

func (f *FileStore) Workflows(ctx context.Context, r Range) ([]WorkflowRecord, error) {
	entries, err := os.ReadDir(filepath.Join(f.dir, "workflows"))
	if err != nil {
		return nil, fmt.Errorf("ledger: list workflows: %w", err)
	}
	var out []WorkflowRecord
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w, err := f.Workflow(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}
		if r.Contains(w.StartedAt) {
			out = append(out, w)
		}
	}
	sortWorkflows(out)
	return out, nil
}
