// Package ledger is the append-only execution log of the pipeline: one
// StepRecord per stage invocation and one WorkflowRecord per query.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tacticalcatboy/legit-rag/engine/domain"
)

var (
	ErrNotFound      = errors.New("ledger: record not found")
	ErrDuplicateID   = errors.New("ledger: duplicate record id")
	ErrInvalidRecord = errors.New("ledger: invalid record")
	ErrDanglingStep  = errors.New("ledger: workflow references missing step")
)

// StepRecord is the immutable log of one stage invocation.
type StepRecord struct {
	StepID     string         `json:"step_id"`
	WorkflowID string         `json:"workflow_id"`
	StepName   string         `json:"step_name"`
	Input      map[string]any `json:"input"`
	Output     map[string]any `json:"output"`
	Metadata   map[string]any `json:"metadata"`
	StartedAt  time.Time      `json:"timestamp"`
	DurationMS float64        `json:"duration_ms"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
}

func (r StepRecord) Duration() time.Duration {
	return time.Duration(r.DurationMS * float64(time.Millisecond))
}

func (r StepRecord) validate() error {
	if err := checkID(r.StepID); err != nil {
		return err
	}
	if r.StepName == "" {
		return fmt.Errorf("%w: step %s has no name", ErrInvalidRecord, r.StepID)
	}
	return nil
}

// WorkflowRecord summarizes one query. Steps are referenced by id, in the
// order they ran.
type WorkflowRecord struct {
	WorkflowID string         `json:"workflow_id"`
	Query      string         `json:"query"`
	StepIDs    []string       `json:"step_ids"`
	StartedAt  time.Time      `json:"start_time"`
	EndedAt    time.Time      `json:"end_time"`
	Success    bool           `json:"success"`
	Outcome    string         `json:"outcome"`
	Error      string         `json:"error,omitempty"`
	Answer     *domain.Answer `json:"final_answer,omitempty"`
}

func (r WorkflowRecord) Duration() time.Duration { return r.EndedAt.Sub(r.StartedAt) }

func (r WorkflowRecord) validate() error {
	if err := checkID(r.WorkflowID); err != nil {
		return err
	}
	for _, id := range r.StepIDs {
		if err := checkID(id); err != nil {
			return err
		}
	}
	return nil
}

// checkID rejects ids that are empty or could escape a key namespace or directory.
func checkID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\:`+"\x00") {
		return fmt.Errorf("%w: id %q", ErrInvalidRecord, id)
	}
	return nil
}

// Range selects records by start time. Zero bounds are open; both ends are inclusive.
type Range struct {
	From time.Time
	To   time.Time
}

func (r Range) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// Since returns the range covering the last d up to now.
func Since(d time.Duration, now time.Time) Range {
	return Range{From: now.Add(-d)}
}

func encode[T any](rec T) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("ledger: encode: %w", err)
	}
	return data, nil
}

func decode[T any](data []byte) (T, error) {
	var rec T
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("ledger: decode: %w", err)
	}
	return rec, nil
}
