package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/tacticalcatboy/legit-rag/engine/ledger"
	"github.com/tacticalcatboy/legit-rag/pkg/fn"
	"github.com/tacticalcatboy/legit-rag/pkg/metrics"
)

// ErrLedgerWrite marks a failure to persist a record. It is joined with the
// stage's own error, if any.
var ErrLedgerWrite = errors.New("workflow: ledger write failed")

// Recorder is the envelope every stage runs in. It writes exactly one
// StepRecord per invocation, whether the stage succeeds, fails or panics.
type Recorder struct {
	store   ledger.Store
	log     *zap.Logger
	metrics *metrics.Pipeline
	now     func() time.Time
	newID   func() string
}

func NewRecorder(store ledger.Store, log *zap.Logger, m *metrics.Pipeline) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{store: store, log: log, metrics: m, now: time.Now, newID: uuid.NewString}
}

// Run invokes stage on in and returns its output together with the record
// that was appended to the ledger. A stage failure is returned unchanged
// (joined with ErrLedgerWrite if the record could not be stored). A panic
// is recorded as a failure and then re-raised.
func Run[In, Out any](ctx context.Context, r *Recorder, workflowID, name string, in In, meta map[string]any, stage fn.Stage[In, Out]) (out Out, rec ledger.StepRecord, err error) {
	rec = ledger.StepRecord{
		StepID:     r.newID(),
		WorkflowID: workflowID,
		StepName:   name,
		Input:      snapshot(in),
		Metadata:   maps.Clone(meta),
		StartedAt:  r.now().UTC(),
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}
	log := r.log.With(zap.String("workflow_id", workflowID), zap.String("step", name), zap.String("step_id", rec.StepID))
	log.Debug("stage start")

	defer func() {
		if p := recover(); p != nil {
			rec, _ = r.finish(ctx, log, rec, nil, fmt.Errorf("panic: %v", p))
			panic(p)
		}
	}()

	traced := fn.Traced("stage."+name, stage,
		attribute.String("workflow.id", workflowID),
		attribute.String("step.id", rec.StepID),
	)
	out, err = traced(ctx, in).Unwrap()
	if err != nil {
		rec, err = r.finish(ctx, log, rec, nil, err)
		return out, rec, err
	}
	rec, err = r.finish(ctx, log, rec, out, nil)
	return out, rec, err
}

func (r *Recorder) finish(ctx context.Context, log *zap.Logger, rec ledger.StepRecord, out any, stageErr error) (ledger.StepRecord, error) {
	d := r.now().UTC().Sub(rec.StartedAt)
	rec.DurationMS = float64(d) / float64(time.Millisecond)
	rec.Success = stageErr == nil
	if stageErr != nil {
		rec.Output = map[string]any{}
		rec.Error = stageErr.Error()
	} else {
		rec.Output = snapshot(out)
	}
	r.metrics.ObserveStep(rec.StepName, rec.Success, d)

	if err := r.store.AppendStep(context.WithoutCancel(ctx), rec); err != nil {
		r.metrics.LedgerError("step")
		log.Error("step record not stored", zap.Error(err))
		return rec, errors.Join(stageErr, fmt.Errorf("%w: step %s: %v", ErrLedgerWrite, rec.StepID, err))
	}

	if stageErr != nil {
		log.Error("stage failed", zap.Duration("duration", d), zap.Error(stageErr))
	} else {
		log.Info("stage finished", zap.Duration("duration", d))
	}
	return rec, stageErr
}

// snapshot converts v into a JSON object. Values that do not encode as an
// object are stored under "value".
func snapshot(v any) map[string]any {
	if v == nil {
		return map[string]any{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{"unserializable": fmt.Sprintf("%T", v)}
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err == nil && obj != nil {
		return obj
	}
	var val any
	_ = json.Unmarshal(data, &val)
	return map[string]any{"value": val}
}
