// Package workflow sequences the pipeline stages for one query and records
// the run in the ledger.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tacticalcatboy/legit-rag/engine/domain"
	"github.com/tacticalcatboy/legit-rag/engine/ledger"
	"github.com/tacticalcatboy/legit-rag/pkg/fn"
	"github.com/tacticalcatboy/legit-rag/pkg/metrics"
)

// Step names as they appear in the ledger.
const (
	StepRouter       = "router"
	StepReformulator = "reformulator"
	StepRetriever    = "retriever"
	StepCompletion   = "completion_checker"
	StepAnswer       = "answer_generator"
)

// DefaultThreshold is the minimum completion score for answer generation.
const DefaultThreshold = 0.7

type Router interface {
	Route(ctx context.Context, query string) (domain.Intent, error)
}

type Reformulator interface {
	Reformulate(ctx context.Context, query string) (domain.ReformulatedQuery, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, q domain.ReformulatedQuery) ([]domain.Candidate, error)
}

// CompletionChecker scores in [0,1] whether candidates suffice to answer
// query. Unscoreable backend output must be reported as 0, not as an error.
type CompletionChecker interface {
	Check(ctx context.Context, query string, candidates []domain.Candidate) (float64, error)
}

type AnswerGenerator interface {
	Generate(ctx context.Context, query string, candidates []domain.Candidate) (domain.Answer, error)
}

// Stages is the set of stage implementations an Orchestrator drives.
type Stages struct {
	Router       Router
	Reformulator Reformulator
	Retriever    Retriever
	Checker      CompletionChecker
	Generator    AnswerGenerator
}

func (s Stages) validate() error {
	switch {
	case s.Router == nil:
		return errors.New("workflow: router is required")
	case s.Reformulator == nil:
		return errors.New("workflow: reformulator is required")
	case s.Retriever == nil:
		return errors.New("workflow: retriever is required")
	case s.Checker == nil:
		return errors.New("workflow: completion checker is required")
	case s.Generator == nil:
		return errors.New("workflow: answer generator is required")
	}
	return nil
}

// Result is the outcome of Process. Answer is nil unless State is StateDone.
type Result struct {
	Answer   *domain.Answer
	State    State
	Intent   domain.Intent
	Score    float64
	Workflow ledger.WorkflowRecord
}

// Answered reports whether the run produced an answer.
func (r Result) Answered() bool { return r.Answer != nil }

// Orchestrator runs queries through the fixed stage sequence. It holds no
// per-query state and may be shared by concurrent callers.
type Orchestrator struct {
	stages    Stages
	store     ledger.Store
	rec       *Recorder
	threshold float64
	log       *zap.Logger
	metrics   *metrics.Pipeline
	now       func() time.Time
	newID     func() string
}

type Option func(*Orchestrator)

func WithThreshold(t float64) Option { return func(o *Orchestrator) { o.threshold = t } }
func WithLogger(l *zap.Logger) Option { return func(o *Orchestrator) { o.log = l } }
func WithMetrics(m *metrics.Pipeline) Option { return func(o *Orchestrator) { o.metrics = m } }
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }
func WithIDGenerator(f func() string) Option { return func(o *Orchestrator) { o.newID = f } }

func New(stages Stages, store ledger.Store, opts ...Option) (*Orchestrator, error) {
	if err := stages.validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("workflow: ledger store is required")
	}
	o := &Orchestrator{
		stages:    stages,
		store:     store,
		threshold: DefaultThreshold,
		log:       zap.NewNop(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := domain.CheckScore("threshold", o.threshold); err != nil {
		return nil, fmt.Errorf("workflow: %w", err)
	}
	o.rec = &Recorder{store: store, log: o.log, metrics: o.metrics, now: o.now, newID: o.newID}
	return o, nil
}

// Threshold returns the configured completion threshold.
func (o *Orchestrator) Threshold() float64 { return o.threshold }

// Stage inputs and outputs, shaped for the ledger snapshots.
type (
	queryInput struct {
		Query string `json:"query"`
	}
	contextInput struct {
		Query      string             `json:"query"`
		Candidates []domain.Candidate `json:"candidates"`
	}
	intentOutput struct {
		Intent domain.Intent `json:"intent"`
	}
	candidatesOutput struct {
		Candidates []domain.Candidate `json:"candidates"`
	}
	scoreOutput struct {
		Score float64 `json:"score"`
	}
)

// run carries the state of one Process call.
type run struct {
	o        *Orchestrator
	ctx      context.Context
	stageCtx context.Context
	state    State
	wf       ledger.WorkflowRecord
	log      *zap.Logger
	result   Result
}

// Process answers query. It returns a Result with a nil Answer when the
// query is rejected or the evidence is insufficient; neither is an error.
// Any stage failure aborts the run, is recorded as a failed workflow and is
// returned as a *domain.StageError. Cancellation of ctx is honoured between
// stages only: a running stage is allowed to finish.
func (o *Orchestrator) Process(ctx context.Context, query string) (Result, error) {
	r := &run{
		o:        o,
		ctx:      ctx,
		stageCtx: context.WithoutCancel(ctx),
		state:    StateRouting,
		wf: ledger.WorkflowRecord{
			WorkflowID: o.newID(),
			Query:      query,
			StepIDs:    []string{},
			StartedAt:  o.now().UTC(),
		},
	}
	r.log = o.log.With(zap.String("workflow_id", r.wf.WorkflowID))
	r.log.Info("workflow start", zap.String("query", query))

	if err := ctx.Err(); err != nil {
		return r.fail(err)
	}

	routed, err := stage(r, StepRouter, queryInput{Query: query}, nil,
		func(ctx context.Context, in queryInput) (intentOutput, error) {
			intent, err := o.stages.Router.Route(ctx, in.Query)
			if err != nil {
				return intentOutput{}, err
			}
			if !intent.Valid() {
				return intentOutput{}, fmt.Errorf("%w: %q", domain.ErrUnknownIntent, intent)
			}
			return intentOutput{Intent: intent}, nil
		})
	if err != nil {
		return r.fail(err)
	}
	r.result.Intent = routed.Intent
	if routed.Intent != domain.IntentAnswer {
		return r.finish(StateRejected, nil)
	}

	if err := r.advance(StateReformulating); err != nil {
		return r.fail(err)
	}
	reformulated, err := stage(r, StepReformulator, queryInput{Query: query}, nil,
		func(ctx context.Context, in queryInput) (domain.ReformulatedQuery, error) {
			return o.stages.Reformulator.Reformulate(ctx, in.Query)
		})
	if err != nil {
		return r.fail(err)
	}

	if err := r.advance(StateRetrieving); err != nil {
		return r.fail(err)
	}
	retrieved, err := stage(r, StepRetriever, reformulated, nil,
		func(ctx context.Context, in domain.ReformulatedQuery) (candidatesOutput, error) {
			cs, err := o.stages.Retriever.Retrieve(ctx, in)
			return candidatesOutput{Candidates: cs}, err
		})
	if err != nil {
		return r.fail(err)
	}
	candidates := retrieved.Candidates
	o.metrics.ObserveCandidates(len(candidates))

	if err := r.advance(StateChecking); err != nil {
		return r.fail(err)
	}
	in := contextInput{Query: query, Candidates: candidates}
	checked, err := stage(r, StepCompletion, in, map[string]any{"threshold": o.threshold},
		func(ctx context.Context, in contextInput) (scoreOutput, error) {
			score, err := o.stages.Checker.Check(ctx, in.Query, in.Candidates)
			if err != nil {
				return scoreOutput{}, err
			}
			if err := domain.CheckScore("completion", score); err != nil {
				return scoreOutput{}, err
			}
			return scoreOutput{Score: score}, nil
		})
	if err != nil {
		return r.fail(err)
	}
	r.result.Score = checked.Score
	o.metrics.ObserveCompletion(checked.Score)
	if checked.Score < o.threshold {
		return r.finish(StateInsufficient, nil)
	}

	if err := r.advance(StateGenerating); err != nil {
		return r.fail(err)
	}
	answer, err := stage(r, StepAnswer, in, nil,
		func(ctx context.Context, in contextInput) (domain.Answer, error) {
			a, err := o.stages.Generator.Generate(ctx, in.Query, in.Candidates)
			if err != nil {
				return domain.Answer{}, err
			}
			return a, checkAnswer(a)
		})
	if err != nil {
		return r.fail(err)
	}
	return r.finish(StateDone, &answer)
}

// stage runs f through the Recorder and tracks the resulting step id. A
// panic in f fails the workflow like any other stage error and is then
// re-raised to the caller of Process.
func stage[In, Out any](r *run, name string, in In, meta map[string]any, f func(context.Context, In) (Out, error)) (Out, error) {
	var panicked any
	guarded := func(ctx context.Context, in In) (out Out, err error) {
		defer func() {
			if p := recover(); p != nil {
				panicked = p
				err = fmt.Errorf("panic: %v", p)
			}
		}()
		return f(ctx, in)
	}

	out, rec, err := Run(r.stageCtx, r.o.rec, r.wf.WorkflowID, name, in, meta, fn.Lift(guarded))
	if !errors.Is(err, ErrLedgerWrite) {
		r.wf.StepIDs = append(r.wf.StepIDs, rec.StepID)
	}
	if panicked != nil {
		_, _ = r.fail(&domain.StageError{Stage: name, Err: err})
		panic(panicked)
	}
	if err != nil {
		var zero Out
		return zero, &domain.StageError{Stage: name, Err: err}
	}
	return out, nil
}

// advance moves to the next stage-running state, first checking for cancellation.
func (r *run) advance(to State) error {
	if !canTransition(r.state, to) {
		return fmt.Errorf("workflow: illegal transition %s -> %s", r.state, to)
	}
	if err := r.ctx.Err(); err != nil {
		return fmt.Errorf("workflow: cancelled before %s: %w", to, err)
	}
	r.log.Debug("transition", zap.Stringer("from", r.state), zap.Stringer("to", to))
	r.state = to
	return nil
}

func (r *run) finish(to State, answer *domain.Answer) (Result, error) {
	if !canTransition(r.state, to) {
		return r.fail(fmt.Errorf("workflow: illegal transition %s -> %s", r.state, to))
	}
	r.state = to
	r.wf.Success = true
	r.wf.Answer = answer
	r.result.Answer = answer
	return r.close(nil)
}

func (r *run) fail(cause error) (Result, error) {
	r.state = StateFailed
	r.wf.Success = false
	r.wf.Error = cause.Error()
	return r.close(cause)
}

// close writes the workflow record and builds the Result.
func (r *run) close(cause error) (Result, error) {
	r.wf.EndedAt = r.o.now().UTC()
	r.wf.Outcome = r.state.String()
	r.result.State = r.state
	r.result.Workflow = r.wf
	r.o.metrics.ObserveWorkflow(r.wf.Outcome, r.wf.Duration())

	err := cause
	if werr := r.o.store.AppendWorkflow(r.stageCtx, r.wf); werr != nil {
		r.o.metrics.LedgerError("workflow")
		r.log.Error("workflow record not stored", zap.Error(werr))
		err = errors.Join(cause, fmt.Errorf("%w: workflow %s: %v", ErrLedgerWrite, r.wf.WorkflowID, werr))
	}

	fields := []zap.Field{
		zap.String("outcome", r.wf.Outcome),
		zap.Int("steps", len(r.wf.StepIDs)),
		zap.Duration("duration", r.wf.Duration()),
	}
	if cause != nil {
		r.log.Error("workflow failed", append(fields, zap.Error(cause))...)
	} else {
		r.log.Info("workflow finished", fields...)
	}
	return r.result, err
}

// checkAnswer rejects answers whose scores fall outside [0,1].
func checkAnswer(a domain.Answer) error {
	if err := domain.CheckScore("confidence_score", a.Confidence); err != nil {
		return err
	}
	for i, c := range a.Citations {
		if err := domain.CheckScore(fmt.Sprintf("citations[%d].relevance_score", i), c.RelevanceScore); err != nil {
			return err
		}
	}
	return nil
}
