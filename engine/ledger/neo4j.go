package ledger

import (
	"context"
	"fmt"
	"math"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// result is the part of a neo4j result the store reads.
type result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
}

// runner is the part of a neo4j session the store uses.
type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (result, error)
	Close(ctx context.Context) error
}

type sessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *sessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *sessionAdapter) Close(ctx context.Context) error { return a.sess.Close(ctx) }

// Neo4jStore records the ledger as a graph: (:LedgerWorkflow)-[:RAN {seq}]->(:LedgerStep).
// The full record is kept as a JSON payload property; ids, names and start
// times are lifted out for lookups and range scans.
type Neo4jStore struct {
	driver     neo4j.DriverWithContext
	newSession func(ctx context.Context) runner
}

var _ Store = (*Neo4jStore)(nil)

func NewNeo4jStore(driver neo4j.DriverWithContext) *Neo4jStore {
	return &Neo4jStore{driver: driver}
}

func (s *Neo4jStore) session(ctx context.Context) runner {
	if s.newSession != nil {
		return s.newSession(ctx)
	}
	return &sessionAdapter{sess: s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})}
}

const (
	cypherStepConstraint     = `CREATE CONSTRAINT ledger_step_id IF NOT EXISTS FOR (s:LedgerStep) REQUIRE s.step_id IS UNIQUE`
	cypherWorkflowConstraint = `CREATE CONSTRAINT ledger_workflow_id IF NOT EXISTS FOR (w:LedgerWorkflow) REQUIRE w.workflow_id IS UNIQUE`

	cypherCreateStep = `OPTIONAL MATCH (e:LedgerStep {step_id: $id})
WITH e WHERE e IS NULL
CREATE (s:LedgerStep {step_id: $id, workflow_id: $workflow_id, step_name: $step_name,
  started_at: $started_at, success: $success, payload: $payload})
RETURN s.step_id AS id`

	cypherCreateWorkflow = `OPTIONAL MATCH (e:LedgerWorkflow {workflow_id: $id})
WITH e WHERE e IS NULL
CREATE (w:LedgerWorkflow {workflow_id: $id, started_at: $started_at, success: $success,
  outcome: $outcome, payload: $payload})
RETURN w.workflow_id AS id`

	cypherLinkSteps = `MATCH (w:LedgerWorkflow {workflow_id: $id})
UNWIND range(0, size($step_ids) - 1) AS i
MATCH (s:LedgerStep {step_id: $step_ids[i]})
MERGE (w)-[:RAN {seq: i}]->(s)
RETURN count(s) AS linked`

	cypherGetStep     = `MATCH (s:LedgerStep {step_id: $id}) RETURN s.payload AS payload`
	cypherGetWorkflow = `MATCH (w:LedgerWorkflow {workflow_id: $id}) RETURN w.payload AS payload`
	cypherRange       = `MATCH (w:LedgerWorkflow)
WHERE w.started_at >= $from AND w.started_at <= $to
RETURN w.payload AS payload ORDER BY w.started_at, w.workflow_id`
)

// EnsureSchema creates the uniqueness constraints.
func (s *Neo4jStore) EnsureSchema(ctx context.Context) error {
	sess := s.session(ctx)
	defer sess.Close(ctx)
	for _, c := range []string{cypherStepConstraint, cypherWorkflowConstraint} {
		if _, err := sess.Run(ctx, c, nil); err != nil {
			return fmt.Errorf("ledger: neo4j schema: %w", err)
		}
	}
	return nil
}

func (s *Neo4jStore) AppendStep(ctx context.Context, rec StepRecord) error {
	if err := rec.validate(); err != nil {
		return err
	}
	data, err := encode(rec)
	if err != nil {
		return err
	}
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, cypherCreateStep, map[string]any{
		"id":          rec.StepID,
		"workflow_id": rec.WorkflowID,
		"step_name":   rec.StepName,
		"started_at":  rec.StartedAt.UnixNano(),
		"success":     rec.Success,
		"payload":     string(data),
	})
	if err != nil {
		return fmt.Errorf("ledger: neo4j append step: %w", err)
	}
	if !res.Next(ctx) {
		return fmt.Errorf("%w: step %s", ErrDuplicateID, rec.StepID)
	}
	return nil
}

// AppendWorkflow creates the workflow node and links it to its steps. Steps
// that are not in the graph are reported as ErrDanglingStep.
func (s *Neo4jStore) AppendWorkflow(ctx context.Context, rec WorkflowRecord) error {
	if err := rec.validate(); err != nil {
		return err
	}
	data, err := encode(rec)
	if err != nil {
		return err
	}
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, cypherCreateWorkflow, map[string]any{
		"id":         rec.WorkflowID,
		"started_at": rec.StartedAt.UnixNano(),
		"success":    rec.Success,
		"outcome":    rec.Outcome,
		"payload":    string(data),
	})
	if err != nil {
		return fmt.Errorf("ledger: neo4j append workflow: %w", err)
	}
	if !res.Next(ctx) {
		return fmt.Errorf("%w: workflow %s", ErrDuplicateID, rec.WorkflowID)
	}
	if len(rec.StepIDs) == 0 {
		return nil
	}

	res, err = sess.Run(ctx, cypherLinkSteps, map[string]any{"id": rec.WorkflowID, "step_ids": rec.StepIDs})
	if err != nil {
		return fmt.Errorf("ledger: neo4j link steps: %w", err)
	}
	var linked int64
	if res.Next(ctx) {
		if v, ok := res.Record().Get("linked"); ok {
			linked, _ = v.(int64)
		}
	}
	if int(linked) != len(rec.StepIDs) {
		return fmt.Errorf("%w: workflow %s linked %d of %d steps", ErrDanglingStep, rec.WorkflowID, linked, len(rec.StepIDs))
	}
	return nil
}

func (s *Neo4jStore) payload(ctx context.Context, cypher, id string) ([]byte, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("ledger: neo4j get %s: %w", id, err)
	}
	if !res.Next(ctx) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return recordPayload(res.Record())
}

func recordPayload(rec *neo4j.Record) ([]byte, error) {
	v, ok := rec.Get("payload")
	str, isStr := v.(string)
	if !ok || !isStr {
		return nil, fmt.Errorf("ledger: neo4j record has no payload")
	}
	return []byte(str), nil
}

func (s *Neo4jStore) Step(ctx context.Context, id string) (StepRecord, error) {
	data, err := s.payload(ctx, cypherGetStep, id)
	if err != nil {
		return StepRecord{}, err
	}
	return decode[StepRecord](data)
}

func (s *Neo4jStore) Workflow(ctx context.Context, id string) (WorkflowRecord, error) {
	data, err := s.payload(ctx, cypherGetWorkflow, id)
	if err != nil {
		return WorkflowRecord{}, err
	}
	return decode[WorkflowRecord](data)
}

func (s *Neo4jStore) Workflows(ctx context.Context, r Range) ([]WorkflowRecord, error) {
	from, to := int64(math.MinInt64), int64(math.MaxInt64)
	if !r.From.IsZero() {
		from = r.From.UnixNano()
	}
	if !r.To.IsZero() {
		to = r.To.UnixNano()
	}

	sess := s.session(ctx)
	defer sess.Close(ctx)
	res, err := sess.Run(ctx, cypherRange, map[string]any{"from": from, "to": to})
	if err != nil {
		return nil, fmt.Errorf("ledger: neo4j range: %w", err)
	}

	var out []WorkflowRecord
	for res.Next(ctx) {
		data, err := recordPayload(res.Record())
		if err != nil {
			return nil, err
		}
		w, err := decode[WorkflowRecord](data)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}
