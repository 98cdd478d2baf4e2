package ledger

import (
	"context"

	"go.uber.org/zap"

	"github.com/tacticalcatboy/legit-rag/pkg/natsutil"
)

// Publishing forwards every successfully appended record to NATS on
// <subject>.steps and <subject>.workflows. The wrapped Store stays the
// source of truth: publish failures are logged, never returned.
type Publishing struct {
	Store
	conn    natsutil.Conn
	subject string
	log     *zap.Logger
}

func NewPublishing(store Store, conn natsutil.Conn, subject string, log *zap.Logger) *Publishing {
	return &Publishing{Store: store, conn: conn, subject: subject, log: log}
}

func (p *Publishing) AppendStep(ctx context.Context, rec StepRecord) error {
	if err := p.Store.AppendStep(ctx, rec); err != nil {
		return err
	}
	if err := natsutil.Publish(ctx, p.conn, p.subject+".steps", rec); err != nil {
		p.log.Warn("ledger publish failed", zap.String("step_id", rec.StepID), zap.Error(err))
	}
	return nil
}

func (p *Publishing) AppendWorkflow(ctx context.Context, rec WorkflowRecord) error {
	if err := p.Store.AppendWorkflow(ctx, rec); err != nil {
		return err
	}
	if err := natsutil.Publish(ctx, p.conn, p.subject+".workflows", rec); err != nil {
		p.log.Warn("ledger publish failed", zap.String("workflow_id", rec.WorkflowID), zap.Error(err))
	}
	return nil
}
