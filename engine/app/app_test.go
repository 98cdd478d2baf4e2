package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tacticalcatboy/legit-rag/engine/domain"
	"github.com/tacticalcatboy/legit-rag/engine/evaluate"
	"github.com/tacticalcatboy/legit-rag/engine/ingest"
	"github.com/tacticalcatboy/legit-rag/engine/ledger"
	"github.com/tacticalcatboy/legit-rag/pkg/config"
	"github.com/tacticalcatboy/legit-rag/pkg/natsutil"
)

func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("LEGITRAG_PIPELINE_MODE", "rules")
	t.Setenv("LEGITRAG_PIPELINE_EMBEDDER", "hash")
	t.Setenv("LEGITRAG_STORE_BACKEND", "memory")
	t.Setenv("LEGITRAG_STORE_VECTOR_DIMS", "128")
	t.Setenv("LEGITRAG_LEDGER_BACKEND", "memory")
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

var docs = []domain.Document{
	{Text: "The Python programming language was created by Guido van Rossum and was released in 1991.", Metadata: map[string]any{"source": "wiki"}},
	{Text: "OpenAI was founded in 2015 as a non-profit organization.", Metadata: map[string]any{"source": "news"}},
}

func TestBuildOffline(t *testing.T) {
	ctx := context.Background()
	a, err := Build(ctx, offlineConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close(ctx)) })

	assert.Nil(t, a.Judge)
	assert.IsType(t, &ledger.MemoryStore{}, a.Ledger)

	n, err := a.Ingestor.Ingest(ctx, ingest.Batch{Documents: docs})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2.0, testutil.ToFloat64(a.Metrics.DocumentsIngested))

	res, err := a.Orchestrator.Process(ctx, "Who created the Python language?")
	require.NoError(t, err)
	require.True(t, res.Answered())
	assert.Contains(t, res.Answer.Text, "Guido van Rossum")

	trace, err := ledger.LoadTrace(ctx, a.Ledger, res.Workflow.WorkflowID)
	require.NoError(t, err)
	assert.Len(t, trace.Steps, 5)

	report, err := evaluate.EvaluateWorkflow(ctx, a.Ledger, a.Evaluator, res.Workflow.WorkflowID, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NotEmpty(t, report.Steps)
}

func TestBuildFileLedger(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Ledger.Backend = "file"
	cfg.Ledger.Dir = filepath.Join(t.TempDir(), "logs")

	a, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close(context.Background())

	res, err := a.Orchestrator.Process(context.Background(), "What is it?")
	require.NoError(t, err)
	assert.False(t, res.Answered())

	got, err := a.Ledger.Workflow(context.Background(), res.Workflow.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, res.Workflow.WorkflowID, got.WorkflowID)
}

func TestBuildLLMModeWiresJudge(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Pipeline.Mode = "llm"

	a, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.NotNil(t, a.Judge)
	assert.Equal(t, cfg.Pipeline.CompletionThreshold, a.Orchestrator.Threshold())
}

func TestBuildClosesOnFailure(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Pipeline.CompletionThreshold = 2

	_, err := Build(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, domain.ErrScoreOutOfRange)
}

func startTestNATS(t *testing.T) *natsserver.Server {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	require.NoError(t, err)
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestBuildWithNATS(t *testing.T) {
	srv := startTestNATS(t)
	cfg := offlineConfig(t)
	cfg.Ledger.NATSURL = srv.ClientURL()
	cfg.Ledger.NATSSubject = "test.ledger"
	cfg.Pipeline.IngestSubject = "test.ingest"

	ctx := context.Background()
	a, err := Build(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(ctx) })
	assert.IsType(t, &ledger.Publishing{}, a.Ledger)

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	events := make(chan *nats.Msg, 8)
	sub, err := nc.ChanSubscribe("test.ledger.workflows", events)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, natsutil.Publish(ctx, nc, "test.ingest", ingest.Batch{Documents: docs}))
	require.NoError(t, nc.Flush())
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(a.Metrics.DocumentsIngested) == 2
	}, 3*time.Second, 20*time.Millisecond)

	res, err := a.Orchestrator.Process(ctx, "Who created the Python language?")
	require.NoError(t, err)
	require.True(t, res.Answered())

	select {
	case msg := <-events:
		_, rec, err := natsutil.Decode[ledger.WorkflowRecord](msg)
		require.NoError(t, err)
		assert.Equal(t, res.Workflow.WorkflowID, rec.WorkflowID)
		assert.Equal(t, "done", rec.Outcome)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for workflow event")
	}
}
