// Package app turns a loaded configuration into a running pipeline. Both
// binaries build through it.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tacticalcatboy/legit-rag/engine/docstore"
	"github.com/tacticalcatboy/legit-rag/engine/evaluate"
	"github.com/tacticalcatboy/legit-rag/engine/ingest"
	"github.com/tacticalcatboy/legit-rag/engine/ledger"
	"github.com/tacticalcatboy/legit-rag/engine/retrieve"
	"github.com/tacticalcatboy/legit-rag/engine/stage"
	"github.com/tacticalcatboy/legit-rag/engine/workflow"
	"github.com/tacticalcatboy/legit-rag/pkg/config"
	"github.com/tacticalcatboy/legit-rag/pkg/fn"
	"github.com/tacticalcatboy/legit-rag/pkg/llm"
	"github.com/tacticalcatboy/legit-rag/pkg/metrics"
	"github.com/tacticalcatboy/legit-rag/pkg/ollama"
	"github.com/tacticalcatboy/legit-rag/pkg/resilience"
)

// App is a wired pipeline and the resources it owns.
type App struct {
	Orchestrator *workflow.Orchestrator
	Retriever    *retrieve.Hybrid
	Ledger       ledger.Store
	Ingestor     *ingest.Ingestor
	Registry     *prometheus.Registry
	Metrics      *metrics.Pipeline
	// Evaluator runs the deterministic step checks. Judge is the model-backed
	// evaluator and is nil in rules mode.
	Evaluator evaluate.Evaluator
	Judge     evaluate.Evaluator

	closers []func(context.Context) error
}

// Close releases every backend connection, in reverse order of opening.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(f func(context.Context) error) { a.closers = append(a.closers, f) }

// Build connects the configured backends and assembles the orchestrator.
// On error everything opened so far is closed again.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (_ *App, err error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{Registry: metrics.NewRegistry()}
	a.Metrics = metrics.NewPipeline(a.Registry)
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	// --- Document store ---
	store, err := a.openDocstore(ctx, cfg.Store, log)
	if err != nil {
		return nil, err
	}

	// --- Backend clients ---
	guard := newGuard(cfg.LLM, log)
	ollamaCfg := ollama.Config{BaseURL: cfg.LLM.BaseURL, Timeout: cfg.LLM.Timeout, Guard: guard}

	var embedder llm.Embedder = retrieve.HashEmbedder{Dims: cfg.Store.VectorDims}
	if cfg.Pipeline.Embedder == "ollama" {
		embedder = ollama.NewEmbedClient(ollamaCfg, cfg.LLM.EmbeddingModel)
	}

	a.Retriever = retrieve.NewHybrid(store, embedder,
		retrieve.WithTopK(cfg.Pipeline.TopK),
		retrieve.WithWorkers(cfg.Pipeline.EmbedWorkers),
		retrieve.WithLogger(log.Named("retriever")),
		retrieve.WithMetrics(a.Metrics),
	)

	// --- Ledger ---
	a.Ledger, err = a.openLedger(ctx, cfg.Ledger)
	if err != nil {
		return nil, err
	}
	var nc *nats.Conn
	if cfg.Ledger.NATSURL != "" {
		nc, err = nats.Connect(cfg.Ledger.NATSURL, nats.Name("legit-rag"))
		if err != nil {
			return nil, fmt.Errorf("app: nats connect: %w", err)
		}
		a.onClose(func(context.Context) error { return nc.Drain() })
		a.Ledger = ledger.NewPublishing(a.Ledger, nc, cfg.Ledger.NATSSubject, log.Named("ledger"))
	}

	// --- Stages ---
	stages := workflow.Stages{Retriever: a.Retriever}
	a.Evaluator = evaluate.NewScriptEvaluator(nil)
	switch cfg.Pipeline.Mode {
	case "rules":
		stages.Router = stage.RuleRouter{}
		stages.Reformulator = stage.KeywordReformulator{}
		stages.Checker = stage.OverlapChecker{}
		stages.Generator = stage.ExtractiveGenerator{}
	default:
		chat := func(model string) *ollama.ChatClient { return ollama.NewChatClient(ollamaCfg, model) }
		stages.Router = stage.LLMRouter{Provider: chat(cfg.LLM.RouterModel)}
		stages.Reformulator = stage.LLMReformulator{Provider: chat(cfg.LLM.ReformulatorModel)}
		stages.Checker = stage.LLMCompletionChecker{Provider: chat(cfg.LLM.CompletionModel), Log: log.Named("completion")}
		stages.Generator = stage.LLMAnswerGenerator{Provider: chat(cfg.LLM.AnswerModel), Log: log.Named("answer")}
		a.Judge = evaluate.LLMEvaluator{Provider: chat(cfg.LLM.EvaluatorModel), Model: cfg.LLM.EvaluatorModel}
	}

	a.Orchestrator, err = workflow.New(stages, a.Ledger,
		workflow.WithThreshold(cfg.Pipeline.CompletionThreshold),
		workflow.WithLogger(log.Named("workflow")),
		workflow.WithMetrics(a.Metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	// --- Ingestion ---
	a.Ingestor = ingest.New(ingest.Deps{
		Adder:     a.Retriever,
		ChunkSize: cfg.Pipeline.ChunkSize,
		Logger:    log.Named("ingest"),
	})
	if nc != nil && cfg.Pipeline.IngestSubject != "" {
		sub, err := a.Ingestor.Subscribe(nc, cfg.Pipeline.IngestSubject)
		if err != nil {
			return nil, fmt.Errorf("app: ingest subscribe: %w", err)
		}
		a.onClose(func(context.Context) error { return sub.Unsubscribe() })
		log.Info("ingest subscription active", zap.String("subject", cfg.Pipeline.IngestSubject))
	}

	log.Info("pipeline ready",
		zap.String("mode", cfg.Pipeline.Mode),
		zap.String("store", cfg.Store.Backend),
		zap.String("ledger", cfg.Ledger.Backend),
		zap.String("embedder", cfg.Pipeline.Embedder),
		zap.Float64("threshold", cfg.Pipeline.CompletionThreshold),
	)
	return a, nil
}

func (a *App) openDocstore(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (docstore.Store, error) {
	switch cfg.Backend {
	case "qdrant":
		q, err := docstore.NewQdrant(cfg.QdrantAddr, cfg.Collection)
		if err != nil {
			return nil, fmt.Errorf("app: qdrant: %w", err)
		}
		a.onClose(func(context.Context) error { return q.Close() })
		if err := q.EnsureCollection(ctx, cfg.VectorDims); err != nil {
			return nil, fmt.Errorf("app: qdrant: %w", err)
		}
		log.Info("connected to qdrant", zap.String("addr", cfg.QdrantAddr), zap.String("collection", cfg.Collection))
		return q, nil
	case "pgvector":
		p, err := docstore.OpenPGVector(cfg.PostgresDSN, cfg.Table)
		if err != nil {
			return nil, fmt.Errorf("app: pgvector: %w", err)
		}
		a.onClose(func(context.Context) error { return p.Close() })
		if err := p.EnsureSchema(ctx, cfg.VectorDims); err != nil {
			return nil, fmt.Errorf("app: pgvector: %w", err)
		}
		log.Info("connected to postgres", zap.String("table", cfg.Table))
		return p, nil
	default:
		return docstore.NewMemory(), nil
	}
}

func (a *App) openLedger(ctx context.Context, cfg config.LedgerConfig) (ledger.Store, error) {
	switch cfg.Backend {
	case "memory":
		return ledger.NewMemoryStore(), nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		a.onClose(func(context.Context) error { return rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("app: redis ping: %w", err)
		}
		return ledger.NewRedisStore(rdb, cfg.RedisPrefix), nil
	case "neo4j":
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""))
		if err != nil {
			return nil, fmt.Errorf("app: neo4j driver: %w", err)
		}
		a.onClose(driver.Close)
		s := ledger.NewNeo4jStore(driver)
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := ledger.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		return s, nil
	}
}

// newGuard builds the breaker, limiter and retry policy shared by every
// client of the LLM backend.
func newGuard(cfg config.LLMConfig, log *zap.Logger) *resilience.Guard {
	retry := fn.DefaultRetry
	retry.MaxAttempts = cfg.MaxAttempts
	return &resilience.Guard{
		Breaker: resilience.NewBreaker(resilience.BreakerOpts{
			FailThreshold: cfg.BreakerThreshold,
			Cooldown:      cfg.BreakerCooldown,
			OnStateChange: func(from, to resilience.State) {
				log.Warn("llm circuit breaker", zap.Stringer("from", from), zap.Stringer("to", to))
			},
		}),
		Limiter: resilience.NewLimiter(resilience.LimiterOpts{Rate: cfg.RatePerSecond, Burst: cfg.Burst}),
		Retry:   retry,
	}
}

// Shutdown closes a with a bounded timeout.
func Shutdown(a *App, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		log.Warn("close failed", zap.Error(err))
	}
}
