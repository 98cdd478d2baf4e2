// Package ingest loads document corpora and feeds them to the retriever
// through a validate, chunk and store pipeline, from files or from NATS.
package ingest

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/tacticalcatboy/legit-rag/engine/domain"
	"github.com/tacticalcatboy/legit-rag/pkg/fn"
	"github.com/tacticalcatboy/legit-rag/pkg/natsutil"
)

const (
	// Subject is the NATS subject for incoming document batches.
	Subject = "legitrag.ingest"
	// DLQSuffix is appended to the subject for batches that keep failing.
	DLQSuffix = ".dlq"
	// MaxRetries before a batch goes to the dead letter subject.
	MaxRetries = 3

	retryHeader = "X-Retry-Count"
)

// Batch is a unit of ingestion. Offset is the corpus position of the first
// document; ids are derived from it.
type Batch struct {
	Offset    uint64            `json:"offset,omitempty" yaml:"offset,omitempty"`
	Documents []domain.Document `json:"documents" yaml:"documents"`
}

// Adder stores documents; retrieve.Hybrid implements it.
type Adder interface {
	AddDocumentsAt(ctx context.Context, offset uint64, docs []domain.Document) (int, error)
}

// Deps holds the external dependencies for the ingestion pipeline.
type Deps struct {
	Adder     Adder
	ChunkSize int // words per chunk; 0 disables chunking
	Overlap   int
	Logger    *zap.Logger
}

// --- Pipeline Stages ---

// Validate normalizes every document and fails on the first invalid one.
var Validate fn.Stage[Batch, Batch] = func(_ context.Context, b Batch) fn.Result[Batch] {
	if len(b.Documents) == 0 {
		return fn.Err[Batch](domain.NewValidationError("documents", "", domain.ErrInvalidDocument))
	}
	docs := make([]domain.Document, len(b.Documents))
	for i, d := range b.Documents {
		n, err := domain.NormalizeDocument(d)
		if err != nil {
			return fn.Err[Batch](fmt.Errorf("document %d: %w", i, err))
		}
		docs[i] = n
	}
	return fn.Ok(Batch{Offset: b.Offset, Documents: docs})
}

// NewChunk splits long documents into overlapping chunks.
func NewChunk(size, overlap int) fn.Stage[Batch, Batch] {
	return fn.MapStage(func(b Batch) Batch {
		if size <= 0 {
			return b
		}
		var docs []domain.Document
		for _, d := range b.Documents {
			docs = append(docs, chunkDocument(d, size, overlap)...)
		}
		return Batch{Offset: b.Offset, Documents: docs}
	})
}

// NewStore creates a Store stage that hands the batch to the retriever.
func NewStore(a Adder) fn.Stage[Batch, int] {
	return func(ctx context.Context, b Batch) fn.Result[int] {
		n, err := a.AddDocumentsAt(ctx, b.Offset, b.Documents)
		if err != nil {
			return fn.Err[int](fmt.Errorf("store: %w", err))
		}
		return fn.Ok(n)
	}
}

// LoggedTap returns a stage that logs the stage about to run.
func LoggedTap[T any](name string, log *zap.Logger) fn.Stage[T, T] {
	return fn.TapStage(func(_ context.Context, _ T) {
		log.Debug("stage.enter", zap.String("stage", name))
	})
}

// NewPipeline wires Validate, Chunk and Store with logging taps.
func NewPipeline(deps Deps) fn.Stage[Batch, int] {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	overlap := deps.Overlap
	if overlap == 0 {
		overlap = DefaultOverlap
	}

	prepared := fn.Pipeline(
		LoggedTap[Batch]("validate", log), Validate,
		LoggedTap[Batch]("chunk", log), NewChunk(deps.ChunkSize, overlap),
		LoggedTap[Batch]("store", log),
	)
	return fn.Traced("ingest", fn.Then(prepared, NewStore(deps.Adder)))
}

// Ingestor runs batches through the pipeline.
type Ingestor struct {
	pipeline fn.Stage[Batch, int]
	log      *zap.Logger
}

func New(deps Deps) *Ingestor {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Ingestor{pipeline: NewPipeline(deps), log: log}
}

// Ingest stores b and returns the number of documents written, which is
// larger than len(b.Documents) when chunking splits documents.
func (i *Ingestor) Ingest(ctx context.Context, b Batch) (int, error) {
	n, err := i.pipeline(ctx, b).Unwrap()
	if err != nil {
		return 0, fmt.Errorf("ingest: %w", err)
	}
	i.log.Info("ingest: success", zap.Int("documents", len(b.Documents)), zap.Int("stored", n))
	return n, nil
}

// dlqMessage is published to the dead letter subject on repeated failure.
type dlqMessage struct {
	Batch   Batch  `json:"batch"`
	Error   string `json:"error"`
	Retries int    `json:"retries"`
}

// Subscribe ingests batches published on subject. A failing batch is
// re-published with an incremented retry header and, after MaxRetries
// attempts, sent to subject+DLQSuffix.
func (i *Ingestor) Subscribe(nc natsutil.Conn, subject string) (*nats.Subscription, error) {
	if subject == "" {
		subject = Subject
	}
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		ctx, batch, err := natsutil.Decode[Batch](msg)
		if err != nil {
			i.log.Error("ingest: unmarshal failed", zap.Error(err))
			return
		}

		retries := 0
		if msg.Header != nil {
			retries, _ = strconv.Atoi(msg.Header.Get(retryHeader))
		}

		if _, err := i.Ingest(ctx, batch); err != nil {
			retries++
			i.log.Error("ingest: pipeline failed", zap.Error(err), zap.Int("retry", retries))

			if retries >= MaxRetries {
				dlq := dlqMessage{Batch: batch, Error: err.Error(), Retries: retries}
				if err := natsutil.Publish(ctx, nc, subject+DLQSuffix, dlq); err != nil {
					i.log.Error("ingest: DLQ publish failed", zap.Error(err))
				}
			} else {
				retry, err := natsutil.Encode(ctx, subject, batch)
				if err == nil {
					retry.Header.Set(retryHeader, strconv.Itoa(retries))
					err = nc.PublishMsg(retry)
				}
				if err != nil {
					i.log.Error("ingest: retry publish failed", zap.Error(err))
				}
			}
		}

		if msg.Reply != "" {
			_ = msg.Ack()
		}
	})
}
