// Package metrics exposes pipeline metrics through a Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "legitrag"

// Pipeline holds the collectors recorded by the orchestrator, the retriever
// and ingestion. All methods are safe on a nil *Pipeline.
type Pipeline struct {
	Steps             *prometheus.CounterVec
	StepDuration      *prometheus.HistogramVec
	Workflows         *prometheus.CounterVec
	WorkflowDuration  prometheus.Histogram
	CompletionScore   prometheus.Histogram
	Candidates        prometheus.Histogram
	DocumentsIngested prometheus.Counter
	LedgerErrors      *prometheus.CounterVec
}

// NewRegistry returns a registry preloaded with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewPipeline registers the pipeline collectors with reg.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	f := promauto.With(reg)
	return &Pipeline{
		Steps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Stage invocations by step name and status.",
		}, []string{"step", "status"}),
		StepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Stage invocation latency.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"step"}),
		Workflows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_total",
			Help:      "Completed workflows by outcome.",
		}, []string{"outcome"}),
		WorkflowDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_duration_seconds",
			Help:      "End-to-end query latency.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		CompletionScore: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_score",
			Help:      "Completion checker scores.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		Candidates: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidates",
			Help:      "Fused candidate set size per query.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		DocumentsIngested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_ingested_total",
			Help:      "Documents added to the document store.",
		}),
		LedgerErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_errors_total",
			Help:      "Failed ledger writes by record kind.",
		}, []string{"kind"}),
	}
}

func (p *Pipeline) ObserveStep(step string, ok bool, d time.Duration) {
	if p == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	p.Steps.WithLabelValues(step, status).Inc()
	p.StepDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (p *Pipeline) ObserveWorkflow(outcome string, d time.Duration) {
	if p == nil {
		return
	}
	p.Workflows.WithLabelValues(outcome).Inc()
	p.WorkflowDuration.Observe(d.Seconds())
}

func (p *Pipeline) ObserveCompletion(score float64) {
	if p == nil {
		return
	}
	p.CompletionScore.Observe(score)
}

func (p *Pipeline) ObserveCandidates(n int) {
	if p == nil {
		return
	}
	p.Candidates.Observe(float64(n))
}

func (p *Pipeline) AddIngested(n int) {
	if p == nil {
		return
	}
	p.DocumentsIngested.Add(float64(n))
}

func (p *Pipeline) LedgerError(kind string) {
	if p == nil {
		return
	}
	p.LedgerErrors.WithLabelValues(kind).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
