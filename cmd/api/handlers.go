package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/tacticalcatboy/legit-rag/engine/domain"
	"github.com/tacticalcatboy/legit-rag/engine/evaluate"
	"github.com/tacticalcatboy/legit-rag/engine/ingest"
	"github.com/tacticalcatboy/legit-rag/engine/ledger"
	"github.com/tacticalcatboy/legit-rag/engine/workflow"
)

type pipeline interface {
	Process(ctx context.Context, query string) (workflow.Result, error)
}

type ingester interface {
	Ingest(ctx context.Context, b ingest.Batch) (int, error)
}

type server struct {
	pipeline  pipeline
	ingestor  ingester
	ledger    ledger.Store
	evaluator evaluate.Evaluator
	log       *zap.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ledgerStatus maps ledger lookup errors onto HTTP statuses.
func ledgerStatus(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInvalidRecord):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// parseRange reads the optional RFC3339 from and to query parameters.
func parseRange(r *http.Request) (ledger.Range, error) {
	var rng ledger.Range
	for _, p := range []struct {
		key string
		dst *time.Time
	}{{"from", &rng.From}, {"to", &rng.To}} {
		v := r.URL.Query().Get(p.key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return ledger.Range{}, fmt.Errorf("invalid %s: %w", p.key, err)
		}
		*p.dst = t
	}
	return rng, nil
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// QueryRequest is the JSON body for POST /api/query.
type QueryRequest struct {
	Query string `json:"query"`
}

// QueryResponse is the JSON response for POST /api/query. Answer is null
// when the query was rejected or the evidence was insufficient.
type QueryResponse struct {
	WorkflowID string         `json:"workflow_id"`
	Outcome    string         `json:"outcome"`
	Answer     *domain.Answer `json:"answer"`
	Error      string         `json:"error,omitempty"`
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	res, err := s.pipeline.Process(r.Context(), req.Query)
	resp := QueryResponse{
		WorkflowID: res.Workflow.WorkflowID,
		Outcome:    res.Workflow.Outcome,
		Answer:     res.Answer,
	}
	if err != nil {
		s.log.Error("query failed", zap.String("workflow_id", resp.WorkflowID), zap.Error(err))
		resp.Error = "query failed"
		var se *domain.StageError
		if errors.As(err, &se) {
			resp.Error = fmt.Sprintf("%s stage failed", se.Stage)
		}
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	var batch ingest.Batch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	n, err := s.ingestor.Ingest(r.Context(), batch)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidDocument) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error("ingest failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "ingest failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"ingested": n})
}

func (s *server) handleWorkflow(w http.ResponseWriter, r *http.Request) {
	trace, err := ledger.LoadTrace(r.Context(), s.ledger, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, ledgerStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, trace)
}

func (s *server) handleWorkflows(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ws, err := s.ledger.Workflows(r.Context(), rng)
	if err != nil {
		s.log.Error("list workflows failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list workflows failed")
		return
	}
	if ws == nil {
		ws = []ledger.WorkflowRecord{}
	}
	writeJSON(w, http.StatusOK, ws)
}

func (s *server) handleEvaluation(w http.ResponseWriter, r *http.Request) {
	report, err := evaluate.EvaluateWorkflow(r.Context(), s.ledger, s.evaluator, mux.Vars(r)["id"], s.log)
	if err != nil {
		writeError(w, ledgerStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	traces, err := ledger.LoadTraces(r.Context(), s.ledger, rng)
	if err != nil {
		s.log.Error("load traces failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "load traces failed")
		return
	}
	writeJSON(w, http.StatusOK, ledger.Summarize(traces))
}

func (s *server) handleExport(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	traces, err := ledger.LoadTraces(r.Context(), s.ledger, rng)
	if err != nil {
		s.log.Error("load traces failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "load traces failed")
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Content-Disposition", `attachment; filename="finetune.jsonl"`)
	n, err := ledger.WriteJSONL(w, ledger.Examples(traces, r.URL.Query()["step"]...))
	if err != nil {
		s.log.Warn("export interrupted", zap.Int("written", n), zap.Error(err))
	}
}
