package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/fieldroute/fieldroute/internal/engine"
	"github.com/fieldroute/fieldroute/internal/logging"
	"github.com/fieldroute/fieldroute/internal/registry"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// handleInfer analyzes a raw sample and returns the detected schema.
//
// The sample is the request body; parse settings come from query parameters:
// format (csv, json, jsonl), delimiter, quote, noHeader, skipRows.
func (s *Server) handleInfer(w http.ResponseWriter, r *http.Request) {
	data, err := s.readBatchBody(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	format, opts, err := parseSettings(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	parsed, err := engine.Parse(data, format, opts)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	report := engine.InferSchema(parsed)
	logging.FromContext(r.Context()).Info("schema inferred",
		"format", format,
		"fields", len(report.Fields),
		"rows", report.TotalRows,
	)
	writeJSON(w, http.StatusOK, report)
}

// handleGenerateMappings proposes a mapping set from detected fields.
func (s *Server) handleGenerateMappings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Fields    []engine.DetectedField `json:"detectedFields"`
		PrimaryID string                 `json:"primaryIdField"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, engine.GenerateMappings(req.Fields, req.PrimaryID))
}

// handleValidateMappings checks a mapping set against the mapping invariants.
// Validation problems are the response payload, not an error.
func (s *Server) handleValidateMappings(w http.ResponseWriter, r *http.Request) {
	var mappings []engine.FieldMapping
	if err := decodeJSON(r, &mappings); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, engine.ValidateMappings(mappings))
}

func (s *Server) handleListPipelines(w http.ResponseWriter, r *http.Request) {
	pipelines, err := s.registry.ListPipelines(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pipelines)
}

func (s *Server) handleCreatePipeline(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	p, err := s.registry.CreatePipeline(r.Context(), req.Name)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("pipeline created", "pipeline", p.ID, "name", p.Name)
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetPipeline(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "pipelineID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	p, err := s.registry.GetPipeline(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePipeline(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "pipelineID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.registry.DeletePipeline(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("pipeline deleted", "pipeline", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReplaceMappings(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "pipelineID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var mappings []engine.FieldMapping
	if err := decodeJSON(r, &mappings); err != nil {
		s.respondError(w, r, err)
		return
	}

	p, err := s.registry.ReplaceMappings(r.Context(), id, mappings)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpsertQueue(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "pipelineID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var q registry.Queue
	if err := decodeJSON(r, &q); err != nil {
		s.respondError(w, r, err)
		return
	}

	p, err := s.registry.UpsertQueue(r.Context(), id, q)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteQueue(w http.ResponseWriter, r *http.Request) {
	pipelineID, err := urlUUID(r, "pipelineID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	queueID, err := urlUUID(r, "queueID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	p, err := s.registry.DeleteQueue(r.Context(), pipelineID, queueID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpsertRule(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "pipelineID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var rule engine.RoutingRule
	if err := decodeJSON(r, &rule); err != nil {
		s.respondError(w, r, err)
		return
	}

	p, err := s.registry.UpsertRule(r.Context(), id, rule)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleValidateRule dry-checks a rule against the pipeline schema without
// saving it. Validation problems are the response payload, not an error.
func (s *Server) handleValidateRule(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "pipelineID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var rule engine.RoutingRule
	if err := decodeJSON(r, &rule); err != nil {
		s.respondError(w, r, err)
		return
	}

	p, err := s.registry.GetPipeline(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.registry.ValidateRule(p, rule))
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	pipelineID, err := urlUUID(r, "pipelineID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	ruleID, err := urlUUID(r, "ruleID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	p, err := s.registry.DeleteRule(r.Context(), pipelineID, ruleID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleIngest runs one batch through the pipeline's mappings and rules.
//
// The raw batch is the request body; ?dryRun=true projects the run without
// emitting task requests. Parse settings use the same query parameters as
// /api/infer.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "pipelineID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	p, err := s.registry.GetPipeline(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	data, err := s.readBatchBody(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	format, opts, err := parseSettings(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	dryRun := r.URL.Query().Get("dryRun") == "true"

	result, err := engine.Ingest(r.Context(), engine.IngestRequest{
		Data:     data,
		Format:   format,
		Options:  opts,
		Mappings: p.Mappings,
		Rules:    p.Rules,
		DryRun:   dryRun,
		Workers:  s.cfg.Ingest.Workers,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("batch ingested",
		"pipeline", p.ID,
		"dry_run", dryRun,
		"status", result.Status,
		"found", result.Counts.Found,
		"routed", result.Counts.Routed,
		"failed", result.Counts.Failed,
	)
	writeJSON(w, http.StatusOK, result)
}

// readBatchBody reads the request body under the configured batch size cap.
func (s *Server) readBatchBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body := http.MaxBytesReader(w, r.Body, s.cfg.Ingest.MaxBatchBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read batch body: %w", err)
	}
	return data, nil
}

// parseSettings extracts the declared format and parse options from query
// parameters.
func parseSettings(r *http.Request) (engine.Format, engine.ParseOptions, error) {
	q := r.URL.Query()

	format := engine.Format(q.Get("format"))
	if format == "" {
		format = engine.FormatCSV
	}

	var opts engine.ParseOptions
	if d := q.Get("delimiter"); d != "" {
		opts.Delimiter = []rune(d)[0]
	}
	if qc := q.Get("quote"); qc != "" {
		opts.Quote = []rune(qc)[0]
	}
	opts.NoHeader = q.Get("noHeader") == "true"
	if sr := q.Get("skipRows"); sr != "" {
		n, err := strconv.Atoi(sr)
		if err != nil || n < 0 {
			return format, opts, &badRequestError{fmt.Errorf("invalid skipRows %q", sr)}
		}
		opts.SkipRows = n
	}
	return format, opts, nil
}

// decodeJSON decodes the request body into v, rejecting unknown garbage with
// a clear error.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return &badRequestError{fmt.Errorf("decode request body: %w", err)}
	}
	return nil
}

// urlUUID parses a UUID URL parameter.
func urlUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &badRequestError{fmt.Errorf("invalid %s %q: %w", name, raw, err)}
	}
	return id, nil
}
