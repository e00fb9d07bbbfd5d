package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ethpandaops/runbook-engine/pkg/observability"
	"github.com/ethpandaops/runbook-engine/pkg/runbook"
)

// executeRequest is the body accepted by POST .../execute.
type executeRequest struct {
	EnvVars map[string]string `json:"env_vars,omitempty"`
}

func (s *service) handleList(w http.ResponseWriter, r *http.Request) {
	tok := tokenContextFrom(r.Context())

	names, err := s.runbooks.List(r.Context(), tok)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, names)
}

func (s *service) handleGet(w http.ResponseWriter, r *http.Request) {
	tok := tokenContextFrom(r.Context())
	filename := chi.URLParam(r, "filename")

	text, err := s.runbooks.Get(r.Context(), filename, tok)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

func (s *service) handleRequiredEnv(w http.ResponseWriter, r *http.Request) {
	tok := tokenContextFrom(r.Context())
	filename := chi.URLParam(r, "filename")

	reqs, err := s.runbooks.RequiredEnv(r.Context(), filename, tok)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reqs)
}

func (s *service) handleValidate(w http.ResponseWriter, r *http.Request) {
	tok := tokenContextFrom(r.Context())
	filename := chi.URLParam(r, "filename")
	bc := breadcrumbFromRequest(r, tok)

	timer := prometheus.NewTimer(observability.OperationDuration.WithLabelValues(runbook.OperationValidate))
	rec, err := s.runbooks.Validate(r.Context(), filename, tok, bc)
	timer.ObserveDuration()
	if err != nil {
		observability.OperationsTotal.WithLabelValues(runbook.OperationValidate, "error").Inc()
		writeError(w, err)
		return
	}
	recordOutcome(runbook.OperationValidate, filename, rec)

	writeJSON(w, http.StatusOK, rec)
}

func (s *service) handleExecute(w http.ResponseWriter, r *http.Request) {
	tok := tokenContextFrom(r.Context())
	filename := chi.URLParam(r, "filename")
	bc := breadcrumbFromRequest(r, tok)

	var body executeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, runbook.NewError(runbook.KindInvalidEnvVarName, "decoding request body: "+err.Error()))
			return
		}
	}

	observability.ActiveExecutions.Inc()
	observability.RecursionDepth.WithLabelValues(filename).Observe(float64(len(bc.RecursionStack)))

	timer := prometheus.NewTimer(observability.OperationDuration.WithLabelValues(runbook.OperationExecute))
	rec, err := s.runbooks.Execute(r.Context(), filename, tok, bc, body.EnvVars)
	timer.ObserveDuration()
	observability.ActiveExecutions.Dec()
	if err != nil {
		observability.OperationsTotal.WithLabelValues(runbook.OperationExecute, "error").Inc()
		writeError(w, err)
		return
	}
	recordOutcome(runbook.OperationExecute, filename, rec)

	writeJSON(w, http.StatusOK, rec)
}

// recordOutcome exports the completed ExecutionRecord to the operations
// and return-code counters, independently of the audit trail written by
// runbook.Service.finalize.
func recordOutcome(operation, filename string, rec *runbook.ExecutionRecord) {
	status := "success"
	if !rec.Success() {
		status = "failure"
	}
	observability.OperationsTotal.WithLabelValues(operation, status).Inc()
	observability.ExecutionReturnCodes.WithLabelValues(filename, strconv.Itoa(rec.ReturnCode)).Inc()
}

// breadcrumbFromRequest builds a Breadcrumb from the request's token
// context and the X-Recursion-Stack / X-Correlation-ID headers, per the
// transport realization of the recursion guard's inbound stack contract.
// The correlation ID itself is read back out of the request context rather
// than the header directly, since observability.LoggingMiddleware already
// extracted it earlier in the chain.
func breadcrumbFromRequest(r *http.Request, tok *runbook.TokenContext) *runbook.Breadcrumb {
	correlationID := observability.GetCorrelationID(r.Context())
	if correlationID == "" {
		correlationID = tok.CorrelationID
	}

	var stack []string
	if raw := r.Header.Get("X-Recursion-Stack"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &stack)
	}

	return &runbook.Breadcrumb{
		AtTime:         time.Now().UTC(),
		ByUser:         tok.Subject,
		FromIP:         tok.RemoteAddr,
		CorrelationID:  correlationID,
		RecursionStack: stack,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
