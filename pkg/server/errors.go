package server

import (
	"encoding/json"
	"net/http"

	"github.com/ethpandaops/runbook-engine/pkg/runbook"
)

// statusFor maps a runbook.Kind to the HTTP status the transport layer
// realizes it as, per the error handling design's suggested transport
// mapping table.
func statusFor(kind runbook.Kind) int {
	switch kind {
	case runbook.KindNotFound:
		return http.StatusNotFound
	case runbook.KindBadFilename,
		runbook.KindRecursionDetected,
		runbook.KindRecursionDepthExceeded,
		runbook.KindInvalidEnvVarName:
		return http.StatusBadRequest
	case runbook.KindAuthorizationDenied:
		return http.StatusForbidden
	case runbook.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeError maps err to its Kind's HTTP status and writes a JSON body.
// Errors that are not a *runbook.Error are treated as internal failures.
func writeError(w http.ResponseWriter, err error) {
	kind := runbook.KindOf(err)
	status := statusFor(kind)
	if kind == runbook.KindUnknown {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: err.Error(), Kind: kind.String()})
}
