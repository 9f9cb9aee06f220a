// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/trainhub/sessionflow/internal/workflow"
)

// errorBody is the structured error payload returned on rejections.
type errorBody struct {
	Error     string                     `json:"error"`
	Errors    []workflow.ValidationError `json:"errors,omitempty"`
	Conflicts []workflow.ConflictRef     `json:"conflicts,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeBadRequest writes a 400 response for malformed input
func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// writeNotFound writes a 404 Not Found response
func writeNotFound(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusNotFound, errorBody{Error: msg})
}

// writeWorkflowError maps the workflow error taxonomy onto HTTP status
// codes with structured bodies, so callers can render a specific,
// actionable message.
func writeWorkflowError(w http.ResponseWriter, err error) {
	var notFound *workflow.SessionNotFoundError
	if errors.As(err, &notFound) {
		writeNotFound(w, notFound.Error())
		return
	}

	var invalid *workflow.InvalidTransitionError
	if errors.As(err, &invalid) {
		writeJSON(w, http.StatusConflict, errorBody{Error: invalid.Error()})
		return
	}

	var blocked *workflow.PublishingBlockedError
	if errors.As(err, &blocked) {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error:     blocked.Error(),
			Errors:    blocked.Errors,
			Conflicts: blocked.Conflicts,
		})
		return
	}

	var contended *workflow.ConcurrentModificationError
	if errors.As(err, &contended) {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: contended.Error()})
		return
	}

	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
}
