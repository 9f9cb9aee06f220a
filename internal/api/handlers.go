// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/trainhub/sessionflow/internal/readiness"
	"github.com/trainhub/sessionflow/internal/types"
	"github.com/trainhub/sessionflow/internal/workflow"
)

type statusChangeRequest struct {
	Status string `json:"status"`
	Actor  string `json:"actor,omitempty"`
	Remark string `json:"remark,omitempty"`
}

type publishRequest struct {
	Actor  string `json:"actor,omitempty"`
	Remark string `json:"remark,omitempty"`
}

type bulkRequest struct {
	SessionIDs []string `json:"session_ids"`
	Actor      string   `json:"actor,omitempty"`
}

type bulkFailure struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

type bulkResponse struct {
	Succeeded []string      `json:"succeeded"`
	Failed    []bulkFailure `json:"failed"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.store.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handlePatchStatus(w http.ResponseWriter, r *http.Request) {
	var req statusChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	target, err := types.ParseSessionStatus(req.Status)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	session, err := s.engine.Request(r.Context(), workflow.TransitionRequest{
		SessionID: chi.URLParam(r, "id"),
		Target:    target,
		Actor:     req.Actor,
		Remark:    req.Remark,
	})
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid request body")
			return
		}
	}

	id := chi.URLParam(r, "id")
	session, err := s.engine.Request(r.Context(), workflow.TransitionRequest{
		SessionID: id,
		Target:    types.StatusPublished,
		Actor:     req.Actor,
		Remark:    req.Remark,
	})
	if err != nil {
		var blocked *workflow.PublishingBlockedError
		if s.auditor != nil && errors.As(err, &blocked) {
			s.auditor.PublishDenied(id, req.Actor, blocked.Reason)
		}
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}

	result := s.scorer.Score(session)
	// Persisting the fresh percentage is a display optimization; a
	// failure is not the caller's problem.
	if err := s.store.PersistReadiness(ctx, id, result.Percentage); err != nil {
		s.logger.Warn().Err(err).Str("session_id", id).Msg("failed to persist readiness")
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReadinessChecklist(w http.ResponseWriter, r *http.Request) {
	session, err := s.store.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeWorkflowError(w, err)
		return
	}

	category := r.URL.Query().Get("category")
	if category != "" {
		checks := s.scorer.ChecklistForCategory(session, category)
		if checks == nil {
			writeBadRequest(w, "unknown category "+category)
			return
		}
		writeJSON(w, http.StatusOK, checks)
		return
	}

	var all []workflow.CategoryCheck
	for _, c := range readiness.Categories {
		all = append(all, s.scorer.ChecklistForCategory(session, c)...)
	}
	writeJSON(w, http.StatusOK, all)
}

func (s *Server) handleStatusLog(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetSession(r.Context(), id); err != nil {
		writeWorkflowError(w, err)
		return
	}
	entries, err := s.store.ListStatusLogForSession(r.Context(), id)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleBulkPublish evaluates the batch verdict first, then publishes the
// passing candidates. A failure on one session never stops the rest.
func (s *Server) handleBulkPublish(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.SessionIDs) == 0 {
		writeBadRequest(w, "session_ids is required")
		return
	}

	verdicts, err := s.orchestrator.ValidateMultipleSessions(r.Context(), req.SessionIDs)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}

	resp := bulkResponse{Succeeded: []string{}, Failed: []bulkFailure{}}
	for _, id := range req.SessionIDs {
		verdict := verdicts[id]
		if verdict == nil || !verdict.CanPublish {
			reason := "publishing requirements not met"
			if verdict != nil && verdict.Reason != "" {
				reason = verdict.Reason
			}
			resp.Failed = append(resp.Failed, bulkFailure{SessionID: id, Reason: reason})
			continue
		}
		_, err := s.engine.Request(r.Context(), workflow.TransitionRequest{
			SessionID: id,
			Target:    types.StatusPublished,
			Actor:     req.Actor,
		})
		if err != nil {
			resp.Failed = append(resp.Failed, bulkFailure{SessionID: id, Reason: err.Error()})
			continue
		}
		resp.Succeeded = append(resp.Succeeded, id)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleBulkArchive retires a batch of sessions.
func (s *Server) handleBulkArchive(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.SessionIDs) == 0 {
		writeBadRequest(w, "session_ids is required")
		return
	}

	resp := bulkResponse{Succeeded: []string{}, Failed: []bulkFailure{}}
	for _, id := range req.SessionIDs {
		_, err := s.engine.Request(r.Context(), workflow.TransitionRequest{
			SessionID: id,
			Target:    types.StatusRetired,
			Actor:     req.Actor,
			Remark:    "Bulk archive",
		})
		if err != nil {
			var invalid *workflow.InvalidTransitionError
			var notFound *workflow.SessionNotFoundError
			if errors.As(err, &invalid) || errors.As(err, &notFound) {
				resp.Failed = append(resp.Failed, bulkFailure{SessionID: id, Reason: err.Error()})
				continue
			}
			writeWorkflowError(w, err)
			return
		}
		resp.Succeeded = append(resp.Succeeded, id)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWorkflowMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.monitor.CollectWorkflowMetrics(r.Context())
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleWorkflowHealth(w http.ResponseWriter, r *http.Request) {
	report, err := s.monitor.PerformHealthCheck(r.Context())
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
