package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"script-breakdown/internal/domain"
	"script-breakdown/internal/domain/model"
	"script-breakdown/internal/usecase"
)

type createJobRequest struct {
	ProjectID  string `json:"project_id"`
	DocumentID string `json:"document_id"`
	Kind       string `json:"kind"`
}

type jobResponse struct {
	ID              string          `json:"id"`
	ProjectID       string          `json:"project_id"`
	DocumentID      string          `json:"document_id"`
	Kind            string          `json:"kind"`
	Status          string          `json:"status"`
	CurrentStep     int             `json:"current_step"`
	TotalSteps      int             `json:"total_steps"`
	Progress        int             `json:"progress"`
	StepDescription string          `json:"step_description,omitempty"`
	Result          json.RawMessage `json:"result,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	ErrorDetails    string          `json:"error_details,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	ProcessingMS    int64           `json:"processing_ms,omitempty"`
}

func toJobResponse(j *model.Job) jobResponse {
	return jobResponse{
		ID:              j.ID,
		ProjectID:       j.ProjectID,
		DocumentID:      j.DocumentID,
		Kind:            string(j.Kind),
		Status:          string(j.Status),
		CurrentStep:     j.CurrentStep,
		TotalSteps:      j.TotalSteps,
		Progress:        j.Progress,
		StepDescription: j.StepDescription,
		Result:          j.Result,
		ErrorMessage:    j.ErrorMessage,
		ErrorDetails:    j.ErrorDetails,
		CreatedAt:       j.CreatedAt,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
		ProcessingMS:    j.ProcessingMS,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type loginRequest struct {
	APIKey string `json:"api_key"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if s.apiKey == "" || req.APIKey != s.apiKey || s.auth == nil {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	if _, err := s.auth.Mint(w); err != nil {
		s.log.Error().Err(err).Msg("could not mint session")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	if s.auth != nil {
		s.auth.Clear(w)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	kind := model.JobKind(req.Kind)
	if req.Kind == "" {
		kind = model.JobKindScriptBreakdown
	}

	job, err := s.jobUC.StartJob(r.Context(), usecase.CreateJobInput{
		ProjectID:  req.ProjectID,
		DocumentID: req.DocumentID,
		Kind:       kind,
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrJobAlreadyActive):
		http.Error(w, "A job is already running for this document", http.StatusConflict)
		return
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrUnknownJobKind):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	default:
		s.log.Error().Err(err).Msg("job creation failed")
		http.Error(w, "Failed to create job", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, toJobResponse(job))
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if s.cache != nil {
		if job, err := s.cache.Get(r.Context(), id); err == nil && job != nil {
			writeJSON(w, http.StatusOK, toJobResponse(job))
			return
		}
	}

	job, err := s.jobUC.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		s.log.Error().Err(err).Str("job_id", id).Msg("job lookup failed")
		http.Error(w, "Failed to get job", http.StatusInternalServerError)
		return
	}

	if s.cache != nil {
		_ = s.cache.Store(r.Context(), job)
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := s.jobUC.CancelJob(r.Context(), id)
	switch {
	case err == nil:
		if s.cache != nil {
			_ = s.cache.Invalidate(r.Context(), id)
		}
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "Job not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrJobTerminal):
		http.Error(w, "Job already finished", http.StatusConflict)
	default:
		s.log.Error().Err(err).Str("job_id", id).Msg("job cancel failed")
		http.Error(w, "Failed to cancel job", http.StatusInternalServerError)
	}
}
