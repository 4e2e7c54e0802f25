package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"scrapeflow/internal/domain"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ScrapeRequest is the submit payload.
type ScrapeRequest struct {
	URL string `json:"url"`
}

// SubmitResponse acknowledges an accepted task.
type SubmitResponse struct {
	TaskID string `json:"task_id"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req ScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.URL == "" {
		s.respondWithError(w, http.StatusBadRequest, "url is required")
		return
	}

	taskID, err := s.scheduler.Submit(r.Context(), req.URL)
	switch {
	case errors.Is(err, domain.ErrInvalidURL):
		s.respondWithError(w, http.StatusBadRequest, "Invalid URL: "+req.URL)
		return
	case errors.Is(err, domain.ErrQueueFull):
		s.respondWithError(w, http.StatusServiceUnavailable, "Queue is full, retry later")
		return
	case err != nil:
		s.logger.Error("task submission failed", zap.String("url", req.URL), zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not accept task")
		return
	}

	s.respondWithJSON(w, http.StatusAccepted, SubmitResponse{TaskID: taskID})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	t, err := s.tasks.Get(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			s.respondWithError(w, http.StatusNotFound, "Task not found")
			return
		}
		s.logger.Error("failed to load task", zap.String("task_id", taskID), zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not retrieve task")
		return
	}

	s.respondWithJSON(w, http.StatusOK, t)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	healthStatus := make(map[string]string)
	healthy := true
	for name, backend := range s.backends {
		if err := backend.Ping(ctx); err != nil {
			healthStatus[name] = "unhealthy"
			healthy = false
			s.logger.Error("health check failed", zap.String("backend", name), zap.Error(err))
		} else {
			healthStatus[name] = "healthy"
		}
	}

	if !healthy {
		s.respondWithJSON(w, http.StatusServiceUnavailable, healthStatus)
		return
	}
	s.respondWithJSON(w, http.StatusOK, healthStatus)
}

// --- Helper Functions ---

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
