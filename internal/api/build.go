package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/TanviPoddar/CodeGenie/internal/model"
	"github.com/TanviPoddar/CodeGenie/internal/pipeline"
	"github.com/TanviPoddar/CodeGenie/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// startBuildRequest is the JSON body for POST /v1/builds.
type startBuildRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

type startBuildResponse struct {
	BuildID string `json:"build_id"`
	Message string `json:"message"`
}

// listBuildsResponse wraps the paginated list response.
type listBuildsResponse struct {
	Builds []*model.Build `json:"builds"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

func (s *Server) handleStartBuild(w http.ResponseWriter, r *http.Request) {
	var req startBuildRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	id, err := s.pipeline.StartBuild(r.Context(), req.Code, req.Language)
	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest):
		s.writeError(w, http.StatusBadRequest, "Code and language must be provided")
		return
	case errors.Is(err, pipeline.ErrShuttingDown):
		s.writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	case err != nil:
		s.logger.Errorw("start build", "language", req.Language, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to start build")
		return
	}

	s.writeJSON(w, http.StatusAccepted, startBuildResponse{
		BuildID: id,
		Message: "Build started",
	})
}

func (s *Server) handleGetBuild(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	b, err := s.pipeline.GetBuildStatus(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "Build not found")
		return
	}
	if err != nil {
		s.logger.Errorw("get build", "build_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get build")
		return
	}

	s.writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	builds, total, err := s.pipeline.ListBuilds(r.Context(), limit, offset)
	if err != nil {
		s.logger.Errorw("list builds", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list builds")
		return
	}

	if builds == nil {
		builds = []*model.Build{}
	}

	s.writeJSON(w, http.StatusOK, listBuildsResponse{
		Builds: builds,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Errorw("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
