package api

import (
	"errors"
	"net/http"

	"github.com/TanviPoddar/CodeGenie/internal/assist"
)

type assistRequest struct {
	Code     string `json:"code"`
	Prompt   string `json:"prompt"`
	Language string `json:"language"`
}

type testsResponse struct {
	Language string `json:"language"`
	Tests    string `json:"tests"`
}

type debugResponse struct {
	Suggestions []assist.Suggestion `json:"suggestions"`
}

type generateResponse struct {
	GeneratedCode string `json:"generatedCode"`
}

// assistReady writes a 503 when no text-generation service is configured.
func (s *Server) assistReady(w http.ResponseWriter) bool {
	if s.assistant == nil {
		s.writeError(w, http.StatusServiceUnavailable, "code assistance is not configured")
		return false
	}
	return true
}

// writeAssistError maps assistant failures to status codes. Upstream
// details are logged, never returned.
func (s *Server) writeAssistError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, assist.ErrInvalidInput) || errors.Is(err, assist.ErrInvalidPrompt) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Errorw("assist request failed", "op", op, "error", err)
	s.writeError(w, http.StatusInternalServerError, "code assistance failed")
}

func (s *Server) handleGenerateTests(w http.ResponseWriter, r *http.Request) {
	if !s.assistReady(w) {
		return
	}
	var req assistRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	tests, err := s.assistant.GenerateTests(r.Context(), req.Code, req.Language)
	if err != nil {
		s.writeAssistError(w, "tests", err)
		return
	}
	s.writeJSON(w, http.StatusOK, testsResponse{Language: req.Language, Tests: tests})
}

func (s *Server) handleDebugCode(w http.ResponseWriter, r *http.Request) {
	if !s.assistReady(w) {
		return
	}
	var req assistRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	suggestions, err := s.assistant.FindBugs(r.Context(), req.Code, req.Language)
	if err != nil {
		s.writeAssistError(w, "debug", err)
		return
	}
	s.writeJSON(w, http.StatusOK, debugResponse{Suggestions: suggestions})
}

func (s *Server) handleGenerateCode(w http.ResponseWriter, r *http.Request) {
	if !s.assistReady(w) {
		return
	}
	var req assistRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	code, err := s.assistant.GenerateCode(r.Context(), req.Prompt, req.Language)
	if err != nil {
		s.writeAssistError(w, "generate", err)
		return
	}
	s.writeJSON(w, http.StatusOK, generateResponse{GeneratedCode: code})
}
