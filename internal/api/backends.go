package api

import (
	"net/http"

	"github.com/TanviPoddar/CodeGenie/internal/sandbox"
)

func (s *Server) handleListBackends(w http.ResponseWriter, _ *http.Request) {
	backends := s.registry.List()
	s.writeJSON(w, http.StatusOK, backends)
}

type languagesResponse struct {
	Languages []string `json:"languages"`
}

func (s *Server) handleListLanguages(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, languagesResponse{Languages: sandbox.Languages()})
}
