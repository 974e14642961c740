package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/TanviPoddar/CodeGenie/internal/backend"
	"github.com/TanviPoddar/CodeGenie/internal/model"
)

// maxBodySize caps every JSON request body.
const maxBodySize = 1 << 20 // 1 MB

// executeRequest is the JSON body for POST /v1/executions.
type executeRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	TimeoutS int    `json:"timeout_s"`
	Backend  string `json:"backend"`
}

// executeResponse is the classified result plus the user-facing message.
type executeResponse struct {
	model.ExecutionResult
	Backend string `json:"backend"`
	Output  string `json:"output"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if req.Code == "" || req.Language == "" {
		s.writeError(w, http.StatusBadRequest, "Code and language must be provided")
		return
	}
	if req.TimeoutS < 0 {
		s.writeError(w, http.StatusBadRequest, "timeout_s must not be negative")
		return
	}

	name := req.Backend
	if name == "" {
		name = s.defaultBackend
	}
	exec, err := s.registry.Resolve(name)
	if errors.Is(err, backend.ErrUnknownBackend) {
		s.writeError(w, http.StatusBadRequest, "unknown backend: "+name)
		return
	}
	if err != nil {
		s.logger.Errorw("resolve backend", "backend", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to resolve backend")
		return
	}

	// Compile and run are each bounded by the sandbox timeout, which can
	// exceed the server's write timeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debugw("clear write deadline for execution", "error", err)
	}

	res := exec.Execute(r.Context(), model.ExecutionRequest{
		Source:   req.Code,
		Language: req.Language,
		TimeoutS: req.TimeoutS,
	})

	s.writeJSON(w, http.StatusOK, executeResponse{
		ExecutionResult: res,
		Backend:         exec.Capabilities().Name,
		Output:          res.Message(),
	})
}

// decodeJSON reads a size-limited JSON body into v. It writes a 400 and
// returns false when the body is not valid JSON.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
