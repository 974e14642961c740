package backend

import (
	"context"

	"github.com/TanviPoddar/CodeGenie/internal/model"
	"github.com/TanviPoddar/CodeGenie/internal/sandbox"
)

// Backend names accepted by Registry.Resolve.
const (
	NameProcess = "process"
	NameDocker  = "docker"
	NameAuto    = "auto"
)

// Executor is the interface every execution backend implements.
type Executor interface {
	// Execute runs a request to completion. Failures are reported in the
	// result, never as a Go error.
	Execute(ctx context.Context, req model.ExecutionRequest) model.ExecutionResult

	// Capabilities reports the languages and limits this backend supports.
	Capabilities() Capabilities
}

// Capabilities describes what a backend supports.
type Capabilities struct {
	Name            string   `json:"name"`
	Isolation       string   `json:"isolation"`
	Languages       []string `json:"languages"`
	DefaultTimeoutS int      `json:"default_timeout_s"`
	MaxTimeoutS     int      `json:"max_timeout_s"`
}

// Sandbox adapts a sandbox.Engine to the Executor interface.
type Sandbox struct {
	name      string
	isolation string
	engine    *sandbox.Engine
}

// NewSandbox wraps engine under the given backend name. isolation is a short
// human-readable description such as "process-group" or "container".
func NewSandbox(name, isolation string, engine *sandbox.Engine) *Sandbox {
	return &Sandbox{name: name, isolation: isolation, engine: engine}
}

// Execute implements Executor.
func (s *Sandbox) Execute(ctx context.Context, req model.ExecutionRequest) model.ExecutionResult {
	return s.engine.Execute(ctx, req)
}

// Capabilities implements Executor.
func (s *Sandbox) Capabilities() Capabilities {
	def, maxS := s.engine.Limits()
	return Capabilities{
		Name:            s.name,
		Isolation:       s.isolation,
		Languages:       s.engine.Languages(),
		DefaultTimeoutS: def,
		MaxTimeoutS:     maxS,
	}
}
