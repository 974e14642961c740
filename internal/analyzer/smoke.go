package analyzer

import (
	"context"

	"github.com/TanviPoddar/CodeGenie/internal/backend"
	"github.com/TanviPoddar/CodeGenie/internal/model"
)

// Smoke runs the program once through an execution backend and passes when
// it runs to a clean exit.
type Smoke struct {
	Executor backend.Executor
	TimeoutS int
}

// SmokeFindings is what Smoke records on the stage.
type SmokeFindings struct {
	Kind       string `json:"kind"`
	ExitCode   int    `json:"exit_code"`
	Message    string `json:"message"`
	DurationMS int64  `json:"duration_ms"`
}

// Run implements Analyzer.
func (s *Smoke) Run(ctx context.Context, req Request) (Result, error) {
	res := s.Executor.Execute(ctx, model.ExecutionRequest{
		Source:   req.Source,
		Language: req.Language,
		TimeoutS: s.TimeoutS,
	})
	return Result{
		Pass: res.OK(),
		Findings: SmokeFindings{
			Kind:       res.Kind,
			ExitCode:   res.ExitCode,
			Message:    res.Message(),
			DurationMS: res.DurationMS,
		},
	}, nil
}
