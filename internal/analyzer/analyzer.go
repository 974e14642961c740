// Package analyzer holds the pluggable stage implementations the pipeline
// runs: static checks, smoke tests through an execution backend, packaging
// and release, and their Docker-based counterparts.
package analyzer

import (
	"context"
	"fmt"
)

// Request is the input to one stage.
type Request struct {
	BuildID  string
	Source   string
	Language string

	// Artifact is what the previous stage produced, for example the archive
	// path handed from Build to Deployment. Empty for the first stage.
	Artifact string
}

// Result is the outcome of one stage. Findings must be JSON-encodable.
type Result struct {
	Pass     bool
	Critical bool
	Artifact string
	Findings any
}

// Analyzer runs one pipeline stage. A returned error means the stage could
// not be evaluated at all; an evaluated failure is Result{Pass: false}.
type Analyzer interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// Func adapts a function to Analyzer.
type Func func(ctx context.Context, req Request) (Result, error)

// Run implements Analyzer.
func (f Func) Run(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// Part is a named member of a composite analyzer.
type Part struct {
	Name     string
	Analyzer Analyzer
}

type composite []Part

// All runs every part in order. The result passes only if every part
// passes and is critical if any part is. Findings are keyed by part name.
func All(parts ...Part) Analyzer {
	return composite(parts)
}

func (c composite) Run(ctx context.Context, req Request) (Result, error) {
	out := Result{Pass: true}
	findings := make(map[string]any, len(c))
	for _, p := range c {
		res, err := p.Analyzer.Run(ctx, req)
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", p.Name, err)
		}
		out.Pass = out.Pass && res.Pass
		out.Critical = out.Critical || res.Critical
		if res.Artifact != "" {
			out.Artifact = res.Artifact
		}
		findings[p.Name] = res.Findings
	}
	out.Findings = findings
	return out, nil
}
