package analyzer

import (
	"context"
	"fmt"

	"github.com/TanviPoddar/CodeGenie/internal/assist"
)

// BugFinder is satisfied by *assist.Assistant.
type BugFinder interface {
	FindBugs(ctx context.Context, code, language string) ([]assist.Suggestion, error)
}

// Review asks the text-generation service for a bug review. It fails when
// a bug is reported and is never critical. An unreachable service leaves the
// stage passing with Skipped set; only an ended context is an error.
type Review struct {
	Finder BugFinder
}

// ReviewFindings is what Review records on the stage.
type ReviewFindings struct {
	Suggestions []assist.Suggestion `json:"suggestions"`
	Skipped     string              `json:"skipped,omitempty"`
}

// Run implements Analyzer.
func (r *Review) Run(ctx context.Context, req Request) (Result, error) {
	suggestions, err := r.Finder.FindBugs(ctx, req.Source, req.Language)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("review: %w", err)
		}
		return Result{Pass: true, Findings: ReviewFindings{Suggestions: []assist.Suggestion{}, Skipped: "review unavailable"}}, nil
	}
	pass := true
	for _, s := range suggestions {
		if s.Type == assist.TypeBug {
			pass = false
			break
		}
	}
	return Result{Pass: pass, Findings: ReviewFindings{Suggestions: suggestions}}, nil
}
