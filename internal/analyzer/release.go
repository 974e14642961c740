package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ReleaseRecord is written for every released build.
type ReleaseRecord struct {
	BuildID    string    `json:"build_id"`
	Language   string    `json:"language"`
	Artifact   string    `json:"artifact"`
	ReleasedAt time.Time `json:"released_at"`
}

// ReleaseFindings is what Release records on the stage.
type ReleaseFindings struct {
	Record string `json:"record,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Release publishes a packaged build by recording it under
// <Dir>/releases/<build_id>.json. It fails when the artifact is missing.
type Release struct {
	Dir string
}

// Run implements Analyzer.
func (r *Release) Run(_ context.Context, req Request) (Result, error) {
	if err := checkBuildID(req.BuildID); err != nil {
		return Result{}, err
	}
	if req.Artifact == "" {
		return Result{Pass: false, Findings: ReleaseFindings{Reason: "no artifact to release"}}, nil
	}
	if _, err := os.Stat(req.Artifact); err != nil {
		return Result{Pass: false, Findings: ReleaseFindings{Reason: fmt.Sprintf("artifact unavailable: %v", err)}}, nil
	}

	dir := filepath.Join(r.Dir, "releases")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create release dir: %w", err)
	}
	data, err := json.MarshalIndent(ReleaseRecord{
		BuildID:    req.BuildID,
		Language:   req.Language,
		Artifact:   req.Artifact,
		ReleasedAt: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("encode release record: %w", err)
	}

	path := filepath.Join(dir, req.BuildID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Result{}, fmt.Errorf("write release record: %w", err)
	}
	return Result{Pass: true, Artifact: path, Findings: ReleaseFindings{Record: path}}, nil
}
