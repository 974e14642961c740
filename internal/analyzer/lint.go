package analyzer

import (
	"context"
	"fmt"
	"strings"
)

// Lint severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Issue is a single lint finding. Line is 1-based; 0 means the whole file.
type Issue struct {
	Line     int    `json:"line"`
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// LintFindings is what Lint records on the stage.
type LintFindings struct {
	Issues []Issue `json:"issues"`
}

// Lint is a language-agnostic static check. Sources that cannot be a
// program at all are critical errors; formatting problems are warnings.
type Lint struct {
	MaxBytes      int
	MaxLineLength int

	// MaxIssues bounds the number of warnings reported.
	MaxIssues int
}

// NewLint returns a Lint with default limits.
func NewLint() *Lint {
	return &Lint{MaxBytes: 256 << 10, MaxLineLength: 120, MaxIssues: 50}
}

// Run implements Analyzer.
func (l *Lint) Run(_ context.Context, req Request) (Result, error) {
	var issues []Issue
	critical := func(rule, msg string) (Result, error) {
		issues = append(issues, Issue{Rule: rule, Severity: SeverityError, Message: msg})
		return Result{Pass: false, Critical: true, Findings: LintFindings{Issues: issues}}, nil
	}

	switch {
	case strings.TrimSpace(req.Source) == "":
		return critical("empty-source", "source is empty")
	case l.MaxBytes > 0 && len(req.Source) > l.MaxBytes:
		return critical("too-large", fmt.Sprintf("source is %d bytes, limit is %d", len(req.Source), l.MaxBytes))
	case strings.IndexByte(req.Source, 0) >= 0:
		return critical("binary-content", "source contains NUL bytes")
	}

	var tabs, spaces bool
	for i, line := range strings.Split(req.Source, "\n") {
		n := i + 1
		line = strings.TrimSuffix(line, "\r")
		if l.MaxLineLength > 0 && len([]rune(line)) > l.MaxLineLength {
			issues = append(issues, Issue{Line: n, Rule: "line-length", Severity: SeverityWarning,
				Message: fmt.Sprintf("line is longer than %d characters", l.MaxLineLength)})
		}
		if trimmed := strings.TrimRight(line, " \t"); trimmed != line {
			issues = append(issues, Issue{Line: n, Rule: "trailing-whitespace", Severity: SeverityWarning,
				Message: "trailing whitespace"})
		}
		switch {
		case strings.HasPrefix(line, "\t"):
			tabs = true
		case strings.HasPrefix(line, " "):
			spaces = true
		}
	}
	if tabs && spaces {
		issues = append(issues, Issue{Rule: "mixed-indentation", Severity: SeverityWarning,
			Message: "file indents with both tabs and spaces"})
	}
	if l.MaxIssues > 0 && len(issues) > l.MaxIssues {
		issues = issues[:l.MaxIssues]
	}
	if issues == nil {
		issues = []Issue{}
	}
	return Result{Pass: true, Findings: LintFindings{Issues: issues}}, nil
}
