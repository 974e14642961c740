package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/TanviPoddar/CodeGenie/internal/assist"
	"github.com/TanviPoddar/CodeGenie/internal/backend"
	"github.com/TanviPoddar/CodeGenie/internal/model"
)

func pass(findings any) Analyzer {
	return Func(func(context.Context, Request) (Result, error) {
		return Result{Pass: true, Findings: findings}, nil
	})
}

func TestAllCombines(t *testing.T) {
	fail := Func(func(context.Context, Request) (Result, error) {
		return Result{Pass: false, Critical: true, Findings: "bad"}, nil
	})

	res, err := All(Part{"lint", pass("ok")}, Part{"review", fail}).Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Pass || !res.Critical {
		t.Errorf("res = %+v, want failing critical", res)
	}
	findings := res.Findings.(map[string]any)
	if findings["lint"] != "ok" || findings["review"] != "bad" {
		t.Errorf("findings = %v", findings)
	}
}

func TestAllStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	var ranAfter bool
	after := Func(func(context.Context, Request) (Result, error) {
		ranAfter = true
		return Result{Pass: true}, nil
	})
	failing := Func(func(context.Context, Request) (Result, error) { return Result{}, boom })

	_, err := All(Part{"x", failing}, Part{"y", after}).Run(context.Background(), Request{})
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "x:") {
		t.Errorf("err = %v", err)
	}
	if ranAfter {
		t.Error("part after an error was run")
	}
}

func TestLint(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		pass     bool
		critical bool
		rules    []string
	}{
		{"clean", "print('hi')\n", true, false, nil},
		{"empty", "   \n\t", false, true, []string{"empty-source"}},
		{"nul", "print(1)\x00", false, true, []string{"binary-content"}},
		{"too large", strings.Repeat("x", 300<<10), false, true, []string{"too-large"}},
		{"trailing whitespace", "x = 1  \ny = 2\n", true, false, []string{"trailing-whitespace"}},
		{"long line", strings.Repeat("a", 130), true, false, []string{"line-length"}},
		{"mixed indentation", "if x:\n\ty()\n    z()\n", true, false, []string{"mixed-indentation"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := NewLint().Run(context.Background(), Request{Source: tc.source, Language: model.LanguagePython})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if res.Pass != tc.pass || res.Critical != tc.critical {
				t.Errorf("pass=%v critical=%v, want %v/%v", res.Pass, res.Critical, tc.pass, tc.critical)
			}
			issues := res.Findings.(LintFindings).Issues
			if len(issues) != len(tc.rules) {
				t.Fatalf("issues = %+v, want rules %v", issues, tc.rules)
			}
			for i, rule := range tc.rules {
				if issues[i].Rule != rule {
					t.Errorf("issue %d rule = %q, want %q", i, issues[i].Rule, rule)
				}
			}
		})
	}
}

func TestLintCapsIssues(t *testing.T) {
	l := NewLint()
	l.MaxIssues = 3
	res, _ := l.Run(context.Background(), Request{Source: strings.Repeat("x \n", 10)})
	if n := len(res.Findings.(LintFindings).Issues); n != 3 {
		t.Errorf("issues = %d, want 3", n)
	}
}

type fakeFinder struct {
	suggestions []assist.Suggestion
	err         error
}

func (f fakeFinder) FindBugs(context.Context, string, string) ([]assist.Suggestion, error) {
	return f.suggestions, f.err
}

func TestReview(t *testing.T) {
	tests := []struct {
		name  string
		types []string
		pass  bool
	}{
		{"clean", nil, true},
		{"style only", []string{assist.TypeStyle, assist.TypeInefficiency}, true},
		{"bug", []string{assist.TypeStyle, assist.TypeBug}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var s []assist.Suggestion
			for _, typ := range tc.types {
				s = append(s, assist.Suggestion{Type: typ})
			}
			res, err := (&Review{Finder: fakeFinder{suggestions: s}}).Run(context.Background(), Request{Source: "x", Language: "python"})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if res.Pass != tc.pass || res.Critical {
				t.Errorf("res = %+v, want pass=%v non-critical", res, tc.pass)
			}
		})
	}
}

func TestReviewUnavailable(t *testing.T) {
	res, err := (&Review{Finder: fakeFinder{err: errors.New("llm down")}}).Run(context.Background(), Request{Source: "x"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	f, ok := res.Findings.(ReviewFindings)
	if !res.Pass || !ok || f.Skipped == "" {
		t.Errorf("res = %+v, want passing skipped review", res)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (&Review{Finder: fakeFinder{err: context.Canceled}}).Run(ctx, Request{Source: "x"}); err == nil {
		t.Error("expected error for canceled context")
	}
}

type fakeExecutor struct {
	result model.ExecutionResult
	got    model.ExecutionRequest
}

func (f *fakeExecutor) Execute(_ context.Context, req model.ExecutionRequest) model.ExecutionResult {
	f.got = req
	return f.result
}

func (f *fakeExecutor) Capabilities() backend.Capabilities { return backend.Capabilities{Name: "fake"} }

func TestSmoke(t *testing.T) {
	tests := []struct {
		name   string
		result model.ExecutionResult
		pass   bool
	}{
		{"success", model.Success("ok\n"), true},
		{"runtime error", model.RuntimeError("Traceback", 1), false},
		{"compile error", model.CompileError("error: expected ';'", 1), false},
		{"timed out", model.TimedOut(5), false},
		{"tool missing", model.ToolMissing("node"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			exec := &fakeExecutor{result: tc.result}
			s := &Smoke{Executor: exec, TimeoutS: 7}
			res, err := s.Run(context.Background(), Request{Source: "src", Language: model.LanguagePython})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if res.Pass != tc.pass {
				t.Errorf("pass = %v, want %v", res.Pass, tc.pass)
			}
			f := res.Findings.(SmokeFindings)
			if f.Kind != tc.result.Kind || f.Message != tc.result.Message() {
				t.Errorf("findings = %+v", f)
			}
			if exec.got.Source != "src" || exec.got.TimeoutS != 7 {
				t.Errorf("request = %+v", exec.got)
			}
		})
	}
}
