package sandbox_test

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/TanviPoddar/CodeGenie/internal/model"
	"github.com/TanviPoddar/CodeGenie/internal/sandbox"
)

// These tests run real toolchains and are skipped where they are not installed.

func requireTool(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not installed", name)
	}
}

func newHostEngine(t *testing.T) *sandbox.Engine {
	t.Helper()
	return sandbox.NewEngine(
		sandbox.NewProcessRunner(1<<20, time.Second),
		sandbox.Options{WorkDir: t.TempDir(), DefaultTimeoutS: 10, MaxTimeoutS: 30},
		zap.NewNop().Sugar(),
	)
}

func TestPythonStdoutIsExact(t *testing.T) {
	requireTool(t, "python3")
	eng := newHostEngine(t)

	res := eng.Execute(context.Background(), model.ExecutionRequest{
		Source:   "import sys\nsys.stdout.write('a  b\\n\\tc')\n",
		Language: model.LanguagePython,
	})
	if res.Kind != model.KindSuccess {
		t.Fatalf("Kind = %q (%s)", res.Kind, res.Message())
	}
	if res.Stdout != "a  b\n\tc" {
		t.Errorf("Stdout = %q, want exact bytes", res.Stdout)
	}
}

func TestPythonRuntimeError(t *testing.T) {
	requireTool(t, "python3")
	eng := newHostEngine(t)

	res := eng.Execute(context.Background(), model.ExecutionRequest{Source: "1/0\n", Language: model.LanguagePython})
	if res.Kind != model.KindRuntimeError {
		t.Fatalf("Kind = %q, want runtime_error", res.Kind)
	}
	if res.Stderr == "" {
		t.Error("Stderr is empty, want traceback")
	}
}

func TestPythonSleepTimesOut(t *testing.T) {
	requireTool(t, "python3")
	eng := newHostEngine(t)

	start := time.Now()
	res := eng.Execute(context.Background(), model.ExecutionRequest{
		Source:   "import time\ntime.sleep(30)\n",
		Language: model.LanguagePython,
		TimeoutS: 1,
	})
	if res.Kind != model.KindTimedOut {
		t.Fatalf("Kind = %q, want timed_out", res.Kind)
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Errorf("timed out after %v, want within grace of 1s", elapsed)
	}
}

func TestCppCompileErrorNeverRuns(t *testing.T) {
	requireTool(t, "g++")
	eng := newHostEngine(t)

	res := eng.Execute(context.Background(), model.ExecutionRequest{Source: "int main( {\n", Language: model.LanguageCpp, TimeoutS: 30})
	if res.Kind != model.KindCompileError {
		t.Fatalf("Kind = %q, want compile_error", res.Kind)
	}
	if res.Stderr == "" {
		t.Error("Stderr is empty, want compiler diagnostics")
	}
}

func TestCppCompileAndRun(t *testing.T) {
	requireTool(t, "g++")
	eng := newHostEngine(t)

	src := "#include <iostream>\nint main() { std::cout << 6 * 7 << std::endl; return 0; }\n"
	res := eng.Execute(context.Background(), model.ExecutionRequest{Source: src, Language: model.LanguageCpp, TimeoutS: 30})
	if res.Kind != model.KindSuccess {
		t.Fatalf("Kind = %q (%s)", res.Kind, res.Message())
	}
	if res.Stdout != "42\n" {
		t.Errorf("Stdout = %q, want 42", res.Stdout)
	}
}
