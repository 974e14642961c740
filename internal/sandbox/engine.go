package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/TanviPoddar/CodeGenie/internal/model"
)

// DefaultMaxTimeoutS caps per-request timeouts when Options leaves it unset.
const DefaultMaxTimeoutS = 60

// Options configures an Engine.
type Options struct {
	// WorkDir is where per-execution scratch directories are created.
	// Empty means the OS temp dir.
	WorkDir         string
	DefaultTimeoutS int
	MaxTimeoutS     int
}

// Engine executes source code through a Runner. It never returns an error:
// every failure is reported as an ExecutionResult kind.
type Engine struct {
	runner Runner
	opts   Options
	logger *zap.SugaredLogger
}

// NewEngine creates an execution engine.
func NewEngine(r Runner, opts Options, logger *zap.SugaredLogger) *Engine {
	if opts.DefaultTimeoutS <= 0 {
		opts.DefaultTimeoutS = model.DefaultTimeoutS
	}
	if opts.MaxTimeoutS <= 0 {
		opts.MaxTimeoutS = DefaultMaxTimeoutS
	}
	if opts.MaxTimeoutS < opts.DefaultTimeoutS {
		opts.MaxTimeoutS = opts.DefaultTimeoutS
	}
	return &Engine{runner: r, opts: opts, logger: logger}
}

// Execute runs req to completion. Compiled languages are built first; a
// failed build is reported as a compile error and nothing is run. Each
// invocation is separately bounded by the request timeout.
func (e *Engine) Execute(ctx context.Context, req model.ExecutionRequest) (res model.ExecutionResult) {
	start := time.Now()
	defer func() {
		res.Language = req.Language
		res.DurationMS = time.Since(start).Milliseconds()
		observeExecution(req.Language, res.Kind, time.Since(start))
	}()

	lang, ok := LookupLanguage(req.Language)
	if !ok {
		return model.UnsupportedLanguage(req.Language)
	}
	timeoutS := e.timeout(req.TimeoutS)

	dir, err := os.MkdirTemp(e.opts.WorkDir, "codegenie-*")
	if err != nil {
		e.logger.Errorw("create scratch dir", "error", err)
		return model.RuntimeError(fmt.Sprintf("sandbox: create scratch dir: %v", err), -1)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			e.logger.Errorw("remove scratch dir", "dir", dir, "error", err)
		}
	}()

	if err := os.WriteFile(filepath.Join(dir, lang.SourceFile), []byte(req.Source), 0o644); err != nil {
		e.logger.Errorw("write source file", "error", err)
		return model.RuntimeError(fmt.Sprintf("sandbox: write source: %v", err), -1)
	}

	if lang.Compiled() {
		out := e.invoke(ctx, dir, lang.Image, *lang.Compile, timeoutS)
		if r, failed := e.failure(ctx, out, timeoutS); failed {
			return r
		}
		if out.ExitCode != 0 {
			return model.CompileError(nonEmpty(out.Stderr, out.Stdout, out.ExitCode), out.ExitCode)
		}
	}

	out := e.invoke(ctx, dir, lang.Image, lang.Run, timeoutS)
	if r, failed := e.failure(ctx, out, timeoutS); failed {
		return r
	}
	if out.ExitCode != 0 {
		r := model.RuntimeError(nonEmpty(out.Stderr, "", out.ExitCode), out.ExitCode)
		r.Stdout = out.Stdout
		r.Truncated = out.Truncated
		return r
	}

	r := model.Success(out.Stdout)
	r.Stderr = out.Stderr
	r.Truncated = out.Truncated
	return r
}

// Languages returns the language tags this engine accepts.
func (e *Engine) Languages() []string {
	return Languages()
}

func (e *Engine) invoke(ctx context.Context, dir, image string, c Command, timeoutS int) Outcome {
	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutS)*time.Second)
	defer cancel()

	return e.runner.Run(runCtx, Invocation{
		Dir:   dir,
		Image: image,
		Tools: c.Tools,
		Args:  c.Args,
	})
}

// failure classifies outcomes that end the execution regardless of exit code.
func (e *Engine) failure(ctx context.Context, out Outcome, timeoutS int) (model.ExecutionResult, bool) {
	switch {
	case out.Missing != "":
		return model.ToolMissing(out.Missing), true
	case out.Interrupted:
		if ctx.Err() != nil {
			return model.RuntimeError("execution canceled", -1), true
		}
		return model.TimedOut(timeoutS), true
	case out.Err != nil:
		e.logger.Errorw("launch invocation", "error", out.Err)
		return model.RuntimeError(fmt.Sprintf("sandbox: %v", out.Err), -1), true
	}
	return model.ExecutionResult{}, false
}

func (e *Engine) timeout(requested int) int {
	switch {
	case requested <= 0:
		return e.opts.DefaultTimeoutS
	case requested > e.opts.MaxTimeoutS:
		return e.opts.MaxTimeoutS
	default:
		return requested
	}
}

// nonEmpty picks the first non-empty diagnostic, falling back to the exit status.
func nonEmpty(primary, secondary string, exitCode int) string {
	if primary != "" {
		return primary
	}
	if secondary != "" {
		return secondary
	}
	return fmt.Sprintf("exit status %d", exitCode)
}

// Limits reports the default and maximum per-invocation timeouts.
func (e *Engine) Limits() (defaultS, maxS int) {
	return e.opts.DefaultTimeoutS, e.opts.MaxTimeoutS
}
