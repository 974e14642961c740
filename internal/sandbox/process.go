package sandbox

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// DefaultKillGrace bounds how long Wait lingers on output pipes after the
// process group has been killed.
const DefaultKillGrace = 2 * time.Second

// ProcessRunner runs invocations as host child processes. Each child gets its
// own process group so a timeout kills everything it forked.
type ProcessRunner struct {
	MaxOutputBytes int
	KillGrace      time.Duration
}

// NewProcessRunner creates a host process runner.
func NewProcessRunner(maxOutputBytes int, killGrace time.Duration) *ProcessRunner {
	if killGrace <= 0 {
		killGrace = DefaultKillGrace
	}
	return &ProcessRunner{MaxOutputBytes: maxOutputBytes, KillGrace: killGrace}
}

// Run implements Runner.
func (p *ProcessRunner) Run(ctx context.Context, inv Invocation) Outcome {
	path, tool, ok := resolveTool(inv.Dir, inv.Tools)
	if !ok {
		return Outcome{Missing: tool}
	}

	cmd := exec.CommandContext(ctx, path, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = sandboxEnv(inv.Dir)
	setProcessGroup(cmd)
	cmd.WaitDelay = p.KillGrace

	stdout := newCappedBuffer(p.MaxOutputBytes)
	stderr := newCappedBuffer(p.MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	out := Outcome{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.truncated || stderr.truncated,
	}

	if ctx.Err() != nil {
		out.Interrupted = true
		out.ExitCode = -1
		return out
	}
	if err == nil {
		return out
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		return out
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return Outcome{Missing: tool}
	}
	out.Err = err
	out.ExitCode = -1
	return out
}

// resolveTool returns the path of the first available candidate. When none is
// available it returns the preferred candidate's name for reporting.
func resolveTool(dir string, tools []string) (path, tool string, ok bool) {
	if len(tools) == 0 {
		return "", "", false
	}
	for _, t := range tools {
		if strings.HasPrefix(t, "./") {
			p := filepath.Join(dir, t)
			if _, err := os.Stat(p); err == nil {
				return p, t, true
			}
			continue
		}
		if p, err := exec.LookPath(t); err == nil {
			return p, t, true
		}
	}
	return "", tools[0], false
}

// sandboxEnv is the entire environment a child sees. Nothing else from the
// server's environment (credentials, API keys) is passed through.
func sandboxEnv(dir string) []string {
	return []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + dir,
		"TMPDIR=" + dir,
		"LANG=C.UTF-8",
		"DOTNET_CLI_HOME=" + dir,
		"DOTNET_NOLOGO=1",
		"DOTNET_CLI_TELEMETRY_OPTOUT=1",
	}
}
