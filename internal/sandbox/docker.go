package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// containerWorkDir is where the scratch directory is mounted in a container.
const containerWorkDir = "/workspace"

// errImageUnavailable marks an image that is neither local nor pullable.
var errImageUnavailable = errors.New("image unavailable")

// cleanupTimeout bounds kill/log/remove calls made after ctx has ended.
const cleanupTimeout = 10 * time.Second

// DockerAPI is the subset of the Docker client used by DockerRunner.
// *client.Client satisfies it.
type DockerAPI interface {
	ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// DockerPolicy holds resource limits applied to every container.
type DockerPolicy struct {
	MemoryMB       int64
	PidsLimit      int64
	Network        bool
	MaxOutputBytes int
}

// DefaultDockerPolicy returns safe defaults for untrusted code.
func DefaultDockerPolicy() DockerPolicy {
	return DockerPolicy{
		MemoryMB:       256,
		PidsLimit:      128,
		Network:        false,
		MaxOutputBytes: 1 << 20,
	}
}

// Apply sets the policy's resource and network limits on a container.
func (p DockerPolicy) Apply(cfg *container.Config, hostCfg *container.HostConfig) {
	if p.MemoryMB > 0 {
		hostCfg.Resources.Memory = p.MemoryMB << 20
	}
	if p.PidsLimit > 0 {
		pids := p.PidsLimit
		hostCfg.Resources.PidsLimit = &pids
	}
	if !p.Network {
		cfg.NetworkDisabled = true
		hostCfg.NetworkMode = "none"
	}
}

// DockerRunner runs each invocation in a fresh container of the language
// image with the scratch directory bind-mounted.
type DockerRunner struct {
	api    DockerAPI
	policy DockerPolicy

	mu     sync.Mutex
	pulled map[string]bool
}

// NewDockerRunner creates a container runner.
func NewDockerRunner(api DockerAPI, policy DockerPolicy) *DockerRunner {
	return &DockerRunner{
		api:    api,
		policy: policy,
		pulled: make(map[string]bool),
	}
}

// Run implements Runner.
func (d *DockerRunner) Run(ctx context.Context, inv Invocation) Outcome {
	if inv.Image == "" || len(inv.Tools) == 0 {
		return Outcome{Err: errors.New("invocation has no image or tool"), ExitCode: -1}
	}
	if err := d.ensureImage(ctx, inv.Image); err != nil {
		switch {
		case ctx.Err() != nil:
			return Outcome{Interrupted: true, ExitCode: -1}
		case errors.Is(err, errImageUnavailable):
			return Outcome{Missing: inv.Image}
		default:
			return Outcome{Err: err, ExitCode: -1}
		}
	}

	tool := inv.Tools[0]
	cfg := &container.Config{
		Image:      inv.Image,
		Cmd:        append([]string{tool}, inv.Args...),
		WorkingDir: containerWorkDir,
		Env:        []string{"HOME=" + containerWorkDir, "TMPDIR=" + containerWorkDir},
	}
	hostCfg := &container.HostConfig{
		Binds: []string{inv.Dir + ":" + containerWorkDir},
	}
	d.policy.Apply(cfg, hostCfg)

	resp, err := d.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "codegenie-"+uuid.NewString())
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{Interrupted: true, ExitCode: -1}
		}
		return Outcome{Err: fmt.Errorf("create container: %w", err), ExitCode: -1}
	}
	defer d.remove(resp.ID)

	if err := d.api.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		if ctx.Err() != nil {
			return Outcome{Interrupted: true, ExitCode: -1}
		}
		if strings.Contains(err.Error(), "executable file not found") {
			return Outcome{Missing: tool}
		}
		return Outcome{Err: fmt.Errorf("start container: %w", err), ExitCode: -1}
	}

	waitCh, errCh := d.api.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	var exitCode int
	select {
	case w := <-waitCh:
		exitCode = int(w.StatusCode)
	case err := <-errCh:
		if ctx.Err() == nil {
			return Outcome{Err: fmt.Errorf("wait container: %w", err), ExitCode: -1}
		}
		d.kill(resp.ID)
		return Outcome{Interrupted: true, ExitCode: -1}
	case <-ctx.Done():
		d.kill(resp.ID)
		return Outcome{Interrupted: true, ExitCode: -1}
	}

	out := d.collectLogs(resp.ID)
	out.ExitCode = exitCode
	return out
}

// ensureImage pulls an image once per runner unless the daemon already has
// it. The pull stream must be fully drained or the daemon abandons the
// download.
func (d *DockerRunner) ensureImage(ctx context.Context, ref string) error {
	d.mu.Lock()
	done := d.pulled[ref]
	d.mu.Unlock()
	if done {
		return nil
	}

	_, _, err := d.api.ImageInspectWithRaw(ctx, ref)
	if err == nil {
		d.mu.Lock()
		d.pulled[ref] = true
		d.mu.Unlock()
		return nil
	}
	if !errdefs.IsNotFound(err) {
		return fmt.Errorf("inspect image %s: %w", ref, err)
	}

	rc, err := d.api.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w: %w", ref, errImageUnavailable, err)
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("read pull stream for %s: %w", ref, err)
	}

	d.mu.Lock()
	d.pulled[ref] = true
	d.mu.Unlock()
	return nil
}

func (d *DockerRunner) collectLogs(id string) Outcome {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	rc, err := d.api.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return Outcome{Err: fmt.Errorf("read container logs: %w", err)}
	}
	defer rc.Close()

	stdout := newCappedBuffer(d.policy.MaxOutputBytes)
	stderr := newCappedBuffer(d.policy.MaxOutputBytes)
	if _, err := stdcopy.StdCopy(stdout, stderr, rc); err != nil {
		return Outcome{Err: fmt.Errorf("demux container logs: %w", err)}
	}
	return Outcome{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.truncated || stderr.truncated,
	}
}

func (d *DockerRunner) kill(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	_ = d.api.ContainerKill(ctx, id, "SIGKILL")
}

func (d *DockerRunner) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	_ = d.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
}
