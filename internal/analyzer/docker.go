package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/jsonmessage"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/TanviPoddar/CodeGenie/internal/sandbox"
)

// ImageRepository prefixes every image built for a build.
const ImageRepository = "codegenie/"

// ImageBuilder is the part of the Docker client DockerBuild needs.
type ImageBuilder interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
}

// ContainerStarter is the part of the Docker client DockerDeploy needs.
type ContainerStarter interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
}

// ImageFindings is what DockerBuild records on the stage.
type ImageFindings struct {
	Image      string `json:"image"`
	ImageID    string `json:"image_id,omitempty"`
	Dockerfile string `json:"dockerfile,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// DockerBuild builds an image codegenie/<build_id> from the source and a
// generated Dockerfile. The image tag is the stage artifact.
type DockerBuild struct {
	API ImageBuilder
}

// Run implements Analyzer.
func (d *DockerBuild) Run(ctx context.Context, req Request) (Result, error) {
	lang, ok := sandbox.LookupLanguage(req.Language)
	if !ok {
		return Result{Pass: false, Findings: ImageFindings{Reason: fmt.Sprintf("unsupported language %q", req.Language)}}, nil
	}
	dockerfile, err := Dockerfile(lang)
	if err != nil {
		return Result{}, err
	}

	var buildCtx bytes.Buffer
	err = writeTar(&buildCtx, []fileEntry{
		{Name: "Dockerfile", Mode: 0o644, Data: []byte(dockerfile)},
		{Name: lang.SourceFile, Mode: 0o644, Data: []byte(req.Source)},
	}, time.Now())
	if err != nil {
		return Result{}, fmt.Errorf("build context: %w", err)
	}

	tag := ImageRepository + strings.ToLower(req.BuildID)
	resp, err := d.API.ImageBuild(ctx, &buildCtx, types.ImageBuildOptions{
		Tags:        []string{tag},
		Dockerfile:  "Dockerfile",
		Remove:      true,
		ForceRemove: true,
		Labels:      map[string]string{"codegenie.build_id": req.BuildID},
	})
	if err != nil {
		return Result{}, fmt.Errorf("image build: %w", err)
	}
	defer resp.Body.Close()

	findings := ImageFindings{Image: tag, Dockerfile: dockerfile}
	aux := func(msg jsonmessage.JSONMessage) {
		if msg.Aux == nil {
			return
		}
		var id struct{ ID string }
		if json.Unmarshal(*msg.Aux, &id) == nil && id.ID != "" {
			findings.ImageID = id.ID
		}
	}
	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, io.Discard, 0, false, aux); err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("image build: %w", ctx.Err())
		}
		findings.Reason = err.Error()
		return Result{Pass: false, Findings: findings}, nil
	}
	return Result{Pass: true, Artifact: tag, Findings: findings}, nil
}

// Dockerfile renders the image definition for a language: the source is
// copied into /app, compiled when needed, and run as the container command.
func Dockerfile(lang sandbox.Language) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "FROM %s\n", lang.Image)
	b.WriteString("WORKDIR /app\n")
	fmt.Fprintf(&b, "COPY %s .\n", lang.SourceFile)
	if lang.Compiled() {
		compile, err := json.Marshal(append([]string{lang.Compile.Tools[0]}, lang.Compile.Args...))
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "RUN %s\n", compile)
	}
	run, err := json.Marshal(append([]string{lang.Run.Tools[0]}, lang.Run.Args...))
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&b, "CMD %s\n", run)
	return b.String(), nil
}

// DeployFindings is what DockerDeploy records on the stage.
type DeployFindings struct {
	ContainerID string `json:"container_id,omitempty"`
	Image       string `json:"image,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// DockerDeploy starts a detached container from the image built by the
// previous stage under the same limits as the execution sandbox. The
// container ID is the stage artifact.
type DockerDeploy struct {
	API    ContainerStarter
	Policy sandbox.DockerPolicy
}

// Run implements Analyzer.
func (d *DockerDeploy) Run(ctx context.Context, req Request) (Result, error) {
	if req.Artifact == "" {
		return Result{Pass: false, Findings: DeployFindings{Reason: "no image to deploy"}}, nil
	}

	cfg := &container.Config{
		Image:  req.Artifact,
		Labels: map[string]string{"codegenie.build_id": req.BuildID},
	}
	hostCfg := &container.HostConfig{
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyOnFailure, MaximumRetryCount: 3},
	}
	d.Policy.Apply(cfg, hostCfg)
	name := "codegenie-deploy-" + strings.ToLower(req.BuildID)
	resp, err := d.API.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return Result{Pass: false, Findings: DeployFindings{Image: req.Artifact, Reason: err.Error()}}, nil
	}
	if err := d.API.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return Result{Pass: false, Findings: DeployFindings{ContainerID: resp.ID, Image: req.Artifact, Reason: err.Error()}}, nil
	}
	return Result{
		Pass:     true,
		Artifact: resp.ID,
		Findings: DeployFindings{ContainerID: resp.ID, Image: req.Artifact},
	}, nil
}
