package main

import (
	"fmt"
	"os"
	"time"

	"github.com/docker/docker/client"
	"go.uber.org/zap"

	"github.com/TanviPoddar/CodeGenie/internal/analyzer"
	"github.com/TanviPoddar/CodeGenie/internal/assist"
	"github.com/TanviPoddar/CodeGenie/internal/backend"
	"github.com/TanviPoddar/CodeGenie/internal/config"
	"github.com/TanviPoddar/CodeGenie/internal/llm"
	"github.com/TanviPoddar/CodeGenie/internal/pipeline"
	"github.com/TanviPoddar/CodeGenie/internal/sandbox"
	"github.com/TanviPoddar/CodeGenie/internal/store"
)

// app holds the wired components shared by serve and mcp.
type app struct {
	cfg       *config.Config
	logger    *zap.SugaredLogger
	store     store.Store
	registry  *backend.Registry
	assistant *assist.Assistant
	pipeline  *pipeline.Orchestrator
	docker    *client.Client
}

// loadConfig reads configuration and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if addrFlag != "" {
		cfg.ListenAddr = addrFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *zap.SugaredLogger {
	return config.NewLogger(os.Stderr, cfg.LogLevel).Sugar()
}

// newApp wires store, backends, analyzers and the orchestrator from cfg.
func newApp(cfg *config.Config, logger *zap.SugaredLogger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	switch cfg.Store.Driver {
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.Store.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		a.store = s
	default:
		a.store = store.NewMemoryStore()
	}

	reg, cli, err := newRegistry(cfg, logger)
	if err != nil {
		a.store.Close()
		return nil, err
	}
	a.registry = reg
	a.docker = cli

	if cfg.LLM.Enabled() {
		gen := llm.NewOpenAIGenerator(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, logger)
		a.assistant = assist.New(gen)
	}

	stages, err := a.stages()
	if err != nil {
		a.close()
		return nil, err
	}
	a.pipeline = pipeline.New(a.store, stages, logger,
		pipeline.WithStageTimeout(time.Duration(cfg.Pipeline.StageTimeoutS)*time.Second),
	)

	logger.Infow("components ready",
		"store", cfg.Store.Driver,
		"isolation", cfg.Sandbox.Isolation,
		"docker", cli != nil,
		"assist", a.assistant != nil,
	)
	return a, nil
}

// newRegistry registers the process backend and, when enabled, the docker
// backend. The returned client is nil without docker.
func newRegistry(cfg *config.Config, logger *zap.SugaredLogger) (*backend.Registry, *client.Client, error) {
	opts := sandbox.Options{
		WorkDir:         cfg.Sandbox.WorkDir,
		DefaultTimeoutS: cfg.Sandbox.DefaultTimeoutS,
		MaxTimeoutS:     cfg.Sandbox.MaxTimeoutS,
	}

	reg := backend.NewRegistry()
	proc := sandbox.NewProcessRunner(cfg.Sandbox.MaxOutputBytes, time.Duration(cfg.Sandbox.KillGraceS)*time.Second)
	reg.Register(backend.NameProcess, backend.NewSandbox(backend.NameProcess, "process-group", sandbox.NewEngine(proc, opts, logger)))

	if !cfg.Docker.Enabled {
		return reg, nil, nil
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, nil, fmt.Errorf("creating docker client: %w", err)
	}
	runner := sandbox.NewDockerRunner(cli, dockerPolicy(cfg))
	reg.Register(backend.NameDocker, backend.NewSandbox(backend.NameDocker, "container", sandbox.NewEngine(runner, opts, logger)))

	return reg, cli, nil
}

// dockerPolicy is shared by the sandbox runner and the deploy stage.
func dockerPolicy(cfg *config.Config) sandbox.DockerPolicy {
	policy := sandbox.DefaultDockerPolicy()
	policy.MemoryMB = cfg.Docker.MemoryMB
	policy.Network = cfg.Docker.Network
	policy.MaxOutputBytes = cfg.Sandbox.MaxOutputBytes
	return policy
}

// stages picks the analyzer for each pipeline stage.
func (a *app) stages() (pipeline.Stages, error) {
	exec, err := a.registry.Resolve(a.cfg.Sandbox.Isolation)
	if err != nil {
		return pipeline.Stages{}, fmt.Errorf("resolving test backend: %w", err)
	}

	static := []analyzer.Part{{Name: "lint", Analyzer: analyzer.NewLint()}}
	if a.assistant != nil {
		static = append(static, analyzer.Part{Name: "review", Analyzer: &analyzer.Review{Finder: a.assistant}})
	}

	st := pipeline.Stages{
		Static: analyzer.All(static...),
		Test:   &analyzer.Smoke{Executor: exec, TimeoutS: a.cfg.Sandbox.DefaultTimeoutS},
		Build:  &analyzer.Package{Dir: a.cfg.Pipeline.ArtifactDir},
		Deploy: &analyzer.Release{Dir: a.cfg.Pipeline.ArtifactDir},
	}
	if a.docker != nil {
		st.Build = &analyzer.DockerBuild{API: a.docker}
		st.Deploy = &analyzer.DockerDeploy{API: a.docker, Policy: dockerPolicy(a.cfg)}
	}
	return st, nil
}

func (a *app) close() {
	if a.docker != nil {
		a.docker.Close()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warnw("closing store", "error", err)
	}
}
