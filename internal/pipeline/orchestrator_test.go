package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/TanviPoddar/CodeGenie/internal/analyzer"
	"github.com/TanviPoddar/CodeGenie/internal/model"
	"github.com/TanviPoddar/CodeGenie/internal/pipeline"
	"github.com/TanviPoddar/CodeGenie/internal/store"
)

// stub is a scripted analyzer that counts its invocations.
type stub struct {
	result analyzer.Result
	err    error
	delay  time.Duration
	panics bool
	hang   bool

	calls atomic.Int32
	mu    sync.Mutex
	got   []analyzer.Request
}

func (s *stub) Run(ctx context.Context, req analyzer.Request) (analyzer.Result, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.got = append(s.got, req)
	s.mu.Unlock()

	if s.panics {
		panic("analyzer exploded")
	}
	if s.hang {
		select {}
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return analyzer.Result{}, ctx.Err()
		}
	}
	return s.result, s.err
}

func (s *stub) requests() []analyzer.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]analyzer.Request(nil), s.got...)
}

func passing() *stub { return &stub{result: analyzer.Result{Pass: true}} }

type fixture struct {
	orch   *pipeline.Orchestrator
	store  store.Store
	static *stub
	test   *stub
	build  *stub
	deploy *stub
}

func newFixture(t *testing.T, opts ...pipeline.Option) *fixture {
	t.Helper()
	f := &fixture{
		store:  store.NewMemoryStore(),
		static: passing(),
		test:   passing(),
		build:  passing(),
		deploy: passing(),
	}
	f.orch = pipeline.New(f.store, pipeline.Stages{
		Static: f.static,
		Test:   f.test,
		Build:  f.build,
		Deploy: f.deploy,
	}, zap.NewNop().Sugar(), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		f.orch.Shutdown(ctx)
	})
	return f
}

func (f *fixture) start(t *testing.T) string {
	t.Helper()
	id, err := f.orch.StartBuild(context.Background(), "print('hi')", model.LanguagePython)
	if err != nil {
		t.Fatalf("StartBuild: %v", err)
	}
	return id
}

// waitForStatus polls until the build reaches the expected status.
func waitForStatus(t *testing.T, o *pipeline.Orchestrator, id, expected string, timeout time.Duration) *model.Build {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		b, err := o.GetBuildStatus(context.Background(), id)
		if err != nil {
			t.Fatalf("GetBuildStatus: %v", err)
		}
		if b.Status == expected {
			return b
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("build %s did not reach status %q within %v", id, expected, timeout)
	return nil
}

func stageNames(b *model.Build) []string {
	var names []string
	for _, s := range b.Stages {
		names = append(names, s.Name)
	}
	return names
}

func TestBuildHappyPath(t *testing.T) {
	f := newFixture(t)
	f.static.result.Findings = map[string]int{"issues": 0}

	id := f.start(t)
	b := waitForStatus(t, f.orch, id, model.StatusCompleted, 5*time.Second)

	if len(b.Stages) != 4 {
		t.Fatalf("stages = %v, want 4", stageNames(b))
	}
	for i, s := range b.Stages {
		if s.Name != model.StageOrder[i] {
			t.Errorf("stage %d = %q, want %q", i, s.Name, model.StageOrder[i])
		}
		if s.Status != model.StageCompleted {
			t.Errorf("stage %q status = %q", s.Name, s.Status)
		}
		if s.FinishedAt == nil || s.FinishedAt.Before(s.StartedAt) {
			t.Errorf("stage %q times = %v..%v", s.Name, s.StartedAt, s.FinishedAt)
		}
		if s.Results == nil || !s.Results.Pass {
			t.Errorf("stage %q results = %+v", s.Name, s.Results)
		}
	}
	if string(b.Stages[0].Results.Findings) != `{"issues":0}` {
		t.Errorf("findings = %s", b.Stages[0].Results.Findings)
	}
	if b.FinishedAt == nil || b.Error != "" || b.FailedStage != "" {
		t.Errorf("build = %+v", b)
	}
}

func TestStartBuildIsNonBlocking(t *testing.T) {
	f := newFixture(t)
	f.static.delay = 200 * time.Millisecond

	start := time.Now()
	id := f.start(t)
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("StartBuild blocked for %v", elapsed)
	}

	b, err := f.orch.GetBuildStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("GetBuildStatus: %v", err)
	}
	if b.Status != model.StatusRunning {
		t.Errorf("status = %q, want running", b.Status)
	}
	if len(b.Stages) > 1 {
		t.Errorf("stages = %v, want at most the in-progress stage", stageNames(b))
	}
}

func TestUnitTestFailureStopsPipeline(t *testing.T) {
	f := newFixture(t)
	f.test.result = analyzer.Result{Pass: false}

	id, err := f.orch.StartBuild(context.Background(), "buggy code", model.LanguagePython)
	if err != nil {
		t.Fatalf("StartBuild: %v", err)
	}
	b := waitForStatus(t, f.orch, id, model.StatusFailed, 5*time.Second)

	if len(b.Stages) != 2 {
		t.Fatalf("stages = %v, want [Static Analysis, Unit Testing]", stageNames(b))
	}
	if b.Stages[0].Name != model.StageStaticAnalysis || b.Stages[1].Name != model.StageUnitTesting {
		t.Errorf("stages = %v", stageNames(b))
	}
	if b.Stages[1].Status != model.StageFailed {
		t.Errorf("unit testing status = %q, want failed", b.Stages[1].Status)
	}
	if b.FailedStage != model.StageUnitTesting {
		t.Errorf("failed stage = %q", b.FailedStage)
	}
	if f.build.calls.Load() != 0 || f.deploy.calls.Load() != 0 {
		t.Error("stages after the failing one were run")
	}
}

func TestBuildAndDeployFailuresStopPipeline(t *testing.T) {
	tests := []struct {
		name   string
		fail   func(f *fixture)
		stages int
	}{
		{"build", func(f *fixture) { f.build.result = analyzer.Result{Pass: false} }, 3},
		{"deploy", func(f *fixture) { f.deploy.result = analyzer.Result{Pass: false} }, 4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			tc.fail(f)
			b := waitForStatus(t, f.orch, f.start(t), model.StatusFailed, 5*time.Second)
			if len(b.Stages) != tc.stages {
				t.Errorf("stages = %v, want %d", stageNames(b), tc.stages)
			}
		})
	}
}

func TestCriticalStaticFailureHalts(t *testing.T) {
	f := newFixture(t)
	f.static.result = analyzer.Result{Pass: false, Critical: true}

	b := waitForStatus(t, f.orch, f.start(t), model.StatusFailed, 5*time.Second)
	if len(b.Stages) != 1 || b.FailedStage != model.StageStaticAnalysis {
		t.Errorf("build = %+v", b)
	}
	if !b.Stages[0].Results.Critical {
		t.Error("critical flag not recorded")
	}
	if f.test.calls.Load() != 0 {
		t.Error("unit testing ran after a critical static failure")
	}
}

func TestNonCriticalStaticFailureContinues(t *testing.T) {
	f := newFixture(t)
	f.static.result = analyzer.Result{Pass: false}

	b := waitForStatus(t, f.orch, f.start(t), model.StatusCompleted, 5*time.Second)
	if len(b.Stages) != 4 {
		t.Fatalf("stages = %v, want 4", stageNames(b))
	}
	if b.Stages[0].Status != model.StageFailed {
		t.Errorf("static status = %q, want failed", b.Stages[0].Status)
	}
}

func TestAnalyzerErrorFailsBuild(t *testing.T) {
	f := newFixture(t)
	f.build.err = errors.New("disk full")

	b := waitForStatus(t, f.orch, f.start(t), model.StatusFailed, 5*time.Second)
	if b.Error != "disk full" || b.FailedStage != model.StageBuild {
		t.Errorf("build = %+v", b)
	}
	last := b.Stages[len(b.Stages)-1]
	if last.Status != model.StageFailed || last.FinishedAt == nil {
		t.Errorf("last stage = %+v", last)
	}
}

func TestAnalyzerPanicFailsBuild(t *testing.T) {
	f := newFixture(t)
	f.test.panics = true

	b := waitForStatus(t, f.orch, f.start(t), model.StatusFailed, 5*time.Second)
	if b.Error == "" || b.FailedStage != model.StageUnitTesting {
		t.Errorf("build = %+v", b)
	}
	if len(b.Stages) != 2 {
		t.Errorf("stages = %v", stageNames(b))
	}
}

func TestNilAnalyzerFailsBuild(t *testing.T) {
	s := store.NewMemoryStore()
	o := pipeline.New(s, pipeline.Stages{Static: passing()}, zap.NewNop().Sugar())

	id, err := o.StartBuild(context.Background(), "x", model.LanguagePython)
	if err != nil {
		t.Fatalf("StartBuild: %v", err)
	}
	b := waitForStatus(t, o, id, model.StatusFailed, 5*time.Second)
	if b.FailedStage != model.StageUnitTesting || b.Error == "" {
		t.Errorf("build = %+v", b)
	}
}

func TestStageTimeout(t *testing.T) {
	f := newFixture(t, pipeline.WithStageTimeout(100*time.Millisecond))
	f.test.hang = true

	b := waitForStatus(t, f.orch, f.start(t), model.StatusFailed, 5*time.Second)
	if b.FailedStage != model.StageUnitTesting {
		t.Errorf("failed stage = %q", b.FailedStage)
	}
	if b.Error == "" {
		t.Error("timeout not recorded")
	}
}

func TestArtifactFlowsToNextStage(t *testing.T) {
	f := newFixture(t)
	f.build.result = analyzer.Result{Pass: true, Artifact: "/tmp/app.tar.gz"}

	id := f.start(t)
	waitForStatus(t, f.orch, id, model.StatusCompleted, 5*time.Second)

	reqs := f.deploy.requests()
	if len(reqs) != 1 || reqs[0].Artifact != "/tmp/app.tar.gz" || reqs[0].BuildID != id {
		t.Errorf("deploy requests = %+v", reqs)
	}
	if got := f.build.requests()[0].Artifact; got != "" {
		t.Errorf("build stage saw artifact %q", got)
	}
}

func TestUnencodableFindingsFailStage(t *testing.T) {
	f := newFixture(t)
	f.static.result = analyzer.Result{Pass: true, Findings: make(chan int)}

	b := waitForStatus(t, f.orch, f.start(t), model.StatusFailed, 5*time.Second)
	if b.FailedStage != model.StageStaticAnalysis {
		t.Errorf("build = %+v", b)
	}
}

func TestStartBuildValidation(t *testing.T) {
	f := newFixture(t)
	for _, tc := range []struct{ source, language string }{{"", "python"}, {"x", ""}} {
		if _, err := f.orch.StartBuild(context.Background(), tc.source, tc.language); !errors.Is(err, pipeline.ErrInvalidRequest) {
			t.Errorf("StartBuild(%q, %q) = %v, want ErrInvalidRequest", tc.source, tc.language, err)
		}
	}
}

func TestGetBuildStatusNotFound(t *testing.T) {
	f := newFixture(t)
	for range 3 {
		b, err := f.orch.GetBuildStatus(context.Background(), "nonexistent")
		if !errors.Is(err, store.ErrNotFound) || b != nil {
			t.Errorf("GetBuildStatus = %v, %v; want nil, ErrNotFound", b, err)
		}
	}
}

func TestTerminalStatusIsStable(t *testing.T) {
	f := newFixture(t)
	id := f.start(t)
	first, err := f.orch.Wait(context.Background(), id)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	for range 5 {
		b, _ := f.orch.GetBuildStatus(context.Background(), id)
		if b.Status != first.Status || len(b.Stages) != len(first.Stages) {
			t.Fatalf("read changed: %+v vs %+v", b, first)
		}
	}
}

func TestWait(t *testing.T) {
	f := newFixture(t)
	f.deploy.delay = 50 * time.Millisecond

	id := f.start(t)
	b, err := f.orch.Wait(context.Background(), id)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if b.Status != model.StatusCompleted {
		t.Errorf("status = %q", b.Status)
	}

	if _, err := f.orch.Wait(context.Background(), "nonexistent"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Wait(unknown) = %v, want ErrNotFound", err)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	f := newFixture(t)
	f.static.delay = time.Second

	id := f.start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := f.orch.Wait(ctx, id); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait = %v, want DeadlineExceeded", err)
	}
}

func TestEventsStream(t *testing.T) {
	f := newFixture(t)
	f.static.delay = 50 * time.Millisecond

	id := f.start(t)
	ch, unsub := f.orch.Events().Subscribe(id)
	defer unsub()

	var types []string
	for ev := range ch {
		types = append(types, ev.Type)
	}
	if len(types) == 0 || types[len(types)-1] != pipeline.EventBuildFinished {
		t.Fatalf("events = %v, want build_finished last", types)
	}
	var finished int
	for _, typ := range types {
		if typ == pipeline.EventStageFinished {
			finished++
		}
	}
	if finished != 4 {
		t.Errorf("stage_finished events = %d, want 4", finished)
	}
}

func TestConcurrentBuilds(t *testing.T) {
	f := newFixture(t)
	f.test.delay = 50 * time.Millisecond

	ids := make([]string, 10)
	for i := range ids {
		ids[i] = f.start(t)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Go(func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			for _, id := range ids {
				b, err := f.orch.GetBuildStatus(context.Background(), id)
				if err != nil {
					t.Errorf("GetBuildStatus: %v", err)
					return
				}
				if _, err := json.Marshal(b); err != nil {
					t.Errorf("marshal: %v", err)
					return
				}
			}
		}
	})

	for _, id := range ids {
		waitForStatus(t, f.orch, id, model.StatusCompleted, 5*time.Second)
	}
	close(stop)
	wg.Wait()

	stats, err := f.orch.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.CountByStatus[model.StatusCompleted] != 10 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestShutdownCancelsRunningBuilds(t *testing.T) {
	s := store.NewMemoryStore()
	slow := &stub{delay: 10 * time.Second}
	o := pipeline.New(s, pipeline.Stages{Static: slow, Test: passing(), Build: passing(), Deploy: passing()},
		zap.NewNop().Sugar(), pipeline.WithStageTimeout(0))

	id, err := o.StartBuild(context.Background(), "x", model.LanguagePython)
	if err != nil {
		t.Fatalf("StartBuild: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := o.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown = %v, want DeadlineExceeded", err)
	}

	b, _ := o.GetBuildStatus(context.Background(), id)
	if b.Status != model.StatusFailed {
		t.Errorf("status after shutdown = %q, want failed", b.Status)
	}
	if _, err := o.StartBuild(context.Background(), "x", model.LanguagePython); !errors.Is(err, pipeline.ErrShuttingDown) {
		t.Errorf("StartBuild after shutdown = %v, want ErrShuttingDown", err)
	}
}

// flakyStore fails the first failures FinishBuild calls.
type flakyStore struct {
	store.Store
	failures int32
	attempts atomic.Int32
}

func (f *flakyStore) FinishBuild(ctx context.Context, id string, c store.Completion) error {
	if f.attempts.Add(1) <= f.failures {
		return errors.New("database is locked")
	}
	return f.Store.FinishBuild(ctx, id, c)
}

func TestFinishRetriesStoreErrors(t *testing.T) {
	s := &flakyStore{Store: store.NewMemoryStore(), failures: 3}
	o := pipeline.New(s, pipeline.Stages{Static: passing(), Test: passing(), Build: passing(), Deploy: passing()},
		zap.NewNop().Sugar(), pipeline.WithFinishBackoff(time.Millisecond))

	id, err := o.StartBuild(context.Background(), "x", model.LanguagePython)
	if err != nil {
		t.Fatalf("StartBuild: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	b, err := o.GetBuildStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("GetBuildStatus: %v", err)
	}
	if b.Status != model.StatusCompleted {
		t.Errorf("status = %q, want completed", b.Status)
	}
	if got := s.attempts.Load(); got != 4 {
		t.Errorf("FinishBuild attempts = %d, want 4", got)
	}
}

func TestConcurrentBuildsOnSQLiteFile(t *testing.T) {
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "builds.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	o := pipeline.New(s, pipeline.Stages{Static: passing(), Test: passing(), Build: passing(), Deploy: passing()},
		zap.NewNop().Sugar())

	const n = 64
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Go(func() {
			if _, err := o.StartBuild(context.Background(), "print('hi')", model.LanguagePython); err != nil {
				errs <- err
			}
		})
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("StartBuild: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := o.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	stats, err := o.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.CountByStatus[model.StatusCompleted] != n {
		t.Errorf("counts = %v, want %d completed", stats.CountByStatus, n)
	}

	builds, _, err := o.ListBuilds(context.Background(), n, 0)
	if err != nil {
		t.Fatalf("ListBuilds: %v", err)
	}
	for _, b := range builds {
		if len(b.Stages) != 4 {
			t.Errorf("build %s has %d stages, want 4", b.ID, len(b.Stages))
		}
	}
}
