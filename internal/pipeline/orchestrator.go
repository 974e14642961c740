package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/TanviPoddar/CodeGenie/internal/analyzer"
	"github.com/TanviPoddar/CodeGenie/internal/model"
	"github.com/TanviPoddar/CodeGenie/internal/store"
)

// DefaultStageTimeout bounds a single analyzer invocation.
const DefaultStageTimeout = 300 * time.Second

const (
	finishAttempts   = 8
	maxFinishBackoff = 2 * time.Second
)

var (
	// ErrInvalidRequest is returned by StartBuild for missing source or language.
	ErrInvalidRequest = errors.New("code and language must be provided")

	// ErrShuttingDown is returned by StartBuild once Shutdown has begun.
	ErrShuttingDown = errors.New("pipeline is shutting down")
)

// Stages supplies one analyzer per pipeline stage.
type Stages struct {
	Static analyzer.Analyzer
	Test   analyzer.Analyzer
	Build  analyzer.Analyzer
	Deploy analyzer.Analyzer
}

type stage struct {
	name     string
	analyzer analyzer.Analyzer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStageTimeout sets the per-stage timeout. Zero disables it.
func WithStageTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.stageTimeout = d }
}

// WithFinishBackoff sets the first delay between attempts to record a
// build's terminal status. Later attempts double it.
func WithFinishBackoff(d time.Duration) Option {
	return func(o *Orchestrator) { o.finishBackoff = d }
}

// WithEventBroker replaces the default event broker.
func WithEventBroker(b *EventBroker) Option {
	return func(o *Orchestrator) { o.broker = b }
}

// Orchestrator runs builds asynchronously, one goroutine per build.
type Orchestrator struct {
	store         store.Store
	stages        []stage
	logger        *zap.SugaredLogger
	broker        *EventBroker
	stageTimeout  time.Duration
	finishBackoff time.Duration

	// base is canceled when Shutdown gives up waiting.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	tasks    map[string]chan struct{}
	shutdown bool
}

// New creates an orchestrator. Every analyzer in st must be non-nil.
func New(s store.Store, st Stages, logger *zap.SugaredLogger, opts ...Option) *Orchestrator {
	base, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		store: s,
		stages: []stage{
			{model.StageStaticAnalysis, st.Static},
			{model.StageUnitTesting, st.Test},
			{model.StageBuild, st.Build},
			{model.StageDeployment, st.Deploy},
		},
		logger:        logger,
		broker:        NewEventBroker(),
		stageTimeout:  DefaultStageTimeout,
		finishBackoff: 50 * time.Millisecond,
		base:          base,
		cancel:        cancel,
		tasks:         make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Events returns the broker that carries stage and build events.
func (o *Orchestrator) Events() *EventBroker {
	return o.broker
}

// StartBuild registers a new build and runs its stages in the background.
// The build is stored as running before this returns, so its ID is
// immediately queryable.
func (o *Orchestrator) StartBuild(ctx context.Context, source, language string) (string, error) {
	if source == "" || language == "" {
		return "", ErrInvalidRequest
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.shutdown {
		return "", ErrShuttingDown
	}

	b := &model.Build{
		ID:        model.NewID(),
		Language:  language,
		Status:    model.StatusRunning,
		Stages:    []model.Stage{},
		CreatedAt: time.Now().UTC(),
	}
	if err := o.store.CreateBuild(ctx, b); err != nil {
		return "", fmt.Errorf("create build: %w", err)
	}

	done := make(chan struct{})
	o.tasks[b.ID] = done
	buildsInFlight.Inc()
	o.wg.Go(func() {
		defer func() {
			o.mu.Lock()
			delete(o.tasks, b.ID)
			o.mu.Unlock()
			close(done)
		}()
		o.run(b.ID, source, language)
	})

	o.logger.Infow("build started", "build_id", b.ID, "language", language)
	return b.ID, nil
}

// GetBuildStatus returns a snapshot of the build. Unknown IDs yield
// store.ErrNotFound.
func (o *Orchestrator) GetBuildStatus(ctx context.Context, id string) (*model.Build, error) {
	return o.store.GetBuild(ctx, id)
}

// ListBuilds returns builds newest first with the total count.
func (o *Orchestrator) ListBuilds(ctx context.Context, limit, offset int) ([]*model.Build, int, error) {
	return o.store.ListBuilds(ctx, limit, offset)
}

// Stats returns aggregate build statistics.
func (o *Orchestrator) Stats(ctx context.Context) (*store.BuildStats, error) {
	return o.store.GetBuildStats(ctx)
}

// Wait blocks until the build reaches a terminal status or ctx ends, then
// returns its final snapshot.
func (o *Orchestrator) Wait(ctx context.Context, id string) (*model.Build, error) {
	o.mu.Lock()
	done, running := o.tasks[id]
	o.mu.Unlock()

	if running {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return o.store.GetBuild(ctx, id)
}

// Shutdown stops accepting builds and waits for running ones. If ctx ends
// first, in-flight stages are canceled and their builds fail; Shutdown
// still waits for them to be recorded before returning ctx's error.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.shutdown = true
	o.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		o.cancel()
		return nil
	case <-ctx.Done():
		o.logger.Warnw("shutdown deadline reached, canceling running builds")
		o.cancel()
		<-finished
		return ctx.Err()
	}
}

// run executes the stage sequence for one build. Whatever happens, the
// build ends in a terminal status.
func (o *Orchestrator) run(id, source, language string) {
	defer buildsInFlight.Dec()
	defer o.broker.Close(id)

	c := store.Completion{Status: model.StatusFailed}
	defer func() {
		if r := recover(); r != nil {
			c = store.Completion{Status: model.StatusFailed, Error: fmt.Sprintf("pipeline panic: %v", r)}
			o.logger.Errorw("pipeline panic", "build_id", id, "panic", r)
		}
		o.finish(id, c)
	}()

	req := analyzer.Request{BuildID: id, Source: source, Language: language}
	for _, st := range o.stages {
		res, err := o.runStage(id, st, req)
		if err != nil {
			c.FailedStage = st.name
			c.Error = err.Error()
			return
		}
		if !res.Pass {
			if st.name == model.StageStaticAnalysis && !res.Critical {
				o.logger.Infow("static analysis failed, continuing", "build_id", id)
				continue
			}
			c.FailedStage = st.name
			return
		}
		if res.Artifact != "" {
			req.Artifact = res.Artifact
		}
	}
	c.Status = model.StatusCompleted
}

// runStage appends the stage as running, invokes its analyzer and records
// the outcome. A returned error means the analyzer could not produce a
// result or the store rejected the stage.
func (o *Orchestrator) runStage(id string, st stage, req analyzer.Request) (analyzer.Result, error) {
	rec := model.Stage{Name: st.name, Status: model.StageRunning, StartedAt: time.Now().UTC()}
	if err := o.store.AppendStage(o.base, id, rec); err != nil {
		o.logger.Errorw("failed to append stage", "build_id", id, "stage", st.name, "error", err)
		return analyzer.Result{}, fmt.Errorf("record stage %q: %w", st.name, err)
	}
	o.broker.Publish(Event{Type: EventStageStarted, BuildID: id, Stage: st.name, Status: model.StageRunning, Time: rec.StartedAt})

	res, err := o.invoke(st, req)
	var findings json.RawMessage
	if err == nil {
		findings, err = encodeFindings(res.Findings)
	}

	end := time.Now().UTC()
	rec.FinishedAt = &end
	rec.Status = model.StageFailed
	if err == nil {
		if res.Pass {
			rec.Status = model.StageCompleted
		}
		rec.Results = &model.StageResult{
			Pass:     res.Pass,
			Critical: res.Critical,
			Artifact: res.Artifact,
			Findings: findings,
		}
	} else {
		o.logger.Errorw("stage error", "build_id", id, "stage", st.name, "error", err)
	}

	if uerr := o.store.UpdateStage(o.base, id, rec); uerr != nil {
		o.logger.Errorw("failed to update stage", "build_id", id, "stage", st.name, "error", uerr)
		if err == nil {
			err = fmt.Errorf("record stage %q: %w", st.name, uerr)
		}
	}
	observeStage(st.name, rec.Status, end.Sub(rec.StartedAt))

	ev := Event{Type: EventStageFinished, BuildID: id, Stage: st.name, Status: rec.Status, Time: end}
	if err == nil {
		ev.Pass = &res.Pass
	} else {
		ev.Error = err.Error()
	}
	o.broker.Publish(ev)

	o.logger.Infow("stage finished", "build_id", id, "stage", st.name, "status", rec.Status,
		"duration_ms", end.Sub(rec.StartedAt).Milliseconds())
	return res, err
}

// invoke calls the analyzer under the stage timeout. The analyzer runs in
// its own goroutine so one that ignores its context cannot hold the build;
// it is abandoned when the deadline passes.
func (o *Orchestrator) invoke(st stage, req analyzer.Request) (analyzer.Result, error) {
	ctx, cancel := o.stageContext()
	defer cancel()

	type outcome struct {
		res analyzer.Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("analyzer panic: %v", r)}
			}
		}()
		res, err := st.analyzer.Run(ctx, req)
		ch <- outcome{res: res, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil && ctx.Err() != nil {
			return analyzer.Result{}, o.contextError(st, ctx)
		}
		return out.res, out.err
	case <-ctx.Done():
		return analyzer.Result{}, o.contextError(st, ctx)
	}
}

func (o *Orchestrator) stageContext() (context.Context, context.CancelFunc) {
	if o.stageTimeout > 0 {
		return context.WithTimeout(o.base, o.stageTimeout)
	}
	return context.WithCancel(o.base)
}

func (o *Orchestrator) contextError(st stage, ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("stage %q timed out after %s", st.name, o.stageTimeout)
	}
	return fmt.Errorf("stage %q canceled", st.name)
}

func (o *Orchestrator) finish(id string, c store.Completion) {
	c.At = time.Now().UTC()
	o.recordCompletion(id, c)
	buildsTotal.WithLabelValues(c.Status).Inc()
	o.broker.Publish(Event{
		Type:        EventBuildFinished,
		BuildID:     id,
		Status:      c.Status,
		FailedStage: c.FailedStage,
		Error:       c.Error,
		Time:        c.At,
	})
	o.logger.Infow("build finished", "build_id", id, "status", c.Status, "failed_stage", c.FailedStage)
}

// recordCompletion writes the terminal status, retrying transient store
// failures so the build is not left running.
func (o *Orchestrator) recordCompletion(id string, c store.Completion) {
	wait := o.finishBackoff
	for attempt := 1; ; attempt++ {
		err := o.store.FinishBuild(context.Background(), id, c)
		if err == nil {
			return
		}
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidTransition) || attempt == finishAttempts {
			o.logger.Errorw("failed to finish build", "build_id", id, "attempts", attempt, "error", err)
			return
		}
		o.logger.Warnw("finish build failed, retrying", "build_id", id, "attempt", attempt, "error", err)
		time.Sleep(wait)
		wait = min(wait*2, maxFinishBackoff)
	}
}

func encodeFindings(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode findings: %w", err)
	}
	return data, nil
}
