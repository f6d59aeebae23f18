// Package orchestrator owns execution state and the run loop: it resolves
// step dependencies into batches, dispatches them to executors, persists
// checkpoints, and routes failures through the recovery engine. It is the
// single writer of Execution and Step state.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/quantflow/quantflow/pkg/checkpoint"
	"github.com/quantflow/quantflow/pkg/eventbus"
	"github.com/quantflow/quantflow/pkg/events"
	"github.com/quantflow/quantflow/pkg/models"
	"github.com/quantflow/quantflow/pkg/otelhelper"
	"github.com/quantflow/quantflow/pkg/recovery"
	"github.com/quantflow/quantflow/pkg/registry"
)

// Config wires the orchestrator's collaborators.
type Config struct {
	Logger       *slog.Logger
	Registry     *registry.Registry
	Checkpoints  checkpoint.Store
	Publisher    eventbus.EventPublisher
	Templates    map[string]Template
	Tracer       trace.Tracer
	Connectivity recovery.ConnectivityChecker
	Resources    recovery.ResourceProbe
	Strategies   []recovery.Strategy
}

type executionState struct {
	mu           sync.Mutex
	execution    *models.Execution
	parallelism  int
	pollInterval time.Duration
	resumable    bool
	paused       bool
	pauseReason  string
	cancelReason string
	running      bool
	cancel       context.CancelFunc
	done         chan struct{}
}

// Orchestrator runs executions. All state mutations happen on the goroutine
// holding the per-execution lock; readers receive deep copies.
type Orchestrator struct {
	logger      *slog.Logger
	registry    *registry.Registry
	checkpoints checkpoint.Store
	publisher   eventbus.EventPublisher
	templates   map[string]Template
	tracer      trace.Tracer
	recovery    *recovery.Engine

	mu         sync.RWMutex
	executions map[string]*executionState
}

func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	templates := cfg.Templates
	if templates == nil {
		templates = BuiltinTemplates()
	}

	o := &Orchestrator{
		logger:      logger.With("module", "orchestrator"),
		registry:    cfg.Registry,
		checkpoints: cfg.Checkpoints,
		publisher:   cfg.Publisher,
		templates:   templates,
		tracer:      cfg.Tracer,
		executions:  make(map[string]*executionState),
	}

	o.recovery = recovery.NewEngine(recovery.Config{
		Logger:       logger,
		Ops:          o,
		Publisher:    cfg.Publisher,
		Connectivity: cfg.Connectivity,
		Resources:    cfg.Resources,
		Strategies:   cfg.Strategies,
	})

	return o
}

// Recovery exposes the engine for the status monitor's remediation path.
func (o *Orchestrator) Recovery() *recovery.Engine {
	return o.recovery
}

// Templates lists the registered pipeline templates.
func (o *Orchestrator) Templates() []Template {
	list := make([]Template, 0, len(o.templates))
	for _, t := range o.templates {
		list = append(list, t)
	}

	return list
}

// Execute validates the config, builds the step graph, and starts the run
// loop. Graph errors (unknown types, bad parameters, cycles) surface here,
// before any step is dispatched.
func (o *Orchestrator) Execute(ctx context.Context, cfg models.ExecutionConfig) (*models.Execution, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	steps, err := o.buildSteps(cfg)
	if err != nil {
		return nil, err
	}

	execution := &models.Execution{
		ID:         uuid.New().String(),
		TemplateID: cfg.TemplateID,
		Status:     models.ExecutionStatusPending,
		Steps:      steps,
		Parameters: cfg.Parameters,
		Resumable:  cfg.Resumable,
		TotalSteps: len(steps),
	}

	st := &executionState{
		execution:    execution,
		parallelism:  cfg.EffectiveParallelism(),
		pollInterval: cfg.EffectivePollInterval(),
		resumable:    cfg.Resumable,
	}

	o.mu.Lock()
	o.executions[execution.ID] = st
	o.mu.Unlock()

	o.logger.Info("Starting execution",
		"execution_id", execution.ID, "template_id", cfg.TemplateID, "steps", len(steps))

	o.publish(ctx, execution.ID, events.ExecutionStarted{
		BaseEvent:  events.NewBaseEvent(events.ExecutionStartedEvent, execution.ID),
		TemplateID: cfg.TemplateID,
		TotalSteps: len(steps),
	})

	o.start(st)

	return o.snapshotLocked(st), nil
}

// Restore rebuilds an execution from its latest checkpoint and re-enters the
// run loop. Steps recorded as completed are not dispatched again.
func (o *Orchestrator) Restore(ctx context.Context, executionID string, cfg models.ExecutionConfig) (*models.Execution, error) {
	if o.checkpoints == nil {
		return nil, errors.New("no checkpoint store configured")
	}

	cp, err := o.checkpoints.Load(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint for %s: %w", executionID, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	steps, err := o.buildSteps(cfg)
	if err != nil {
		return nil, err
	}

	completed := make(map[string]bool, len(cp.CompletedStepIDs))
	for _, id := range cp.CompletedStepIDs {
		completed[id] = true
	}

	for _, step := range steps {
		if completed[step.ID] {
			step.Status = models.StepStatusCompleted
			step.Progress = 100
			step.Result = &models.StepResult{Success: true, Data: map[string]any{"restored": true}}
		}
	}

	parameters := cfg.Parameters
	if len(cp.Context) > 0 {
		parameters = make(map[string]any, len(cfg.Parameters)+len(cp.Context))
		for k, v := range cfg.Parameters {
			parameters[k] = v
		}
		for k, v := range cp.Context {
			parameters[k] = v
		}
	}

	execution := &models.Execution{
		ID:               executionID,
		TemplateID:       cfg.TemplateID,
		Status:           models.ExecutionStatusPending,
		Steps:            steps,
		Parameters:       parameters,
		Resumable:        true,
		TotalSteps:       len(steps),
		LastCheckpointID: cp.ID,
	}

	st := &executionState{
		execution:    execution,
		parallelism:  cfg.EffectiveParallelism(),
		pollInterval: cfg.EffectivePollInterval(),
		resumable:    true,
	}

	o.mu.Lock()
	o.executions[executionID] = st
	o.mu.Unlock()

	o.logger.Info("Restoring execution from checkpoint",
		"execution_id", executionID, "checkpoint_id", cp.ID, "completed_steps", len(cp.CompletedStepIDs))

	o.publish(ctx, executionID, events.ExecutionResumed{
		BaseEvent: events.NewBaseEvent(events.ExecutionResumedEvent, executionID),
	})

	o.start(st)

	return o.snapshotLocked(st), nil
}

func (o *Orchestrator) buildSteps(cfg models.ExecutionConfig) ([]*models.Step, error) {
	var steps []*models.Step

	if cfg.TemplateID != "" {
		template, ok := o.templates[cfg.TemplateID]
		if !ok {
			return nil, &UnknownTemplateError{TemplateID: cfg.TemplateID}
		}

		steps = template.Build()
	} else {
		steps = make([]*models.Step, len(cfg.Steps))

		for i, step := range cfg.Steps {
			dup := *step
			if step.Parameters != nil {
				dup.Parameters = make(map[string]any, len(step.Parameters))
				for k, v := range step.Parameters {
					dup.Parameters[k] = v
				}
			}

			dup.Status = models.StepStatusPending
			steps[i] = &dup
		}
	}

	if err := ValidateDependencies(steps); err != nil {
		return nil, err
	}

	if err := DetectCycle(steps); err != nil {
		return nil, err
	}

	if o.registry != nil {
		for _, step := range steps {
			if err := o.registry.ValidateParameters(step.Type, step.Parameters); err != nil {
				return nil, err
			}
		}
	}

	return steps, nil
}

// start transitions the execution to running and launches the run loop.
// Callers must not hold st.mu.
func (o *Orchestrator) start(st *executionState) {
	st.mu.Lock()

	if st.running {
		st.mu.Unlock()

		return
	}

	st.execution.Status = models.ExecutionStatusRunning
	if st.execution.StartedAt == nil {
		now := time.Now().UTC()
		st.execution.StartedAt = &now
	}

	st.paused = false
	st.running = true

	runCtx, cancel := context.WithCancel(context.Background())
	st.cancel = cancel
	st.done = make(chan struct{})

	st.mu.Unlock()

	go o.run(runCtx, st)
}

func (o *Orchestrator) run(ctx context.Context, st *executionState) {
	defer func() {
		st.mu.Lock()
		st.running = false
		done := st.done
		st.mu.Unlock()
		close(done)
	}()

	executionID := st.execution.ID

	for {
		if ctx.Err() != nil {
			st.mu.Lock()
			reason := st.cancelReason
			st.mu.Unlock()

			if reason == "" {
				reason = "run context cancelled"
			}

			o.finishCancelled(ctx, st, reason)

			return
		}

		st.mu.Lock()

		if st.paused {
			reason := st.pauseReason
			st.execution.Status = models.ExecutionStatusPaused
			st.mu.Unlock()

			if st.resumable {
				if _, err := o.WriteCheckpoint(ctx, executionID); err != nil {
					o.logger.Warn("Checkpoint on pause failed", "execution_id", executionID, "error", err)
				}
			}

			o.logger.Info("Execution paused", "execution_id", executionID, "reason", reason)
			o.publish(ctx, executionID, events.ExecutionPaused{
				BaseEvent: events.NewBaseEvent(events.ExecutionPausedEvent, executionID),
				Reason:    reason,
			})

			return
		}

		var failed *models.Step

		for _, step := range st.execution.Steps {
			if step.Status == models.StepStatusFailed && !step.Skipped {
				failed = step

				break
			}
		}

		if failed != nil {
			serr := failed.Error
			if serr == nil {
				serr = models.NewStructuredError(models.ErrorCodeStepExecution, fmt.Sprintf("step %s failed", failed.ID), true)
			}

			st.mu.Unlock()

			result := o.recovery.Attempt(ctx, executionID, serr)
			if result.Terminal() {
				o.failExecution(ctx, st, serr)

				return
			}

			// Failed attempts with budget left loop back around; successful
			// repairs have reset the step to pending.
			continue
		}

		ready := ReadySteps(st.execution)

		if len(ready) == 0 {
			if Settled(st.execution) {
				st.mu.Unlock()
				o.completeExecution(ctx, st)

				return
			}

			st.mu.Unlock()

			serr := models.NewStructuredError(models.ErrorCodeStepExecution,
				"execution deadlocked: pending steps can never be dispatched", false)
			o.failExecution(ctx, st, serr)

			return
		}

		width := st.parallelism
		if width < 1 {
			width = 1
		}

		if len(ready) > width {
			ready = ready[:width]
		}

		st.mu.Unlock()

		var wg sync.WaitGroup

		for _, step := range ready {
			wg.Add(1)

			go func(step *models.Step) {
				defer wg.Done()
				o.executeStep(ctx, st, step)
			}(step)
		}

		wg.Wait()

		st.mu.Lock()
		st.execution.CurrentStepCount = len(st.execution.CompletedStepIDs())
		progress := st.execution.Progress()
		completedSteps := st.execution.CurrentStepCount
		total := st.execution.TotalSteps
		resumable := st.resumable
		st.mu.Unlock()

		o.publish(ctx, executionID, events.ExecutionProgress{
			BaseEvent:      events.NewBaseEvent(events.ExecutionProgressEvent, executionID),
			Progress:       progress,
			CompletedSteps: completedSteps,
			TotalSteps:     total,
		})

		if resumable {
			if _, err := o.WriteCheckpoint(ctx, executionID); err != nil {
				o.logger.Warn("Checkpoint after batch failed", "execution_id", executionID, "error", err)
			}
		}
	}
}

// executeStep runs a single step with its timeout budget. The executor
// receives a copy of the step; results are applied under the execution lock.
func (o *Orchestrator) executeStep(ctx context.Context, st *executionState, step *models.Step) {
	executionID := st.execution.ID

	var span trace.Span

	if o.tracer != nil {
		ctx, span = otelhelper.StartSpan(ctx, o.tracer, "step.execute",
			attribute.String(otelhelper.ExecutionIDKey, executionID),
			attribute.String(otelhelper.StepIDKey, step.ID),
			attribute.String(otelhelper.StepTypeKey, step.Type),
		)
		defer span.End()
	}

	st.mu.Lock()
	now := time.Now().UTC()
	step.Status = models.StepStatusRunning
	step.StartedAt = &now
	step.Error = nil

	stepCopy := *step
	if step.Parameters != nil {
		stepCopy.Parameters = make(map[string]any, len(step.Parameters))
		for k, v := range step.Parameters {
			stepCopy.Parameters[k] = v
		}
	}

	ectx := models.ExecutionContext{
		ExecutionID: executionID,
		Parameters:  st.execution.Parameters,
		StepResults: make(map[string]*models.StepResult),
	}

	for _, other := range st.execution.Steps {
		if other.Status == models.StepStatusCompleted && other.Result != nil {
			ectx.StepResults[other.ID] = other.Result
		}
	}
	st.mu.Unlock()

	o.logger.Info("Step started", "execution_id", executionID, "step_id", step.ID, "step_type", step.Type)
	o.publish(ctx, executionID, events.StepStarted{
		BaseEvent: events.NewBaseEvent(events.StepStartedEvent, executionID),
		StepID:    step.ID,
		StepName:  step.Name,
		StepType:  step.Type,
	})

	started := time.Now()

	var (
		result *models.StepResult
		err    error
	)

	if o.registry == nil {
		err = errors.New("no executor registry configured")
	} else {
		var executor registry.Executor

		executor, err = o.registry.Resolve(step.Type)
		if err == nil {
			timeout := stepCopy.Timeout()
			stepCtx, cancel := context.WithTimeout(ctx, timeout)
			result, err = executor.Execute(stepCtx, &stepCopy, ectx)

			if err != nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
				err = models.NewStructuredError(models.ErrorCodeTimeout,
					fmt.Sprintf("step %s exceeded its %s timeout", step.ID, timeout), true)
			}

			cancel()
		}
	}

	duration := time.Since(started).Milliseconds()

	if err == nil && result != nil && !result.Success {
		msg := "step reported failure"
		if len(result.Diagnostics) > 0 {
			msg = result.Diagnostics[0]
		}

		err = models.NewStructuredError(models.ErrorCodeStepExecution, msg, true)
	}

	st.mu.Lock()
	ended := time.Now().UTC()
	step.EndedAt = &ended

	if err != nil {
		serr := models.AsStructured(err)
		step.Status = models.StepStatusFailed
		step.Error = serr

		if step.Optional {
			step.Skipped = true
		} else {
			st.execution.LastError = serr
		}

		optional := step.Optional
		st.mu.Unlock()

		if span != nil {
			otelhelper.SetError(span, serr, attribute.String(otelhelper.ErrorCodeKey, string(serr.Code)))
		}

		o.logger.Warn("Step failed",
			"execution_id", executionID, "step_id", step.ID, "error_code", string(serr.Code), "optional", optional)
		o.publish(ctx, executionID, events.StepFailed{
			BaseEvent:  events.NewBaseEvent(events.StepFailedEvent, executionID),
			StepID:     step.ID,
			Error:      serr,
			Optional:   optional,
			DurationMs: duration,
		})

		return
	}

	step.Status = models.StepStatusCompleted
	step.Progress = 100
	step.Result = result
	st.mu.Unlock()

	var (
		metrics   map[string]float64
		artifacts []string
	)

	if result != nil {
		metrics = result.Metrics
		artifacts = result.Artifacts
	}

	o.logger.Info("Step completed", "execution_id", executionID, "step_id", step.ID, "duration_ms", duration)
	o.publish(ctx, executionID, events.StepCompleted{
		BaseEvent:  events.NewBaseEvent(events.StepCompletedEvent, executionID),
		StepID:     step.ID,
		DurationMs: duration,
		Metrics:    metrics,
		Artifacts:  artifacts,
	})
}

func (o *Orchestrator) completeExecution(ctx context.Context, st *executionState) {
	st.mu.Lock()
	now := time.Now().UTC()
	st.execution.Status = models.ExecutionStatusCompleted
	st.execution.EndedAt = &now
	st.execution.CurrentStepCount = len(st.execution.CompletedStepIDs())

	executionID := st.execution.ID
	executed := st.execution.CurrentStepCount
	duration := durationMs(st.execution.StartedAt, &now)
	resumable := st.resumable
	st.mu.Unlock()

	if resumable && o.checkpoints != nil {
		if err := o.checkpoints.Delete(ctx, executionID); err != nil {
			o.logger.Warn("Checkpoint cleanup failed", "execution_id", executionID, "error", err)
		}
	}

	o.logger.Info("Execution completed", "execution_id", executionID, "steps_executed", executed)
	o.publish(ctx, executionID, events.ExecutionCompleted{
		BaseEvent:     events.NewBaseEvent(events.ExecutionCompletedEvent, executionID),
		DurationMs:    duration,
		StepsExecuted: executed,
	})
}

func (o *Orchestrator) failExecution(ctx context.Context, st *executionState, serr *models.StructuredError) {
	st.mu.Lock()
	now := time.Now().UTC()
	st.execution.Status = models.ExecutionStatusFailed
	st.execution.EndedAt = &now
	st.execution.LastError = serr

	executionID := st.execution.ID
	lastCheckpoint := st.execution.LastCheckpointID
	duration := durationMs(st.execution.StartedAt, &now)
	st.mu.Unlock()

	o.logger.Error("Execution failed",
		"execution_id", executionID, "error_code", string(serr.Code), "error", serr.Message)
	o.publish(ctx, executionID, events.ExecutionFailed{
		BaseEvent:        events.NewBaseEvent(events.ExecutionFailedEvent, executionID),
		Error:            serr,
		RecoveryAttempts: o.recovery.History(executionID),
		LastCheckpointID: lastCheckpoint,
		DurationMs:       duration,
	})
}

func (o *Orchestrator) finishCancelled(ctx context.Context, st *executionState, reason string) {
	st.mu.Lock()

	if st.execution.Status.Terminal() {
		st.mu.Unlock()

		return
	}

	now := time.Now().UTC()
	st.execution.Status = models.ExecutionStatusCancelled
	st.execution.EndedAt = &now
	executionID := st.execution.ID
	resumable := st.resumable
	st.mu.Unlock()

	// The run context is already cancelled here; cleanup must outlive it.
	if resumable && o.checkpoints != nil {
		if err := o.checkpoints.Delete(context.WithoutCancel(ctx), executionID); err != nil {
			o.logger.Warn("Checkpoint cleanup failed", "execution_id", executionID, "error", err)
		}
	}

	o.logger.Info("Execution cancelled", "execution_id", executionID, "reason", reason)
	o.publish(context.WithoutCancel(ctx), executionID, events.ExecutionCancelled{
		BaseEvent: events.NewBaseEvent(events.ExecutionCancelledEvent, executionID),
		Reason:    reason,
	})
}

func durationMs(start, end *time.Time) int64 {
	if start == nil || end == nil {
		return 0
	}

	return end.Sub(*start).Milliseconds()
}

// Pause requests a pause; the run loop honors it at the next batch boundary
// and checkpoints resumable executions before stopping.
func (o *Orchestrator) Pause(_ context.Context, executionID, reason string) error {
	st, err := o.state(executionID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.execution.Status.Terminal() {
		return ErrExecutionTerminal
	}

	st.paused = true
	st.pauseReason = reason

	return nil
}

// Resume re-enters the run loop for a paused execution. The recovery engine
// also calls this after a successful repair on a stopped execution.
func (o *Orchestrator) Resume(ctx context.Context, executionID string) error {
	st, err := o.state(executionID)
	if err != nil {
		return err
	}

	st.mu.Lock()

	status := st.execution.Status
	if st.running || status == models.ExecutionStatusRunning {
		st.mu.Unlock()

		return nil
	}

	if status != models.ExecutionStatusPaused && status != models.ExecutionStatusFailed {
		st.mu.Unlock()

		return fmt.Errorf("%w: status is %s", ErrExecutionNotPaused, status)
	}

	st.execution.EndedAt = nil
	st.mu.Unlock()

	o.logger.Info("Execution resumed", "execution_id", executionID)
	o.publish(ctx, executionID, events.ExecutionResumed{
		BaseEvent: events.NewBaseEvent(events.ExecutionResumedEvent, executionID),
	})

	o.start(st)

	return nil
}

// Cancel stops the execution at the next cancellation point. In-flight steps
// see their context cancelled.
func (o *Orchestrator) Cancel(ctx context.Context, executionID, reason string) error {
	st, err := o.state(executionID)
	if err != nil {
		return err
	}

	st.mu.Lock()

	if st.execution.Status.Terminal() {
		st.mu.Unlock()

		return ErrExecutionTerminal
	}

	st.cancelReason = reason
	cancel := st.cancel
	running := st.running
	st.mu.Unlock()

	if running && cancel != nil {
		cancel()

		return nil
	}

	// Not running (paused or never started); finalize directly.
	o.finishCancelled(ctx, st, reason)

	return nil
}

// Wait blocks until the execution leaves the running state and returns its
// snapshot. Paused counts as left.
func (o *Orchestrator) Wait(ctx context.Context, executionID string) (*models.Execution, error) {
	for {
		st, err := o.state(executionID)
		if err != nil {
			return nil, err
		}

		st.mu.Lock()
		running := st.running
		done := st.done
		st.mu.Unlock()

		if !running {
			return o.snapshotLocked(st), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-done:
		}
	}
}

// Snapshot returns a deep copy of the execution.
func (o *Orchestrator) Snapshot(executionID string) (*models.Execution, error) {
	st, err := o.state(executionID)
	if err != nil {
		return nil, err
	}

	return o.snapshotLocked(st), nil
}

// PollInterval returns the health sampling cadence configured for the
// execution.
func (o *Orchestrator) PollInterval(executionID string) (time.Duration, error) {
	st, err := o.state(executionID)
	if err != nil {
		return 0, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	return st.pollInterval, nil
}

// List returns snapshots of every known execution.
func (o *Orchestrator) List() []*models.Execution {
	o.mu.RLock()
	states := make([]*executionState, 0, len(o.executions))
	for _, st := range o.executions {
		states = append(states, st)
	}
	o.mu.RUnlock()

	list := make([]*models.Execution, 0, len(states))
	for _, st := range states {
		list = append(list, o.snapshotLocked(st))
	}

	return list
}

func (o *Orchestrator) snapshotLocked(st *executionState) *models.Execution {
	st.mu.Lock()
	defer st.mu.Unlock()

	return st.execution.Clone()
}

func (o *Orchestrator) state(executionID string) (*executionState, error) {
	o.mu.RLock()
	st, ok := o.executions[executionID]
	o.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}

	return st, nil
}

func (o *Orchestrator) publish(ctx context.Context, executionID string, event eventbus.Event) {
	if o.publisher == nil {
		return
	}

	if err := o.publisher.Publish(ctx, executionID, event); err != nil {
		o.logger.Warn("Failed to publish event",
			"execution_id", executionID, "event_type", string(event.GetType()), "error", err)
	}
}

// ResetStep returns a failed step to pending so the run loop re-dispatches
// it. Part of the recovery engine's update API.
func (o *Orchestrator) ResetStep(executionID, stepID string) error {
	st, err := o.state(executionID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	step, ok := st.execution.StepByID(stepID)
	if !ok {
		return fmt.Errorf("step %s not found in execution %s", stepID, executionID)
	}

	if step.Status != models.StepStatusFailed {
		return fmt.Errorf("step %s is %s, only failed steps can be reset", stepID, step.Status)
	}

	step.Reset()

	return nil
}

// ScaleStepTimeout multiplies the step's timeout budget.
func (o *Orchestrator) ScaleStepTimeout(executionID, stepID string, factor float64) error {
	if factor <= 0 {
		return fmt.Errorf("timeout scale factor must be positive, got %v", factor)
	}

	st, err := o.state(executionID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	step, ok := st.execution.StepByID(stepID)
	if !ok {
		return fmt.Errorf("step %s not found in execution %s", stepID, executionID)
	}

	step.SetTimeout(time.Duration(float64(step.Timeout()) * factor))

	return nil
}

// SetStepParameter rewrites one parameter on a step. A nil value removes
// the parameter.
func (o *Orchestrator) SetStepParameter(executionID, stepID, key string, value any) error {
	st, err := o.state(executionID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	step, ok := st.execution.StepByID(stepID)
	if !ok {
		return fmt.Errorf("step %s not found in execution %s", stepID, executionID)
	}

	if value == nil {
		delete(step.Parameters, key)

		return nil
	}

	if step.Parameters == nil {
		step.Parameters = make(map[string]any)
	}

	step.Parameters[key] = value

	return nil
}

// ReduceParallelism halves the execution's batch width, floored at one.
func (o *Orchestrator) ReduceParallelism(executionID string) error {
	st, err := o.state(executionID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.parallelism > 1 {
		st.parallelism /= 2
	}

	return nil
}

// WriteCheckpoint persists the execution's resumable state and records the
// checkpoint id on the execution.
func (o *Orchestrator) WriteCheckpoint(ctx context.Context, executionID string) (*models.Checkpoint, error) {
	st, err := o.state(executionID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()

	current := ""

	for _, step := range st.execution.Steps {
		if step.Status == models.StepStatusRunning || step.Status == models.StepStatusPending {
			current = step.ID

			break
		}
	}

	cp := &models.Checkpoint{
		ID:               uuid.New().String(),
		ExecutionID:      executionID,
		CurrentStep:      current,
		CompletedStepIDs: st.execution.CompletedStepIDs(),
		Context:          st.execution.Parameters,
		Timestamp:        time.Now().UTC(),
	}

	st.execution.LastCheckpointID = cp.ID
	st.mu.Unlock()

	if o.checkpoints == nil {
		return cp, nil
	}

	if err := o.checkpoints.Save(ctx, executionID, cp); err != nil {
		return nil, fmt.Errorf("saving checkpoint for %s: %w", executionID, err)
	}

	return cp, nil
}

var _ recovery.Operations = (*Orchestrator)(nil)
