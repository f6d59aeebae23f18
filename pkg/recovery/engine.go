// Package recovery classifies structured errors, selects bounded
// backoff/retry strategies per error class, and runs automated repair
// actions before an execution resumes.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantflow/quantflow/pkg/eventbus"
	"github.com/quantflow/quantflow/pkg/events"
	"github.com/quantflow/quantflow/pkg/models"
)

// Outcome summarizes one Attempt call.
type Outcome string

const (
	// OutcomeSuccess means the repair action ran and the execution may resume.
	OutcomeSuccess Outcome = "success"
	// OutcomeFailed means the repair action ran and failed; further attempts
	// may still be available.
	OutcomeFailed Outcome = "failed"
	// OutcomeExhausted means the strategy's attempt budget is spent; no
	// delay was waited and no repair action ran.
	OutcomeExhausted Outcome = "exhausted"
	// OutcomeUnmatched means no registered strategy handles the error.
	OutcomeUnmatched Outcome = "unmatched"
)

// Result is returned to the orchestrator (or monitor) after an attempt.
type Result struct {
	Outcome      Outcome
	StrategyName string
	Attempt      *models.RecoveryAttempt
	RepairError  error
}

// Recovered reports whether the execution may resume.
func (r Result) Recovered() bool {
	return r.Outcome == OutcomeSuccess
}

// Terminal reports whether recovery is finished for this error class.
func (r Result) Terminal() bool {
	return r.Outcome == OutcomeExhausted || r.Outcome == OutcomeUnmatched
}

type attemptKey struct {
	executionID string
	code        models.ErrorCode
}

// Engine holds the strategy set and per-(execution, error code) attempt
// accounting. Histories are keyed per execution and independent.
type Engine struct {
	logger       *slog.Logger
	ops          Operations
	publisher    eventbus.EventPublisher
	connectivity ConnectivityChecker
	resources    ResourceProbe
	strategies   []Strategy

	mu       sync.Mutex
	attempts map[attemptKey]int
	history  map[string][]models.RecoveryAttempt

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Config wires the engine's collaborators. Strategies defaults to
// BuiltinStrategies when empty.
type Config struct {
	Logger       *slog.Logger
	Ops          Operations
	Publisher    eventbus.EventPublisher
	Connectivity ConnectivityChecker
	Resources    ResourceProbe
	Strategies   []Strategy
}

func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	strategies := cfg.Strategies
	if len(strategies) == 0 {
		strategies = BuiltinStrategies()
	}

	return &Engine{
		logger:       logger.With("module", "recovery"),
		ops:          cfg.Ops,
		publisher:    cfg.Publisher,
		connectivity: cfg.Connectivity,
		resources:    cfg.Resources,
		strategies:   strategies,
		attempts:     make(map[attemptKey]int),
		history:      make(map[string][]models.RecoveryAttempt),
		sleep:        sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Classify returns the first strategy matching the error, or nil.
func (e *Engine) Classify(serr *models.StructuredError) *Strategy {
	for i := range e.strategies {
		if e.strategies[i].Matches(serr) {
			return &e.strategies[i]
		}
	}

	return nil
}

// Attempt runs one bounded recovery cycle for the error: backoff delay,
// checkpoint snapshot, repair action, audit record. Attempts past the
// strategy's budget return OutcomeExhausted immediately, with no delay and
// no repair.
func (e *Engine) Attempt(ctx context.Context, executionID string, serr *models.StructuredError) Result {
	logger := e.logger.With("execution_id", executionID, "error_code", string(serr.Code))

	strategy := e.Classify(serr)
	if strategy == nil {
		logger.Warn("No recovery strategy matches error")

		return Result{Outcome: OutcomeUnmatched}
	}

	key := attemptKey{executionID: executionID, code: serr.Code}

	e.mu.Lock()
	prior := e.attempts[key]
	if prior >= strategy.MaxAttempts {
		e.mu.Unlock()
		logger.Warn("Recovery strategy exhausted",
			"strategy", strategy.Name, "attempts", prior)

		e.publish(ctx, executionID, events.RecoveryFinished{
			BaseEvent:    events.NewBaseEvent(events.RecoveryFinishedEvent, executionID),
			ErrorCode:    serr.Code,
			StrategyName: strategy.Name,
			Success:      false,
			Exhausted:    true,
		})

		return Result{Outcome: OutcomeExhausted, StrategyName: strategy.Name}
	}
	e.attempts[key] = prior + 1
	e.mu.Unlock()

	logger = logger.With("strategy", strategy.Name, "attempt", prior+1)
	logger.Info("Starting recovery attempt")

	e.publish(ctx, executionID, events.RecoveryStarted{
		BaseEvent:    events.NewBaseEvent(events.RecoveryStartedEvent, executionID),
		ErrorCode:    serr.Code,
		StrategyName: strategy.Name,
		Attempt:      prior + 1,
	})

	if err := e.sleep(ctx, strategy.Backoff.Delay(prior)); err != nil {
		return e.finish(ctx, executionID, strategy, record(executionID, serr, strategy), err)
	}

	attempt := record(executionID, serr, strategy)

	if e.ops != nil {
		cp, err := e.ops.WriteCheckpoint(ctx, executionID)
		if err != nil {
			// Resumability degrades; the repair itself can still proceed.
			logger.Warn("Checkpoint before repair failed", "error", err)
		} else if cp != nil {
			attempt.CheckpointID = cp.ID
		}
	}

	repairErr := strategy.Repair(ctx, RepairTarget{
		ExecutionID:  executionID,
		Error:        serr,
		Ops:          e.ops,
		Connectivity: e.connectivity,
		Resources:    e.resources,
		Logger:       logger,
	})

	return e.finish(ctx, executionID, strategy, attempt, repairErr)
}

func record(executionID string, serr *models.StructuredError, strategy *Strategy) *models.RecoveryAttempt {
	return &models.RecoveryAttempt{
		ID:           uuid.New().String(),
		ExecutionID:  executionID,
		ErrorCode:    serr.Code,
		StrategyName: strategy.Name,
		Status:       models.RecoveryAttemptInProgress,
		StartedAt:    time.Now().UTC(),
	}
}

func (e *Engine) finish(ctx context.Context, executionID string, strategy *Strategy, attempt *models.RecoveryAttempt, repairErr error) Result {
	now := time.Now().UTC()
	attempt.EndedAt = &now

	outcome := OutcomeSuccess
	attempt.Status = models.RecoveryAttemptSuccess

	if repairErr != nil {
		outcome = OutcomeFailed
		attempt.Status = models.RecoveryAttemptFailed
	}

	e.mu.Lock()
	e.history[executionID] = append(e.history[executionID], *attempt)
	e.mu.Unlock()

	e.publish(ctx, executionID, events.RecoveryFinished{
		BaseEvent:    events.NewBaseEvent(events.RecoveryFinishedEvent, executionID),
		ErrorCode:    attempt.ErrorCode,
		StrategyName: strategy.Name,
		Success:      repairErr == nil,
	})

	if repairErr != nil {
		e.logger.Warn("Recovery attempt failed",
			"execution_id", executionID, "strategy", strategy.Name, "error", repairErr)
	} else {
		e.logger.Info("Recovery attempt succeeded",
			"execution_id", executionID, "strategy", strategy.Name)
	}

	return Result{
		Outcome:      outcome,
		StrategyName: strategy.Name,
		Attempt:      attempt,
		RepairError:  repairErr,
	}
}

func (e *Engine) publish(ctx context.Context, executionID string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, executionID, event); err != nil {
		e.logger.Warn("Failed to publish recovery event", "error", err)
	}
}

// Resume re-enters the orchestrator's run loop after a successful attempt.
// A resumption failure is routed back through Attempt as a
// CONTINUATION_ERROR, bounded by the same attempt accounting.
func (e *Engine) Resume(ctx context.Context, executionID string) error {
	if e.ops == nil {
		return fmt.Errorf("recovery engine has no orchestrator operations wired")
	}

	err := e.ops.Resume(ctx, executionID)
	if err == nil {
		return nil
	}

	serr := models.NewStructuredError(models.ErrorCodeContinuation, err.Error(), true)

	result := e.Attempt(ctx, executionID, serr)
	if result.Recovered() {
		return e.Resume(ctx, executionID)
	}

	return fmt.Errorf("resumption failed after recovery: %w", err)
}

// History returns the ordered recovery attempts recorded for an execution.
func (e *Engine) History(executionID string) []models.RecoveryAttempt {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]models.RecoveryAttempt(nil), e.history[executionID]...)
}

// AttemptCount reports attempts consumed for one (execution, error code) pair.
func (e *Engine) AttemptCount(executionID string, code models.ErrorCode) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.attempts[attemptKey{executionID: executionID, code: code}]
}
