// Package monitor periodically samples running executions, derives a health
// score and issue list per sample, and closes the loop into the recovery
// engine for recoverable high-severity issues.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quantflow/quantflow/pkg/models"
	"github.com/quantflow/quantflow/pkg/orchestrator"
	"github.com/quantflow/quantflow/pkg/recovery"
)

// IssueType classifies a detected operational problem.
type IssueType string

const (
	IssueStepFailure        IssueType = "step_failure"
	IssueStepStalled        IssueType = "step_stalled"
	IssueResourceExhaustion IssueType = "resource_exhaustion"
	IssueNetworkIssue       IssueType = "network_issue"
	IssueDependencyDeadlock IssueType = "dependency_deadlock"
)

// Severity ranks an issue. Only high-severity recoverable issues are
// auto-remediated.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// HealthStatus buckets a health score for display.
type HealthStatus string

const (
	HealthExcellent HealthStatus = "excellent"
	HealthGood      HealthStatus = "good"
	HealthFair      HealthStatus = "fair"
	HealthPoor      HealthStatus = "poor"
	HealthCritical  HealthStatus = "critical"
)

// Score deductions per detected condition.
const (
	deductFailedStep  = 20
	deductStalledStep = 10
	deductStale       = 15
	deductIssueSignal = 5
)

// Issue is one detected problem in a sample.
type Issue struct {
	Type        IssueType        `json:"type"`
	Severity    Severity         `json:"severity"`
	StepID      string           `json:"step_id,omitempty"`
	Message     string           `json:"message"`
	Recoverable bool             `json:"recoverable"`
	ErrorCode   models.ErrorCode `json:"error_code,omitempty"`
	DetectedAt  time.Time        `json:"detected_at"`
}

// StatusSnapshot is the result of sampling one execution.
type StatusSnapshot struct {
	ExecutionID string                 `json:"execution_id"`
	Status      models.ExecutionStatus `json:"status"`
	Progress    int                    `json:"progress"`
	Completed   int                    `json:"completed"`
	Failed      int                    `json:"failed"`
	Running     int                    `json:"running"`
	Pending     int                    `json:"pending"`
	Total       int                    `json:"total"`
	HealthScore int                    `json:"health_score"`
	Health      HealthStatus           `json:"health"`
	Issues      []Issue                `json:"issues,omitempty"`
	SampledAt   time.Time              `json:"sampled_at"`
}

// BucketScore maps a health score to its display bucket.
func BucketScore(score int) HealthStatus {
	switch {
	case score >= 90:
		return HealthExcellent
	case score >= 75:
		return HealthGood
	case score >= 60:
		return HealthFair
	case score >= 40:
		return HealthPoor
	default:
		return HealthCritical
	}
}

// Source provides read access to execution state.
type Source interface {
	Snapshot(executionID string) (*models.Execution, error)
}

// Remediator runs bounded recovery for a synthesized error. Satisfied by
// *recovery.Engine.
type Remediator interface {
	Attempt(ctx context.Context, executionID string, serr *models.StructuredError) recovery.Result
	Resume(ctx context.Context, executionID string) error
}

// Config tunes sampling cadence and detection thresholds. Zero values fall
// back to defaults.
type Config struct {
	Logger       *slog.Logger
	Source       Source
	Remediator   Remediator
	Connectivity recovery.ConnectivityChecker
	Resources    recovery.ResourceProbe

	// Interval between samples per watched execution.
	Interval time.Duration

	// StallThreshold is how long a step may run before it counts as stalled.
	StallThreshold time.Duration

	// StaleThreshold is how long a running execution may show no step
	// activity before it counts as stale.
	StaleThreshold time.Duration

	// Linger is how long polling continues after an execution turns terminal.
	Linger time.Duration

	// HistoryCap bounds the per-execution snapshot history.
	HistoryCap int
}

const (
	defaultInterval       = 5 * time.Second
	defaultStallThreshold = 2 * time.Minute
	defaultStaleThreshold = 5 * time.Minute
	defaultLinger         = 30 * time.Second
	defaultHistoryCap     = 50

	minResourceHeadroom = 0.1
)

// Monitor watches executions. Per-execution histories are independent; the
// monitor never mutates execution state directly.
type Monitor struct {
	logger       *slog.Logger
	source       Source
	remediator   Remediator
	connectivity recovery.ConnectivityChecker
	resources    recovery.ResourceProbe

	interval       time.Duration
	stallThreshold time.Duration
	staleThreshold time.Duration
	linger         time.Duration
	historyCap     int

	now func() time.Time

	mu        sync.Mutex
	histories map[string][]StatusSnapshot
	watchers  map[string]*watcher
	wg        sync.WaitGroup
}

type watcher struct {
	cancel context.CancelFunc
}

func New(cfg Config) *Monitor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Monitor{
		logger:         logger.With("module", "monitor"),
		source:         cfg.Source,
		remediator:     cfg.Remediator,
		connectivity:   cfg.Connectivity,
		resources:      cfg.Resources,
		interval:       cfg.Interval,
		stallThreshold: cfg.StallThreshold,
		staleThreshold: cfg.StaleThreshold,
		linger:         cfg.Linger,
		historyCap:     cfg.HistoryCap,
		now:            time.Now,
		histories:      make(map[string][]StatusSnapshot),
		watchers:       make(map[string]*watcher),
	}

	if m.interval <= 0 {
		m.interval = defaultInterval
	}
	if m.stallThreshold <= 0 {
		m.stallThreshold = defaultStallThreshold
	}
	if m.staleThreshold <= 0 {
		m.staleThreshold = defaultStaleThreshold
	}
	if m.linger <= 0 {
		m.linger = defaultLinger
	}
	if m.historyCap <= 0 {
		m.historyCap = defaultHistoryCap
	}

	return m
}

// Sample reads the execution once and derives its snapshot. Probes run with
// the caller's context.
func (m *Monitor) Sample(ctx context.Context, executionID string) (StatusSnapshot, error) {
	execution, err := m.source.Snapshot(executionID)
	if err != nil {
		return StatusSnapshot{}, fmt.Errorf("sampling %s: %w", executionID, err)
	}

	now := m.now()
	counts := execution.CountByStatus()

	snapshot := StatusSnapshot{
		ExecutionID: executionID,
		Status:      execution.Status,
		Progress:    execution.Progress(),
		Completed:   counts[models.StepStatusCompleted],
		Failed:      counts[models.StepStatusFailed],
		Running:     counts[models.StepStatusRunning],
		Pending:     counts[models.StepStatusPending],
		Total:       len(execution.Steps),
		SampledAt:   now,
	}

	score := 100
	stalled := 0

	for _, step := range execution.Steps {
		switch step.Status {
		case models.StepStatusFailed:
			score -= deductFailedStep

			issue := Issue{
				Type:       IssueStepFailure,
				Severity:   SeverityHigh,
				StepID:     step.ID,
				Message:    fmt.Sprintf("step %s failed", step.ID),
				DetectedAt: now,
			}

			if step.Error != nil {
				issue.Message = step.Error.Message
				issue.ErrorCode = step.Error.Code
				issue.Recoverable = step.Error.Recoverable
			}

			if step.Skipped {
				// Optional failures are settled; report only.
				issue.Severity = SeverityLow
				issue.Recoverable = false
			}

			snapshot.Issues = append(snapshot.Issues, issue)
		case models.StepStatusRunning:
			if step.StartedAt != nil && now.Sub(*step.StartedAt) > m.stallThreshold {
				score -= deductStalledStep
				stalled++

				snapshot.Issues = append(snapshot.Issues, Issue{
					Type:       IssueStepStalled,
					Severity:   SeverityMedium,
					StepID:     step.ID,
					Message:    fmt.Sprintf("step %s running for %s", step.ID, now.Sub(*step.StartedAt).Round(time.Second)),
					DetectedAt: now,
				})
			}
		}
	}

	if execution.Status == models.ExecutionStatusRunning && m.isStale(execution, now) {
		score -= deductStale
	}

	for _, issue := range m.probeSignals(ctx, execution, now) {
		score -= deductIssueSignal
		snapshot.Issues = append(snapshot.Issues, issue)
	}

	if score < 0 {
		score = 0
	}

	snapshot.HealthScore = score
	snapshot.Health = BucketScore(score)

	return snapshot, nil
}

// isStale reports whether no step showed activity within the staleness
// threshold.
func (m *Monitor) isStale(execution *models.Execution, now time.Time) bool {
	last := time.Time{}

	if execution.StartedAt != nil {
		last = *execution.StartedAt
	}

	for _, step := range execution.Steps {
		if step.StartedAt != nil && step.StartedAt.After(last) {
			last = *step.StartedAt
		}

		if step.EndedAt != nil && step.EndedAt.After(last) {
			last = *step.EndedAt
		}
	}

	return !last.IsZero() && now.Sub(last) > m.staleThreshold
}

// probeSignals gathers environment-level issues: deadlock, lost
// connectivity, exhausted resource headroom.
func (m *Monitor) probeSignals(ctx context.Context, execution *models.Execution, now time.Time) []Issue {
	var issues []Issue

	if !execution.Status.Terminal() && orchestrator.Deadlocked(execution) {
		issues = append(issues, Issue{
			Type:        IssueDependencyDeadlock,
			Severity:    SeverityHigh,
			Message:     "pending steps exist but none are running or ready",
			Recoverable: false,
			DetectedAt:  now,
		})
	}

	if execution.Status == models.ExecutionStatusRunning && m.connectivity != nil {
		if err := m.connectivity.CheckConnectivity(ctx); err != nil {
			issues = append(issues, Issue{
				Type:        IssueNetworkIssue,
				Severity:    SeverityHigh,
				Message:     fmt.Sprintf("connectivity lost: %v", err),
				Recoverable: true,
				ErrorCode:   models.ErrorCodeNetwork,
				DetectedAt:  now,
			})
		}
	}

	if execution.Status == models.ExecutionStatusRunning && m.resources != nil {
		headroom, err := m.resources.Headroom(ctx)
		if err == nil && headroom < minResourceHeadroom {
			issues = append(issues, Issue{
				Type:        IssueResourceExhaustion,
				Severity:    SeverityHigh,
				Message:     fmt.Sprintf("resource headroom at %.0f%%", headroom*100),
				Recoverable: true,
				ErrorCode:   models.ErrorCodeResource,
				DetectedAt:  now,
			})
		}
	}

	return issues
}

// remediate synthesizes a structured error per recoverable high-severity
// issue and routes it through the recovery engine.
func (m *Monitor) remediate(ctx context.Context, executionID string, snapshot StatusSnapshot) {
	if m.remediator == nil {
		return
	}

	for _, issue := range snapshot.Issues {
		if issue.Severity != SeverityHigh || !issue.Recoverable {
			continue
		}

		code := issue.ErrorCode
		if code == "" {
			code = models.ErrorCodeStepExecution
		}

		serr := models.NewStructuredError(code, issue.Message, true)

		m.logger.Info("Auto-remediating issue",
			"execution_id", executionID, "issue_type", string(issue.Type), "error_code", string(code))

		result := m.remediator.Attempt(ctx, executionID, serr)
		if !result.Recovered() {
			continue
		}

		if err := m.remediator.Resume(ctx, executionID); err != nil {
			m.logger.Warn("Resume after remediation failed", "execution_id", executionID, "error", err)
		}
	}
}

// Watch polls the execution at the monitor's configured interval until it
// has been terminal for the linger window, the context ends, or Stop is
// called.
func (m *Monitor) Watch(ctx context.Context, executionID string) {
	m.WatchEvery(ctx, executionID, 0)
}

// WatchEvery is Watch with a per-execution sampling interval. An interval of
// zero or less falls back to the monitor's configured interval.
func (m *Monitor) WatchEvery(ctx context.Context, executionID string, interval time.Duration) {
	if interval <= 0 {
		interval = m.interval
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w := &watcher{cancel: cancel}

	m.mu.Lock()
	if prev, ok := m.watchers[executionID]; ok {
		prev.cancel()
	}
	m.watchers[executionID] = w
	m.mu.Unlock()

	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		defer cancel()
		defer func() {
			m.mu.Lock()
			if m.watchers[executionID] == w {
				delete(m.watchers, executionID)
			}
			m.mu.Unlock()
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var terminalSince time.Time

		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
			}

			snapshot, err := m.Sample(watchCtx, executionID)
			if err != nil {
				m.logger.Warn("Sample failed", "execution_id", executionID, "error", err)

				continue
			}

			m.appendHistory(executionID, snapshot)

			if !snapshot.Status.Terminal() {
				terminalSince = time.Time{}
				m.remediate(watchCtx, executionID, snapshot)

				continue
			}

			if terminalSince.IsZero() {
				terminalSince = m.now()
			}

			if m.now().Sub(terminalSince) >= m.linger {
				m.logger.Info("Stopping watch, execution terminal",
					"execution_id", executionID, "status", string(snapshot.Status))

				return
			}
		}
	}()
}

func (m *Monitor) appendHistory(executionID string, snapshot StatusSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := append(m.histories[executionID], snapshot)
	if len(history) > m.historyCap {
		history = history[len(history)-m.historyCap:]
	}

	m.histories[executionID] = history
}

// History returns the retained snapshots for an execution, oldest first.
func (m *Monitor) History(executionID string) []StatusSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]StatusSnapshot(nil), m.histories[executionID]...)
}

// Latest returns the most recent snapshot, if any.
func (m *Monitor) Latest(executionID string) (StatusSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.histories[executionID]
	if len(history) == 0 {
		return StatusSnapshot{}, false
	}

	return history[len(history)-1], true
}

// Stop ends the watcher for one execution.
func (m *Monitor) Stop(executionID string) {
	m.mu.Lock()
	w, ok := m.watchers[executionID]
	if ok {
		delete(m.watchers, executionID)
	}
	m.mu.Unlock()

	if ok {
		w.cancel()
	}
}

// Close stops every watcher and waits for them to exit.
func (m *Monitor) Close() {
	m.mu.Lock()
	for id, w := range m.watchers {
		w.cancel()
		delete(m.watchers, id)
	}
	m.mu.Unlock()

	m.wg.Wait()
}
