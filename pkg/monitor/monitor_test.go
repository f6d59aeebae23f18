package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantflow/quantflow/pkg/models"
	"github.com/quantflow/quantflow/pkg/recovery"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSource struct {
	mu        sync.Mutex
	execution *models.Execution
}

func (s *fakeSource) Snapshot(executionID string) (*models.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.execution == nil || s.execution.ID != executionID {
		return nil, errors.New("execution not found")
	}

	return s.execution.Clone(), nil
}

func (s *fakeSource) set(execution *models.Execution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execution = execution
}

type fakeRemediator struct {
	mu       sync.Mutex
	attempts []models.ErrorCode
	resumes  int
	outcome  recovery.Outcome
}

func (r *fakeRemediator) Attempt(_ context.Context, _ string, serr *models.StructuredError) recovery.Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attempts = append(r.attempts, serr.Code)

	outcome := r.outcome
	if outcome == "" {
		outcome = recovery.OutcomeSuccess
	}

	return recovery.Result{Outcome: outcome}
}

func (r *fakeRemediator) Resume(context.Context, string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resumes++

	return nil
}

func (r *fakeRemediator) attemptCodes() []models.ErrorCode {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]models.ErrorCode(nil), r.attempts...)
}

type stubConnectivity struct{ err error }

func (c stubConnectivity) CheckConnectivity(context.Context) error { return c.err }

type stubResources struct {
	headroom float64
	err      error
}

func (r stubResources) Headroom(context.Context) (float64, error) { return r.headroom, r.err }

func completedStep(id string) *models.Step {
	now := time.Now().UTC()

	return &models.Step{
		ID:        id,
		Name:      id,
		Type:      "backtest",
		Status:    models.StepStatusCompleted,
		Progress:  100,
		StartedAt: &now,
		EndedAt:   &now,
	}
}

func failedStep(id string, serr *models.StructuredError) *models.Step {
	return &models.Step{
		ID:     id,
		Name:   id,
		Type:   "backtest",
		Status: models.StepStatusFailed,
		Error:  serr,
	}
}

func runningExecution(steps ...*models.Step) *models.Execution {
	now := time.Now().UTC()

	return &models.Execution{
		ID:         "exec-1",
		Status:     models.ExecutionStatusRunning,
		Steps:      steps,
		TotalSteps: len(steps),
		StartedAt:  &now,
	}
}

func newTestMonitor(source Source, opts ...func(*Config)) *Monitor {
	cfg := Config{
		Logger:         testLogger(),
		Source:         source,
		Interval:       5 * time.Millisecond,
		StallThreshold: time.Minute,
		StaleThreshold: time.Hour,
		Linger:         time.Millisecond,
		HistoryCap:     10,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return New(cfg)
}

func TestSampleHealthyExecution(t *testing.T) {
	source := &fakeSource{}
	source.set(runningExecution(completedStep("a"), completedStep("b")))

	m := newTestMonitor(source)

	snapshot, err := m.Sample(context.Background(), "exec-1")
	require.NoError(t, err)

	assert.Equal(t, 100, snapshot.HealthScore)
	assert.Equal(t, HealthExcellent, snapshot.Health)
	assert.Equal(t, 2, snapshot.Completed)
	assert.Empty(t, snapshot.Issues)
}

func TestSampleSingleFailedStepDeductsTwenty(t *testing.T) {
	serr := models.NewStructuredError(models.ErrorCodeStepExecution, "backtest crashed", true)
	source := &fakeSource{}
	source.set(runningExecution(completedStep("a"), failedStep("b", serr), completedStep("c")))

	m := newTestMonitor(source)

	snapshot, err := m.Sample(context.Background(), "exec-1")
	require.NoError(t, err)

	assert.Equal(t, 80, snapshot.HealthScore)
	assert.Equal(t, HealthGood, snapshot.Health)

	require.Len(t, snapshot.Issues, 1)
	issue := snapshot.Issues[0]
	assert.Equal(t, IssueStepFailure, issue.Type)
	assert.Equal(t, SeverityHigh, issue.Severity)
	assert.True(t, issue.Recoverable)
	assert.Equal(t, models.ErrorCodeStepExecution, issue.ErrorCode)
}

func TestSampleScoreFloorsAtZero(t *testing.T) {
	serr := models.NewStructuredError(models.ErrorCodeStepExecution, "boom", false)
	steps := make([]*models.Step, 7)
	for i := range steps {
		steps[i] = failedStep(string(rune('a'+i)), serr)
	}

	source := &fakeSource{}
	source.set(runningExecution(steps...))

	m := newTestMonitor(source)

	snapshot, err := m.Sample(context.Background(), "exec-1")
	require.NoError(t, err)

	assert.Equal(t, 0, snapshot.HealthScore)
	assert.Equal(t, HealthCritical, snapshot.Health)
}

func TestSampleStalledStep(t *testing.T) {
	longAgo := time.Now().UTC().Add(-10 * time.Minute)
	stalled := &models.Step{
		ID:        "opt",
		Name:      "opt",
		Type:      "optimization",
		Status:    models.StepStatusRunning,
		StartedAt: &longAgo,
	}

	source := &fakeSource{}
	source.set(runningExecution(completedStep("a"), stalled))

	m := newTestMonitor(source)

	snapshot, err := m.Sample(context.Background(), "exec-1")
	require.NoError(t, err)

	assert.Equal(t, 90, snapshot.HealthScore)
	require.Len(t, snapshot.Issues, 1)
	assert.Equal(t, IssueStepStalled, snapshot.Issues[0].Type)
	assert.Equal(t, SeverityMedium, snapshot.Issues[0].Severity)
}

func TestSampleStaleExecution(t *testing.T) {
	longAgo := time.Now().UTC().Add(-20 * time.Minute)
	done := completedStep("a")
	done.StartedAt = &longAgo
	done.EndedAt = &longAgo

	execution := runningExecution(done)
	execution.StartedAt = &longAgo

	source := &fakeSource{}
	source.set(execution)

	m := newTestMonitor(source, func(cfg *Config) {
		cfg.StaleThreshold = 5 * time.Minute
	})

	snapshot, err := m.Sample(context.Background(), "exec-1")
	require.NoError(t, err)

	assert.Equal(t, 85, snapshot.HealthScore)
}

func TestSampleDependencyDeadlock(t *testing.T) {
	serr := models.NewStructuredError(models.ErrorCodeValidation, "bad input", false)
	blocked := &models.Step{
		ID:           "report",
		Name:         "report",
		Type:         "report",
		Status:       models.StepStatusPending,
		Dependencies: []string{"backtest"},
	}

	source := &fakeSource{}
	source.set(runningExecution(failedStep("backtest", serr), blocked))

	m := newTestMonitor(source)

	snapshot, err := m.Sample(context.Background(), "exec-1")
	require.NoError(t, err)

	// One failed step (-20) plus the deadlock signal (-5).
	assert.Equal(t, 75, snapshot.HealthScore)

	var deadlock *Issue
	for i := range snapshot.Issues {
		if snapshot.Issues[i].Type == IssueDependencyDeadlock {
			deadlock = &snapshot.Issues[i]
		}
	}

	require.NotNil(t, deadlock)
	assert.Equal(t, SeverityHigh, deadlock.Severity)
	assert.False(t, deadlock.Recoverable)
}

func TestSampleConnectivityAndResourceSignals(t *testing.T) {
	source := &fakeSource{}
	source.set(runningExecution(completedStep("a")))

	m := newTestMonitor(source, func(cfg *Config) {
		cfg.Connectivity = stubConnectivity{err: errors.New("dns failure")}
		cfg.Resources = stubResources{headroom: 0.02}
	})

	snapshot, err := m.Sample(context.Background(), "exec-1")
	require.NoError(t, err)

	assert.Equal(t, 90, snapshot.HealthScore)
	require.Len(t, snapshot.Issues, 2)
	assert.Equal(t, IssueNetworkIssue, snapshot.Issues[0].Type)
	assert.Equal(t, IssueResourceExhaustion, snapshot.Issues[1].Type)
}

func TestBucketScore(t *testing.T) {
	tests := []struct {
		score int
		want  HealthStatus
	}{
		{100, HealthExcellent},
		{90, HealthExcellent},
		{89, HealthGood},
		{75, HealthGood},
		{74, HealthFair},
		{60, HealthFair},
		{59, HealthPoor},
		{40, HealthPoor},
		{39, HealthCritical},
		{0, HealthCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, BucketScore(tt.score), "score %d", tt.score)
	}
}

func TestRemediateTargetsHighSeverityRecoverableIssues(t *testing.T) {
	serr := models.NewStructuredError(models.ErrorCodeNetwork, "feed disconnected", true)
	source := &fakeSource{}
	source.set(runningExecution(failedStep("backtest", serr)))

	remediator := &fakeRemediator{}
	m := newTestMonitor(source, func(cfg *Config) {
		cfg.Remediator = remediator
	})

	snapshot, err := m.Sample(context.Background(), "exec-1")
	require.NoError(t, err)

	m.remediate(context.Background(), "exec-1", snapshot)

	assert.Equal(t, []models.ErrorCode{models.ErrorCodeNetwork}, remediator.attemptCodes())
	assert.Equal(t, 1, remediator.resumes)
}

func TestRemediateSkipsMediumAndUnrecoverable(t *testing.T) {
	remediator := &fakeRemediator{}
	m := newTestMonitor(&fakeSource{}, func(cfg *Config) {
		cfg.Remediator = remediator
	})

	snapshot := StatusSnapshot{
		ExecutionID: "exec-1",
		Issues: []Issue{
			{Type: IssueStepStalled, Severity: SeverityMedium, Recoverable: true},
			{Type: IssueDependencyDeadlock, Severity: SeverityHigh, Recoverable: false},
		},
	}

	m.remediate(context.Background(), "exec-1", snapshot)

	assert.Empty(t, remediator.attemptCodes())
	assert.Equal(t, 0, remediator.resumes)
}

func TestHistoryBounded(t *testing.T) {
	m := newTestMonitor(&fakeSource{}, func(cfg *Config) {
		cfg.HistoryCap = 3
	})

	for i := 0; i < 5; i++ {
		m.appendHistory("exec-1", StatusSnapshot{HealthScore: i})
	}

	history := m.History("exec-1")
	require.Len(t, history, 3)
	assert.Equal(t, 2, history[0].HealthScore)
	assert.Equal(t, 4, history[2].HealthScore)

	latest, ok := m.Latest("exec-1")
	require.True(t, ok)
	assert.Equal(t, 4, latest.HealthScore)
}

func TestWatchStopsAfterTerminalLinger(t *testing.T) {
	now := time.Now().UTC()
	execution := &models.Execution{
		ID:         "exec-1",
		Status:     models.ExecutionStatusCompleted,
		Steps:      []*models.Step{completedStep("a")},
		TotalSteps: 1,
		StartedAt:  &now,
		EndedAt:    &now,
	}

	source := &fakeSource{}
	source.set(execution)

	m := newTestMonitor(source)
	m.Watch(context.Background(), "exec-1")

	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()

		return len(m.watchers) == 0
	}, time.Second, 5*time.Millisecond, "watcher should stop after the linger window")

	assert.NotEmpty(t, m.History("exec-1"))
	m.Close()
}

func TestWatchEveryOverridesConfiguredInterval(t *testing.T) {
	source := &fakeSource{}
	source.set(runningExecution(completedStep("a")))

	m := newTestMonitor(source, func(cfg *Config) {
		cfg.Interval = time.Hour
	})
	defer m.Close()

	m.WatchEvery(context.Background(), "exec-1", 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(m.History("exec-1")) > 0
	}, time.Second, 5*time.Millisecond, "per-execution interval should drive sampling")
}

func TestWatchEveryFallsBackToConfiguredInterval(t *testing.T) {
	source := &fakeSource{}
	source.set(runningExecution(completedStep("a")))

	m := newTestMonitor(source)
	defer m.Close()

	m.WatchEvery(context.Background(), "exec-1", 0)

	require.Eventually(t, func() bool {
		return len(m.History("exec-1")) > 0
	}, time.Second, 5*time.Millisecond)
}
