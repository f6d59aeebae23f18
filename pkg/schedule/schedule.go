// Package schedule starts recurring executions of a pipeline template from
// cron expressions.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/quantflow/quantflow/pkg/models"
)

// Launcher starts one execution. Satisfied by *orchestrator.Orchestrator.
type Launcher interface {
	Execute(ctx context.Context, cfg models.ExecutionConfig) (*models.Execution, error)
}

// Scheduler owns the cron runner and the registered recurring entries.
type Scheduler struct {
	logger   *slog.Logger
	launcher Launcher
	cron     *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func New(logger *slog.Logger, launcher Launcher) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		logger:   logger.With("module", "schedule"),
		launcher: launcher,
		cron:     cron.New(),
		entries:  make(map[string]cron.EntryID),
	}
}

// Add registers a recurring execution under a caller-chosen id. Standard
// five-field cron expressions and descriptors like @hourly or @every are
// accepted. Re-adding an id replaces its schedule.
func (s *Scheduler) Add(id, spec string, cfg models.ExecutionConfig) error {
	if id == "" {
		return fmt.Errorf("schedule id is required")
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("schedule %s has invalid execution config: %w", id, err)
	}

	entryID, err := s.cron.AddFunc(spec, func() { s.launch(id, cfg) })
	if err != nil {
		return fmt.Errorf("schedule %s has invalid cron expression %q: %w", id, spec, err)
	}

	s.mu.Lock()
	if prev, ok := s.entries[id]; ok {
		s.cron.Remove(prev)
	}
	s.entries[id] = entryID
	s.mu.Unlock()

	s.logger.Info("Registered schedule", "schedule_id", id, "cron", spec, "template_id", cfg.TemplateID)

	return nil
}

func (s *Scheduler) launch(id string, cfg models.ExecutionConfig) {
	execution, err := s.launcher.Execute(context.Background(), cfg)
	if err != nil {
		s.logger.Error("Scheduled execution failed to start", "schedule_id", id, "error", err)

		return
	}

	s.logger.Info("Scheduled execution started", "schedule_id", id, "execution_id", execution.ID)
}

// Remove deregisters a recurring execution.
func (s *Scheduler) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
}

// IDs lists the registered schedule ids.
func (s *Scheduler) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}

	return ids
}

// Start begins firing schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop ends scheduling and returns once in-flight launches have been handed
// off. Already started executions keep running.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
