// Package web provides HTTP handlers and REST API endpoints for the
// execution engine control plane.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/quantflow/quantflow/pkg/checkpoint"
	"github.com/quantflow/quantflow/pkg/monitor"
	"github.com/quantflow/quantflow/pkg/orchestrator"
	"github.com/quantflow/quantflow/pkg/registry"
)

type APIHandlers struct {
	orchestrator *orchestrator.Orchestrator
	monitor      *monitor.Monitor
	validator    *validator.Validate
	registry     *registry.Registry
	checkpoints  checkpoint.Store
}

func NewAPIHandlers(
	orch *orchestrator.Orchestrator,
	mon *monitor.Monitor,
	validator *validator.Validate,
	registry *registry.Registry,
	checkpoints checkpoint.Store,
) *APIHandlers {
	return &APIHandlers{
		orchestrator: orch,
		monitor:      mon,
		validator:    validator,
		registry:     registry,
		checkpoints:  checkpoints,
	}
}

// RegisterRoutes mounts all API endpoints on the app.
func (h *APIHandlers) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.HealthCheck)
	app.Get("/step-types", h.ListStepTypes)
	app.Get("/templates", h.ListTemplates)

	executions := app.Group("/executions")
	executions.Post("/", h.StartExecution)
	executions.Get("/", h.ListExecutions)
	executions.Get("/:id", h.GetExecution)
	executions.Get("/:id/status", h.GetExecutionStatus)
	executions.Post("/:id/pause", h.PauseExecution)
	executions.Post("/:id/resume", h.ResumeExecution)
	executions.Post("/:id/cancel", h.CancelExecution)
}

func (h *APIHandlers) StartExecution(c fiber.Ctx) error {
	var req StartExecutionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if (req.TemplateID == "") == (len(req.Steps) == 0) {
		return badRequest(c, "Exactly one of template_id and steps must be provided")
	}

	for _, step := range req.Steps {
		if err := h.registry.ValidateParameters(step.Type, step.Parameters); err != nil {
			return badRequest(c, err.Error())
		}
	}

	execution, err := h.orchestrator.Execute(c.Context(), req.executionConfig())
	if err != nil {
		return handleEngineError(c, err)
	}

	if h.monitor != nil {
		interval, _ := h.orchestrator.PollInterval(execution.ID)
		h.monitor.WatchEvery(context.Background(), execution.ID, interval)
	}

	return c.Status(fiber.StatusCreated).JSON(execution)
}

func (h *APIHandlers) ListExecutions(c fiber.Ctx) error {
	executions := h.orchestrator.List()

	return c.JSON(fiber.Map{
		"executions":  executions,
		"total_count": len(executions),
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.orchestrator.Snapshot(id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetExecutionStatus(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if h.monitor == nil {
		return notFound(c, "Status monitoring is not enabled")
	}

	if snapshot, ok := h.monitor.Latest(id); ok {
		return c.JSON(snapshot)
	}

	snapshot, err := h.monitor.Sample(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(snapshot)
}

func (h *APIHandlers) PauseExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	reason := h.controlReason(c, "paused via API")

	if err := h.orchestrator.Pause(c.Context(), id, reason); err != nil {
		return handleEngineError(c, err)
	}

	execution, err := h.orchestrator.Snapshot(id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) ResumeExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if err := h.orchestrator.Resume(c.Context(), id); err != nil {
		return handleEngineError(c, err)
	}

	execution, err := h.orchestrator.Snapshot(id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	reason := h.controlReason(c, "cancelled via API")

	if err := h.orchestrator.Cancel(c.Context(), id, reason); err != nil {
		return handleEngineError(c, err)
	}

	execution, err := h.orchestrator.Snapshot(id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) ListStepTypes(c fiber.Ctx) error {
	stepTypes := h.registry.List()

	return c.JSON(fiber.Map{
		"step_types":  stepTypes,
		"total_count": len(stepTypes),
	})
}

func (h *APIHandlers) ListTemplates(c fiber.Ctx) error {
	templates := h.orchestrator.Templates()

	responses := make([]TemplateResponse, 0, len(templates))
	for _, tmpl := range templates {
		responses = append(responses, TemplateResponse{
			ID:          tmpl.ID,
			Name:        tmpl.Name,
			Description: tmpl.Description,
			StepCount:   len(tmpl.Build()),
		})
	}

	return c.JSON(fiber.Map{
		"templates":   responses,
		"total_count": len(responses),
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	checkpointCheck := "ok"
	ok := true

	if h.checkpoints != nil {
		if err := h.checkpoints.HealthCheck(c.Context()); err != nil {
			checkpointCheck = err.Error()
			ok = false
		}
	}

	status := "unhealthy"
	message := "QuantFlow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		message = "QuantFlow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"checkpoints": checkpointCheck,
			"step_types":  len(h.registry.List()),
		},
		"timestamp": time.Now().UTC(),
	})
}

// controlReason pulls the optional reason from the request body. Pause and
// cancel accept an empty body.
func (h *APIHandlers) controlReason(c fiber.Ctx, fallback string) string {
	if len(c.Body()) == 0 {
		return fallback
	}

	var req ControlRequest
	if err := c.Bind().JSON(&req); err != nil || req.Reason == "" {
		return fallback
	}

	return req.Reason
}
