package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/quantflow/quantflow/pkg/orchestrator"
	"github.com/quantflow/quantflow/pkg/registry"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleEngineError provides typed error handling for orchestrator errors.
func handleEngineError(c fiber.Ctx, err error) error {
	var (
		circular    *orchestrator.CircularDependencyError
		unknownTmpl *orchestrator.UnknownTemplateError
		unknownDep  *orchestrator.UnknownDependencyError
		unknownType *registry.UnknownStepTypeError
	)

	switch {
	case errors.Is(err, orchestrator.ErrExecutionNotFound):
		return notFound(c, "Execution not found")

	case errors.Is(err, orchestrator.ErrExecutionTerminal),
		errors.Is(err, orchestrator.ErrExecutionNotPaused):
		return conflict(c, err.Error())

	case errors.As(err, &circular),
		errors.As(err, &unknownTmpl),
		errors.As(err, &unknownDep),
		errors.As(err, &unknownType):
		return badRequest(c, err.Error())

	default:
		return internalError(c, err)
	}
}
