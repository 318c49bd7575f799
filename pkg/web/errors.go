package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/okrun/caseflow/pkg/engine"
	"github.com/okrun/caseflow/pkg/persistence"
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

func conflict(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType(problemType).
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

// handleEngineError maps engine and persistence errors onto problem responses.
func handleEngineError(c fiber.Ctx, err error) error {
	switch {
	case persistence.IsDefinitionNotFound(err):
		return notFound(c, "workflow definition not found")
	case persistence.IsInstanceNotFound(err):
		return notFound(c, "workflow instance not found")
	case persistence.IsDefinitionAlreadyExists(err):
		return conflict(c, "definition_exists", err.Error())
	case engine.IsStepAlreadyCompleted(err):
		return conflict(c, "step_already_completed", err.Error())
	case errors.Is(err, engine.ErrInstanceTerminal):
		return conflict(c, "instance_terminal", err.Error())
	case engine.IsStepNotActive(err),
		engine.IsActionNotAllowed(err),
		errors.Is(err, engine.ErrStepNotFound),
		errors.Is(err, engine.ErrMissingRequiredFields),
		errors.Is(err, engine.ErrWorkflowInactive):
		return badRequest(c, err.Error())
	default:
		return internalError(c, err)
	}
}
