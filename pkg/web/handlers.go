package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/okrun/caseflow/pkg/engine"
	"github.com/okrun/caseflow/pkg/models"
	"github.com/okrun/caseflow/pkg/persistence"
)

type APIHandlers struct {
	engine      *engine.Engine
	persistence persistence.Persistence
	validator   *validator.Validate
}

func NewAPIHandlers(engine *engine.Engine, persistence persistence.Persistence, validator *validator.Validate) *APIHandlers {
	return &APIHandlers{
		engine:      engine,
		persistence: persistence,
		validator:   validator,
	}
}

// RegisterDefinition registers a workflow definition from the raw request
// body. The body is schema-checked before unmarshalling; a definition failing
// any structural check is rejected wholesale.
func (h *APIHandlers) RegisterDefinition(c fiber.Ctx) error {
	def, err := h.engine.RegisterDefinitionJSON(c.Context(), c.Body())
	if err != nil {
		if persistence.IsDefinitionAlreadyExists(err) {
			return conflict(c, "definition_exists", err.Error())
		}

		return badRequest(c, err.Error())
	}

	return c.Status(fiber.StatusCreated).JSON(def)
}

func (h *APIHandlers) ListDefinitions(c fiber.Ctx) error {
	definitions, err := h.engine.ListDefinitions(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":   definitions,
		"total_count": len(definitions),
	})
}

func (h *APIHandlers) GetDefinition(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	def, err := h.engine.GetDefinition(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) StartInstance(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req StartInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.engine.StartWorkflow(c.Context(), workflowID, req.Initiator, req.Data, req.Metadata)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(instance)
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	instance, err := h.engine.GetInstance(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(instance)
}

// ListInstances returns in-progress instances, optionally filtered to the
// ones awaiting a given user.
func (h *APIHandlers) ListInstances(c fiber.Ctx) error {
	instances, err := h.engine.ActiveInstances(c.Context(), c.Query("user_id"))
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"instances":   instances,
		"total_count": len(instances),
	})
}

func (h *APIHandlers) CompleteStep(c fiber.Ctx) error {
	instanceID := c.Params("id")
	stepID := c.Params("stepId")

	if instanceID == "" || stepID == "" {
		return badRequest(c, "Instance ID and step ID are required")
	}

	var req CompleteStepRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.engine.CompleteStep(c.Context(), instanceID, stepID, req.UserID, models.ActionType(req.Action), req.Data, req.Comments)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) CancelInstance(c fiber.Ctx) error {
	instanceID := c.Params("id")
	if instanceID == "" {
		return badRequest(c, "Instance ID is required")
	}

	var req CancelInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.engine.CancelInstance(c.Context(), instanceID, req.CancelledBy, req.Reason); err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) AddComment(c fiber.Ctx) error {
	instanceID := c.Params("id")
	if instanceID == "" {
		return badRequest(c, "Instance ID is required")
	}

	var req AddCommentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	comment, err := h.engine.AddComment(c.Context(), instanceID, req.AuthorID, req.AuthorName, req.AuthorRole, req.Content, req.Internal)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(comment)
}

func (h *APIHandlers) GetMetrics(c fiber.Ctx) error {
	metrics, err := h.engine.ComputeMetrics(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(metrics)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "Caseflow API is healthy"
	httpStatus := http.StatusOK

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		message = err.Error()
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}
