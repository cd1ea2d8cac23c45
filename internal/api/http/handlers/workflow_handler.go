package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/repair-service/internal/api/dto"
	"github.com/spec-kit/repair-service/internal/domain"
	"github.com/spec-kit/repair-service/internal/service"
	apperrors "github.com/spec-kit/repair-service/pkg/util/errorutil"
)

// WorkflowHandler manages orchestrator-facing endpoints: manual workflow
// start, step completion, and the inbound webhook.
type WorkflowHandler struct {
	workflow *service.WorkflowService
}

// NewWorkflowHandler constructs handler.
func NewWorkflowHandler(workflow *service.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{workflow: workflow}
}

// StartWorkflow POST /v1/cases/:id/workflow.
func (h *WorkflowHandler) StartWorkflow(c *fiber.Ctx) error {
	instance, err := h.workflow.StartWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	if instance == nil {
		return c.JSON(fiber.Map{"data": nil})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": workflowInstanceResponse(instance)})
}

// CompleteStep POST /v1/cases/:id/steps/complete.
func (h *WorkflowHandler) CompleteStep(c *fiber.Ctx) error {
	var req dto.CompleteStepRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	step := domain.WorkflowStep(strings.TrimSpace(req.Step))
	if step == "" {
		return apperrors.NewValidationError("step required", nil)
	}
	err := h.workflow.CompleteStep(c.Context(), service.CompleteStepRequest{
		CaseID: c.Params("id"),
		Step:   step,
		Result: req.Result,
	})
	if err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleEvent POST /v1/workflow/events. Orchestrator webhook; authenticated
// by the shared API key, not a service token.
func (h *WorkflowHandler) HandleEvent(c *fiber.Ctx) error {
	var req dto.WorkflowEventRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.InstanceID == "" {
		return apperrors.NewValidationError("instance_id required", nil)
	}

	switch req.Type {
	case "step_ready":
		if req.Step == "" {
			return apperrors.NewValidationError("step required", nil)
		}
		err := h.workflow.HandleStepReady(c.Context(), service.StepReadyEvent{
			InstanceID: req.InstanceID,
			Step:       domain.WorkflowStep(req.Step),
			Data:       req.Data,
		})
		if err != nil {
			return err
		}
	case "instance_state":
		if req.Status == "" {
			return apperrors.NewValidationError("status required", nil)
		}
		err := h.workflow.HandleInstanceState(c.Context(), service.InstanceStateEvent{
			InstanceID: req.InstanceID,
			Status:     domain.WorkflowStatus(strings.ToUpper(req.Status)),
		})
		if err != nil {
			return err
		}
	default:
		return apperrors.NewValidationError("unknown event type", map[string]any{"type": req.Type})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func workflowInstanceResponse(instance *domain.WorkflowInstance) dto.WorkflowInstanceResponse {
	return dto.WorkflowInstanceResponse{
		ID:           instance.ID,
		CaseID:       instance.CaseID,
		DefinitionID: instance.DefinitionID,
		Status:       instance.Status,
		CurrentStep:  instance.CurrentStep,
		CreatedAt:    instance.CreatedAt,
		UpdatedAt:    instance.UpdatedAt,
	}
}
