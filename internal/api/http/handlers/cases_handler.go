package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/repair-service/internal/api/dto"
	"github.com/spec-kit/repair-service/internal/domain"
	"github.com/spec-kit/repair-service/internal/service"
	apperrors "github.com/spec-kit/repair-service/pkg/util/errorutil"
)

// CasesHandler manages repair case endpoints.
type CasesHandler struct {
	cases       *service.CaseService
	sla         *service.SLAService
	escalations *service.EscalationService
	workflow    *service.WorkflowService
}

// NewCasesHandler constructs handler.
func NewCasesHandler(cases *service.CaseService, sla *service.SLAService, escalations *service.EscalationService, workflow *service.WorkflowService) *CasesHandler {
	return &CasesHandler{cases: cases, sla: sla, escalations: escalations, workflow: workflow}
}

// CreateCase POST /v1/cases.
func (h *CasesHandler) CreateCase(c *fiber.Ctx) error {
	var req dto.CreateCaseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.CustomerID == "" || req.Title == "" {
		return apperrors.NewValidationError("customer_id, title required", nil)
	}

	priority, err := parsePriority(req.Priority)
	if err != nil {
		return err
	}
	input := service.CaseCreateInput{
		CustomerID:   req.CustomerID,
		CustomerTier: req.CustomerTier,
		ServiceType:  req.ServiceType,
		DeviceType:   req.DeviceType,
		Category:     req.Category,
		Title:        req.Title,
		Priority:     priority,
		Value:        req.Value,
		Location:     req.Location,
	}
	kase, err := h.cases.CreateCase(c.Context(), input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": caseResponse(kase)})
}

// GetCase GET /v1/cases/:id.
func (h *CasesHandler) GetCase(c *fiber.Ctx) error {
	kase, err := h.cases.GetCase(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": caseResponse(kase)})
}

// ChangeStatus POST /v1/cases/:id/status.
func (h *CasesHandler) ChangeStatus(c *fiber.Ctx) error {
	var req dto.ChangeStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	status := domain.CaseStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if status == "" {
		return apperrors.NewValidationError("status required", nil)
	}
	kase, err := h.cases.ChangeStatus(c.Context(), c.Params("id"), status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": caseResponse(kase)})
}

// CompleteCase POST /v1/cases/:id/complete.
func (h *CasesHandler) CompleteCase(c *fiber.Ctx) error {
	var req dto.CompleteCaseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	caseID := c.Params("id")
	if err := h.workflow.HandleCompletion(c.Context(), caseID, req.Resolution); err != nil {
		return err
	}
	kase, err := h.cases.GetCase(c.Context(), caseID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": caseResponse(kase)})
}

// Compliance GET /v1/cases/:id/compliance.
func (h *CasesHandler) Compliance(c *fiber.Ctx) error {
	kase, err := h.cases.GetCase(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	result, err := h.sla.EvaluateCompliance(c.Context(), kase)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": complianceResponse(result)})
}

// Escalations GET /v1/cases/:id/escalations.
func (h *CasesHandler) Escalations(c *fiber.Ctx) error {
	records, err := h.escalations.History(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.EscalationResponse, 0, len(records))
	for _, record := range records {
		items = append(items, dto.EscalationResponse{
			ID:        record.ID,
			Level:     record.Level,
			Kind:      record.Kind,
			CreatedAt: record.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

func parsePriority(raw string) (domain.CasePriority, error) {
	if raw == "" {
		return "", nil
	}
	priority := domain.CasePriority(strings.ToUpper(strings.TrimSpace(raw)))
	if domain.PriorityRank(priority) == 0 {
		return "", apperrors.NewValidationError("unknown priority", map[string]any{"priority": raw})
	}
	return priority, nil
}

func caseResponse(kase *domain.Case) dto.CaseResponse {
	return dto.CaseResponse{
		ID:                 kase.ID,
		ExternalKey:        kase.ExternalKey,
		CustomerID:         kase.CustomerID,
		CustomerTier:       kase.CustomerTier,
		ServiceType:        kase.ServiceType,
		DeviceType:         kase.DeviceType,
		Category:           kase.Category,
		Title:              kase.Title,
		Priority:           kase.Priority,
		Status:             kase.Status,
		Value:              kase.Value,
		Resolution:         kase.Resolution,
		TechnicianID:       kase.TechnicianID,
		WorkflowInstanceID: kase.WorkflowInstanceID,
		EscalationLevel:    kase.EscalationLevel,
		SLAStatus:          kase.SLAStatus,
		SLADueAt:           kase.SLADueAt,
		CreatedAt:          kase.CreatedAt,
		UpdatedAt:          kase.UpdatedAt,
		AssignedAt:         kase.AssignedAt,
		CompletedAt:        kase.CompletedAt,
	}
}

func complianceResponse(result *service.ComplianceResult) dto.ComplianceResponse {
	return dto.ComplianceResponse{
		CaseID:        result.CaseID,
		Status:        result.Status,
		HoursElapsed:  result.HoursElapsed,
		Response:      subCheckResponse(result.Response),
		Resolution:    subCheckResponse(result.Resolution),
		PenaltyAmount: result.PenaltyAmount,
	}
}

func subCheckResponse(check service.SubCheck) dto.SubCheckResponse {
	return dto.SubCheckResponse{
		TargetHours: check.TargetHours,
		ActualHours: check.ActualHours,
		Breached:    check.Breached,
	}
}
