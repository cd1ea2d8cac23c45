package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/repair-service/internal/api/dto"
	"github.com/spec-kit/repair-service/internal/service"
	apperrors "github.com/spec-kit/repair-service/pkg/util/errorutil"
)

// AssignmentsHandler manages technician assignment endpoints.
type AssignmentsHandler struct {
	assignments *service.AssignmentService
	cases       *service.CaseService
}

// NewAssignmentsHandler constructs handler.
func NewAssignmentsHandler(assignments *service.AssignmentService, cases *service.CaseService) *AssignmentsHandler {
	return &AssignmentsHandler{assignments: assignments, cases: cases}
}

// AutoAssign POST /v1/assignments/auto.
func (h *AssignmentsHandler) AutoAssign(c *fiber.Ctx) error {
	var req dto.AutoAssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.CaseID == "" {
		return apperrors.NewValidationError("case_id required", nil)
	}
	kase, err := h.cases.GetCase(c.Context(), req.CaseID)
	if err != nil {
		return err
	}
	criteria := service.AssignmentCriteria{
		DeviceType: kase.DeviceType,
		Category:   kase.Category,
		Priority:   kase.Priority,
		Location:   req.Location,
	}
	tech, err := h.assignments.AutoAssign(c.Context(), kase.ID, criteria)
	if err != nil {
		return err
	}
	resp := dto.AssignmentResponse{CaseID: kase.ID, Assigned: tech != nil}
	if tech != nil {
		resp.TechnicianID = &tech.ID
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Candidates GET /v1/assignments/candidates. Ranks eligible technicians
// for the given criteria without assigning anyone.
func (h *AssignmentsHandler) Candidates(c *fiber.Ctx) error {
	criteria := service.AssignmentCriteria{
		DeviceType: c.Query("device_type"),
		Category:   c.Query("category"),
	}
	if location := c.Query("location"); location != "" {
		criteria.Location = &location
	}
	ranked, err := h.assignments.Candidates(c.Context(), criteria)
	if err != nil {
		return err
	}
	items := make([]dto.TechnicianScoreResponse, 0, len(ranked))
	for _, candidate := range ranked {
		items = append(items, dto.TechnicianScoreResponse{
			TechnicianID:      candidate.Technician.ID,
			Name:              candidate.Technician.Name,
			Workload:          candidate.Technician.Workload,
			Score:             candidate.Score,
			SkillScore:        candidate.SkillScore,
			WorkloadScore:     candidate.WorkloadScore,
			AvailabilityScore: candidate.AvailabilityScore,
			LocationScore:     candidate.LocationScore,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// Suggestions GET /v1/assignments/suggestions.
func (h *AssignmentsHandler) Suggestions(c *fiber.Ctx) error {
	suggestions, err := h.assignments.SuggestReassignments(c.Context())
	if err != nil {
		return err
	}
	items := make([]dto.ReassignmentSuggestionResponse, 0, len(suggestions))
	for _, s := range suggestions {
		items = append(items, dto.ReassignmentSuggestionResponse{
			CaseID:           s.CaseID,
			Priority:         string(s.Priority),
			FromTechnicianID: s.FromTechnicianID,
			ToTechnicianID:   s.ToTechnicianID,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}
