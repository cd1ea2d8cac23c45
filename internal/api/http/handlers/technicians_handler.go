package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/repair-service/internal/api/dto"
	"github.com/spec-kit/repair-service/internal/domain"
	"github.com/spec-kit/repair-service/internal/repository"
	"github.com/spec-kit/repair-service/internal/service"
	apperrors "github.com/spec-kit/repair-service/pkg/util/errorutil"
)

// TechniciansHandler manages the technician roster.
type TechniciansHandler struct {
	assignments *service.AssignmentService
}

// NewTechniciansHandler constructs handler.
func NewTechniciansHandler(assignments *service.AssignmentService) *TechniciansHandler {
	return &TechniciansHandler{assignments: assignments}
}

// CreateTechnician POST /v1/technicians.
func (h *TechniciansHandler) CreateTechnician(c *fiber.Ctx) error {
	var req dto.CreateTechnicianRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	tech := domain.Technician{
		Name:     req.Name,
		Email:    req.Email,
		Active:   active,
		Skills:   req.Skills,
		Location: req.Location,
	}
	if err := h.assignments.CreateTechnician(c.Context(), &tech); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": technicianResponse(&tech)})
}

// UpdateTechnician PUT /v1/technicians/:id.
func (h *TechniciansHandler) UpdateTechnician(c *fiber.Ctx) error {
	var req dto.UpdateTechnicianRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	tech := domain.Technician{
		ID:       c.Params("id"),
		Name:     req.Name,
		Email:    req.Email,
		Active:   req.Active,
		Skills:   req.Skills,
		Location: req.Location,
	}
	if err := h.assignments.UpdateTechnician(c.Context(), &tech); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": technicianResponse(&tech)})
}

// ListTechnicians GET /v1/technicians.
func (h *TechniciansHandler) ListTechnicians(c *fiber.Ctx) error {
	filter := repository.TechnicianFilter{}
	if activeStr := c.Query("active"); activeStr != "" {
		active, err := strconv.ParseBool(activeStr)
		if err != nil {
			return apperrors.NewValidationError("invalid active filter", nil)
		}
		filter.Active = &active
	}
	if skills := c.Query("skills"); skills != "" {
		for _, tag := range strings.Split(skills, ",") {
			filter.SkillTags = append(filter.SkillTags, strings.TrimSpace(tag))
		}
	}
	techs, err := h.assignments.ListTechnicians(c.Context(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TechnicianResponse, 0, len(techs))
	for i := range techs {
		items = append(items, technicianResponse(&techs[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func technicianResponse(tech *domain.Technician) dto.TechnicianResponse {
	return dto.TechnicianResponse{
		ID:        tech.ID,
		Name:      tech.Name,
		Email:     tech.Email,
		Active:    tech.Active,
		Skills:    tech.Skills,
		Workload:  tech.Workload,
		Location:  tech.Location,
		CreatedAt: tech.CreatedAt,
		UpdatedAt: tech.UpdatedAt,
	}
}
