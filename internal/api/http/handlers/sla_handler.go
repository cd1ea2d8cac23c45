package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/repair-service/internal/api/dto"
	"github.com/spec-kit/repair-service/internal/domain"
	"github.com/spec-kit/repair-service/internal/worker"
)

// SLAHandler exposes manual control over the SLA sweep.
type SLAHandler struct {
	monitor *worker.SLAMonitor
}

// NewSLAHandler constructs handler.
func NewSLAHandler(monitor *worker.SLAMonitor) *SLAHandler {
	return &SLAHandler{monitor: monitor}
}

// RunSweep POST /v1/sla/sweep. Runs one sweep immediately, regardless of
// the periodic schedule. Returns per-case outcomes.
func (h *SLAHandler) RunSweep(c *fiber.Ctx) error {
	results, err := h.monitor.RunSweep(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sweepResponse(results)})
}

func sweepResponse(results []worker.MonitoringResult) dto.SweepResultResponse {
	resp := dto.SweepResultResponse{
		CasesChecked: len(results),
		Cases:        make([]dto.SweepCaseResult, 0, len(results)),
	}
	for _, result := range results {
		switch result.Status {
		case domain.ComplianceBreached:
			resp.Breached++
		case domain.ComplianceAtRisk:
			resp.AtRisk++
		}
		if result.Escalated {
			resp.Escalated++
		}
		if result.Error != "" {
			resp.Failures++
		}
		resp.Cases = append(resp.Cases, dto.SweepCaseResult{
			CaseID:          result.CaseID,
			Status:          string(result.Status),
			PenaltyAmount:   result.PenaltyAmount,
			Escalated:       result.Escalated,
			EscalationLevel: result.EscalationLevel,
			Error:           result.Error,
		})
	}
	return resp
}
