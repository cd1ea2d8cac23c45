package dto

import (
	"time"

	"github.com/spec-kit/repair-service/internal/domain"
)

// CompleteStepRequest marks a workflow step done on behalf of a case.
type CompleteStepRequest struct {
	Step   string         `json:"step"`
	Result map[string]any `json:"result"`
}

// WorkflowEventRequest is the orchestrator webhook payload. Type selects
// which of the optional fields apply: "step_ready" carries step and data,
// "instance_state" carries status.
type WorkflowEventRequest struct {
	Type       string         `json:"type"`
	InstanceID string         `json:"instance_id"`
	Step       string         `json:"step,omitempty"`
	Status     string         `json:"status,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// WorkflowInstanceResponse is the wire representation of a tracked
// orchestrator instance.
type WorkflowInstanceResponse struct {
	ID           string                `json:"id"`
	CaseID       string                `json:"case_id"`
	DefinitionID string                `json:"definition_id"`
	Status       domain.WorkflowStatus `json:"status"`
	CurrentStep  domain.WorkflowStep   `json:"current_step"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// SweepResultResponse summarizes one manually triggered SLA sweep.
type SweepResultResponse struct {
	CasesChecked int               `json:"cases_checked"`
	Breached     int               `json:"breached"`
	AtRisk       int               `json:"at_risk"`
	Escalated    int               `json:"escalated"`
	Failures     int               `json:"failures"`
	Cases        []SweepCaseResult `json:"cases,omitempty"`
}

// SweepCaseResult is the per-case outcome of a sweep.
type SweepCaseResult struct {
	CaseID          string  `json:"case_id"`
	Status          string  `json:"status,omitempty"`
	PenaltyAmount   float64 `json:"penalty_amount,omitempty"`
	Escalated       bool    `json:"escalated"`
	EscalationLevel int     `json:"escalation_level,omitempty"`
	Error           string  `json:"error,omitempty"`
}
