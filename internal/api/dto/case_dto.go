package dto

import (
	"time"

	"github.com/spec-kit/repair-service/internal/domain"
)

// CreateCaseRequest is the payload for opening a repair case.
type CreateCaseRequest struct {
	CustomerID   string   `json:"customer_id"`
	CustomerTier string   `json:"customer_tier"`
	ServiceType  string   `json:"service_type"`
	DeviceType   string   `json:"device_type"`
	Category     string   `json:"category"`
	Title        string   `json:"title"`
	Priority     string   `json:"priority"`
	Value        *float64 `json:"value"`
	Location     *string  `json:"location"`
}

// ChangeStatusRequest moves a case to a new status.
type ChangeStatusRequest struct {
	Status string `json:"status"`
}

// CompleteCaseRequest closes out a case with its resolution summary.
type CompleteCaseRequest struct {
	Resolution string `json:"resolution"`
}

// CaseResponse is the wire representation of a repair case.
type CaseResponse struct {
	ID                 string                   `json:"id"`
	ExternalKey        string                   `json:"external_key"`
	CustomerID         string                   `json:"customer_id"`
	CustomerTier       string                   `json:"customer_tier"`
	ServiceType        string                   `json:"service_type"`
	DeviceType         string                   `json:"device_type"`
	Category           string                   `json:"category"`
	Title              string                   `json:"title"`
	Priority           domain.CasePriority      `json:"priority"`
	Status             domain.CaseStatus        `json:"status"`
	Value              *float64                 `json:"value,omitempty"`
	Resolution         *string                  `json:"resolution,omitempty"`
	TechnicianID       *string                  `json:"technician_id,omitempty"`
	WorkflowInstanceID *string                  `json:"workflow_instance_id,omitempty"`
	EscalationLevel    int                      `json:"escalation_level"`
	SLAStatus          *domain.ComplianceStatus `json:"sla_status,omitempty"`
	SLADueAt           *time.Time               `json:"sla_due_at,omitempty"`
	CreatedAt          time.Time                `json:"created_at"`
	UpdatedAt          time.Time                `json:"updated_at"`
	AssignedAt         *time.Time               `json:"assigned_at,omitempty"`
	CompletedAt        *time.Time               `json:"completed_at,omitempty"`
}

// SubCheckResponse reports one SLA sub-target.
type SubCheckResponse struct {
	TargetHours float64  `json:"target_hours"`
	ActualHours *float64 `json:"actual_hours,omitempty"`
	Breached    bool     `json:"breached"`
}

// ComplianceResponse is the on-demand SLA evaluation for a case.
type ComplianceResponse struct {
	CaseID        string                  `json:"case_id"`
	Status        domain.ComplianceStatus `json:"status"`
	HoursElapsed  float64                 `json:"hours_elapsed"`
	Response      SubCheckResponse        `json:"response"`
	Resolution    SubCheckResponse        `json:"resolution"`
	PenaltyAmount float64                 `json:"penalty_amount"`
}

// EscalationResponse is one recorded escalation step.
type EscalationResponse struct {
	ID        string                `json:"id"`
	Level     int                   `json:"level"`
	Kind      domain.EscalationKind `json:"kind"`
	CreatedAt time.Time             `json:"created_at"`
}
