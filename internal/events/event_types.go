package events

import (
	"time"

	"github.com/spec-kit/repair-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventCaseAssigned      EventType = "case_assigned"
	EventCaseStatusChanged EventType = "case_status_changed"
	EventCaseEscalated     EventType = "case_escalated"
	EventSLABreached       EventType = "sla_breached"
	EventWorkflowStarted   EventType = "workflow_started"
	EventWorkflowCompleted EventType = "workflow_completed"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	CaseID    string      `json:"case_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// CaseAssignedPayload payload.
type CaseAssignedPayload struct {
	TechnicianID string  `json:"technician_id"`
	Score        float64 `json:"score"`
	Auto         bool    `json:"auto"`
}

// CaseStatusChangedPayload payload.
type CaseStatusChangedPayload struct {
	OldStatus domain.CaseStatus   `json:"old_status"`
	NewStatus domain.CaseStatus   `json:"new_status"`
	Step      domain.WorkflowStep `json:"step,omitempty"`
}

// CaseEscalatedPayload payload.
type CaseEscalatedPayload struct {
	Level        int                   `json:"level"`
	Kind         domain.EscalationKind `json:"kind"`
	HoursOverdue float64               `json:"hours_overdue"`
	TechnicianID *string               `json:"technician_id,omitempty"`
	Priority     domain.CasePriority   `json:"priority"`
	NotifyRoles  []string              `json:"notify_roles,omitempty"`
}

// SLABreachedPayload payload.
type SLABreachedPayload struct {
	Status        domain.ComplianceStatus `json:"status"`
	PenaltyAmount float64                 `json:"penalty_amount"`
}

// WorkflowStartedPayload payload.
type WorkflowStartedPayload struct {
	InstanceID   string `json:"instance_id"`
	DefinitionID string `json:"definition_id"`
}

// WorkflowCompletedPayload payload.
type WorkflowCompletedPayload struct {
	InstanceID string                `json:"instance_id"`
	Status     domain.WorkflowStatus `json:"status"`
}

// OpaquePayload carries forward-compatible fields for event types whose
// schema is owned elsewhere.
type OpaquePayload map[string]any
