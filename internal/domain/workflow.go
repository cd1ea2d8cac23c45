package domain

import "time"

// WorkflowStatus enumerates orchestrator instance states.
type WorkflowStatus string

const (
	WorkflowStatusRunning   WorkflowStatus = "RUNNING"
	WorkflowStatusSuspended WorkflowStatus = "SUSPENDED"
	WorkflowStatusCompleted WorkflowStatus = "COMPLETED"
	WorkflowStatusFailed    WorkflowStatus = "FAILED"
)

// WorkflowStep identifies a step in the external repair workflow.
type WorkflowStep string

const (
	StepDeviceIntake      WorkflowStep = "device_intake"
	StepDeviceInspection  WorkflowStep = "device_inspection"
	StepDiagnosis         WorkflowStep = "diagnosis"
	StepQuotationApproval WorkflowStep = "quotation_approval"
	StepPartsProcurement  WorkflowStep = "parts_procurement"
	StepRepair            WorkflowStep = "repair"
	StepQualityCheck      WorkflowStep = "quality_check"
	StepCustomerPickup    WorkflowStep = "customer_pickup"
	StepCompleted         WorkflowStep = "completed"
	StepEscalationReview  WorkflowStep = "escalation_review"
)

// CaseStatusForStep maps a workflow step to the case status it drives.
// The second return is false when the step carries no status mapping.
func CaseStatusForStep(step WorkflowStep) (CaseStatus, bool) {
	switch step {
	case StepDeviceIntake:
		return CaseStatusAssigned, true
	case StepDeviceInspection, StepDiagnosis, StepRepair, StepQualityCheck:
		return CaseStatusInProgress, true
	case StepQuotationApproval:
		return CaseStatusWaitingApproval, true
	case StepPartsProcurement:
		return CaseStatusWaitingParts, true
	case StepCustomerPickup:
		return CaseStatusWaitingCustomer, true
	case StepCompleted:
		return CaseStatusCompleted, true
	case StepEscalationReview:
		return "", false
	default:
		return "", false
	}
}

// WorkflowInstance tracks the orchestrator's run for a case.
type WorkflowInstance struct {
	ID           string
	CaseID       string
	DefinitionID string
	Status       WorkflowStatus
	CurrentStep  WorkflowStep
	Context      map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsActive reports whether the instance can still receive events.
func (w *WorkflowInstance) IsActive() bool {
	return w.Status == WorkflowStatusRunning || w.Status == WorkflowStatusSuspended
}
