package domain

import "time"

// CaseStatus enumerates lifecycle states for repair cases.
type CaseStatus string

const (
	CaseStatusOpen            CaseStatus = "OPEN"
	CaseStatusAssigned        CaseStatus = "ASSIGNED"
	CaseStatusInProgress      CaseStatus = "IN_PROGRESS"
	CaseStatusWaitingParts    CaseStatus = "WAITING_PARTS"
	CaseStatusWaitingCustomer CaseStatus = "WAITING_CUSTOMER"
	CaseStatusWaitingApproval CaseStatus = "WAITING_APPROVAL"
	CaseStatusCompleted       CaseStatus = "COMPLETED"
	CaseStatusCancelled       CaseStatus = "CANCELLED"
)

// CasePriority enumerates SLA urgency.
type CasePriority string

const (
	CasePriorityLow    CasePriority = "LOW"
	CasePriorityMedium CasePriority = "MEDIUM"
	CasePriorityHigh   CasePriority = "HIGH"
	CasePriorityUrgent CasePriority = "URGENT"
)

// PriorityRank orders priorities for sweep and rebalancing (urgent highest).
func PriorityRank(p CasePriority) int {
	switch p {
	case CasePriorityUrgent:
		return 4
	case CasePriorityHigh:
		return 3
	case CasePriorityMedium:
		return 2
	case CasePriorityLow:
		return 1
	default:
		return 0
	}
}

// Case is the aggregate root for a repair request.
type Case struct {
	ID                 string
	ExternalKey        string
	CustomerID         string
	CustomerTier       string
	ServiceType        string
	DeviceType         string
	Category           string
	Title              string
	Priority           CasePriority
	Status             CaseStatus
	Value              *float64
	Resolution         *string
	TechnicianID       *string
	WorkflowInstanceID *string
	EscalationLevel    int
	SLAStatus          *ComplianceStatus
	SLADueAt           *time.Time
	LastSLACheck       *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
	AssignedAt         *time.Time
	CompletedAt        *time.Time
}

// IsTerminal reports whether the case has reached a final status.
func (c *Case) IsTerminal() bool {
	return c.Status == CaseStatusCompleted || c.Status == CaseStatusCancelled
}

// Responded reports whether the case has left its initial status.
func (c *Case) Responded() bool {
	return c.Status != CaseStatusOpen
}

// ActiveStatuses are statuses that count toward a technician's workload.
var ActiveStatuses = []CaseStatus{
	CaseStatusOpen,
	CaseStatusAssigned,
	CaseStatusInProgress,
	CaseStatusWaitingParts,
	CaseStatusWaitingCustomer,
	CaseStatusWaitingApproval,
}

var allowedTransitions = map[CaseStatus][]CaseStatus{
	CaseStatusOpen:            {CaseStatusAssigned, CaseStatusInProgress, CaseStatusCancelled},
	CaseStatusAssigned:        {CaseStatusInProgress, CaseStatusCancelled},
	CaseStatusInProgress:      {CaseStatusWaitingParts, CaseStatusWaitingCustomer, CaseStatusWaitingApproval, CaseStatusCompleted, CaseStatusCancelled},
	CaseStatusWaitingParts:    {CaseStatusInProgress, CaseStatusCancelled},
	CaseStatusWaitingCustomer: {CaseStatusInProgress, CaseStatusCompleted, CaseStatusCancelled},
	CaseStatusWaitingApproval: {CaseStatusInProgress, CaseStatusCancelled},
	CaseStatusCompleted:       {},
	CaseStatusCancelled:       {},
}

// IsValidTransition reports whether a status change is allowed.
func IsValidTransition(current, next CaseStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
