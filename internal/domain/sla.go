package domain

import "time"

// ComplianceStatus summarizes how a case stands against its SLA targets.
type ComplianceStatus string

const (
	ComplianceMet      ComplianceStatus = "MET"
	ComplianceAtRisk   ComplianceStatus = "AT_RISK"
	ComplianceBreached ComplianceStatus = "BREACHED"
)

// EscalationKind grades the severity of an escalation rule.
type EscalationKind string

const (
	EscalationWarning  EscalationKind = "WARNING"
	EscalationCritical EscalationKind = "CRITICAL"
	EscalationBreach   EscalationKind = "BREACH"
)

// PenaltyScope selects which SLA sub-check a penalty rule applies to.
type PenaltyScope string

const (
	PenaltyScopeResponse   PenaltyScope = "RESPONSE"
	PenaltyScopeResolution PenaltyScope = "RESOLUTION"
)

// EscalationRule is one rung of an SLA escalation ladder. Levels within a
// configuration are strictly increasing.
type EscalationRule struct {
	Level             int
	TriggerAfterHours float64
	Kind              EscalationKind
	NotifyRoles       []string
}

// PenaltyRule describes a contractual penalty applied on SLA breach.
type PenaltyRule struct {
	AppliesTo  PenaltyScope
	Percent    float64
	Cap        *float64
	GraceHours float64
}

// SLAConfiguration couples time targets with escalation and penalty rules.
// Selected per case by (customer tier, service type) or by an explicit
// workflow-configuration link.
type SLAConfiguration struct {
	ID                    string
	Name                  string
	CustomerTier          string
	ServiceType           string
	ResponseTargetHours   float64
	ResolutionTargetHours float64
	WorkflowConfigID      *string
	EscalationRules       []EscalationRule
	PenaltyRules          []PenaltyRule
	Active                bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// EscalationRecord is an append-only audit entry; the case's current
// escalation level is the max level across its records.
type EscalationRecord struct {
	ID        string
	CaseID    string
	Level     int
	Kind      EscalationKind
	CreatedAt time.Time
}
