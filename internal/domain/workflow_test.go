package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCaseStatusForStep(t *testing.T) {
	cases := []struct {
		step   WorkflowStep
		status CaseStatus
		mapped bool
	}{
		{StepDeviceIntake, CaseStatusAssigned, true},
		{StepDeviceInspection, CaseStatusInProgress, true},
		{StepDiagnosis, CaseStatusInProgress, true},
		{StepRepair, CaseStatusInProgress, true},
		{StepQualityCheck, CaseStatusInProgress, true},
		{StepQuotationApproval, CaseStatusWaitingApproval, true},
		{StepPartsProcurement, CaseStatusWaitingParts, true},
		{StepCustomerPickup, CaseStatusWaitingCustomer, true},
		{StepCompleted, CaseStatusCompleted, true},
		{StepEscalationReview, "", false},
		{WorkflowStep("unknown"), "", false},
	}
	for _, tc := range cases {
		status, ok := CaseStatusForStep(tc.step)
		assert.Equal(t, tc.mapped, ok, "step %s", tc.step)
		assert.Equal(t, tc.status, status, "step %s", tc.step)
	}
}

func TestWorkflowInstanceIsActive(t *testing.T) {
	assert.True(t, (&WorkflowInstance{Status: WorkflowStatusRunning}).IsActive())
	assert.True(t, (&WorkflowInstance{Status: WorkflowStatusSuspended}).IsActive())
	assert.False(t, (&WorkflowInstance{Status: WorkflowStatusCompleted}).IsActive())
	assert.False(t, (&WorkflowInstance{Status: WorkflowStatusFailed}).IsActive())
}
