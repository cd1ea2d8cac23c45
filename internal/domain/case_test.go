package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsValidTransition(t *testing.T) {
	cases := []struct {
		from    CaseStatus
		to      CaseStatus
		allowed bool
	}{
		{CaseStatusOpen, CaseStatusAssigned, true},
		{CaseStatusOpen, CaseStatusInProgress, true},
		{CaseStatusOpen, CaseStatusCancelled, true},
		{CaseStatusOpen, CaseStatusCompleted, false},
		{CaseStatusOpen, CaseStatusWaitingParts, false},
		{CaseStatusAssigned, CaseStatusInProgress, true},
		{CaseStatusAssigned, CaseStatusOpen, false},
		{CaseStatusInProgress, CaseStatusWaitingParts, true},
		{CaseStatusInProgress, CaseStatusWaitingCustomer, true},
		{CaseStatusInProgress, CaseStatusWaitingApproval, true},
		{CaseStatusInProgress, CaseStatusCompleted, true},
		{CaseStatusWaitingParts, CaseStatusInProgress, true},
		{CaseStatusWaitingParts, CaseStatusCompleted, false},
		{CaseStatusWaitingCustomer, CaseStatusCompleted, true},
		{CaseStatusWaitingApproval, CaseStatusInProgress, true},
		{CaseStatusWaitingApproval, CaseStatusWaitingParts, false},
		{CaseStatusCompleted, CaseStatusInProgress, false},
		{CaseStatusCancelled, CaseStatusOpen, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, IsValidTransition(tc.from, tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestPriorityRank(t *testing.T) {
	assert.Equal(t, 4, PriorityRank(CasePriorityUrgent))
	assert.Equal(t, 3, PriorityRank(CasePriorityHigh))
	assert.Equal(t, 2, PriorityRank(CasePriorityMedium))
	assert.Equal(t, 1, PriorityRank(CasePriorityLow))
	assert.Equal(t, 0, PriorityRank(CasePriority("bogus")))
}

func TestCaseLifecycleHelpers(t *testing.T) {
	now := time.Now()
	open := &Case{Status: CaseStatusOpen, CreatedAt: now}
	assert.False(t, open.IsTerminal())
	assert.False(t, open.Responded())

	assigned := &Case{Status: CaseStatusAssigned}
	assert.False(t, assigned.IsTerminal())
	assert.True(t, assigned.Responded())

	completed := &Case{Status: CaseStatusCompleted}
	assert.True(t, completed.IsTerminal())

	cancelled := &Case{Status: CaseStatusCancelled}
	assert.True(t, cancelled.IsTerminal())
}

func TestHasSkill(t *testing.T) {
	tech := &Technician{Skills: []string{"laptop", "screen_repair"}}
	assert.True(t, tech.HasSkill("laptop"))
	assert.False(t, tech.HasSkill("soldering"))
	assert.False(t, tech.HasSkill(""))
}
