package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/repair-service/internal/domain"
	"github.com/spec-kit/repair-service/internal/events"
	apperrors "github.com/spec-kit/repair-service/pkg/util/errorutil"
)

func newCaseFixture() (*CaseService, *memCaseRepo, *memSLAConfigRepo, *recordingDispatcher) {
	cases := newMemCaseRepo()
	slaConfigs := newMemSLAConfigRepo()
	dispatcher := &recordingDispatcher{}
	sla := NewSLAService(SLADependencies{SLAConfigRepo: slaConfigs})
	svc := NewCaseService(CaseDependencies{
		CaseRepo:   cases,
		SLA:        sla,
		Dispatcher: dispatcher,
	})
	return svc, cases, slaConfigs, dispatcher
}

func TestCreateCaseDefaults(t *testing.T) {
	svc, _, _, _ := newCaseFixture()

	kase, err := svc.CreateCase(context.Background(), CaseCreateInput{
		CustomerID: "cust-1",
		Title:      "screen flicker",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.CaseStatusOpen, kase.Status)
	assert.Equal(t, domain.CasePriorityMedium, kase.Priority)
	assert.Equal(t, "standard", kase.CustomerTier)
	assert.NotEmpty(t, kase.ID)
	assert.NotEmpty(t, kase.ExternalKey)
	assert.Nil(t, kase.SLADueAt)
}

func TestCreateCaseRequiresTitle(t *testing.T) {
	svc, _, _, _ := newCaseFixture()

	_, err := svc.CreateCase(context.Background(), CaseCreateInput{CustomerID: "cust-1", Title: "  "})

	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestCreateCaseStampsSLADue(t *testing.T) {
	svc, _, slaConfigs, _ := newCaseFixture()
	slaConfigs.add(&domain.SLAConfiguration{
		ID:                    "sla-gold",
		CustomerTier:          "gold",
		ServiceType:           "repair",
		ResolutionTargetHours: 12,
	})

	kase, err := svc.CreateCase(context.Background(), CaseCreateInput{
		CustomerID:   "cust-1",
		CustomerTier: "gold",
		ServiceType:  "repair",
		Title:        "battery swap",
	})

	require.NoError(t, err)
	require.NotNil(t, kase.SLADueAt)
	assert.WithinDuration(t, time.Now().Add(12*time.Hour), *kase.SLADueAt, time.Minute)
}

func TestChangeStatusValidTransition(t *testing.T) {
	svc, cases, _, dispatcher := newCaseFixture()
	kase := &domain.Case{Title: "t", Status: domain.CaseStatusOpen, Priority: domain.CasePriorityLow}
	require.NoError(t, cases.Create(context.Background(), kase))

	updated, err := svc.ChangeStatus(context.Background(), kase.ID, domain.CaseStatusAssigned)

	require.NoError(t, err)
	assert.Equal(t, domain.CaseStatusAssigned, updated.Status)
	assert.Len(t, dispatcher.byType(events.EventCaseStatusChanged), 1)
}

func TestChangeStatusRejectsInvalidTransition(t *testing.T) {
	svc, cases, _, _ := newCaseFixture()
	kase := &domain.Case{Title: "t", Status: domain.CaseStatusOpen, Priority: domain.CasePriorityLow}
	require.NoError(t, cases.Create(context.Background(), kase))

	_, err := svc.ChangeStatus(context.Background(), kase.ID, domain.CaseStatusWaitingParts)

	require.Error(t, err)
	assert.Equal(t, "CONFLICT", apperrors.ToDomainError(err).Code)
}

func TestChangeStatusRejectsDirectCompletion(t *testing.T) {
	svc, cases, _, _ := newCaseFixture()
	kase := &domain.Case{Title: "t", Status: domain.CaseStatusInProgress, Priority: domain.CasePriorityLow}
	require.NoError(t, cases.Create(context.Background(), kase))

	_, err := svc.ChangeStatus(context.Background(), kase.ID, domain.CaseStatusCompleted)

	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestChangeStatusCancellationStampsClosure(t *testing.T) {
	svc, cases, _, _ := newCaseFixture()
	kase := &domain.Case{Title: "t", Status: domain.CaseStatusOpen, Priority: domain.CasePriorityLow}
	require.NoError(t, cases.Create(context.Background(), kase))

	updated, err := svc.ChangeStatus(context.Background(), kase.ID, domain.CaseStatusCancelled)

	require.NoError(t, err)
	assert.Equal(t, domain.CaseStatusCancelled, updated.Status)
	require.NotNil(t, updated.CompletedAt)
}

func TestGetCaseNotFound(t *testing.T) {
	svc, _, _, _ := newCaseFixture()

	_, err := svc.GetCase(context.Background(), "missing")

	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", apperrors.ToDomainError(err).Code)
}
