package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/repair-service/internal/config"
	"github.com/spec-kit/repair-service/internal/domain"
	"github.com/spec-kit/repair-service/internal/events"
	"github.com/spec-kit/repair-service/internal/orchestrator"
	apperrors "github.com/spec-kit/repair-service/pkg/util/errorutil"
)

type workflowFixture struct {
	cases      *memCaseRepo
	workflows  *memWorkflowRepo
	slaConfigs *memSLAConfigRepo
	client     *fakeOrchestratorClient
	dispatcher *recordingDispatcher
	svc        *WorkflowService
}

func newWorkflowFixture(cfg config.WorkflowConfig) *workflowFixture {
	f := &workflowFixture{
		cases:      newMemCaseRepo(),
		workflows:  newMemWorkflowRepo(),
		slaConfigs: newMemSLAConfigRepo(),
		client:     &fakeOrchestratorClient{},
		dispatcher: &recordingDispatcher{},
	}
	f.svc = NewWorkflowService(WorkflowDependencies{
		CaseRepo:      f.cases,
		WorkflowRepo:  f.workflows,
		SLAConfigRepo: f.slaConfigs,
		Client:        f.client,
		Dispatcher:    f.dispatcher,
		Config:        cfg,
	})
	return f
}

func enabledConfig() config.WorkflowConfig {
	return config.WorkflowConfig{Enabled: true, RetryAttempts: 3, RetryBaseDelayMs: 1}
}

func (f *workflowFixture) seedCase(status domain.CaseStatus) *domain.Case {
	kase := &domain.Case{
		CustomerTier: "standard",
		ServiceType:  "repair",
		DeviceType:   "laptop",
		Category:     "screen",
		Title:        "broken screen",
		Priority:     domain.CasePriorityHigh,
		Status:       status,
	}
	_ = f.cases.Create(context.Background(), kase)
	return kase
}

func (f *workflowFixture) seedInstance(caseID string, status domain.WorkflowStatus) *domain.WorkflowInstance {
	instance := &domain.WorkflowInstance{
		ID:           "wf-" + caseID,
		CaseID:       caseID,
		DefinitionID: "repair_standard",
		Status:       status,
		CurrentStep:  domain.StepDeviceIntake,
	}
	_ = f.workflows.Save(context.Background(), instance)
	return instance
}

func TestStartWorkflowDisabled(t *testing.T) {
	f := newWorkflowFixture(config.WorkflowConfig{Enabled: false})

	instance, err := f.svc.StartWorkflow(context.Background(), "any")

	require.NoError(t, err)
	assert.Nil(t, instance)
	assert.Zero(t, f.client.selectCalls)
}

func TestStartWorkflowHappyPath(t *testing.T) {
	f := newWorkflowFixture(enabledConfig())
	kase := f.seedCase(domain.CaseStatusOpen)

	instance, err := f.svc.StartWorkflow(context.Background(), kase.ID)

	require.NoError(t, err)
	require.NotNil(t, instance)
	assert.Equal(t, domain.WorkflowStatusRunning, instance.Status)

	stored, err := f.cases.GetByID(context.Background(), kase.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.WorkflowInstanceID)
	assert.Equal(t, instance.ID, *stored.WorkflowInstanceID)

	started := f.dispatcher.byType(events.EventWorkflowStarted)
	require.Len(t, started, 1)
}

func TestStartWorkflowNoConfiguration(t *testing.T) {
	f := newWorkflowFixture(enabledConfig())
	kase := f.seedCase(domain.CaseStatusOpen)
	f.client.selectFn = func(ctx context.Context, criteria orchestrator.Criteria) (*orchestrator.WorkflowConfig, error) {
		return nil, nil
	}

	instance, err := f.svc.StartWorkflow(context.Background(), kase.ID)

	require.NoError(t, err)
	assert.Nil(t, instance)
	assert.Zero(t, f.client.startCalls)
}

func TestStartWorkflowStampsLinkedSLADue(t *testing.T) {
	f := newWorkflowFixture(enabledConfig())
	kase := f.seedCase(domain.CaseStatusOpen)
	f.slaConfigs.add(&domain.SLAConfiguration{
		ID:                    "sla-1",
		CustomerTier:          "standard",
		ServiceType:           "repair",
		ResolutionTargetHours: 24,
		WorkflowConfigID:      strPtr("wfc-1"),
	})

	_, err := f.svc.StartWorkflow(context.Background(), kase.ID)

	require.NoError(t, err)
	stored, err := f.cases.GetByID(context.Background(), kase.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.SLADueAt)
	assert.WithinDuration(t, stored.CreatedAt.Add(24*time.Hour), *stored.SLADueAt, time.Second)
}

func TestRetryExhaustionSurfacesUpstreamError(t *testing.T) {
	f := newWorkflowFixture(enabledConfig())
	kase := f.seedCase(domain.CaseStatusOpen)
	f.client.selectFn = func(ctx context.Context, criteria orchestrator.Criteria) (*orchestrator.WorkflowConfig, error) {
		return nil, errors.New("connection refused")
	}

	_, err := f.svc.StartWorkflow(context.Background(), kase.ID)

	require.Error(t, err)
	assert.True(t, apperrors.IsUpstream(err))
	assert.Equal(t, 3, f.client.selectCalls)
}

func TestRetrySucceedsMidway(t *testing.T) {
	f := newWorkflowFixture(enabledConfig())
	kase := f.seedCase(domain.CaseStatusOpen)
	attempt := 0
	f.client.selectFn = func(ctx context.Context, criteria orchestrator.Criteria) (*orchestrator.WorkflowConfig, error) {
		attempt++
		if attempt < 3 {
			return nil, errors.New("transient")
		}
		return &orchestrator.WorkflowConfig{ID: "wfc-1", DefinitionID: "repair_standard"}, nil
	}

	instance, err := f.svc.StartWorkflow(context.Background(), kase.ID)

	require.NoError(t, err)
	require.NotNil(t, instance)
	assert.Equal(t, 3, attempt)
}

func TestRetryAbortsOnContextCancel(t *testing.T) {
	f := newWorkflowFixture(config.WorkflowConfig{Enabled: true, RetryAttempts: 5, RetryBaseDelayMs: 10_000})
	kase := f.seedCase(domain.CaseStatusOpen)
	ctx, cancel := context.WithCancel(context.Background())
	f.client.selectFn = func(ctx context.Context, criteria orchestrator.Criteria) (*orchestrator.WorkflowConfig, error) {
		cancel()
		return nil, errors.New("down")
	}

	start := time.Now()
	_, err := f.svc.StartWorkflow(ctx, kase.ID)

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, f.client.selectCalls)
}

func TestCompleteStepNoActiveWorkflow(t *testing.T) {
	f := newWorkflowFixture(enabledConfig())
	kase := f.seedCase(domain.CaseStatusInProgress)

	err := f.svc.CompleteStep(context.Background(), CompleteStepRequest{CaseID: kase.ID, Step: domain.StepDiagnosis})

	require.Error(t, err)
	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, "CONFLICT", domainErr.Code)
}

func TestCompleteStepForwardsAndRecords(t *testing.T) {
	f := newWorkflowFixture(enabledConfig())
	kase := f.seedCase(domain.CaseStatusInProgress)
	instance := f.seedInstance(kase.ID, domain.WorkflowStatusRunning)

	err := f.svc.CompleteStep(context.Background(), CompleteStepRequest{
		CaseID: kase.ID,
		Step:   domain.StepDiagnosis,
		Result: map[string]any{"finding": "cracked panel"},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, f.client.stepCalls)
	stored, err := f.workflows.GetByID(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StepDiagnosis, stored.CurrentStep)
}

func TestHandleStepReadyDrivesStatus(t *testing.T) {
	f := newWorkflowFixture(enabledConfig())
	kase := f.seedCase(domain.CaseStatusAssigned)
	instance := f.seedInstance(kase.ID, domain.WorkflowStatusRunning)

	err := f.svc.HandleStepReady(context.Background(), StepReadyEvent{
		InstanceID: instance.ID,
		Step:       domain.StepDiagnosis,
	})

	require.NoError(t, err)
	stored, err := f.cases.GetByID(context.Background(), kase.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CaseStatusInProgress, stored.Status)

	changed := f.dispatcher.byType(events.EventCaseStatusChanged)
	require.Len(t, changed, 1)
}

func TestHandleStepReadyRejectsInvalidTransition(t *testing.T) {
	f := newWorkflowFixture(enabledConfig())
	kase := f.seedCase(domain.CaseStatusWaitingApproval)
	instance := f.seedInstance(kase.ID, domain.WorkflowStatusRunning)

	// parts procurement implies WAITING_PARTS, unreachable from
	// WAITING_APPROVAL
	err := f.svc.HandleStepReady(context.Background(), StepReadyEvent{
		InstanceID: instance.ID,
		Step:       domain.StepPartsProcurement,
	})

	require.Error(t, err)
	assert.Equal(t, "CONFLICT", apperrors.ToDomainError(err).Code)
}

func TestHandleStepReadyUnmappedStepOnlyAdvancesInstance(t *testing.T) {
	f := newWorkflowFixture(enabledConfig())
	kase := f.seedCase(domain.CaseStatusInProgress)
	instance := f.seedInstance(kase.ID, domain.WorkflowStatusRunning)

	err := f.svc.HandleStepReady(context.Background(), StepReadyEvent{
		InstanceID: instance.ID,
		Step:       domain.StepEscalationReview,
	})

	require.NoError(t, err)
	stored, err := f.cases.GetByID(context.Background(), kase.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CaseStatusInProgress, stored.Status)

	wf, err := f.workflows.GetByID(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StepEscalationReview, wf.CurrentStep)
}

func TestHandleStepReadyUnknownInstance(t *testing.T) {
	f := newWorkflowFixture(enabledConfig())

	err := f.svc.HandleStepReady(context.Background(), StepReadyEvent{InstanceID: "ghost", Step: domain.StepDiagnosis})

	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", apperrors.ToDomainError(err).Code)
}

func TestHandleInstanceStateCompletion(t *testing.T) {
	f := newWorkflowFixture(enabledConfig())
	kase := f.seedCase(domain.CaseStatusInProgress)
	instance := f.seedInstance(kase.ID, domain.WorkflowStatusRunning)

	err := f.svc.HandleInstanceState(context.Background(), InstanceStateEvent{
		InstanceID: instance.ID,
		Status:     domain.WorkflowStatusCompleted,
	})

	require.NoError(t, err)
	completed := f.dispatcher.byType(events.EventWorkflowCompleted)
	require.Len(t, completed, 1)
}

func TestHandleEscalationPostsToRunningInstance(t *testing.T) {
	f := newWorkflowFixture(enabledConfig())
	kase := f.seedCase(domain.CaseStatusInProgress)
	f.seedInstance(kase.ID, domain.WorkflowStatusRunning)

	err := f.svc.HandleEscalation(context.Background(), &EscalationContext{
		CaseID: kase.ID,
		Level:  2,
		Kind:   domain.EscalationCritical,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, f.client.eventCalls)
	assert.Equal(t, "sla_escalation", f.client.lastEventTyp)
	assert.Zero(t, f.client.startCalls)
}

func TestHandleEscalationStartsReviewWorkflow(t *testing.T) {
	f := newWorkflowFixture(enabledConfig())
	kase := f.seedCase(domain.CaseStatusOpen)

	err := f.svc.HandleEscalation(context.Background(), &EscalationContext{
		CaseID: kase.ID,
		Level:  1,
		Kind:   domain.EscalationWarning,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, f.client.startCalls)

	instance, err := f.workflows.GetActiveByCase(context.Background(), kase.ID)
	require.NoError(t, err)
	assert.Equal(t, "sla_escalation_review", instance.DefinitionID)
	assert.Equal(t, domain.StepEscalationReview, instance.CurrentStep)
}

func TestHandleCompletionRejectsTerminalCase(t *testing.T) {
	f := newWorkflowFixture(enabledConfig())
	kase := f.seedCase(domain.CaseStatusCompleted)

	err := f.svc.HandleCompletion(context.Background(), kase.ID, "done")

	require.Error(t, err)
	assert.Equal(t, "CONFLICT", apperrors.ToDomainError(err).Code)
	assert.Zero(t, f.client.stepCalls)
}

func TestHandleCompletionRejectsPendingApproval(t *testing.T) {
	f := newWorkflowFixture(enabledConfig())
	kase := f.seedCase(domain.CaseStatusWaitingApproval)

	err := f.svc.HandleCompletion(context.Background(), kase.ID, "done")

	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestHandleCompletionRequiresResolution(t *testing.T) {
	f := newWorkflowFixture(enabledConfig())
	kase := f.seedCase(domain.CaseStatusInProgress)

	err := f.svc.HandleCompletion(context.Background(), kase.ID, "   ")

	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestHandleCompletionClosesCaseAndWorkflow(t *testing.T) {
	f := newWorkflowFixture(enabledConfig())
	kase := f.seedCase(domain.CaseStatusInProgress)
	instance := f.seedInstance(kase.ID, domain.WorkflowStatusRunning)

	err := f.svc.HandleCompletion(context.Background(), kase.ID, "replaced panel")

	require.NoError(t, err)
	stored, err := f.cases.GetByID(context.Background(), kase.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CaseStatusCompleted, stored.Status)
	require.NotNil(t, stored.Resolution)
	assert.Equal(t, "replaced panel", *stored.Resolution)
	require.NotNil(t, stored.CompletedAt)

	wf, err := f.workflows.GetByID(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusCompleted, wf.Status)
	assert.Equal(t, 1, f.client.stepCalls)
}

func TestHandleCompletionWithoutWorkflow(t *testing.T) {
	f := newWorkflowFixture(enabledConfig())
	kase := f.seedCase(domain.CaseStatusInProgress)

	err := f.svc.HandleCompletion(context.Background(), kase.ID, "fixed")

	require.NoError(t, err)
	stored, err := f.cases.GetByID(context.Background(), kase.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CaseStatusCompleted, stored.Status)
	assert.Zero(t, f.client.stepCalls)
}

func TestHandleCaseStatusChangeSwallowsTransportFailure(t *testing.T) {
	f := newWorkflowFixture(enabledConfig())
	kase := f.seedCase(domain.CaseStatusInProgress)
	f.seedInstance(kase.ID, domain.WorkflowStatusRunning)
	f.client.postEventFn = func(ctx context.Context, instanceID, eventType string, data map[string]any) error {
		return errors.New("orchestrator down")
	}

	// must not panic or propagate
	f.svc.HandleCaseStatusChange(context.Background(), kase, domain.CaseStatusWaitingParts)

	assert.Equal(t, 3, f.client.eventCalls)
}
