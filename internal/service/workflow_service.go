package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/repair-service/internal/config"
	"github.com/spec-kit/repair-service/internal/domain"
	"github.com/spec-kit/repair-service/internal/events"
	"github.com/spec-kit/repair-service/internal/observability"
	"github.com/spec-kit/repair-service/internal/orchestrator"
	"github.com/spec-kit/repair-service/internal/repository"
	apperrors "github.com/spec-kit/repair-service/pkg/util/errorutil"
)

// escalationDefinitionID is the orchestrator process started for escalations
// on cases that have no running workflow of their own.
const escalationDefinitionID = "sla_escalation_review"

// CompleteStepRequest forwards a finished step to the orchestrator.
type CompleteStepRequest struct {
	CaseID string
	Step   domain.WorkflowStep
	Result map[string]any
}

// StepReadyEvent is pushed by the orchestrator when a step becomes active.
type StepReadyEvent struct {
	InstanceID string
	Step       domain.WorkflowStep
	Data       map[string]any
}

// InstanceStateEvent is pushed by the orchestrator on terminal transitions.
type InstanceStateEvent struct {
	InstanceID string
	Status     domain.WorkflowStatus
}

// WorkflowService reconciles case state with the external orchestrator.
// Every outbound call runs under the bounded retry policy; the caller's
// context aborts the loop early.
type WorkflowService struct {
	cases      repository.CaseRepository
	workflows  repository.WorkflowRepository
	slaConfigs repository.SLAConfigRepository
	assignment *AssignmentService
	client     orchestrator.Client
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	cfg        config.WorkflowConfig
	logger     *zap.Logger
}

// WorkflowDependencies bundles collaborators.
type WorkflowDependencies struct {
	CaseRepo      repository.CaseRepository
	WorkflowRepo  repository.WorkflowRepository
	SLAConfigRepo repository.SLAConfigRepository
	Assignment    *AssignmentService
	Client        orchestrator.Client
	Dispatcher    events.Dispatcher
	Metrics       *observability.Metrics
	Config        config.WorkflowConfig
	Logger        *zap.Logger
}

// NewWorkflowService creates the service.
func NewWorkflowService(deps WorkflowDependencies) *WorkflowService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowService{
		cases:      deps.CaseRepo,
		workflows:  deps.WorkflowRepo,
		slaConfigs: deps.SLAConfigRepo,
		assignment: deps.Assignment,
		client:     deps.Client,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		cfg:        deps.Config,
		logger:     logger,
	}
}

// withRetry runs fn up to the configured attempt count, sleeping
// baseDelay × attemptNumber between attempts. Context cancellation aborts
// the loop immediately; exhaustion surfaces the final transport error as an
// upstream failure.
func (s *WorkflowService) withRetry(ctx context.Context, operation string, fn func(context.Context) error) error {
	attempts := s.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			if s.metrics != nil {
				s.metrics.OrchestratorCalls.WithLabelValues(operation, "ok").Inc()
			}
			return nil
		}
		if attempt == attempts {
			break
		}
		s.logger.Warn("orchestrator call failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		if s.metrics != nil {
			s.metrics.OrchestratorRetry.Inc()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.RetryBaseDelay() * time.Duration(attempt)):
		}
	}
	if s.metrics != nil {
		s.metrics.OrchestratorCalls.WithLabelValues(operation, "error").Inc()
	}
	return apperrors.NewUpstreamError(
		fmt.Sprintf("orchestrator %s failed after %d attempts", operation, attempts), lastErr)
}

// StartWorkflow resolves a workflow configuration for the case and starts an
// instance. Returns (nil, nil) when integration is disabled or no
// configuration matches; the case is left without a workflow reference.
func (s *WorkflowService) StartWorkflow(ctx context.Context, caseID string) (*domain.WorkflowInstance, error) {
	if !s.cfg.Enabled {
		return nil, nil
	}
	kase, err := s.getCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	criteria := orchestrator.Criteria{
		DeviceType:   kase.DeviceType,
		ServiceType:  kase.ServiceType,
		CustomerTier: kase.CustomerTier,
		Priority:     kase.Priority,
	}
	var workflowCfg *orchestrator.WorkflowConfig
	err = s.withRetry(ctx, "select_configuration", func(ctx context.Context) error {
		var callErr error
		workflowCfg, callErr = s.client.SelectConfiguration(ctx, criteria)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	if workflowCfg == nil {
		s.logger.Info("no workflow configuration for case", zap.String("case_id", caseID))
		return nil, nil
	}

	var remote *orchestrator.Instance
	err = s.withRetry(ctx, "start_instance", func(ctx context.Context) error {
		var callErr error
		remote, callErr = s.client.StartInstance(ctx, workflowCfg.DefinitionID, kase.ID, map[string]any{
			"case_id":     kase.ID,
			"priority":    kase.Priority,
			"device_type": kase.DeviceType,
		})
		return callErr
	})
	if err != nil {
		return nil, err
	}

	instance := &domain.WorkflowInstance{
		ID:           remote.ID,
		CaseID:       kase.ID,
		DefinitionID: remote.DefinitionID,
		Status:       remote.Status,
		CurrentStep:  remote.CurrentStep,
		Context:      remote.Context,
	}
	if instance.Status == "" {
		instance.Status = domain.WorkflowStatusRunning
	}
	if err := s.workflows.Save(ctx, instance); err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := s.cases.SetWorkflowInstance(ctx, kase.ID, instance.ID); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.applyLinkedSLADue(ctx, kase, workflowCfg.ID)

	s.publish(ctx, events.EventWorkflowStarted, kase.ID, events.WorkflowStartedPayload{
		InstanceID:   instance.ID,
		DefinitionID: instance.DefinitionID,
	})
	return instance, nil
}

// applyLinkedSLADue stamps the case's SLA due time from the SLA
// configuration linked to the resolved workflow configuration, when one
// exists. Best effort.
func (s *WorkflowService) applyLinkedSLADue(ctx context.Context, kase *domain.Case, workflowConfigID string) {
	slaCfg, err := s.slaConfigs.GetByWorkflowConfig(ctx, workflowConfigID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			s.logger.Warn("linked SLA lookup failed", zap.String("case_id", kase.ID), zap.Error(err))
		}
		return
	}
	due := kase.CreatedAt.Add(time.Duration(slaCfg.ResolutionTargetHours * float64(time.Hour)))
	kase.SLADueAt = &due
	if err := s.cases.Update(ctx, kase); err != nil {
		s.logger.Warn("failed to stamp SLA due time", zap.String("case_id", kase.ID), zap.Error(err))
	}
}

// CompleteStep forwards a finished step for the case's running instance.
func (s *WorkflowService) CompleteStep(ctx context.Context, req CompleteStepRequest) error {
	instance, err := s.workflows.GetActiveByCase(ctx, req.CaseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewConflict("no active workflow for case", map[string]any{"case_id": req.CaseID})
		}
		return apperrors.MapError(err)
	}
	err = s.withRetry(ctx, "complete_step", func(ctx context.Context) error {
		return s.client.CompleteStep(ctx, instance.ID, req.Step, req.Result)
	})
	if err != nil {
		return err
	}
	if err := s.workflows.UpdateState(ctx, instance.ID, instance.Status, req.Step); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

// HandleStepReady applies the orchestrator's step activation: the mapped
// case-status transition plus per-step business actions.
func (s *WorkflowService) HandleStepReady(ctx context.Context, event StepReadyEvent) error {
	instance, err := s.workflows.GetByID(ctx, event.InstanceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("workflow instance", map[string]any{"instance_id": event.InstanceID})
		}
		return apperrors.MapError(err)
	}
	kase, err := s.getCase(ctx, instance.CaseID)
	if err != nil {
		return err
	}

	if status, ok := domain.CaseStatusForStep(event.Step); ok && status != kase.Status {
		if !domain.IsValidTransition(kase.Status, status) {
			return apperrors.NewConflict("step implies invalid status transition", map[string]any{
				"case_id": kase.ID,
				"from":    kase.Status,
				"to":      status,
				"step":    event.Step,
			})
		}
		oldStatus := kase.Status
		kase.Status = status
		if status == domain.CaseStatusCompleted {
			now := time.Now()
			kase.CompletedAt = &now
		}
		if err := s.cases.Update(ctx, kase); err != nil {
			return apperrors.MapError(err)
		}
		s.publish(ctx, events.EventCaseStatusChanged, kase.ID, events.CaseStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: status,
			Step:      event.Step,
		})
	}

	s.runStepActions(ctx, kase, event.Step)

	instanceStatus := instance.Status
	if event.Step == domain.StepCompleted {
		instanceStatus = domain.WorkflowStatusCompleted
	}
	if err := s.workflows.UpdateState(ctx, instance.ID, instanceStatus, event.Step); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

// runStepActions fires the per-step business actions. Failures here are
// logged, not raised: the step acknowledgement must not depend on them.
func (s *WorkflowService) runStepActions(ctx context.Context, kase *domain.Case, step domain.WorkflowStep) {
	switch step {
	case domain.StepDeviceInspection:
		if kase.TechnicianID != nil || s.assignment == nil {
			return
		}
		tech, err := s.assignment.AutoAssign(ctx, kase.ID, AssignmentCriteria{
			DeviceType: kase.DeviceType,
			Category:   kase.Category,
			Priority:   kase.Priority,
		})
		if err != nil {
			s.logger.Warn("auto-assignment on inspection failed",
				zap.String("case_id", kase.ID), zap.Error(err))
			return
		}
		if tech == nil {
			s.logger.Info("inspection ready but no technician available",
				zap.String("case_id", kase.ID))
		}
	case domain.StepCustomerPickup:
		s.publish(ctx, events.EventCaseStatusChanged, kase.ID, events.OpaquePayload{
			"action": "notify_customer_pickup",
		})
	}
}

// HandleInstanceState records a terminal orchestrator transition.
func (s *WorkflowService) HandleInstanceState(ctx context.Context, event InstanceStateEvent) error {
	instance, err := s.workflows.GetByID(ctx, event.InstanceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("workflow instance", map[string]any{"instance_id": event.InstanceID})
		}
		return apperrors.MapError(err)
	}
	if err := s.workflows.UpdateState(ctx, instance.ID, event.Status, instance.CurrentStep); err != nil {
		return apperrors.MapError(err)
	}
	if event.Status == domain.WorkflowStatusCompleted || event.Status == domain.WorkflowStatusFailed {
		s.publish(ctx, events.EventWorkflowCompleted, instance.CaseID, events.WorkflowCompletedPayload{
			InstanceID: instance.ID,
			Status:     event.Status,
		})
	}
	return nil
}

// HandleCaseStatusChange forwards a case-side status change to the
// orchestrator. Transport failures are logged and swallowed: the case
// update has already happened and eventual consistency is acceptable in
// this direction.
func (s *WorkflowService) HandleCaseStatusChange(ctx context.Context, kase *domain.Case, newStatus domain.CaseStatus) {
	if !s.cfg.Enabled {
		return
	}
	instance, err := s.workflows.GetActiveByCase(ctx, kase.ID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			s.logger.Warn("workflow lookup failed", zap.String("case_id", kase.ID), zap.Error(err))
		}
		return
	}
	err = s.withRetry(ctx, "post_status_event", func(ctx context.Context) error {
		return s.client.PostEvent(ctx, instance.ID, "case_status_changed", map[string]any{
			"case_id": kase.ID,
			"status":  newStatus,
		})
	})
	if err != nil {
		s.logger.Warn("failed to forward status change to orchestrator",
			zap.String("case_id", kase.ID), zap.Error(err))
	}
}

// HandleEscalation notifies the case's running instance of an escalation,
// or starts a dedicated escalation workflow when none exists.
func (s *WorkflowService) HandleEscalation(ctx context.Context, esc *EscalationContext) error {
	if !s.cfg.Enabled {
		return nil
	}
	instance, err := s.workflows.GetActiveByCase(ctx, esc.CaseID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return apperrors.MapError(err)
	}

	data := map[string]any{
		"case_id":       esc.CaseID,
		"case_status":   esc.Status,
		"breach_kind":   esc.Kind,
		"level":         esc.Level,
		"hours_overdue": esc.HoursOverdue,
		"priority":      esc.Priority,
	}
	if esc.TechnicianID != nil {
		data["technician_id"] = *esc.TechnicianID
	}

	if instance != nil {
		return s.withRetry(ctx, "post_escalation_event", func(ctx context.Context) error {
			return s.client.PostEvent(ctx, instance.ID, "sla_escalation", data)
		})
	}

	var remote *orchestrator.Instance
	err = s.withRetry(ctx, "start_escalation_instance", func(ctx context.Context) error {
		var callErr error
		remote, callErr = s.client.StartInstance(ctx, escalationDefinitionID, esc.CaseID, data)
		return callErr
	})
	if err != nil {
		return err
	}
	escInstance := &domain.WorkflowInstance{
		ID:           remote.ID,
		CaseID:       esc.CaseID,
		DefinitionID: escalationDefinitionID,
		Status:       domain.WorkflowStatusRunning,
		CurrentStep:  domain.StepEscalationReview,
		Context:      data,
	}
	if err := s.workflows.Save(ctx, escInstance); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

// HandleCompletion validates completion preconditions, forwards the
// completion to the orchestrator and performs cleanup. Validation failures
// reject before any orchestrator call.
func (s *WorkflowService) HandleCompletion(ctx context.Context, caseID, resolution string) error {
	kase, err := s.getCase(ctx, caseID)
	if err != nil {
		return err
	}
	if kase.IsTerminal() {
		return apperrors.NewConflict("case already closed", map[string]any{"case_id": caseID})
	}
	if kase.Status == domain.CaseStatusWaitingApproval {
		return apperrors.NewValidationError("case has a pending approval", map[string]any{"case_id": caseID})
	}
	if strings.TrimSpace(resolution) == "" {
		if kase.Resolution == nil || strings.TrimSpace(*kase.Resolution) == "" {
			return apperrors.NewValidationError("resolution is required to complete a case", map[string]any{"case_id": caseID})
		}
		resolution = *kase.Resolution
	}

	instance, err := s.workflows.GetActiveByCase(ctx, caseID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return apperrors.MapError(err)
	}
	if instance != nil && s.cfg.Enabled {
		err = s.withRetry(ctx, "complete_workflow", func(ctx context.Context) error {
			return s.client.CompleteStep(ctx, instance.ID, domain.StepCompleted, map[string]any{
				"resolution": resolution,
			})
		})
		if err != nil {
			return err
		}
		if err := s.workflows.UpdateState(ctx, instance.ID, domain.WorkflowStatusCompleted, domain.StepCompleted); err != nil {
			return apperrors.MapError(err)
		}
	}

	now := time.Now()
	oldStatus := kase.Status
	kase.Status = domain.CaseStatusCompleted
	kase.CompletedAt = &now
	kase.Resolution = &resolution
	if err := s.cases.Update(ctx, kase); err != nil {
		return apperrors.MapError(err)
	}

	s.publish(ctx, events.EventCaseStatusChanged, kase.ID, events.CaseStatusChangedPayload{
		OldStatus: oldStatus,
		NewStatus: domain.CaseStatusCompleted,
	})
	if instance != nil {
		s.publish(ctx, events.EventWorkflowCompleted, kase.ID, events.WorkflowCompletedPayload{
			InstanceID: instance.ID,
			Status:     domain.WorkflowStatusCompleted,
		})
	}
	return nil
}

func (s *WorkflowService) getCase(ctx context.Context, caseID string) (*domain.Case, error) {
	kase, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("case", map[string]any{"case_id": caseID})
		}
		return nil, apperrors.MapError(err)
	}
	return kase, nil
}

func (s *WorkflowService) publish(ctx context.Context, eventType events.EventType, caseID string, payload any) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		CaseID:    caseID,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
