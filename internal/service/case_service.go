package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/repair-service/internal/domain"
	"github.com/spec-kit/repair-service/internal/events"
	"github.com/spec-kit/repair-service/internal/repository"
	apperrors "github.com/spec-kit/repair-service/pkg/util/errorutil"
)

// CaseService coordinates case lifecycle around the SLA core.
type CaseService struct {
	cases      repository.CaseRepository
	sla        *SLAService
	assignment *AssignmentService
	workflow   *WorkflowService
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// CaseDependencies bundles collaborators.
type CaseDependencies struct {
	CaseRepo   repository.CaseRepository
	SLA        *SLAService
	Assignment *AssignmentService
	Workflow   *WorkflowService
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// CaseCreateInput describes case creation payload.
type CaseCreateInput struct {
	CustomerID   string
	CustomerTier string
	ServiceType  string
	DeviceType   string
	Category     string
	Title        string
	Priority     domain.CasePriority
	Value        *float64
	Location     *string
}

// NewCaseService constructs the service.
func NewCaseService(deps CaseDependencies) *CaseService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CaseService{
		cases:      deps.CaseRepo,
		sla:        deps.SLA,
		assignment: deps.Assignment,
		workflow:   deps.Workflow,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// CreateCase creates a case, stamps its SLA due time, and triggers the
// creation-time orchestration: technician auto-assignment and workflow
// start. Both are best effort at this point; the case exists regardless.
func (s *CaseService) CreateCase(ctx context.Context, input CaseCreateInput) (*domain.Case, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, apperrors.NewValidationError("title required", nil)
	}
	if input.Priority == "" {
		input.Priority = domain.CasePriorityMedium
	}
	if input.CustomerTier == "" {
		input.CustomerTier = "standard"
	}

	kase := &domain.Case{
		ExternalKey:  generateCaseKey(),
		CustomerID:   input.CustomerID,
		CustomerTier: input.CustomerTier,
		ServiceType:  input.ServiceType,
		DeviceType:   input.DeviceType,
		Category:     input.Category,
		Title:        input.Title,
		Priority:     input.Priority,
		Status:       domain.CaseStatusOpen,
		Value:        input.Value,
	}
	if slaCfg, err := s.sla.ResolveConfiguration(ctx, kase); err == nil && slaCfg != nil {
		due := time.Now().Add(time.Duration(slaCfg.ResolutionTargetHours * float64(time.Hour)))
		kase.SLADueAt = &due
	}
	if err := s.cases.Create(ctx, kase); err != nil {
		return nil, apperrors.MapError(err)
	}

	if s.assignment != nil {
		if _, err := s.assignment.AutoAssign(ctx, kase.ID, AssignmentCriteria{
			DeviceType: input.DeviceType,
			Category:   input.Category,
			Priority:   input.Priority,
			Location:   input.Location,
		}); err != nil {
			s.logger.Warn("auto-assignment at creation failed",
				zap.String("case_id", kase.ID), zap.Error(err))
		}
	}
	if s.workflow != nil {
		if _, err := s.workflow.StartWorkflow(ctx, kase.ID); err != nil {
			s.logger.Warn("workflow start at creation failed",
				zap.String("case_id", kase.ID), zap.Error(err))
		}
	}

	created, err := s.cases.GetByID(ctx, kase.ID)
	if err != nil {
		return kase, nil
	}
	return created, nil
}

// GetCase fetches one case.
func (s *CaseService) GetCase(ctx context.Context, caseID string) (*domain.Case, error) {
	kase, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("case", map[string]any{"case_id": caseID})
		}
		return nil, apperrors.MapError(err)
	}
	return kase, nil
}

// ChangeStatus applies a validated status transition and forwards it to the
// orchestrator. Completion goes through the workflow client instead so its
// preconditions apply.
func (s *CaseService) ChangeStatus(ctx context.Context, caseID string, newStatus domain.CaseStatus) (*domain.Case, error) {
	if newStatus == domain.CaseStatusCompleted {
		return nil, apperrors.NewValidationError("use the completion operation to complete a case", nil)
	}
	kase, err := s.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !domain.IsValidTransition(kase.Status, newStatus) {
		return nil, apperrors.NewConflict("invalid status transition", map[string]any{
			"from": kase.Status,
			"to":   newStatus,
		})
	}
	oldStatus := kase.Status
	kase.Status = newStatus
	if newStatus == domain.CaseStatusCancelled {
		now := time.Now()
		kase.CompletedAt = &now
	}
	if err := s.cases.Update(ctx, kase); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishStatusChanged(ctx, kase.ID, oldStatus, newStatus)
	if s.workflow != nil {
		s.workflow.HandleCaseStatusChange(ctx, kase, newStatus)
	}
	return kase, nil
}

func (s *CaseService) publishStatusChanged(ctx context.Context, caseID string, oldStatus, newStatus domain.CaseStatus) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventCaseStatusChanged,
		CaseID:    caseID,
		Timestamp: time.Now(),
		Payload: events.CaseStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: newStatus,
		},
	})
}

func generateCaseKey() string {
	return "RPR-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
