package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/repair-service/internal/config"
	"github.com/spec-kit/repair-service/internal/domain"
	"github.com/spec-kit/repair-service/internal/events"
	"github.com/spec-kit/repair-service/internal/repository"
	apperrors "github.com/spec-kit/repair-service/pkg/util/errorutil"
)

// EscalationDecision is the tracker's verdict for one case at one instant.
type EscalationDecision struct {
	ShouldEscalate bool
	Rule           *domain.EscalationRule
	NextCheckAt    time.Time
}

// EscalationContext is handed to the workflow client and notification sink
// when a level fires.
type EscalationContext struct {
	CaseID       string
	Status       domain.CaseStatus
	Priority     domain.CasePriority
	Level        int
	Kind         domain.EscalationKind
	HoursOverdue float64
	TechnicianID *string
	NotifyRoles  []string
}

// EscalationService walks a case up its SLA escalation ladder.
type EscalationService struct {
	escalations repository.EscalationRepository
	dispatcher  events.Dispatcher
	cfg         config.SLAConfig
	logger      *zap.Logger
}

// EscalationDependencies bundles collaborators.
type EscalationDependencies struct {
	EscalationRepo repository.EscalationRepository
	Dispatcher     events.Dispatcher
	Config         config.SLAConfig
	Logger         *zap.Logger
}

// NewEscalationService creates the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EscalationService{
		escalations: deps.EscalationRepo,
		dispatcher:  deps.Dispatcher,
		cfg:         deps.Config,
		logger:      logger,
	}
}

// Check scans the ladder for the first rule above the case's current level
// whose trigger time has elapsed. Levels never re-fire and are never skipped
// backward: anything at or below the recorded max level is "still breached",
// not a new escalation.
func (e *EscalationService) Check(ctx context.Context, caseID string, rules []domain.EscalationRule, hoursElapsed float64, now time.Time) (*EscalationDecision, error) {
	decision := &EscalationDecision{NextCheckAt: now.Add(e.cfg.SweepInterval())}
	if !e.cfg.EscalationEnabled || len(rules) == 0 {
		return decision, nil
	}

	lastLevel, err := e.escalations.MaxLevel(ctx, caseID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	decision.Rule = NextRuleToFire(rules, lastLevel, hoursElapsed)
	decision.ShouldEscalate = decision.Rule != nil
	return decision, nil
}

// NextRuleToFire picks the first rule, in ascending level order, strictly
// above lastLevel and whose trigger has elapsed. Pure.
func NextRuleToFire(rules []domain.EscalationRule, lastLevel int, hoursElapsed float64) *domain.EscalationRule {
	for i := range rules {
		rule := rules[i]
		if rule.Level <= lastLevel {
			continue
		}
		if hoursElapsed >= rule.TriggerAfterHours {
			return &rule
		}
	}
	return nil
}

// Escalate appends the audit record, computes the overdue figure and emits
// the escalation context for downstream fan-out.
func (e *EscalationService) Escalate(ctx context.Context, kase *domain.Case, slaCfg *domain.SLAConfiguration, rule domain.EscalationRule, hoursElapsed float64) (*EscalationContext, error) {
	record := &domain.EscalationRecord{
		CaseID: kase.ID,
		Level:  rule.Level,
		Kind:   rule.Kind,
	}
	if err := e.escalations.Append(ctx, record); err != nil {
		return nil, apperrors.MapError(err)
	}

	hoursOverdue := hoursElapsed - minTarget(slaCfg)
	if hoursOverdue < 0 {
		hoursOverdue = 0
	}

	esc := &EscalationContext{
		CaseID:       kase.ID,
		Status:       kase.Status,
		Priority:     kase.Priority,
		Level:        rule.Level,
		Kind:         rule.Kind,
		HoursOverdue: hoursOverdue,
		TechnicianID: kase.TechnicianID,
		NotifyRoles:  rule.NotifyRoles,
	}

	e.logger.Info("case escalated",
		zap.String("case_id", kase.ID),
		zap.Int("level", rule.Level),
		zap.String("kind", string(rule.Kind)),
		zap.Float64("hours_overdue", hoursOverdue))

	e.publishEscalation(ctx, esc)
	return esc, nil
}

// History returns the recorded ladder for a case, oldest first.
func (e *EscalationService) History(ctx context.Context, caseID string) ([]domain.EscalationRecord, error) {
	records, err := e.escalations.ListByCase(ctx, caseID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return records, nil
}

func minTarget(slaCfg *domain.SLAConfiguration) float64 {
	if slaCfg == nil {
		return 0
	}
	min := slaCfg.ResponseTargetHours
	if slaCfg.ResolutionTargetHours < min {
		min = slaCfg.ResolutionTargetHours
	}
	return min
}

func (e *EscalationService) publishEscalation(ctx context.Context, esc *EscalationContext) {
	if e.dispatcher == nil {
		return
	}
	_ = e.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventCaseEscalated,
		CaseID:    esc.CaseID,
		Timestamp: time.Now(),
		Payload: events.CaseEscalatedPayload{
			Level:        esc.Level,
			Kind:         esc.Kind,
			HoursOverdue: esc.HoursOverdue,
			TechnicianID: esc.TechnicianID,
			Priority:     esc.Priority,
			NotifyRoles:  esc.NotifyRoles,
		},
	})
}
