package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/repair-service/internal/config"
	"github.com/spec-kit/repair-service/internal/domain"
	"github.com/spec-kit/repair-service/internal/events"
	"github.com/spec-kit/repair-service/internal/observability"
	"github.com/spec-kit/repair-service/internal/persistence"
	"github.com/spec-kit/repair-service/internal/repository"
	"github.com/spec-kit/repair-service/internal/service"
)

const (
	sweepLockKey   = "sla:sweep:lock"
	sweepBatchSize = 500
)

// MonitoringResult is the per-case outcome of one sweep pass. Errors are
// carried as data; the sweep never raises them.
type MonitoringResult struct {
	CaseID          string
	Status          domain.ComplianceStatus
	PenaltyAmount   float64
	Escalated       bool
	EscalationLevel int
	Error           string
}

// SLAMonitor periodically evaluates active cases against their SLA targets
// and drives escalations.
type SLAMonitor struct {
	cases       repository.CaseRepository
	sla         *service.SLAService
	escalations *service.EscalationService
	workflow    *service.WorkflowService
	locker      *persistence.Redis
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	cfg         config.SLAConfig
	logger      *zap.Logger
	holderID    string
}

// MonitorDependencies bundles collaborators.
type MonitorDependencies struct {
	CaseRepo    repository.CaseRepository
	SLA         *service.SLAService
	Escalations *service.EscalationService
	Workflow    *service.WorkflowService
	Locker      *persistence.Redis
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Config      config.SLAConfig
	Logger      *zap.Logger
}

// NewSLAMonitor creates the coordinator.
func NewSLAMonitor(deps MonitorDependencies) *SLAMonitor {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SLAMonitor{
		cases:       deps.CaseRepo,
		sla:         deps.SLA,
		escalations: deps.Escalations,
		workflow:    deps.Workflow,
		locker:      deps.Locker,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		cfg:         deps.Config,
		logger:      logger,
		holderID:    uuid.NewString(),
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (m *SLAMonitor) Start(ctx context.Context) {
	if !m.cfg.MonitoringEnabled {
		m.logger.Info("SLA monitoring disabled")
		return
	}
	interval := m.cfg.SweepInterval()
	m.logger.Info("SLA monitor started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("SLA monitor stopped")
			return
		case <-ticker.C:
			if _, err := m.RunSweep(ctx); err != nil {
				m.logger.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// RunSweep executes one monitoring pass over all due cases. A failure on
// one case is isolated into its MonitoringResult; only infrastructure
// failures (listing, lock) surface as errors.
func (m *SLAMonitor) RunSweep(ctx context.Context) ([]MonitoringResult, error) {
	acquired, err := m.locker.AcquireLock(ctx, sweepLockKey, m.holderID, m.cfg.SweepInterval())
	if err != nil {
		m.logger.Warn("sweep lock unavailable, proceeding without it", zap.Error(err))
	} else if !acquired {
		m.logger.Debug("another instance holds the sweep lock")
		return nil, nil
	} else {
		defer func() {
			if err := m.locker.ReleaseLock(ctx, sweepLockKey, m.holderID); err != nil {
				m.logger.Warn("failed to release sweep lock", zap.Error(err))
			}
		}()
	}

	if m.metrics != nil {
		m.metrics.SweepRuns.Inc()
	}
	now := time.Now()
	due, err := m.cases.ListDueForSLACheck(ctx, now.Add(-m.cfg.SweepInterval()), sweepBatchSize)
	if err != nil {
		return nil, err
	}

	results := make([]MonitoringResult, 0, len(due))
	for i := range due {
		kase := due[i]
		result := m.checkCase(ctx, &kase, now)
		if result.Error != "" {
			if m.metrics != nil {
				m.metrics.SweepCaseFailures.Inc()
			}
			m.logger.Warn("case SLA check failed",
				zap.String("case_id", kase.ID),
				zap.String("error", result.Error))
		}
		results = append(results, result)
	}
	m.logger.Info("sweep complete", zap.Int("cases", len(results)))
	return results, nil
}

func (m *SLAMonitor) checkCase(ctx context.Context, kase *domain.Case, now time.Time) MonitoringResult {
	result := MonitoringResult{CaseID: kase.ID}

	slaCfg, err := m.sla.ResolveConfiguration(ctx, kase)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	compliance := m.sla.Evaluate(kase, slaCfg, now)
	result.Status = compliance.Status
	result.PenaltyAmount = compliance.PenaltyAmount
	result.EscalationLevel = kase.EscalationLevel
	if m.metrics != nil {
		m.metrics.CasesEvaluated.WithLabelValues(string(compliance.Status)).Inc()
	}

	// emit the breach event only on the first sweep that detects it
	if compliance.Status == domain.ComplianceBreached &&
		(kase.SLAStatus == nil || *kase.SLAStatus != domain.ComplianceBreached) {
		m.publishBreach(ctx, kase.ID, compliance)
	}

	if slaCfg != nil && compliance.Status != domain.ComplianceMet {
		decision, err := m.escalations.Check(ctx, kase.ID, slaCfg.EscalationRules, compliance.HoursElapsed, now)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		if decision.ShouldEscalate {
			esc, err := m.escalations.Escalate(ctx, kase, slaCfg, *decision.Rule, compliance.HoursElapsed)
			if err != nil {
				result.Error = err.Error()
				return result
			}
			result.Escalated = true
			result.EscalationLevel = esc.Level
			if m.metrics != nil {
				m.metrics.EscalationsFired.WithLabelValues(string(esc.Kind)).Inc()
			}
			// orchestrator trouble must not poison the sweep pass
			if err := m.workflow.HandleEscalation(ctx, esc); err != nil {
				m.logger.Warn("escalation hand-off to orchestrator failed",
					zap.String("case_id", kase.ID), zap.Error(err))
			}
		}
	}

	updated, err := m.cases.UpdateSLAState(ctx, kase.ID, kase.LastSLACheck, compliance.Status, result.EscalationLevel, now)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if !updated {
		m.logger.Debug("case checked concurrently, skipping state write",
			zap.String("case_id", kase.ID))
	}
	return result
}

func (m *SLAMonitor) publishBreach(ctx context.Context, caseID string, compliance *service.ComplianceResult) {
	if m.dispatcher == nil {
		return
	}
	_ = m.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventSLABreached,
		CaseID:    caseID,
		Timestamp: time.Now(),
		Payload: events.SLABreachedPayload{
			Status:        compliance.Status,
			PenaltyAmount: compliance.PenaltyAmount,
		},
	})
}
