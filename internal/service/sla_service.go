package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/repair-service/internal/config"
	"github.com/spec-kit/repair-service/internal/domain"
	"github.com/spec-kit/repair-service/internal/repository"
	apperrors "github.com/spec-kit/repair-service/pkg/util/errorutil"
)

// atRiskRatio is the elapsed/target fraction beyond which a sub-check is
// considered at risk.
const atRiskRatio = 0.8

// SubCheck reports one SLA dimension (response or resolution).
type SubCheck struct {
	TargetHours float64
	// ActualHours is set once the sub-check has concluded (responded or
	// completed); nil while still pending.
	ActualHours *float64
	Breached    bool
}

// Ratio is consumed-time over target: actual when known, elapsed otherwise.
// Zero targets yield 0 so a vacuous configuration never flags risk.
func (s SubCheck) Ratio(hoursElapsed float64) float64 {
	if s.TargetHours <= 0 {
		return 0
	}
	if s.ActualHours != nil {
		return *s.ActualHours / s.TargetHours
	}
	return hoursElapsed / s.TargetHours
}

// ComplianceResult is the evaluator's verdict for one case.
type ComplianceResult struct {
	CaseID        string
	Status        domain.ComplianceStatus
	HoursElapsed  float64
	Response      SubCheck
	Resolution    SubCheck
	PenaltyAmount float64
}

// SLAService computes SLA compliance for repair cases.
type SLAService struct {
	slaConfigs repository.SLAConfigRepository
	cfg        config.SLAConfig
	logger     *zap.Logger
}

// SLADependencies bundles collaborators.
type SLADependencies struct {
	SLAConfigRepo repository.SLAConfigRepository
	Config        config.SLAConfig
	Logger        *zap.Logger
}

// NewSLAService creates the service.
func NewSLAService(deps SLADependencies) *SLAService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SLAService{
		slaConfigs: deps.SLAConfigRepo,
		cfg:        deps.Config,
		logger:     logger,
	}
}

// EvaluateCompliance resolves the case's SLA configuration and evaluates it.
// A missing configuration is a documented edge case, not an error: the
// result is a vacuous "met" with zero targets.
func (s *SLAService) EvaluateCompliance(ctx context.Context, kase *domain.Case) (*ComplianceResult, error) {
	slaCfg, err := s.ResolveConfiguration(ctx, kase)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return s.Evaluate(kase, slaCfg, time.Now()), nil
}

// ResolveConfiguration finds the SLA configuration for a case by
// (customer tier, service type) with tier and global fallbacks. Returns nil
// when nothing matches.
func (s *SLAService) ResolveConfiguration(ctx context.Context, kase *domain.Case) (*domain.SLAConfiguration, error) {
	cfg, err := s.slaConfigs.ResolveForCase(ctx, kase.CustomerTier, kase.ServiceType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Debug("no SLA configuration for case",
				zap.String("case_id", kase.ID),
				zap.String("customer_tier", kase.CustomerTier),
				zap.String("service_type", kase.ServiceType))
			return nil, nil
		}
		return nil, err
	}
	return cfg, nil
}

// Evaluate is a pure function of the case snapshot, its SLA configuration
// and the evaluation instant.
func (s *SLAService) Evaluate(kase *domain.Case, slaCfg *domain.SLAConfiguration, now time.Time) *ComplianceResult {
	result := &ComplianceResult{
		CaseID: kase.ID,
		Status: domain.ComplianceMet,
	}
	if slaCfg == nil {
		return result
	}

	hoursElapsed := now.Sub(kase.CreatedAt).Hours()
	result.HoursElapsed = hoursElapsed

	result.Response = s.checkResponse(kase, slaCfg, hoursElapsed)
	result.Resolution = s.checkResolution(kase, slaCfg, hoursElapsed)

	switch {
	case result.Response.Breached || result.Resolution.Breached:
		result.Status = domain.ComplianceBreached
	case result.Response.Ratio(hoursElapsed) > atRiskRatio || result.Resolution.Ratio(hoursElapsed) > atRiskRatio:
		result.Status = domain.ComplianceAtRisk
	}

	if s.cfg.PenaltyEnabled {
		result.PenaltyAmount = s.computePenalty(kase, slaCfg, result, hoursElapsed)
	}
	return result
}

func (s *SLAService) checkResponse(kase *domain.Case, slaCfg *domain.SLAConfiguration, hoursElapsed float64) SubCheck {
	check := SubCheck{TargetHours: slaCfg.ResponseTargetHours}
	if check.TargetHours <= 0 {
		return check
	}
	if kase.Responded() {
		ref := kase.UpdatedAt
		if kase.AssignedAt != nil {
			ref = *kase.AssignedAt
		}
		actual := ref.Sub(kase.CreatedAt).Hours()
		check.ActualHours = &actual
		check.Breached = actual > check.TargetHours
		return check
	}
	check.Breached = hoursElapsed > check.TargetHours
	return check
}

func (s *SLAService) checkResolution(kase *domain.Case, slaCfg *domain.SLAConfiguration, hoursElapsed float64) SubCheck {
	check := SubCheck{TargetHours: slaCfg.ResolutionTargetHours}
	if check.TargetHours <= 0 {
		return check
	}
	if kase.Status == domain.CaseStatusCompleted && kase.CompletedAt != nil {
		actual := kase.CompletedAt.Sub(kase.CreatedAt).Hours()
		check.ActualHours = &actual
		check.Breached = actual > check.TargetHours
		return check
	}
	check.Breached = hoursElapsed > check.TargetHours
	return check
}

func (s *SLAService) computePenalty(kase *domain.Case, slaCfg *domain.SLAConfiguration, result *ComplianceResult, hoursElapsed float64) float64 {
	caseValue := s.cfg.DefaultCaseValue
	if kase.Value != nil {
		caseValue = *kase.Value
	}

	total := 0.0
	for _, rule := range slaCfg.PenaltyRules {
		var check SubCheck
		switch rule.AppliesTo {
		case domain.PenaltyScopeResponse:
			check = result.Response
		case domain.PenaltyScopeResolution:
			check = result.Resolution
		default:
			continue
		}
		if !check.Breached {
			continue
		}
		consumed := hoursElapsed
		if check.ActualHours != nil {
			consumed = *check.ActualHours
		}
		breachHours := consumed - check.TargetHours
		if breachHours <= rule.GraceHours {
			continue
		}
		amount := caseValue * rule.Percent / 100
		if rule.Cap != nil && amount > *rule.Cap {
			amount = *rule.Cap
		}
		total += amount
	}
	return total
}
