package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/repair-service/internal/domain"
)

// SLAConfigRepository resolves SLA configurations and their rule sets.
type SLAConfigRepository interface {
	GetByID(ctx context.Context, id string) (*domain.SLAConfiguration, error)
	// ResolveForCase matches by (customer tier, service type); falls back to
	// the tier default (service_type='*'), then the global default ('*','*').
	ResolveForCase(ctx context.Context, customerTier, serviceType string) (*domain.SLAConfiguration, error)
	GetByWorkflowConfig(ctx context.Context, workflowConfigID string) (*domain.SLAConfiguration, error)
}

type slaConfigRepository struct {
	pool *pgxpool.Pool
}

// NewSLAConfigRepository instantiates the repository.
func NewSLAConfigRepository(pool *pgxpool.Pool) SLAConfigRepository {
	return &slaConfigRepository{pool: pool}
}

const slaColumns = `id, name, customer_tier, service_type, response_target_hours, resolution_target_hours,
               workflow_config_id, active_flag, created_at, updated_at`

func (r *slaConfigRepository) GetByID(ctx context.Context, id string) (*domain.SLAConfiguration, error) {
	const query = `
        SELECT ` + slaColumns + `
        FROM sla_configurations WHERE id=$1`
	return r.fetchWithRules(ctx, query, id)
}

func (r *slaConfigRepository) ResolveForCase(ctx context.Context, customerTier, serviceType string) (*domain.SLAConfiguration, error) {
	const query = `
        SELECT ` + slaColumns + `
        FROM sla_configurations
        WHERE active_flag
          AND customer_tier IN ($1, '*')
          AND service_type IN ($2, '*')
        ORDER BY (customer_tier=$1) DESC, (service_type=$2) DESC
        LIMIT 1`
	return r.fetchWithRules(ctx, query, customerTier, serviceType)
}

func (r *slaConfigRepository) GetByWorkflowConfig(ctx context.Context, workflowConfigID string) (*domain.SLAConfiguration, error) {
	const query = `
        SELECT ` + slaColumns + `
        FROM sla_configurations WHERE workflow_config_id=$1 AND active_flag
        LIMIT 1`
	return r.fetchWithRules(ctx, query, workflowConfigID)
}

func (r *slaConfigRepository) fetchWithRules(ctx context.Context, query string, args ...any) (*domain.SLAConfiguration, error) {
	var cfg domain.SLAConfiguration
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&cfg.ID,
		&cfg.Name,
		&cfg.CustomerTier,
		&cfg.ServiceType,
		&cfg.ResponseTargetHours,
		&cfg.ResolutionTargetHours,
		&cfg.WorkflowConfigID,
		&cfg.Active,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := r.loadEscalationRules(ctx, &cfg); err != nil {
		return nil, err
	}
	if err := r.loadPenaltyRules(ctx, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *slaConfigRepository) loadEscalationRules(ctx context.Context, cfg *domain.SLAConfiguration) error {
	const query = `
        SELECT level, trigger_after_hours, kind, notify_roles
        FROM sla_escalation_rules
        WHERE sla_configuration_id=$1
        ORDER BY level ASC`
	rows, err := r.pool.Query(ctx, query, cfg.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var rule domain.EscalationRule
		if err := rows.Scan(&rule.Level, &rule.TriggerAfterHours, &rule.Kind, &rule.NotifyRoles); err != nil {
			return err
		}
		cfg.EscalationRules = append(cfg.EscalationRules, rule)
	}
	return rows.Err()
}

func (r *slaConfigRepository) loadPenaltyRules(ctx context.Context, cfg *domain.SLAConfiguration) error {
	const query = `
        SELECT applies_to, percent, cap, grace_hours
        FROM sla_penalty_rules
        WHERE sla_configuration_id=$1`
	rows, err := r.pool.Query(ctx, query, cfg.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var rule domain.PenaltyRule
		if err := rows.Scan(&rule.AppliesTo, &rule.Percent, &rule.Cap, &rule.GraceHours); err != nil {
			return err
		}
		cfg.PenaltyRules = append(cfg.PenaltyRules, rule)
	}
	return rows.Err()
}
