package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/repair-service/internal/domain"
)

// WorkflowRepository mirrors orchestrator instances locally so the service
// can answer "does this case have an active workflow" without a round trip.
type WorkflowRepository interface {
	Save(ctx context.Context, instance *domain.WorkflowInstance) error
	UpdateState(ctx context.Context, instanceID string, status domain.WorkflowStatus, currentStep domain.WorkflowStep) error
	GetByID(ctx context.Context, id string) (*domain.WorkflowInstance, error)
	GetActiveByCase(ctx context.Context, caseID string) (*domain.WorkflowInstance, error)
}

type workflowRepository struct {
	pool *pgxpool.Pool
}

// NewWorkflowRepository instantiates the repository.
func NewWorkflowRepository(pool *pgxpool.Pool) WorkflowRepository {
	return &workflowRepository{pool: pool}
}

func (r *workflowRepository) Save(ctx context.Context, instance *domain.WorkflowInstance) error {
	const query = `
        INSERT INTO workflow_instances (id, case_id, definition_id, status, current_step, context)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (id) DO UPDATE
        SET status=EXCLUDED.status, current_step=EXCLUDED.current_step, context=EXCLUDED.context, updated_at=NOW()
        RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		instance.ID,
		instance.CaseID,
		instance.DefinitionID,
		instance.Status,
		instance.CurrentStep,
		instance.Context,
	).Scan(&instance.CreatedAt, &instance.UpdatedAt)
}

func (r *workflowRepository) UpdateState(ctx context.Context, instanceID string, status domain.WorkflowStatus, currentStep domain.WorkflowStep) error {
	const query = `
        UPDATE workflow_instances SET status=$2, current_step=$3, updated_at=NOW()
        WHERE id=$1`
	cmd, err := r.pool.Exec(ctx, query, instanceID, status, currentStep)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *workflowRepository) GetByID(ctx context.Context, id string) (*domain.WorkflowInstance, error) {
	const query = `
        SELECT id, case_id, definition_id, status, current_step, context, created_at, updated_at
        FROM workflow_instances WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *workflowRepository) GetActiveByCase(ctx context.Context, caseID string) (*domain.WorkflowInstance, error) {
	const query = `
        SELECT id, case_id, definition_id, status, current_step, context, created_at, updated_at
        FROM workflow_instances
        WHERE case_id=$1 AND status IN ('RUNNING','SUSPENDED')
        ORDER BY created_at DESC LIMIT 1`
	return r.fetchSingle(ctx, query, caseID)
}

func (r *workflowRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.WorkflowInstance, error) {
	var instance domain.WorkflowInstance
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&instance.ID,
		&instance.CaseID,
		&instance.DefinitionID,
		&instance.Status,
		&instance.CurrentStep,
		&instance.Context,
		&instance.CreatedAt,
		&instance.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &instance, nil
}
