package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/repair-service/internal/domain"
)

// CaseFilter captures case search parameters.
type CaseFilter struct {
	CustomerID   *string
	TechnicianID *string
	Statuses     []domain.CaseStatus
	Priorities   []domain.CasePriority
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	Limit        int
	Offset       int
}

// CaseRepository encapsulates repair-case persistence.
type CaseRepository interface {
	Create(ctx context.Context, kase *domain.Case) error
	Update(ctx context.Context, kase *domain.Case) error
	GetByID(ctx context.Context, id string) (*domain.Case, error)
	ListWithFilter(ctx context.Context, filter CaseFilter) ([]domain.Case, error)
	// ListDueForSLACheck returns non-terminal cases whose last SLA check is
	// null or older than the cutoff, priority-descending then oldest-first.
	ListDueForSLACheck(ctx context.Context, olderThan time.Time, limit int) ([]domain.Case, error)
	ListActiveByTechnician(ctx context.Context, technicianID string) ([]domain.Case, error)
	// AssignTechnician writes the technician onto the case only while the
	// technician's active-case count stays below maxActive. Returns
	// pgx.ErrNoRows when the guard or the case lookup fails.
	AssignTechnician(ctx context.Context, caseID, technicianID string, maxActive int) error
	// UpdateSLAState persists sweep results with an optimistic check on the
	// previous last_sla_check value. Returns false on a lost race.
	UpdateSLAState(ctx context.Context, caseID string, prevCheck *time.Time, status domain.ComplianceStatus, level int, checkedAt time.Time) (bool, error)
	SetWorkflowInstance(ctx context.Context, caseID, instanceID string) error
}

type caseRepository struct {
	pool *pgxpool.Pool
}

// NewCaseRepository instantiates repository.
func NewCaseRepository(pool *pgxpool.Pool) CaseRepository {
	return &caseRepository{pool: pool}
}

const caseColumns = `id, external_key, customer_id, customer_tier, service_type, device_type, category,
               title, priority, status, case_value, resolution, technician_id, workflow_instance_id,
               escalation_level, sla_status, sla_due_at, last_sla_check,
               created_at, updated_at, assigned_at, completed_at`

func (r *caseRepository) Create(ctx context.Context, kase *domain.Case) error {
	const query = `
        INSERT INTO repair_cases (external_key, customer_id, customer_tier, service_type, device_type, category,
            title, priority, status, case_value, sla_due_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		kase.ExternalKey,
		kase.CustomerID,
		kase.CustomerTier,
		kase.ServiceType,
		kase.DeviceType,
		kase.Category,
		kase.Title,
		kase.Priority,
		kase.Status,
		kase.Value,
		kase.SLADueAt,
	).Scan(&kase.ID, &kase.CreatedAt, &kase.UpdatedAt)
}

func (r *caseRepository) Update(ctx context.Context, kase *domain.Case) error {
	const query = `
        UPDATE repair_cases SET customer_tier=$1, service_type=$2, device_type=$3, category=$4, title=$5,
            priority=$6, status=$7, case_value=$8, resolution=$9, technician_id=$10, workflow_instance_id=$11,
            escalation_level=$12, sla_status=$13, sla_due_at=$14, assigned_at=$15, completed_at=$16, updated_at=NOW()
        WHERE id=$17`
	cmd, err := r.pool.Exec(ctx, query,
		kase.CustomerTier,
		kase.ServiceType,
		kase.DeviceType,
		kase.Category,
		kase.Title,
		kase.Priority,
		kase.Status,
		kase.Value,
		kase.Resolution,
		kase.TechnicianID,
		kase.WorkflowInstanceID,
		kase.EscalationLevel,
		kase.SLAStatus,
		kase.SLADueAt,
		kase.AssignedAt,
		kase.CompletedAt,
		kase.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *caseRepository) GetByID(ctx context.Context, id string) (*domain.Case, error) {
	query := fmt.Sprintf(`SELECT %s FROM repair_cases WHERE id=$1`, caseColumns)
	row := r.pool.QueryRow(ctx, query, id)
	return scanCase(row)
}

func (r *caseRepository) ListWithFilter(ctx context.Context, filter CaseFilter) ([]domain.Case, error) {
	base := fmt.Sprintf(`SELECT %s FROM repair_cases`, caseColumns)
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		clauses = append(clauses, fmt.Sprintf("customer_id=$%d", len(args)))
	}
	if filter.TechnicianID != nil {
		args = append(args, *filter.TechnicianID)
		clauses = append(clauses, fmt.Sprintf("technician_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCases(rows)
}

func (r *caseRepository) ListDueForSLACheck(ctx context.Context, olderThan time.Time, limit int) ([]domain.Case, error) {
	if limit <= 0 {
		limit = 500
	}
	query := fmt.Sprintf(`
        SELECT %s FROM repair_cases
        WHERE status NOT IN ('COMPLETED','CANCELLED')
          AND (last_sla_check IS NULL OR last_sla_check < $1)
        ORDER BY CASE priority
            WHEN 'URGENT' THEN 4
            WHEN 'HIGH' THEN 3
            WHEN 'MEDIUM' THEN 2
            ELSE 1
        END DESC, created_at ASC
        LIMIT %d`, caseColumns, limit)

	rows, err := r.pool.Query(ctx, query, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCases(rows)
}

func (r *caseRepository) ListActiveByTechnician(ctx context.Context, technicianID string) ([]domain.Case, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM repair_cases
        WHERE technician_id=$1 AND status NOT IN ('COMPLETED','CANCELLED')
        ORDER BY created_at DESC`, caseColumns)

	rows, err := r.pool.Query(ctx, query, technicianID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCases(rows)
}

func (r *caseRepository) AssignTechnician(ctx context.Context, caseID, technicianID string, maxActive int) error {
	const query = `
        UPDATE repair_cases
        SET technician_id=$2,
            status=CASE WHEN status='OPEN' THEN 'ASSIGNED' ELSE status END,
            assigned_at=COALESCE(assigned_at, NOW()),
            updated_at=NOW()
        WHERE id=$1
          AND (SELECT COUNT(*) FROM repair_cases rc
               WHERE rc.technician_id=$2 AND rc.status NOT IN ('COMPLETED','CANCELLED')) < $3`
	cmd, err := r.pool.Exec(ctx, query, caseID, technicianID, maxActive)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *caseRepository) UpdateSLAState(ctx context.Context, caseID string, prevCheck *time.Time, status domain.ComplianceStatus, level int, checkedAt time.Time) (bool, error) {
	const query = `
        UPDATE repair_cases
        SET last_sla_check=$2, sla_status=$3, escalation_level=GREATEST(escalation_level, $4), updated_at=NOW()
        WHERE id=$1 AND last_sla_check IS NOT DISTINCT FROM $5`
	cmd, err := r.pool.Exec(ctx, query, caseID, checkedAt, status, level, prevCheck)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *caseRepository) SetWorkflowInstance(ctx context.Context, caseID, instanceID string) error {
	const query = `UPDATE repair_cases SET workflow_instance_id=$2, updated_at=NOW() WHERE id=$1`
	cmd, err := r.pool.Exec(ctx, query, caseID, instanceID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanCase(row pgx.Row) (*domain.Case, error) {
	var kase domain.Case
	if err := row.Scan(
		&kase.ID,
		&kase.ExternalKey,
		&kase.CustomerID,
		&kase.CustomerTier,
		&kase.ServiceType,
		&kase.DeviceType,
		&kase.Category,
		&kase.Title,
		&kase.Priority,
		&kase.Status,
		&kase.Value,
		&kase.Resolution,
		&kase.TechnicianID,
		&kase.WorkflowInstanceID,
		&kase.EscalationLevel,
		&kase.SLAStatus,
		&kase.SLADueAt,
		&kase.LastSLACheck,
		&kase.CreatedAt,
		&kase.UpdatedAt,
		&kase.AssignedAt,
		&kase.CompletedAt,
	); err != nil {
		return nil, err
	}
	return &kase, nil
}

func scanCases(rows pgx.Rows) ([]domain.Case, error) {
	var result []domain.Case
	for rows.Next() {
		kase, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *kase)
	}
	return result, rows.Err()
}
