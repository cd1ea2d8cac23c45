package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/repair-service/internal/domain"
)

// EscalationRepository stores the append-only escalation audit trail.
type EscalationRepository interface {
	Append(ctx context.Context, record *domain.EscalationRecord) error
	ListByCase(ctx context.Context, caseID string) ([]domain.EscalationRecord, error)
	// MaxLevel returns the highest recorded level for a case, 0 when none.
	MaxLevel(ctx context.Context, caseID string) (int, error)
}

type escalationRepository struct {
	pool *pgxpool.Pool
}

// NewEscalationRepository builds repository.
func NewEscalationRepository(pool *pgxpool.Pool) EscalationRepository {
	return &escalationRepository{pool: pool}
}

func (r *escalationRepository) Append(ctx context.Context, record *domain.EscalationRecord) error {
	const query = `
        INSERT INTO escalation_records (case_id, level, kind)
        VALUES ($1,$2,$3)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		record.CaseID,
		record.Level,
		record.Kind,
	).Scan(&record.ID, &record.CreatedAt)
}

func (r *escalationRepository) ListByCase(ctx context.Context, caseID string) ([]domain.EscalationRecord, error) {
	const query = `
        SELECT id, case_id, level, kind, created_at
        FROM escalation_records WHERE case_id=$1 ORDER BY level ASC`
	rows, err := r.pool.Query(ctx, query, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.EscalationRecord
	for rows.Next() {
		var record domain.EscalationRecord
		if err := rows.Scan(
			&record.ID,
			&record.CaseID,
			&record.Level,
			&record.Kind,
			&record.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	return result, rows.Err()
}

func (r *escalationRepository) MaxLevel(ctx context.Context, caseID string) (int, error) {
	const query = `SELECT COALESCE(MAX(level), 0) FROM escalation_records WHERE case_id=$1`
	var level int
	if err := r.pool.QueryRow(ctx, query, caseID).Scan(&level); err != nil {
		return 0, err
	}
	return level, nil
}
