package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/repair-service/internal/domain"
)

// TechnicianFilter defines query params for technician listing. Workload is
// always computed from active case counts at read time.
type TechnicianFilter struct {
	Active    *bool
	SkillTags []string
	Limit     int
	Offset    int
}

// TechnicianRepository handles persistence for technicians.
type TechnicianRepository interface {
	Create(ctx context.Context, tech *domain.Technician) error
	Update(ctx context.Context, tech *domain.Technician) error
	GetByID(ctx context.Context, id string) (*domain.Technician, error)
	List(ctx context.Context, filter TechnicianFilter) ([]domain.Technician, error)
}

type technicianRepository struct {
	pool *pgxpool.Pool
}

// NewTechnicianRepository instantiates the repository.
func NewTechnicianRepository(pool *pgxpool.Pool) TechnicianRepository {
	return &technicianRepository{pool: pool}
}

const technicianColumns = `t.id, t.name, t.email, t.active_flag, t.skills, t.location, t.created_at, t.updated_at,
        (SELECT COUNT(*) FROM repair_cases rc
         WHERE rc.technician_id = t.id AND rc.status NOT IN ('COMPLETED','CANCELLED')) AS workload`

func (r *technicianRepository) Create(ctx context.Context, tech *domain.Technician) error {
	const query = `
        INSERT INTO technicians (name, email, active_flag, skills, location)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		tech.Name,
		tech.Email,
		tech.Active,
		tech.Skills,
		tech.Location,
	).Scan(&tech.ID, &tech.CreatedAt, &tech.UpdatedAt)
}

func (r *technicianRepository) Update(ctx context.Context, tech *domain.Technician) error {
	const query = `
        UPDATE technicians
        SET name=$1, email=$2, active_flag=$3, skills=$4, location=$5, updated_at=NOW()
        WHERE id=$6`
	cmd, err := r.pool.Exec(ctx, query,
		tech.Name,
		tech.Email,
		tech.Active,
		tech.Skills,
		tech.Location,
		tech.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *technicianRepository) GetByID(ctx context.Context, id string) (*domain.Technician, error) {
	query := fmt.Sprintf(`SELECT %s FROM technicians t WHERE t.id=$1`, technicianColumns)
	var tech domain.Technician
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&tech.ID,
		&tech.Name,
		&tech.Email,
		&tech.Active,
		&tech.Skills,
		&tech.Location,
		&tech.CreatedAt,
		&tech.UpdatedAt,
		&tech.Workload,
	); err != nil {
		return nil, err
	}
	return &tech, nil
}

func (r *technicianRepository) List(ctx context.Context, filter TechnicianFilter) ([]domain.Technician, error) {
	query := fmt.Sprintf(`SELECT %s FROM technicians t`, technicianColumns)
	args := []any{}
	clauses := []string{}

	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("t.active_flag=$%d", len(args)))
	}
	if len(filter.SkillTags) > 0 {
		args = append(args, filter.SkillTags)
		clauses = append(clauses, fmt.Sprintf("t.skills && $%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	query += " ORDER BY t.id ASC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Technician
	for rows.Next() {
		var tech domain.Technician
		if err := rows.Scan(
			&tech.ID,
			&tech.Name,
			&tech.Email,
			&tech.Active,
			&tech.Skills,
			&tech.Location,
			&tech.CreatedAt,
			&tech.UpdatedAt,
			&tech.Workload,
		); err != nil {
			return nil, err
		}
		result = append(result, tech)
	}
	return result, rows.Err()
}
