package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rouleplus/autoecole-core/internal/model"
	"github.com/rouleplus/autoecole-core/internal/repository/base"
)

type GroupRepository interface {
	Create(ctx context.Context, group *model.Group) error
	GetByID(ctx context.Context, id int64) (*model.Group, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*model.Group, error)
	AdjustMemberCount(ctx context.Context, id int64, delta int) error
}

type PgxGroupRepository struct {
	db base.Querier
}

func NewPgxGroupRepository(db base.Querier) *PgxGroupRepository {
	return &PgxGroupRepository{db: db}
}

const groupColumns = `id, name, instructor_id, min_rank, max_rank, member_count, created_at`

func scanGroup(row pgx.Row) (*model.Group, error) {
	var group model.Group
	err := row.Scan(
		&group.ID,
		&group.Name,
		&group.InstructorID,
		&group.MinRank,
		&group.MaxRank,
		&group.MemberCount,
		&group.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// Create создаёт новую группу
func (r *PgxGroupRepository) Create(ctx context.Context, group *model.Group) error {
	query := `
		INSERT INTO groups (name, instructor_id, min_rank, max_rank, member_count)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(
		ctx, query,
		group.Name,
		group.InstructorID,
		group.MinRank,
		group.MaxRank,
		group.MemberCount,
	).Scan(&group.ID, &group.CreatedAt)

	if err != nil {
		return fmt.Errorf("create group: %w", err)
	}

	return nil
}

// GetByID получает группу по ID, nil если не найдена
func (r *PgxGroupRepository) GetByID(ctx context.Context, id int64) (*model.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE id = $1`

	group, err := scanGroup(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get group by id: %w", err)
	}

	return group, nil
}

// GetByIDForUpdate получает группу с блокировкой строки
func (r *PgxGroupRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE id = $1 FOR UPDATE`

	group, err := scanGroup(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get group for update: %w", err)
	}

	return group, nil
}

// AdjustMemberCount атомарно меняет счётчик участников группы
func (r *PgxGroupRepository) AdjustMemberCount(ctx context.Context, id int64, delta int) error {
	query := `UPDATE groups SET member_count = member_count + $1 WHERE id = $2`

	tag, err := r.db.Exec(ctx, query, delta, id)
	if err != nil {
		return fmt.Errorf("adjust member count: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("group not found")
	}

	return nil
}
