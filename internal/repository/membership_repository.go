package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rouleplus/autoecole-core/internal/model"
	"github.com/rouleplus/autoecole-core/internal/repository/base"
)

type MembershipRepository interface {
	Create(ctx context.Context, m *model.GroupMembership) error
	GetActiveByStudent(ctx context.Context, studentID int64) (*model.GroupMembership, error)
	GetActiveByStudentForUpdate(ctx context.Context, studentID int64) (*model.GroupMembership, error)
	ListActiveByGroup(ctx context.Context, groupID int64) ([]*model.GroupMembership, error)
	ListActiveByGroupForUpdate(ctx context.Context, groupID int64) ([]*model.GroupMembership, error)
	Update(ctx context.Context, m *model.GroupMembership) error
}

type PgxMembershipRepository struct {
	db base.Querier
}

func NewPgxMembershipRepository(db base.Querier) *PgxMembershipRepository {
	return &PgxMembershipRepository{db: db}
}

const membershipColumns = `id, student_id, group_id, phase, phase_updated_at, phase_updated_by, phase_notes, consecutive_absences, rank, status, created_at, updated_at`

func scanMembership(row pgx.Row) (*model.GroupMembership, error) {
	var m model.GroupMembership
	err := row.Scan(
		&m.ID,
		&m.StudentID,
		&m.GroupID,
		&m.Phase,
		&m.PhaseUpdatedAt,
		&m.PhaseUpdatedBy,
		&m.PhaseNotes,
		&m.ConsecutiveAbsences,
		&m.Rank,
		&m.Status,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func collectMemberships(rows pgx.Rows) ([]*model.GroupMembership, error) {
	defer rows.Close()

	var members []*model.GroupMembership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

// Create создаёт членство.
// Частичный unique-индекс по student_id WHERE status = 'active'
// гарантирует не более одного активного членства на ученика.
func (r *PgxMembershipRepository) Create(ctx context.Context, m *model.GroupMembership) error {
	query := `
		INSERT INTO group_memberships (student_id, group_id, phase, phase_updated_at, phase_updated_by, phase_notes, consecutive_absences, rank, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		m.StudentID,
		m.GroupID,
		m.Phase,
		m.PhaseUpdatedAt,
		m.PhaseUpdatedBy,
		m.PhaseNotes,
		m.ConsecutiveAbsences,
		m.Rank,
		m.Status,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create membership: %w", err)
	}

	return nil
}

// GetActiveByStudent получает активное членство ученика, nil если нет
func (r *PgxMembershipRepository) GetActiveByStudent(ctx context.Context, studentID int64) (*model.GroupMembership, error) {
	query := `
		SELECT ` + membershipColumns + `
		FROM group_memberships
		WHERE student_id = $1 AND status = 'active'
	`

	m, err := scanMembership(r.db.QueryRow(ctx, query, studentID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active membership: %w", err)
	}

	return m, nil
}

// GetActiveByStudentForUpdate то же самое с блокировкой строки
func (r *PgxMembershipRepository) GetActiveByStudentForUpdate(ctx context.Context, studentID int64) (*model.GroupMembership, error) {
	query := `
		SELECT ` + membershipColumns + `
		FROM group_memberships
		WHERE student_id = $1 AND status = 'active'
		FOR UPDATE
	`

	m, err := scanMembership(r.db.QueryRow(ctx, query, studentID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active membership for update: %w", err)
	}

	return m, nil
}

// ListActiveByGroup получает активных участников группы
func (r *PgxMembershipRepository) ListActiveByGroup(ctx context.Context, groupID int64) ([]*model.GroupMembership, error) {
	query := `
		SELECT ` + membershipColumns + `
		FROM group_memberships
		WHERE group_id = $1 AND status = 'active'
		ORDER BY student_id
	`

	rows, err := r.db.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("list active memberships: %w", err)
	}

	return collectMemberships(rows)
}

// ListActiveByGroupForUpdate блокирует участников на время отметки посещаемости
func (r *PgxMembershipRepository) ListActiveByGroupForUpdate(ctx context.Context, groupID int64) ([]*model.GroupMembership, error) {
	query := `
		SELECT ` + membershipColumns + `
		FROM group_memberships
		WHERE group_id = $1 AND status = 'active'
		ORDER BY student_id
		FOR UPDATE
	`

	rows, err := r.db.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("list active memberships for update: %w", err)
	}

	return collectMemberships(rows)
}

// Update сохраняет фазу, ранг, счётчик пропусков и статус членства
func (r *PgxMembershipRepository) Update(ctx context.Context, m *model.GroupMembership) error {
	query := `
		UPDATE group_memberships
		SET phase = $1, phase_updated_at = $2, phase_updated_by = $3, phase_notes = $4,
		    consecutive_absences = $5, rank = $6, status = $7, updated_at = now()
		WHERE id = $8
	`

	tag, err := r.db.Exec(
		ctx, query,
		m.Phase,
		m.PhaseUpdatedAt,
		m.PhaseUpdatedBy,
		m.PhaseNotes,
		m.ConsecutiveAbsences,
		m.Rank,
		m.Status,
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("update membership: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("membership not found")
	}

	return nil
}
