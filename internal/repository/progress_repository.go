package repository

import (
	"context"
	"fmt"

	"github.com/rouleplus/autoecole-core/internal/model"
	"github.com/rouleplus/autoecole-core/internal/repository/base"
)

type ProgressRepository interface {
	Get(ctx context.Context, studentID int64) (*model.StudentProgress, error)
	AddHours(ctx context.Context, studentID int64, hours float64) error
	AddCompletedLesson(ctx context.Context, studentID int64, hours float64, rating int) error
}

type PgxProgressRepository struct {
	db base.Querier
}

func NewPgxProgressRepository(db base.Querier) *PgxProgressRepository {
	return &PgxProgressRepository{db: db}
}

// Get получает прогресс ученика, пустой прогресс если записей ещё нет
func (r *PgxProgressRepository) Get(ctx context.Context, studentID int64) (*model.StudentProgress, error) {
	query := `
		SELECT student_id, total_hours, rating_sum, rating_count, updated_at
		FROM student_progress
		WHERE student_id = $1
	`

	var p model.StudentProgress
	err := r.db.QueryRow(ctx, query, studentID).Scan(
		&p.StudentID,
		&p.TotalHours,
		&p.RatingSum,
		&p.RatingCount,
		&p.UpdatedAt,
	)
	if err != nil {
		if base.IsNotFound(err) {
			return &model.StudentProgress{StudentID: studentID}, nil
		}
		return nil, fmt.Errorf("get progress: %w", err)
	}

	return &p, nil
}

// AddHours прибавляет часы групповой сессии к накопленному итогу
func (r *PgxProgressRepository) AddHours(ctx context.Context, studentID int64, hours float64) error {
	query := `
		INSERT INTO student_progress (student_id, total_hours)
		VALUES ($1, $2)
		ON CONFLICT (student_id)
		DO UPDATE SET total_hours = student_progress.total_hours + $2, updated_at = now()
	`

	if _, err := r.db.Exec(ctx, query, studentID, hours); err != nil {
		return fmt.Errorf("add hours: %w", err)
	}

	return nil
}

// AddCompletedLesson прибавляет часы и оценку завершённого индивидуального занятия
func (r *PgxProgressRepository) AddCompletedLesson(ctx context.Context, studentID int64, hours float64, rating int) error {
	query := `
		INSERT INTO student_progress (student_id, total_hours, rating_sum, rating_count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (student_id)
		DO UPDATE SET total_hours = student_progress.total_hours + $2,
		              rating_sum = student_progress.rating_sum + $3,
		              rating_count = student_progress.rating_count + 1,
		              updated_at = now()
	`

	if _, err := r.db.Exec(ctx, query, studentID, hours, rating); err != nil {
		return fmt.Errorf("add completed lesson: %w", err)
	}

	return nil
}
