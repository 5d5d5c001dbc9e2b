package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/rouleplus/autoecole-core/internal/model"
	"github.com/rouleplus/autoecole-core/internal/repository/base"
)

type AttendanceRepository interface {
	CreateRecords(ctx context.Context, records []*model.AttendanceRecord) error
	ExistsForSession(ctx context.Context, sessionID int64) (bool, error)
	ListByGroupSince(ctx context.Context, groupID int64, since time.Time) ([]*model.AttendanceRecord, error)
}

type PgxAttendanceRepository struct {
	db base.Querier
}

func NewPgxAttendanceRepository(db base.Querier) *PgxAttendanceRepository {
	return &PgxAttendanceRepository{db: db}
}

// CreateRecords вставляет записи посещаемости одной сессии.
// Unique-индекс (session_id, student_id) — настоящая защита от повторной
// отметки: конкурентная вторая отметка упадёт здесь, а не на предпроверке.
func (r *PgxAttendanceRepository) CreateRecords(ctx context.Context, records []*model.AttendanceRecord) error {
	query := `
		INSERT INTO attendance_records (session_id, student_id, date, status, marked_by, marked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	for _, rec := range records {
		err := r.db.QueryRow(
			ctx, query,
			rec.SessionID,
			rec.StudentID,
			rec.Date,
			rec.Status,
			rec.MarkedBy,
			rec.MarkedAt,
		).Scan(&rec.ID)

		if err != nil {
			return fmt.Errorf("create attendance record: %w", err)
		}
	}

	return nil
}

// ExistsForSession проверяет была ли сессия уже отмечена
func (r *PgxAttendanceRepository) ExistsForSession(ctx context.Context, sessionID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM attendance_records WHERE session_id = $1)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, sessionID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check attendance exists: %w", err)
	}

	return exists, nil
}

// ListByGroupSince получает записи посещаемости группы начиная с даты
func (r *PgxAttendanceRepository) ListByGroupSince(ctx context.Context, groupID int64, since time.Time) ([]*model.AttendanceRecord, error) {
	query := `
		SELECT a.id, a.session_id, a.student_id, a.date, a.status, a.marked_by, a.marked_at
		FROM attendance_records a
		JOIN schedule_slots s ON s.id = a.session_id
		WHERE s.group_id = $1 AND a.date >= $2
		ORDER BY a.date DESC, a.session_id, a.student_id
	`

	rows, err := r.db.Query(ctx, query, groupID, since)
	if err != nil {
		return nil, fmt.Errorf("list attendance by group: %w", err)
	}
	defer rows.Close()

	var records []*model.AttendanceRecord
	for rows.Next() {
		var rec model.AttendanceRecord
		err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.StudentID,
			&rec.Date,
			&rec.Status,
			&rec.MarkedBy,
			&rec.MarkedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan attendance record: %w", err)
		}
		records = append(records, &rec)
	}

	return records, rows.Err()
}
