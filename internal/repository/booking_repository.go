package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rouleplus/autoecole-core/internal/model"
	"github.com/rouleplus/autoecole-core/internal/repository/base"
)

type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) error
	GetByID(ctx context.Context, id int64) (*model.Booking, error)
	GetConfirmedBySlotAndStudent(ctx context.Context, slotID, studentID int64) (*model.Booking, error)
	ListConfirmedBySlot(ctx context.Context, slotID int64) ([]*model.Booking, error)
	ListByStudent(ctx context.Context, studentID int64) ([]*model.Booking, error)
	Update(ctx context.Context, booking *model.Booking) error
}

type PgxBookingRepository struct {
	db base.Querier
}

func NewPgxBookingRepository(db base.Querier) *PgxBookingRepository {
	return &PgxBookingRepository{db: db}
}

const bookingColumns = `id, slot_id, student_id, status, booked_at, cancelled_at, cancel_reason, hours_completed, performance_rating, skills_improved, ready_for_next_level, updated_at`

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var booking model.Booking
	err := row.Scan(
		&booking.ID,
		&booking.SlotID,
		&booking.StudentID,
		&booking.Status,
		&booking.BookedAt,
		&booking.CancelledAt,
		&booking.CancelReason,
		&booking.HoursCompleted,
		&booking.PerformanceRating,
		&booking.SkillsImproved,
		&booking.ReadyForNextLevel,
		&booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func collectBookings(rows pgx.Rows) ([]*model.Booking, error) {
	defer rows.Close()

	var bookings []*model.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	return bookings, rows.Err()
}

// Create создаёт новое бронирование.
// Частичный unique-индекс (slot_id, student_id) WHERE status = 'confirmed'
// дублирует проверку в сервисе на случай конкурентной записи.
func (r *PgxBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	query := `
		INSERT INTO bookings (slot_id, student_id, status, booked_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		booking.SlotID,
		booking.StudentID,
		booking.Status,
		booking.BookedAt,
	).Scan(&booking.ID, &booking.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create booking: %w", err)
	}

	return nil
}

// GetByID получает бронирование по ID, nil если не найдено
func (r *PgxBookingRepository) GetByID(ctx context.Context, id int64) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get booking by id: %w", err)
	}

	return booking, nil
}

// GetConfirmedBySlotAndStudent ищет подтверждённую запись ученика на слот
func (r *PgxBookingRepository) GetConfirmedBySlotAndStudent(ctx context.Context, slotID, studentID int64) (*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE slot_id = $1 AND student_id = $2 AND status = 'confirmed'
	`

	booking, err := scanBooking(r.db.QueryRow(ctx, query, slotID, studentID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get booking by slot and student: %w", err)
	}

	return booking, nil
}

// ListConfirmedBySlot получает все подтверждённые записи на слот
func (r *PgxBookingRepository) ListConfirmedBySlot(ctx context.Context, slotID int64) ([]*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE slot_id = $1 AND status = 'confirmed'
		ORDER BY booked_at
	`

	rows, err := r.db.Query(ctx, query, slotID)
	if err != nil {
		return nil, fmt.Errorf("list bookings by slot: %w", err)
	}

	return collectBookings(rows)
}

// ListByStudent получает историю бронирований ученика
func (r *PgxBookingRepository) ListByStudent(ctx context.Context, studentID int64) ([]*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE student_id = $1
		ORDER BY booked_at DESC
	`

	rows, err := r.db.Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("list bookings by student: %w", err)
	}

	return collectBookings(rows)
}

// Update сохраняет статус и поля завершения бронирования
func (r *PgxBookingRepository) Update(ctx context.Context, booking *model.Booking) error {
	query := `
		UPDATE bookings
		SET status = $1, cancelled_at = $2, cancel_reason = $3,
		    hours_completed = $4, performance_rating = $5,
		    skills_improved = $6, ready_for_next_level = $7,
		    updated_at = now()
		WHERE id = $8
	`

	tag, err := r.db.Exec(
		ctx, query,
		booking.Status,
		booking.CancelledAt,
		booking.CancelReason,
		booking.HoursCompleted,
		booking.PerformanceRating,
		booking.SkillsImproved,
		booking.ReadyForNextLevel,
		booking.ID,
	)
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("booking not found")
	}

	return nil
}
