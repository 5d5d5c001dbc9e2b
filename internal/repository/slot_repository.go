package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rouleplus/autoecole-core/internal/model"
	"github.com/rouleplus/autoecole-core/internal/repository/base"
)

// SlotFilter параметры поиска доступных слотов
type SlotFilter struct {
	LessonType *model.LessonType
	OwnerID    *int64
	From       time.Time
	To         time.Time
}

type SlotRepository interface {
	LockOwnerDay(ctx context.Context, ownerID int64, date time.Time) error
	Create(ctx context.Context, slot *model.ScheduleSlot) error
	GetByID(ctx context.Context, id int64) (*model.ScheduleSlot, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*model.ScheduleSlot, error)
	ListByOwnerAndDate(ctx context.Context, ownerID int64, date time.Time) ([]*model.ScheduleSlot, error)
	ListByOwnerAndDateForUpdate(ctx context.Context, ownerID int64, date time.Time) ([]*model.ScheduleSlot, error)
	ListByOwner(ctx context.Context, ownerID int64, from, to time.Time) ([]*model.ScheduleSlot, error)
	ListByGroupAndDate(ctx context.Context, groupID int64, date time.Time) ([]*model.ScheduleSlot, error)
	ListAvailable(ctx context.Context, filter SlotFilter) ([]*model.ScheduleSlot, error)
	Update(ctx context.Context, slot *model.ScheduleSlot) error
}

type PgxSlotRepository struct {
	db base.Querier
}

func NewPgxSlotRepository(db base.Querier) *PgxSlotRepository {
	return &PgxSlotRepository{db: db}
}

const slotColumns = `id, owner_id, group_id, date, start_time, end_time, lesson_type, capacity, booked_count, status, location, notes, created_at`

func scanSlot(row pgx.Row) (*model.ScheduleSlot, error) {
	var slot model.ScheduleSlot
	err := row.Scan(
		&slot.ID,
		&slot.OwnerID,
		&slot.GroupID,
		&slot.Date,
		&slot.StartTime,
		&slot.EndTime,
		&slot.LessonType,
		&slot.Capacity,
		&slot.BookedCount,
		&slot.Status,
		&slot.Location,
		&slot.Notes,
		&slot.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func collectSlots(rows pgx.Rows) ([]*model.ScheduleSlot, error) {
	defer rows.Close()

	var slots []*model.ScheduleSlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, slot)
	}

	return slots, rows.Err()
}

// LockOwnerDay берёт advisory-блокировку на пару инструктор+день до конца
// транзакции. Блокировка строк здесь не годится: она не защищает от
// фантомных вставок — две транзакции над пустым днём не увидят строк
// друг друга и обе пройдут проверку пересечений.
func (r *PgxSlotRepository) LockOwnerDay(ctx context.Context, ownerID int64, date time.Time) error {
	key := fmt.Sprintf("schedule_slots:%d:%s", ownerID, date.Format("2006-01-02"))

	_, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key)
	if err != nil {
		return fmt.Errorf("lock owner day: %w", err)
	}

	return nil
}

// Create создаёт новый слот
func (r *PgxSlotRepository) Create(ctx context.Context, slot *model.ScheduleSlot) error {
	query := `
		INSERT INTO schedule_slots (owner_id, group_id, date, start_time, end_time, lesson_type, capacity, booked_count, status, location, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(
		ctx, query,
		slot.OwnerID,
		slot.GroupID,
		slot.Date,
		slot.StartTime,
		slot.EndTime,
		slot.LessonType,
		slot.Capacity,
		slot.BookedCount,
		slot.Status,
		slot.Location,
		slot.Notes,
	).Scan(&slot.ID, &slot.CreatedAt)

	if err != nil {
		return fmt.Errorf("create slot: %w", err)
	}

	return nil
}

// GetByID получает слот по ID, nil если не найден
func (r *PgxSlotRepository) GetByID(ctx context.Context, id int64) (*model.ScheduleSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM schedule_slots WHERE id = $1`

	slot, err := scanSlot(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get slot by id: %w", err)
	}

	return slot, nil
}

// GetByIDForUpdate получает слот с блокировкой строки до конца транзакции
func (r *PgxSlotRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.ScheduleSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM schedule_slots WHERE id = $1 FOR UPDATE`

	slot, err := scanSlot(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get slot for update: %w", err)
	}

	return slot, nil
}

// ListByOwnerAndDate получает все слоты инструктора за день
func (r *PgxSlotRepository) ListByOwnerAndDate(ctx context.Context, ownerID int64, date time.Time) ([]*model.ScheduleSlot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM schedule_slots
		WHERE owner_id = $1 AND date = $2
		ORDER BY start_time
	`

	rows, err := r.db.Query(ctx, query, ownerID, date)
	if err != nil {
		return nil, fmt.Errorf("list slots by owner and date: %w", err)
	}

	return collectSlots(rows)
}

// ListByOwnerAndDateForUpdate то же самое с блокировкой строк.
// Существующие строки дня блокируются от конкурентных правок; от
// фантомных вставок защищает LockOwnerDay, не этот запрос.
func (r *PgxSlotRepository) ListByOwnerAndDateForUpdate(ctx context.Context, ownerID int64, date time.Time) ([]*model.ScheduleSlot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM schedule_slots
		WHERE owner_id = $1 AND date = $2
		ORDER BY start_time
		FOR UPDATE
	`

	rows, err := r.db.Query(ctx, query, ownerID, date)
	if err != nil {
		return nil, fmt.Errorf("list slots for update: %w", err)
	}

	return collectSlots(rows)
}

// ListByOwner получает слоты инструктора в диапазоне дат
func (r *PgxSlotRepository) ListByOwner(ctx context.Context, ownerID int64, from, to time.Time) ([]*model.ScheduleSlot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM schedule_slots
		WHERE owner_id = $1
		  AND start_time >= $2
		  AND start_time < $3
		ORDER BY date, start_time
	`

	rows, err := r.db.Query(ctx, query, ownerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list slots by owner: %w", err)
	}

	return collectSlots(rows)
}

// ListByGroupAndDate получает групповые сессии группы за день
func (r *PgxSlotRepository) ListByGroupAndDate(ctx context.Context, groupID int64, date time.Time) ([]*model.ScheduleSlot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM schedule_slots
		WHERE group_id = $1 AND date = $2 AND status != 'cancelled'
		ORDER BY start_time
	`

	rows, err := r.db.Query(ctx, query, groupID, date)
	if err != nil {
		return nil, fmt.Errorf("list slots by group and date: %w", err)
	}

	return collectSlots(rows)
}

// ListAvailable получает будущие слоты с остатком мест
func (r *PgxSlotRepository) ListAvailable(ctx context.Context, filter SlotFilter) ([]*model.ScheduleSlot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM schedule_slots
		WHERE status = 'available'
		  AND booked_count < capacity
		  AND start_time >= $1
		  AND start_time < $2
	`
	args := []any{filter.From, filter.To}

	if filter.LessonType != nil {
		args = append(args, *filter.LessonType)
		query += fmt.Sprintf(" AND lesson_type = $%d", len(args))
	}
	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		query += fmt.Sprintf(" AND owner_id = $%d", len(args))
	}

	query += " ORDER BY date, start_time"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list available slots: %w", err)
	}

	return collectSlots(rows)
}

// Update сохраняет изменяемые поля слота
func (r *PgxSlotRepository) Update(ctx context.Context, slot *model.ScheduleSlot) error {
	query := `
		UPDATE schedule_slots
		SET date = $1, start_time = $2, end_time = $3, capacity = $4,
		    booked_count = $5, status = $6, location = $7, notes = $8
		WHERE id = $9
	`

	tag, err := r.db.Exec(
		ctx, query,
		slot.Date,
		slot.StartTime,
		slot.EndTime,
		slot.Capacity,
		slot.BookedCount,
		slot.Status,
		slot.Location,
		slot.Notes,
		slot.ID,
	)
	if err != nil {
		return fmt.Errorf("update slot: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("slot not found")
	}

	return nil
}
