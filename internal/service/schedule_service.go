package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rouleplus/autoecole-core/internal/apperr"
	"github.com/rouleplus/autoecole-core/internal/config"
	"github.com/rouleplus/autoecole-core/internal/model"
	"github.com/rouleplus/autoecole-core/internal/repository"
)

// AvailabilityCache — кэш результата поиска доступных слотов.
// Реализуется cache.Availability, в тестах подменяется фейком.
type AvailabilityCache interface {
	Get(ctx context.Context, lessonType model.LessonType, day time.Time) ([]*model.ScheduleSlot, bool)
	Set(ctx context.Context, lessonType model.LessonType, day time.Time, slots []*model.ScheduleSlot)
	Invalidate(ctx context.Context, lessonType model.LessonType, day time.Time)
}

// ScheduleService владеет слотами расписания инструкторов.
// Инвариант: у одного инструктора в один день неотменённые слоты не пересекаются.
type ScheduleService struct {
	repos  repository.Repos
	txm    repository.TxManager
	cache  AvailabilityCache
	cfg    *config.Config
	logger *zap.Logger
	clock  func() time.Time
}

func NewScheduleService(
	repos repository.Repos,
	txm repository.TxManager,
	availCache AvailabilityCache,
	cfg *config.Config,
	logger *zap.Logger,
) *ScheduleService {
	return &ScheduleService{
		repos:  repos,
		txm:    txm,
		cache:  availCache,
		cfg:    cfg,
		logger: logger,
		clock:  time.Now,
	}
}

type CreateSlotInput struct {
	OwnerID    int64
	GroupID    *int64 // заполняется для групповых сессий
	Start      time.Time
	End        time.Time
	LessonType model.LessonType
	Capacity   int // 0 = дефолт по типу занятия
	Location   string
	Notes      string
}

type UpdateSlotInput struct {
	Start    *time.Time
	End      *time.Time
	Capacity *int
	Location *string
	Notes    *string
}

// dateOf отбрасывает компоненту времени
func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// CreateSlot создаёт слот после проверки пересечений.
// Проверка и вставка идут в одной транзакции с блокировкой слотов дня,
// чтобы два одновременных создания не прошли проверку оба.
func (s *ScheduleService) CreateSlot(ctx context.Context, actor model.Actor, input CreateSlotInput) (*model.ScheduleSlot, error) {
	if !actor.IsInstructor() && !actor.IsAdmin() {
		return nil, apperr.Authorization("only instructors can create schedule slots")
	}
	if !actor.IsAdmin() && input.OwnerID != actor.UserID {
		return nil, apperr.Authorization("instructors can only manage their own schedule")
	}

	if !input.LessonType.Valid() {
		return nil, apperr.Validation("unknown lesson type %q", input.LessonType)
	}

	start := input.Start.Truncate(time.Minute)
	end := input.End.Truncate(time.Minute)
	if !end.After(start) {
		return nil, apperr.Validation("slot end time must be after start time")
	}
	if !dateOf(start).Equal(dateOf(end)) {
		return nil, apperr.Validation("slot must start and end on the same day")
	}

	capacity := input.Capacity
	if capacity <= 0 {
		capacity = s.cfg.DefaultCapacity(string(input.LessonType))
	}
	// Практика всегда индивидуальная
	if input.LessonType == model.LessonTypePractical {
		capacity = 1
	}

	slot := &model.ScheduleSlot{
		OwnerID:    input.OwnerID,
		GroupID:    input.GroupID,
		Date:       dateOf(start),
		StartTime:  start,
		EndTime:    end,
		LessonType: input.LessonType,
		Capacity:   capacity,
		Status:     model.SlotStatusAvailable,
		Location:   input.Location,
		Notes:      input.Notes,
	}

	err := s.txm.WithTx(ctx, func(ctx context.Context, r repository.Repos) error {
		if err := s.findOverlap(ctx, r, input.OwnerID, slot.Date, start, end, 0); err != nil {
			return err
		}
		return r.Slots.Create(ctx, slot)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateAvailability(ctx, slot)

	s.logger.Info("Slot created",
		zap.Int64("slot_id", slot.ID),
		zap.Int64("owner_id", slot.OwnerID),
		zap.String("lesson_type", string(slot.LessonType)),
		zap.Time("start", slot.StartTime),
	)

	return slot, nil
}

// findOverlap — линейный проход по слотам инструктора за день.
// Пересечение интервалов: start < existingEnd && end > existingStart.
// Сначала берётся advisory-блокировка дня: две конкурентные транзакции
// над одним днём сериализуются даже когда день ещё пуст и блокировать
// построчно нечего.
func (s *ScheduleService) findOverlap(ctx context.Context, r repository.Repos, ownerID int64, date, start, end time.Time, excludeID int64) error {
	if err := r.Slots.LockOwnerDay(ctx, ownerID, date); err != nil {
		return err
	}

	existing, err := r.Slots.ListByOwnerAndDateForUpdate(ctx, ownerID, date)
	if err != nil {
		return err
	}

	for _, slot := range existing {
		if slot.ID == excludeID || slot.Status == model.SlotStatusCancelled {
			continue
		}
		if slot.Overlaps(start, end) {
			return apperr.Conflict("This time slot overlaps with an existing schedule (%s-%s)",
				slot.StartTime.Format("15:04"), slot.EndTime.Format("15:04"))
		}
	}

	return nil
}

// UpdateSlot меняет время, вместимость или описание слота.
// Слот с подтверждёнными записями менять нельзя.
func (s *ScheduleService) UpdateSlot(ctx context.Context, actor model.Actor, slotID int64, patch UpdateSlotInput) (*model.ScheduleSlot, error) {
	var updated *model.ScheduleSlot
	var prevDate time.Time

	err := s.txm.WithTx(ctx, func(ctx context.Context, r repository.Repos) error {
		slot, err := r.Slots.GetByIDForUpdate(ctx, slotID)
		if err != nil {
			return err
		}
		if slot == nil {
			return apperr.NotFound("schedule slot not found")
		}
		if !actor.IsAdmin() && slot.OwnerID != actor.UserID {
			return apperr.Authorization("instructors can only manage their own schedule")
		}
		if slot.BookedCount > 0 {
			return apperr.Conflict("cannot modify a slot that already has confirmed bookings")
		}
		if slot.Status == model.SlotStatusCancelled || slot.Status == model.SlotStatusCompleted {
			return apperr.Conflict("slot is already %s", slot.Status)
		}

		prevDate = slot.Date

		if patch.Start != nil {
			slot.StartTime = patch.Start.Truncate(time.Minute)
		}
		if patch.End != nil {
			slot.EndTime = patch.End.Truncate(time.Minute)
		}
		if patch.Start != nil || patch.End != nil {
			if !slot.EndTime.After(slot.StartTime) {
				return apperr.Validation("slot end time must be after start time")
			}
			if !dateOf(slot.StartTime).Equal(dateOf(slot.EndTime)) {
				return apperr.Validation("slot must start and end on the same day")
			}
			slot.Date = dateOf(slot.StartTime)
			if err := s.findOverlap(ctx, r, slot.OwnerID, slot.Date, slot.StartTime, slot.EndTime, slot.ID); err != nil {
				return err
			}
		}
		if patch.Capacity != nil {
			if *patch.Capacity < 1 {
				return apperr.Validation("capacity must be at least 1")
			}
			if slot.LessonType == model.LessonTypePractical && *patch.Capacity != 1 {
				return apperr.Validation("practical lessons are always individual (capacity 1)")
			}
			slot.Capacity = *patch.Capacity
		}
		if patch.Location != nil {
			slot.Location = *patch.Location
		}
		if patch.Notes != nil {
			slot.Notes = *patch.Notes
		}

		if err := r.Slots.Update(ctx, slot); err != nil {
			return err
		}

		updated = slot
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateAvailability(ctx, updated)
	// Перенос на другой день: старый день тоже закэширован и всё ещё
	// рекламирует перенесённый слот
	if s.cache != nil && !prevDate.Equal(updated.Date) {
		s.cache.Invalidate(ctx, updated.LessonType, prevDate)
	}

	s.logger.Info("Slot updated", zap.Int64("slot_id", updated.ID))

	return updated, nil
}

// DeleteSlot отменяет слот. Со слотом без записей может работать владелец,
// слот с записями вправе снять только администратор: записи отменяются
// каскадом, затронутые ученики получают уведомление через outbox.
func (s *ScheduleService) DeleteSlot(ctx context.Context, actor model.Actor, slotID int64) error {
	var cancelled *model.ScheduleSlot

	err := s.txm.WithTx(ctx, func(ctx context.Context, r repository.Repos) error {
		slot, err := r.Slots.GetByIDForUpdate(ctx, slotID)
		if err != nil {
			return err
		}
		if slot == nil {
			return apperr.NotFound("schedule slot not found")
		}
		if !actor.IsAdmin() && slot.OwnerID != actor.UserID {
			return apperr.Authorization("instructors can only manage their own schedule")
		}
		if slot.Status == model.SlotStatusCancelled {
			return apperr.Conflict("slot is already cancelled")
		}
		if slot.BookedCount > 0 && !actor.IsAdmin() {
			return apperr.Conflict("cannot delete a slot that already has confirmed bookings")
		}

		var affected []int64
		if slot.BookedCount > 0 {
			bookings, err := r.Bookings.ListConfirmedBySlot(ctx, slot.ID)
			if err != nil {
				return err
			}
			now := s.clock()
			for _, b := range bookings {
				b.Status = model.BookingStatusCancelled
				b.CancelledAt = &now
				b.CancelReason = "slot cancelled by administration"
				if err := r.Bookings.Update(ctx, b); err != nil {
					return err
				}
				affected = append(affected, b.StudentID)
			}
		}

		slot.Status = model.SlotStatusCancelled
		slot.BookedCount = 0
		if err := r.Slots.Update(ctx, slot); err != nil {
			return err
		}

		if err := r.Outbox.Insert(ctx, model.Event{
			Type: model.EventSlotCancelled,
			Payload: model.SlotCancelledPayload{
				SlotID:     slot.ID,
				OwnerID:    slot.OwnerID,
				StartTime:  slot.StartTime,
				StudentIDs: affected,
			},
		}); err != nil {
			return err
		}

		cancelled = slot
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidateAvailability(ctx, cancelled)

	s.logger.Info("Slot cancelled",
		zap.Int64("slot_id", cancelled.ID),
		zap.Int64("actor_id", actor.UserID),
	)

	return nil
}

// CompleteSlot финализирует прошедший слот
func (s *ScheduleService) CompleteSlot(ctx context.Context, actor model.Actor, slotID int64) error {
	return s.txm.WithTx(ctx, func(ctx context.Context, r repository.Repos) error {
		slot, err := r.Slots.GetByIDForUpdate(ctx, slotID)
		if err != nil {
			return err
		}
		if slot == nil {
			return apperr.NotFound("schedule slot not found")
		}
		if !actor.IsAdmin() && slot.OwnerID != actor.UserID {
			return apperr.Authorization("instructors can only manage their own schedule")
		}
		if slot.Status == model.SlotStatusCancelled || slot.Status == model.SlotStatusCompleted {
			return apperr.Conflict("slot is already %s", slot.Status)
		}
		if s.clock().Before(slot.EndTime) {
			return apperr.Timing("slot cannot be completed before it ends at %s", slot.EndTime.Format("15:04"))
		}

		slot.Status = model.SlotStatusCompleted
		return r.Slots.Update(ctx, slot)
	})
}

// ListAvailableSlots получает будущие слоты с остатком мест.
// Однодневные запросы по типу занятия идут через Redis-кэш.
func (s *ScheduleService) ListAvailableSlots(ctx context.Context, filter repository.SlotFilter) ([]*model.ScheduleSlot, error) {
	if filter.From.IsZero() {
		filter.From = s.clock()
	}
	if filter.To.IsZero() {
		filter.To = filter.From.AddDate(0, 1, 0)
	}

	cacheable := s.cache != nil && filter.LessonType != nil && filter.OwnerID == nil &&
		filter.To.Sub(filter.From) <= 24*time.Hour

	if cacheable {
		if slots, ok := s.cache.Get(ctx, *filter.LessonType, dateOf(filter.From)); ok {
			return slots, nil
		}
	}

	slots, err := s.repos.Slots.ListAvailable(ctx, filter)
	if err != nil {
		return nil, err
	}

	if cacheable {
		s.cache.Set(ctx, *filter.LessonType, dateOf(filter.From), slots)
	}

	return slots, nil
}

// ListOwnerSlots получает слоты инструктора в диапазоне дат
func (s *ScheduleService) ListOwnerSlots(ctx context.Context, ownerID int64, from, to time.Time) ([]*model.ScheduleSlot, error) {
	return s.repos.Slots.ListByOwner(ctx, ownerID, from, to)
}

func (s *ScheduleService) invalidateAvailability(ctx context.Context, slot *model.ScheduleSlot) {
	if s.cache == nil || slot == nil {
		return
	}
	s.cache.Invalidate(ctx, slot.LessonType, slot.Date)
}
