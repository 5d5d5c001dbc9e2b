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

// Сообщение окна заморозки. Показывается пользователю как есть.
const freezeMessage = "Bookings and cancellations must be made at least 2 hours before the lesson starts"

// BookingService владеет записями учеников на слоты.
// Проверки вместимости и дубликата выполняются в одной транзакции
// с блокировкой слота: две одновременные записи на последнее место
// не могут пройти обе.
type BookingService struct {
	repos  repository.Repos
	txm    repository.TxManager
	cache  AvailabilityCache
	cfg    *config.Config
	logger *zap.Logger
	clock  func() time.Time
}

func NewBookingService(
	repos repository.Repos,
	txm repository.TxManager,
	availCache AvailabilityCache,
	cfg *config.Config,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		repos:  repos,
		txm:    txm,
		cache:  availCache,
		cfg:    cfg,
		logger: logger,
		clock:  time.Now,
	}
}

// insideFreeze true если до начала занятия осталось меньше окна заморозки
func (s *BookingService) insideFreeze(slotStart time.Time) bool {
	return s.clock().Add(s.cfg.BookingFreezeWindow).After(slotStart)
}

// CreateBooking записывает ученика на слот.
// Порядок проверок: слот существует и доступен -> окно заморозки ->
// нет дубликата -> фаза ученика допускает индивидуальные занятия.
func (s *BookingService) CreateBooking(ctx context.Context, actor model.Actor, slotID int64) (*model.Booking, error) {
	if actor.Role != model.RoleStudent {
		return nil, apperr.Authorization("only students can book lessons")
	}
	studentID := actor.UserID

	var booking *model.Booking
	var slot *model.ScheduleSlot

	err := s.txm.WithTx(ctx, func(ctx context.Context, r repository.Repos) error {
		var err error
		slot, err = r.Slots.GetByIDForUpdate(ctx, slotID)
		if err != nil {
			return err
		}
		if slot == nil {
			return apperr.NotFound("schedule slot not found")
		}

		if slot.Status != model.SlotStatusAvailable {
			return apperr.Conflict("this slot is no longer available")
		}
		if !slot.HasFreeCapacity() {
			return apperr.Conflict("this slot is fully booked")
		}

		if s.insideFreeze(slot.StartTime) {
			return apperr.Timing(freezeMessage)
		}

		existing, err := r.Bookings.GetConfirmedBySlotAndStudent(ctx, slot.ID, studentID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Conflict("you already have a booking for this slot")
		}

		// Фазовый гейт: в фазе code доступны только групповые сессии.
		// Ученики без активного членства не ограничены (обратная совместимость).
		membership, err := r.Members.GetActiveByStudent(ctx, studentID)
		if err != nil {
			return err
		}
		if membership != nil && membership.Phase == model.PhaseCode && !slot.IsGroupSession() {
			return apperr.Validation("during the code phase you can only attend group sessions; individual lessons unlock at the creneau phase")
		}

		booking = &model.Booking{
			SlotID:    slot.ID,
			StudentID: studentID,
			Status:    model.BookingStatusConfirmed,
			BookedAt:  s.clock(),
		}
		if err := r.Bookings.Create(ctx, booking); err != nil {
			return err
		}

		slot.BookedCount++
		if !slot.HasFreeCapacity() {
			slot.Status = model.SlotStatusBooked
		}
		if err := r.Slots.Update(ctx, slot); err != nil {
			return err
		}

		return r.Outbox.Insert(ctx, model.Event{
			Type: model.EventBookingCreated,
			Payload: model.BookingCreatedPayload{
				BookingID: booking.ID,
				SlotID:    slot.ID,
				StudentID: studentID,
				StartTime: slot.StartTime,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidateAvailability(ctx, slot)

	s.logger.Info("Booking created",
		zap.Int64("booking_id", booking.ID),
		zap.Int64("student_id", studentID),
		zap.Int64("slot_id", slot.ID),
	)

	booking.Slot = slot
	return booking, nil
}

// CancelBooking отменяет запись. Отменить может только сам ученик,
// администратор — если включён AdminOverridesFreeze или вне окна заморозки.
func (s *BookingService) CancelBooking(ctx context.Context, actor model.Actor, bookingID int64, reason string) error {
	var slot *model.ScheduleSlot

	err := s.txm.WithTx(ctx, func(ctx context.Context, r repository.Repos) error {
		booking, err := r.Bookings.GetByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			return apperr.NotFound("booking not found")
		}
		if booking.StudentID != actor.UserID && !actor.IsAdmin() {
			return apperr.Authorization("only the booking's student can cancel it")
		}
		if booking.Status != model.BookingStatusConfirmed {
			return apperr.Conflict("booking is already %s", booking.Status)
		}

		slot, err = r.Slots.GetByIDForUpdate(ctx, booking.SlotID)
		if err != nil {
			return err
		}
		if slot == nil {
			return apperr.NotFound("schedule slot not found")
		}

		adminBypass := actor.IsAdmin() && s.cfg.AdminOverridesFreeze
		if !adminBypass && s.insideFreeze(slot.StartTime) {
			return apperr.Timing(freezeMessage)
		}

		now := s.clock()
		booking.Status = model.BookingStatusCancelled
		booking.CancelledAt = &now
		booking.CancelReason = reason
		if err := r.Bookings.Update(ctx, booking); err != nil {
			return err
		}

		if slot.BookedCount > 0 {
			slot.BookedCount--
		}
		if slot.Status == model.SlotStatusBooked {
			slot.Status = model.SlotStatusAvailable
		}
		if err := r.Slots.Update(ctx, slot); err != nil {
			return err
		}

		return r.Outbox.Insert(ctx, model.Event{
			Type: model.EventBookingCancelled,
			Payload: model.BookingCancelledPayload{
				BookingID: booking.ID,
				SlotID:    slot.ID,
				StudentID: booking.StudentID,
				StartTime: slot.StartTime,
				Reason:    reason,
			},
		})
	})
	if err != nil {
		return err
	}

	s.invalidateAvailability(ctx, slot)

	s.logger.Info("Booking cancelled",
		zap.Int64("booking_id", bookingID),
		zap.Int64("actor_id", actor.UserID),
	)

	return nil
}

type CompleteBookingInput struct {
	HoursCompleted    float64
	PerformanceRating int // 1-5
	SkillsImproved    string
	ReadyForNextLevel bool
}

// CompleteBooking фиксирует результат занятия после его окончания.
// Часы и оценка попадают в накопленный прогресс ученика.
func (s *BookingService) CompleteBooking(ctx context.Context, actor model.Actor, bookingID int64, input CompleteBookingInput) error {
	if !actor.IsInstructor() && !actor.IsAdmin() {
		return apperr.Authorization("only instructors can complete lessons")
	}
	if input.HoursCompleted <= 0 {
		return apperr.Validation("hours completed must be positive")
	}
	if input.PerformanceRating < 1 || input.PerformanceRating > 5 {
		return apperr.Validation("performance rating must be between 1 and 5")
	}

	err := s.txm.WithTx(ctx, func(ctx context.Context, r repository.Repos) error {
		booking, err := r.Bookings.GetByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			return apperr.NotFound("booking not found")
		}
		if booking.Status != model.BookingStatusConfirmed {
			return apperr.Conflict("booking is already %s", booking.Status)
		}

		slot, err := r.Slots.GetByID(ctx, booking.SlotID)
		if err != nil {
			return err
		}
		if slot == nil {
			return apperr.NotFound("schedule slot not found")
		}
		if !actor.IsAdmin() && slot.OwnerID != actor.UserID {
			return apperr.Authorization("only the slot's instructor can complete this lesson")
		}
		if s.clock().Before(slot.EndTime) {
			return apperr.Timing("lesson cannot be completed before it ends at %s", slot.EndTime.Format("15:04"))
		}

		booking.Status = model.BookingStatusCompleted
		booking.HoursCompleted = input.HoursCompleted
		booking.PerformanceRating = input.PerformanceRating
		booking.SkillsImproved = input.SkillsImproved
		booking.ReadyForNextLevel = input.ReadyForNextLevel
		if err := r.Bookings.Update(ctx, booking); err != nil {
			return err
		}

		if err := r.Progress.AddCompletedLesson(ctx, booking.StudentID, input.HoursCompleted, input.PerformanceRating); err != nil {
			return err
		}

		return r.Outbox.Insert(ctx, model.Event{
			Type: model.EventBookingCompleted,
			Payload: model.BookingCompletedPayload{
				BookingID: booking.ID,
				StudentID: booking.StudentID,
				Hours:     input.HoursCompleted,
				Rating:    input.PerformanceRating,
			},
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("Booking completed",
		zap.Int64("booking_id", bookingID),
		zap.Float64("hours", input.HoursCompleted),
		zap.Int("rating", input.PerformanceRating),
	)

	return nil
}

// ExamReadiness сводка готовности ученика к экзамену
type ExamReadiness struct {
	TotalHours    float64 `json:"total_hours"`
	AverageRating float64 `json:"average_rating"`
	Ready         bool    `json:"ready"`
}

// GetExamReadiness сравнивает накопленный прогресс с порогами экзамена
func (s *BookingService) GetExamReadiness(ctx context.Context, studentID int64) (*ExamReadiness, error) {
	progress, err := s.repos.Progress.Get(ctx, studentID)
	if err != nil {
		return nil, err
	}

	readiness := &ExamReadiness{
		TotalHours:    progress.TotalHours,
		AverageRating: progress.AverageRating(),
	}
	readiness.Ready = readiness.TotalHours >= s.cfg.MinHoursForExam &&
		readiness.AverageRating >= s.cfg.MinRatingForExam

	return readiness, nil
}

// GetStudentBookings получает историю бронирований ученика
func (s *BookingService) GetStudentBookings(ctx context.Context, studentID int64) ([]*model.Booking, error) {
	return s.repos.Bookings.ListByStudent(ctx, studentID)
}

func (s *BookingService) invalidateAvailability(ctx context.Context, slot *model.ScheduleSlot) {
	if s.cache == nil || slot == nil {
		return
	}
	s.cache.Invalidate(ctx, slot.LessonType, slot.Date)
}
