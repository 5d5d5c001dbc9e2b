package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/rouleplus/autoecole-core/internal/apperr"
	"github.com/rouleplus/autoecole-core/internal/config"
	"github.com/rouleplus/autoecole-core/internal/model"
	"github.com/rouleplus/autoecole-core/internal/repository"
	"github.com/rouleplus/autoecole-core/internal/repository/base"
)

// AttendanceService владеет отметками присутствия на групповых сессиях.
// Сессия отмечается ровно один раз; повтор отсекается unique-индексом
// в той же транзакции, что и вставка.
type AttendanceService struct {
	repos  repository.Repos
	txm    repository.TxManager
	cfg    *config.Config
	logger *zap.Logger
	clock  func() time.Time
}

func NewAttendanceService(
	repos repository.Repos,
	txm repository.TxManager,
	cfg *config.Config,
	logger *zap.Logger,
) *AttendanceService {
	return &AttendanceService{
		repos:  repos,
		txm:    txm,
		cfg:    cfg,
		logger: logger,
		clock:  time.Now,
	}
}

// MarkAttendance отмечает присутствие всех активных участников группы.
// Присутствие обнуляет счётчик пропусков и добавляет часы сессии,
// пропуск увеличивает счётчик; на пороге пропусков уходит эскалация
// администраторам (однократно на пересечение порога).
func (s *AttendanceService) MarkAttendance(ctx context.Context, actor model.Actor, sessionID int64, presentStudentIDs []int64) error {
	present := make(map[int64]bool, len(presentStudentIDs))
	for _, id := range presentStudentIDs {
		present[id] = true
	}

	var presentCount, absentCount int

	err := s.txm.WithTx(ctx, func(ctx context.Context, r repository.Repos) error {
		session, err := r.Slots.GetByID(ctx, sessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return apperr.NotFound("session not found")
		}
		if !session.IsGroupSession() {
			return apperr.Validation("attendance is tracked for group sessions only")
		}
		if !actor.IsAdmin() && session.OwnerID != actor.UserID {
			return apperr.Authorization("only the session's instructor can mark attendance")
		}

		now := s.clock()
		today := dateOf(now)
		sessionDay := dateOf(session.StartTime)
		switch {
		case sessionDay.After(today):
			return apperr.Timing("session has not started yet")
		case sessionDay.Equal(today) && now.Before(session.StartTime):
			return apperr.Timing("attendance opens at %s", session.StartTime.Format("15:04"))
		}

		// Предпроверка для дружелюбной ошибки; настоящая защита —
		// unique-индекс на вставке ниже.
		marked, err := r.Attendance.ExistsForSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if marked {
			return apperr.Conflict("attendance for this session has already been marked")
		}

		members, err := r.Members.ListActiveByGroupForUpdate(ctx, *session.GroupID)
		if err != nil {
			return err
		}
		if len(members) == 0 {
			return apperr.Validation("group has no active members")
		}

		duration := session.Duration()
		records := make([]*model.AttendanceRecord, 0, len(members))

		for _, m := range members {
			rec := &model.AttendanceRecord{
				SessionID: sessionID,
				StudentID: m.StudentID,
				Date:      sessionDay,
				MarkedBy:  actor.UserID,
				MarkedAt:  now,
			}

			if present[m.StudentID] {
				rec.Status = model.AttendancePresent
				presentCount++
				m.ConsecutiveAbsences = 0
				if err := r.Progress.AddHours(ctx, m.StudentID, duration); err != nil {
					return err
				}
			} else {
				rec.Status = model.AttendanceAbsent
				absentCount++
				m.ConsecutiveAbsences++

				if err := r.Outbox.Insert(ctx, model.Event{
					Type: model.EventAbsenceWarning,
					Payload: model.AbsencePayload{
						StudentID:   m.StudentID,
						GroupID:     m.GroupID,
						Consecutive: m.ConsecutiveAbsences,
					},
				}); err != nil {
					return err
				}

				// Ровно одна эскалация на пересечение порога: четвёртый
				// подряд пропуск дубликата не шлёт.
				if m.ConsecutiveAbsences == s.cfg.AbsenceEscalationThreshold {
					if err := r.Outbox.Insert(ctx, model.Event{
						Type: model.EventAbsenceEscalated,
						Payload: model.AbsencePayload{
							StudentID:   m.StudentID,
							GroupID:     m.GroupID,
							Consecutive: m.ConsecutiveAbsences,
						},
					}); err != nil {
						return err
					}
				}
			}

			if err := r.Members.Update(ctx, m); err != nil {
				return err
			}
			records = append(records, rec)
		}

		if err := r.Attendance.CreateRecords(ctx, records); err != nil {
			if base.IsUniqueViolation(err) {
				return apperr.Conflict("attendance for this session has already been marked")
			}
			return err
		}

		return r.Outbox.Insert(ctx, model.Event{
			Type: model.EventAttendanceMarked,
			Payload: model.AttendanceMarkedPayload{
				SessionID:    sessionID,
				GroupID:      *session.GroupID,
				PresentCount: presentCount,
				AbsentCount:  absentCount,
			},
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("Attendance marked",
		zap.Int64("session_id", sessionID),
		zap.Int("present", presentCount),
		zap.Int("absent", absentCount),
	)

	return nil
}

// GetTodaySessionsForGroup получает сегодняшние сессии группы
func (s *AttendanceService) GetTodaySessionsForGroup(ctx context.Context, groupID int64) ([]*model.ScheduleSlot, error) {
	return s.repos.Slots.ListByGroupAndDate(ctx, groupID, dateOf(s.clock()))
}

// GetGroupAttendanceHistory агрегирует посещаемость группы по сессиям
// за фиксированное окно назад (ограничивает размер ответа).
func (s *AttendanceService) GetGroupAttendanceHistory(ctx context.Context, groupID int64) ([]*model.AttendanceDaySummary, error) {
	since := dateOf(s.clock()).AddDate(0, 0, -s.cfg.AttendanceLookbackDays)

	records, err := s.repos.Attendance.ListByGroupSince(ctx, groupID, since)
	if err != nil {
		return nil, err
	}

	bySession := make(map[int64]*model.AttendanceDaySummary)
	for _, rec := range records {
		summary, ok := bySession[rec.SessionID]
		if !ok {
			summary = &model.AttendanceDaySummary{
				SessionID: rec.SessionID,
				Date:      rec.Date,
			}
			bySession[rec.SessionID] = summary
		}

		if rec.Status == model.AttendancePresent {
			summary.PresentCount++
		} else {
			summary.AbsentCount++
			summary.AbsentStudentIDs = append(summary.AbsentStudentIDs, rec.StudentID)
		}
	}

	summaries := make([]*model.AttendanceDaySummary, 0, len(bySession))
	for _, summary := range bySession {
		summaries = append(summaries, summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].Date.Equal(summaries[j].Date) {
			return summaries[i].Date.After(summaries[j].Date)
		}
		return summaries[i].SessionID < summaries[j].SessionID
	})

	return summaries, nil
}
