package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rouleplus/autoecole-core/internal/apperr"
	"github.com/rouleplus/autoecole-core/internal/model"
	"github.com/rouleplus/autoecole-core/internal/repository"
)

// RankService владеет рангом ученика внутри группы.
// Ранг всегда остаётся в [MinRank, MaxRank] группы: повышение упирается
// в максимум, перевод в другую группу ограничивает ранг её диапазоном.
type RankService struct {
	repos  repository.Repos
	txm    repository.TxManager
	logger *zap.Logger
	clock  func() time.Time
}

func NewRankService(repos repository.Repos, txm repository.TxManager, logger *zap.Logger) *RankService {
	return &RankService{
		repos:  repos,
		txm:    txm,
		logger: logger,
		clock:  time.Now,
	}
}

// RankUp повышает ранг ровно на 1
func (s *RankService) RankUp(ctx context.Context, actor model.Actor, groupID, studentID int64, reason string) error {
	var from, to int

	err := s.txm.WithTx(ctx, func(ctx context.Context, r repository.Repos) error {
		group, err := r.Groups.GetByID(ctx, groupID)
		if err != nil {
			return err
		}
		if group == nil {
			return apperr.NotFound("group not found")
		}
		if !actor.IsAdmin() && group.InstructorID != actor.UserID {
			return apperr.Authorization("only the group's instructor can change ranks")
		}

		m, err := r.Members.GetActiveByStudentForUpdate(ctx, studentID)
		if err != nil {
			return err
		}
		if m == nil || m.GroupID != groupID {
			return apperr.NotFound("student has no active membership in this group")
		}

		if m.Rank >= group.MaxRank {
			return apperr.Conflict("student is already at the group's maximum rank %d", group.MaxRank)
		}

		from = m.Rank
		m.Rank++
		to = m.Rank

		if err := r.Members.Update(ctx, m); err != nil {
			return err
		}

		return r.Outbox.Insert(ctx, model.Event{
			Type: model.EventRankChanged,
			Payload: model.RankChangedPayload{
				StudentID: studentID,
				GroupID:   groupID,
				From:      from,
				To:        to,
				Reason:    reason,
			},
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("Rank up",
		zap.Int64("student_id", studentID),
		zap.Int64("group_id", groupID),
		zap.Int("rank", to),
	)

	return nil
}

// GetGroupRoster получает активных участников группы
func (s *RankService) GetGroupRoster(ctx context.Context, groupID int64) ([]*model.GroupMembership, error) {
	return s.repos.Members.ListActiveByGroup(ctx, groupID)
}

// SetRank выставляет произвольный ранг внутри диапазона группы. Только админ.
func (s *RankService) SetRank(ctx context.Context, actor model.Actor, groupID, studentID int64, rank int, reason string) error {
	if !actor.IsAdmin() {
		return apperr.Authorization("only administrators can set ranks directly")
	}

	err := s.txm.WithTx(ctx, func(ctx context.Context, r repository.Repos) error {
		group, err := r.Groups.GetByID(ctx, groupID)
		if err != nil {
			return err
		}
		if group == nil {
			return apperr.NotFound("group not found")
		}
		if rank < group.MinRank || rank > group.MaxRank {
			return apperr.Validation("rank %d is outside the group's range [%d, %d]", rank, group.MinRank, group.MaxRank)
		}

		m, err := r.Members.GetActiveByStudentForUpdate(ctx, studentID)
		if err != nil {
			return err
		}
		if m == nil || m.GroupID != groupID {
			return apperr.NotFound("student has no active membership in this group")
		}

		from := m.Rank
		m.Rank = rank

		if err := r.Members.Update(ctx, m); err != nil {
			return err
		}

		return r.Outbox.Insert(ctx, model.Event{
			Type: model.EventRankChanged,
			Payload: model.RankChangedPayload{
				StudentID: studentID,
				GroupID:   groupID,
				From:      from,
				To:        rank,
				Reason:    reason,
			},
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("Rank set",
		zap.Int64("student_id", studentID),
		zap.Int64("group_id", groupID),
		zap.Int("rank", rank),
	)

	return nil
}

// TransferGroup переводит ученика в новую группу: старое членство
// закрывается, ранг ограничивается диапазоном новой группы, фаза и
// счётчик пропусков сбрасываются — новый цикл обучения. Счётчики
// участников обеих групп меняются в той же транзакции.
func (s *RankService) TransferGroup(ctx context.Context, actor model.Actor, studentID, newGroupID int64, reason string) error {
	if !actor.IsAdmin() {
		return apperr.Authorization("only administrators can transfer students between groups")
	}

	var newRank int
	var oldGroupID int64

	err := s.txm.WithTx(ctx, func(ctx context.Context, r repository.Repos) error {
		m, err := r.Members.GetActiveByStudentForUpdate(ctx, studentID)
		if err != nil {
			return err
		}
		if m == nil {
			return apperr.NotFound("student has no active membership")
		}
		if m.GroupID == newGroupID {
			return apperr.Validation("student is already a member of this group")
		}

		newGroup, err := r.Groups.GetByIDForUpdate(ctx, newGroupID)
		if err != nil {
			return err
		}
		if newGroup == nil {
			return apperr.NotFound("target group not found")
		}

		oldGroupID = m.GroupID
		newRank = newGroup.ClampRank(m.Rank)
		now := s.clock()

		m.Status = model.MembershipStatusChanged
		if err := r.Members.Update(ctx, m); err != nil {
			return err
		}

		fresh := &model.GroupMembership{
			StudentID:      studentID,
			GroupID:        newGroupID,
			Phase:          model.PhaseCode,
			PhaseUpdatedAt: now,
			PhaseNotes:     reason,
			Rank:           newRank,
			Status:         model.MembershipStatusActive,
		}
		if err := r.Members.Create(ctx, fresh); err != nil {
			return err
		}

		if err := r.Groups.AdjustMemberCount(ctx, oldGroupID, -1); err != nil {
			return err
		}
		if err := r.Groups.AdjustMemberCount(ctx, newGroupID, +1); err != nil {
			return err
		}

		return r.Outbox.Insert(ctx, model.Event{
			Type: model.EventGroupTransferred,
			Payload: model.GroupTransferredPayload{
				StudentID:   studentID,
				FromGroupID: oldGroupID,
				ToGroupID:   newGroupID,
				Rank:        newRank,
			},
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("Student transferred",
		zap.Int64("student_id", studentID),
		zap.Int64("from_group", oldGroupID),
		zap.Int64("to_group", newGroupID),
		zap.Int("rank", newRank),
	)

	return nil
}

// ApplyExamOutcome принимает внешний результат экзамена.
// Успех закрывает программу (фаза passed) и повышает ранг; если ученик
// уже на максимуме, повышение пропускается, сам результат не падает.
func (s *RankService) ApplyExamOutcome(ctx context.Context, outcome model.ExamOutcome) error {
	err := s.txm.WithTx(ctx, func(ctx context.Context, r repository.Repos) error {
		m, err := r.Members.GetActiveByStudentForUpdate(ctx, outcome.StudentID)
		if err != nil {
			return err
		}
		if m == nil || m.GroupID != outcome.GroupID {
			return apperr.NotFound("student has no active membership in this group")
		}

		if outcome.Result == model.ExamResultPassed {
			group, err := r.Groups.GetByID(ctx, outcome.GroupID)
			if err != nil {
				return err
			}
			if group == nil {
				return apperr.NotFound("group not found")
			}

			if m.Rank < group.MaxRank {
				from := m.Rank
				m.Rank++
				if err := r.Outbox.Insert(ctx, model.Event{
					Type: model.EventRankChanged,
					Payload: model.RankChangedPayload{
						StudentID: outcome.StudentID,
						GroupID:   outcome.GroupID,
						From:      from,
						To:        m.Rank,
						Reason:    "exam passed",
					},
				}); err != nil {
					return err
				}
			} else {
				s.logger.Info("Rank up skipped, student already at maximum",
					zap.Int64("student_id", outcome.StudentID),
					zap.Int("rank", m.Rank),
				)
			}

			m.Phase = model.PhasePassed
			m.PhaseUpdatedAt = s.clock()
			m.PhaseNotes = "driving exam passed"
		}

		if err := r.Members.Update(ctx, m); err != nil {
			return err
		}

		return r.Outbox.Insert(ctx, model.Event{
			Type: model.EventExamRecorded,
			Payload: model.ExamRecordedPayload{
				StudentID: outcome.StudentID,
				GroupID:   outcome.GroupID,
				Result:    outcome.Result,
			},
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("Exam outcome applied",
		zap.Int64("student_id", outcome.StudentID),
		zap.String("result", string(outcome.Result)),
	)

	return nil
}
