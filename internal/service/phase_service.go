package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rouleplus/autoecole-core/internal/apperr"
	"github.com/rouleplus/autoecole-core/internal/model"
	"github.com/rouleplus/autoecole-core/internal/repository"
)

// PhaseService владеет позицией ученика в линейной программе.
// Переход возможен только на единственную следующую фазу, никогда назад
// и никогда через фазу. Терминальная passed выставляется экзаменом
// (RankService.ApplyExamOutcome), не этим сервисом.
type PhaseService struct {
	repos  repository.Repos
	txm    repository.TxManager
	logger *zap.Logger
	clock  func() time.Time
}

func NewPhaseService(repos repository.Repos, txm repository.TxManager, logger *zap.Logger) *PhaseService {
	return &PhaseService{
		repos:  repos,
		txm:    txm,
		logger: logger,
		clock:  time.Now,
	}
}

// UpdatePhase переводит ученика на следующую фазу программы
func (s *PhaseService) UpdatePhase(ctx context.Context, actor model.Actor, groupID, studentID int64, requested model.Phase, notes string) error {
	if !requested.Valid() {
		return apperr.Validation("unknown phase %q", requested)
	}

	var from model.Phase

	err := s.txm.WithTx(ctx, func(ctx context.Context, r repository.Repos) error {
		group, err := r.Groups.GetByID(ctx, groupID)
		if err != nil {
			return err
		}
		if group == nil {
			return apperr.NotFound("group not found")
		}
		if !actor.IsAdmin() && group.InstructorID != actor.UserID {
			return apperr.Authorization("only the group's instructor can update phases")
		}

		m, err := r.Members.GetActiveByStudentForUpdate(ctx, studentID)
		if err != nil {
			return err
		}
		if m == nil || m.GroupID != groupID {
			return apperr.NotFound("student has no active membership in this group")
		}

		next, ok := m.Phase.Next()
		if !ok {
			return apperr.Validation("phase %s is terminal and cannot be advanced", m.Phase)
		}
		if requested != next {
			return apperr.Validation("cannot move from %s to %s: the only allowed next phase is %s", m.Phase, requested, next)
		}

		from = m.Phase
		m.Phase = requested
		m.PhaseUpdatedAt = s.clock()
		actorID := actor.UserID
		m.PhaseUpdatedBy = &actorID
		m.PhaseNotes = notes

		if err := r.Members.Update(ctx, m); err != nil {
			return err
		}

		return r.Outbox.Insert(ctx, model.Event{
			Type: model.EventPhaseAdvanced,
			Payload: model.PhaseAdvancedPayload{
				StudentID: studentID,
				GroupID:   groupID,
				From:      from,
				To:        requested,
			},
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("Phase advanced",
		zap.Int64("student_id", studentID),
		zap.Int64("group_id", groupID),
		zap.String("from", string(from)),
		zap.String("to", string(requested)),
	)

	return nil
}
