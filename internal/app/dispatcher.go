package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rouleplus/autoecole-core/internal/model"
	"github.com/rouleplus/autoecole-core/internal/notify"
	"github.com/rouleplus/autoecole-core/internal/repository"
)

// Dispatcher доставляет события из outbox адресатам.
// Доставка best-effort: сбой логируется, событие остаётся
// неопубликованным и уходит на следующем тике.
type Dispatcher struct {
	outbox      repository.OutboxRepository
	sender      notify.Sender
	adminChatID int64
	interval    time.Duration
	logger      *zap.Logger
	stopChan    chan struct{}
}

func NewDispatcher(
	outbox repository.OutboxRepository,
	sender notify.Sender,
	adminChatID int64,
	interval time.Duration,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		outbox:      outbox,
		sender:      sender,
		adminChatID: adminChatID,
		interval:    interval,
		logger:      logger,
		stopChan:    make(chan struct{}),
	}
}

// Start запускает фоновую доставку
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Starting outbox dispatcher", zap.Duration("interval", d.interval))
	go d.run(ctx)
}

// Stop останавливает фоновую доставку
func (d *Dispatcher) Stop() {
	d.logger.Info("Stopping outbox dispatcher")
	close(d.stopChan)
}

func (d *Dispatcher) run(ctx context.Context) {
	// Первый проход сразу при старте
	d.dispatchPending(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.dispatchPending(ctx)
		case <-d.stopChan:
			d.logger.Info("Outbox dispatcher stopped")
			return
		case <-ctx.Done():
			d.logger.Info("Outbox dispatcher cancelled")
			return
		}
	}
}

func (d *Dispatcher) dispatchPending(ctx context.Context) {
	events, err := d.outbox.ListUnpublished(ctx, 50)
	if err != nil {
		d.logger.Error("Failed to load outbox events", zap.Error(err))
		return
	}

	for _, event := range events {
		recipient, text, err := d.render(event)
		if err != nil {
			d.logger.Error("Failed to render event",
				zap.String("event_id", event.ID.String()),
				zap.String("event_type", string(event.Type)),
				zap.Error(err),
			)
			// Событие нечитаемо, ретрай бессмысленен — помечаем и идём дальше
			if err := d.outbox.MarkPublished(ctx, event.ID); err != nil {
				d.logger.Error("Failed to mark event published", zap.Error(err))
			}
			continue
		}

		if recipient != 0 && d.sender != nil {
			if err := d.sender.Send(ctx, recipient, text); err != nil {
				d.logger.Warn("Notification delivery failed, will retry",
					zap.String("event_id", event.ID.String()),
					zap.Int64("recipient", recipient),
					zap.Error(err),
				)
				continue
			}
		}

		if err := d.outbox.MarkPublished(ctx, event.ID); err != nil {
			d.logger.Error("Failed to mark event published",
				zap.String("event_id", event.ID.String()),
				zap.Error(err),
			)
		}
	}
}

// render превращает событие в адресата и текст уведомления.
// Нулевой адресат означает "доставлять некому" (событие только для журнала).
func (d *Dispatcher) render(event *model.OutboxEvent) (int64, string, error) {
	switch event.Type {
	case model.EventBookingCreated:
		var p model.BookingCreatedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return 0, "", err
		}
		return p.StudentID, fmt.Sprintf("✅ Your lesson on %s is booked.", p.StartTime.Format("02.01 15:04")), nil

	case model.EventBookingCancelled:
		var p model.BookingCancelledPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return 0, "", err
		}
		return p.StudentID, fmt.Sprintf("❌ Your lesson on %s was cancelled.", p.StartTime.Format("02.01 15:04")), nil

	case model.EventBookingCompleted:
		var p model.BookingCompletedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return 0, "", err
		}
		return p.StudentID, fmt.Sprintf("📝 Lesson completed: %.1f hours, rating %d/5.", p.Hours, p.Rating), nil

	case model.EventSlotCancelled:
		var p model.SlotCancelledPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return 0, "", err
		}
		// Каскадная отмена: уведомляем администраторов, затронутые ученики
		// получают отдельные booking.cancelled события
		return d.adminChatID, fmt.Sprintf("Slot %d (%s) was cancelled, %d bookings affected.",
			p.SlotID, p.StartTime.Format("02.01 15:04"), len(p.StudentIDs)), nil

	case model.EventAbsenceWarning:
		var p model.AbsencePayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return 0, "", err
		}
		return p.StudentID, fmt.Sprintf("⚠️ You missed a group session (%d in a row).", p.Consecutive), nil

	case model.EventAbsenceEscalated:
		var p model.AbsencePayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return 0, "", err
		}
		return d.adminChatID, fmt.Sprintf("🚨 Student %d reached %d consecutive absences in group %d.",
			p.StudentID, p.Consecutive, p.GroupID), nil

	case model.EventPhaseAdvanced:
		var p model.PhaseAdvancedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return 0, "", err
		}
		return p.StudentID, fmt.Sprintf("🎉 You advanced to the %s phase!", p.To), nil

	case model.EventRankChanged:
		var p model.RankChangedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return 0, "", err
		}
		return p.StudentID, fmt.Sprintf("⭐ Your rank changed: %d → %d.", p.From, p.To), nil

	case model.EventGroupTransferred:
		var p model.GroupTransferredPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return 0, "", err
		}
		return p.StudentID, fmt.Sprintf("You were transferred to a new group (rank %d, phase reset to code).", p.Rank), nil

	case model.EventExamRecorded:
		var p model.ExamRecordedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return 0, "", err
		}
		if p.Result == model.ExamResultPassed {
			return p.StudentID, "🏆 Congratulations, you passed your driving exam!", nil
		}
		return p.StudentID, "Your exam result has been recorded. Keep practicing!", nil

	case model.EventAttendanceMarked:
		// Сводка по сессии, персональной доставки нет
		return 0, "", nil
	}

	return 0, "", fmt.Errorf("unknown event type %q", event.Type)
}
