package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType тип доменного события для outbox
type EventType string

const (
	EventBookingCreated   EventType = "booking.created"
	EventBookingCancelled EventType = "booking.cancelled"
	EventBookingCompleted EventType = "booking.completed"
	EventSlotCancelled    EventType = "slot.cancelled"
	EventAttendanceMarked EventType = "attendance.marked"
	EventAbsenceWarning   EventType = "absence.warning"
	EventAbsenceEscalated EventType = "absence.escalated"
	EventPhaseAdvanced    EventType = "phase.advanced"
	EventRankChanged      EventType = "rank.changed"
	EventGroupTransferred EventType = "group.transferred"
	EventExamRecorded     EventType = "exam.recorded"
)

// Event — доменное событие, записывается в outbox в той же транзакции
// что и основная мутация. Доставкой занимается отдельный диспетчер.
type Event struct {
	Type    EventType
	Payload any
}

// OutboxEvent строка таблицы outbox_events
type OutboxEvent struct {
	ID        uuid.UUID       `json:"id"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	Published bool            `json:"published"`
}

type BookingCreatedPayload struct {
	BookingID int64     `json:"booking_id"`
	SlotID    int64     `json:"slot_id"`
	StudentID int64     `json:"student_id"`
	StartTime time.Time `json:"start_time"`
}

type BookingCancelledPayload struct {
	BookingID int64     `json:"booking_id"`
	SlotID    int64     `json:"slot_id"`
	StudentID int64     `json:"student_id"`
	StartTime time.Time `json:"start_time"`
	Reason    string    `json:"reason"`
}

type BookingCompletedPayload struct {
	BookingID int64   `json:"booking_id"`
	StudentID int64   `json:"student_id"`
	Hours     float64 `json:"hours"`
	Rating    int     `json:"rating"`
}

type SlotCancelledPayload struct {
	SlotID     int64     `json:"slot_id"`
	OwnerID    int64     `json:"owner_id"`
	StartTime  time.Time `json:"start_time"`
	StudentIDs []int64   `json:"student_ids"` // ученики, чьи записи отменены каскадом
}

type AttendanceMarkedPayload struct {
	SessionID    int64 `json:"session_id"`
	GroupID      int64 `json:"group_id"`
	PresentCount int   `json:"present_count"`
	AbsentCount  int   `json:"absent_count"`
}

type AbsencePayload struct {
	StudentID   int64 `json:"student_id"`
	GroupID     int64 `json:"group_id"`
	Consecutive int   `json:"consecutive"`
}

type PhaseAdvancedPayload struct {
	StudentID int64 `json:"student_id"`
	GroupID   int64 `json:"group_id"`
	From      Phase `json:"from"`
	To        Phase `json:"to"`
}

type RankChangedPayload struct {
	StudentID int64  `json:"student_id"`
	GroupID   int64  `json:"group_id"`
	From      int    `json:"from"`
	To        int    `json:"to"`
	Reason    string `json:"reason"`
}

type GroupTransferredPayload struct {
	StudentID   int64 `json:"student_id"`
	FromGroupID int64 `json:"from_group_id"`
	ToGroupID   int64 `json:"to_group_id"`
	Rank        int   `json:"rank"`
}

type ExamRecordedPayload struct {
	StudentID int64      `json:"student_id"`
	GroupID   int64      `json:"group_id"`
	Result    ExamResult `json:"result"`
}
