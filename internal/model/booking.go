package model

import "time"

type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
)

type Booking struct {
	ID           int64         `json:"id"`
	SlotID       int64         `json:"slot_id"`
	StudentID    int64         `json:"student_id"`
	Status       BookingStatus `json:"status"`
	BookedAt     time.Time     `json:"booked_at"`
	CancelledAt  *time.Time    `json:"cancelled_at"` // указатель - может быть nil
	CancelReason string        `json:"cancel_reason"`

	// Поля завершения, заполняются инструктором после занятия
	HoursCompleted    float64 `json:"hours_completed"`
	PerformanceRating int     `json:"performance_rating"` // оценка 1-5
	SkillsImproved    string  `json:"skills_improved"`
	ReadyForNextLevel bool    `json:"ready_for_next_level"`

	UpdatedAt time.Time `json:"updated_at"`

	// Дополнительные поля для удобства (не из БД)
	Slot *ScheduleSlot `json:"slot,omitempty"`
}
