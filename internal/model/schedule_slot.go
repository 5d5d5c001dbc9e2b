package model

import "time"

type SlotStatus string

const (
	SlotStatusAvailable SlotStatus = "available"
	SlotStatusBooked    SlotStatus = "booked"
	SlotStatusCompleted SlotStatus = "completed"
	SlotStatusCancelled SlotStatus = "cancelled"
)

type LessonType string

const (
	LessonTypeTheory    LessonType = "theory"
	LessonTypePractical LessonType = "practical"
	LessonTypeExamPrep  LessonType = "exam_prep"
)

// Valid проверяет что тип занятия один из известных
func (t LessonType) Valid() bool {
	switch t {
	case LessonTypeTheory, LessonTypePractical, LessonTypeExamPrep:
		return true
	}
	return false
}

type ScheduleSlot struct {
	ID          int64      `json:"id"`
	OwnerID     int64      `json:"owner_id"` // инструктор-владелец слота
	GroupID     *int64     `json:"group_id"` // указатель - заполнен только для групповых сессий
	Date        time.Time  `json:"date"`     // день занятия, без компоненты времени
	StartTime   time.Time  `json:"start_time"`
	EndTime     time.Time  `json:"end_time"`
	LessonType  LessonType `json:"lesson_type"`
	Capacity    int        `json:"capacity"`
	BookedCount int        `json:"booked_count"`
	Status      SlotStatus `json:"status"`
	Location    string     `json:"location"`
	Notes       string     `json:"notes"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Overlaps проверяет пересечение интервала слота с [start, end)
func (s *ScheduleSlot) Overlaps(start, end time.Time) bool {
	return start.Before(s.EndTime) && end.After(s.StartTime)
}

// HasFreeCapacity true если в слот ещё можно записаться
func (s *ScheduleSlot) HasFreeCapacity() bool {
	return s.BookedCount < s.Capacity
}

// IsGroupSession true если слот привязан к группе
func (s *ScheduleSlot) IsGroupSession() bool {
	return s.GroupID != nil
}

// Duration длительность занятия в часах
func (s *ScheduleSlot) Duration() float64 {
	return s.EndTime.Sub(s.StartTime).Hours()
}
