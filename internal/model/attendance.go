package model

import "time"

type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
)

type AttendanceRecord struct {
	ID        int64            `json:"id"`
	SessionID int64            `json:"session_id"` // id группового слота расписания
	StudentID int64            `json:"student_id"`
	Date      time.Time        `json:"date"`
	Status    AttendanceStatus `json:"status"`
	MarkedBy  int64            `json:"marked_by"`
	MarkedAt  time.Time        `json:"marked_at"`
}

// AttendanceDaySummary — агрегат посещаемости одной сессии.
// Имена отсутствующих резолвит портал по их id, ядро имён не хранит.
type AttendanceDaySummary struct {
	SessionID        int64     `json:"session_id"`
	Date             time.Time `json:"date"`
	PresentCount     int       `json:"present_count"`
	AbsentCount      int       `json:"absent_count"`
	AbsentStudentIDs []int64   `json:"absent_student_ids"`
}
