package model

import "time"

// StudentProgress — накопленные часы и оценки ученика.
// Пополняется завершением индивидуальных занятий и посещением групповых сессий.
type StudentProgress struct {
	StudentID   int64     `json:"student_id"`
	TotalHours  float64   `json:"total_hours"`
	RatingSum   int       `json:"rating_sum"`
	RatingCount int       `json:"rating_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AverageRating средняя оценка, 0 если оценок ещё нет
func (p *StudentProgress) AverageRating() float64 {
	if p.RatingCount == 0 {
		return 0
	}
	return float64(p.RatingSum) / float64(p.RatingCount)
}
