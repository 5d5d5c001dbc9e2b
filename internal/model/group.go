package model

import "time"

// Phase — позиция ученика в линейной программе обучения.
// Порядок фиксированный: code -> creneau -> conduite -> exam_preparation.
// Терминальная фаза passed выставляется только по результату экзамена.
type Phase string

const (
	PhaseCode     Phase = "code"
	PhaseCreneau  Phase = "creneau"
	PhaseConduite Phase = "conduite"
	PhaseExamPrep Phase = "exam_preparation"
	PhasePassed   Phase = "passed"
)

// Next возвращает единственную допустимую следующую фазу.
// Для exam_preparation и passed перехода нет.
func (p Phase) Next() (Phase, bool) {
	switch p {
	case PhaseCode:
		return PhaseCreneau, true
	case PhaseCreneau:
		return PhaseConduite, true
	case PhaseConduite:
		return PhaseExamPrep, true
	}
	return "", false
}

func (p Phase) Valid() bool {
	switch p {
	case PhaseCode, PhaseCreneau, PhaseConduite, PhaseExamPrep, PhasePassed:
		return true
	}
	return false
}

type Group struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	InstructorID int64     `json:"instructor_id"`
	MinRank      int       `json:"min_rank"`
	MaxRank      int       `json:"max_rank"`
	MemberCount  int       `json:"member_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// ClampRank приводит ранг в допустимый диапазон группы
func (g *Group) ClampRank(rank int) int {
	if rank > g.MaxRank {
		return g.MaxRank
	}
	if rank < g.MinRank {
		return g.MinRank
	}
	return rank
}

type MembershipStatus string

const (
	MembershipStatusActive  MembershipStatus = "active"
	MembershipStatusRemoved MembershipStatus = "removed"
	MembershipStatusChanged MembershipStatus = "changed" // закрыта переводом в другую группу
)

type GroupMembership struct {
	ID                  int64            `json:"id"`
	StudentID           int64            `json:"student_id"`
	GroupID             int64            `json:"group_id"`
	Phase               Phase            `json:"phase"`
	PhaseUpdatedAt      time.Time        `json:"phase_updated_at"`
	PhaseUpdatedBy      *int64           `json:"phase_updated_by"`
	PhaseNotes          string           `json:"phase_notes"`
	ConsecutiveAbsences int              `json:"consecutive_absences"`
	Rank                int              `json:"rank"`
	Status              MembershipStatus `json:"status"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

type ExamResult string

const (
	ExamResultPassed ExamResult = "passed"
	ExamResultFailed ExamResult = "failed"
)

// ExamOutcome — внешнее событие, ядро его потребляет но не владеет им
type ExamOutcome struct {
	StudentID int64      `json:"student_id"`
	GroupID   int64      `json:"group_id"`
	Result    ExamResult `json:"result"`
}
