package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rouleplus/autoecole-core/internal/apperr"
	"github.com/rouleplus/autoecole-core/internal/model"
)

func TestMarkAttendance_TimeGate(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	group := e.seedGroup(instructor.UserID, 1, 5)
	e.seedMember(student.UserID, group.ID, model.PhaseCode, 1)

	// Сессия сегодня в 10:00
	start := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	session := e.seedSlot(instructor.UserID, &group.ID, start, 2*time.Hour, model.LessonTypeTheory, 20)

	// Завтрашнюю сессию отметить нельзя
	tomorrow := e.seedSlot(instructor.UserID, &group.ID, start.Add(24*time.Hour), 2*time.Hour, model.LessonTypeTheory, 20)
	err := e.attendance.MarkAttendance(ctx, instructor, tomorrow.ID, nil)
	assert.True(t, apperr.IsCode(err, apperr.CodeTiming))

	// 09:55 — сессия ещё не началась
	e.setClock(start.Add(-5 * time.Minute))
	err = e.attendance.MarkAttendance(ctx, instructor, session.ID, []int64{student.UserID})
	assert.True(t, apperr.IsCode(err, apperr.CodeTiming))

	// 10:01 — можно
	e.setClock(start.Add(time.Minute))
	assert.NoError(t, e.attendance.MarkAttendance(ctx, instructor, session.ID, []int64{student.UserID}))
}

func TestMarkAttendance_OncePerSession(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	group := e.seedGroup(instructor.UserID, 1, 5)
	e.seedMember(student.UserID, group.ID, model.PhaseCode, 1)
	session := e.seedSlot(instructor.UserID, &group.ID, testNow.Add(-2*time.Hour), time.Hour, model.LessonTypeTheory, 20)

	require.NoError(t, e.attendance.MarkAttendance(ctx, instructor, session.ID, []int64{student.UserID}))

	err := e.attendance.MarkAttendance(ctx, instructor, session.ID, []int64{student.UserID})
	assert.True(t, apperr.IsCode(err, apperr.CodeConflict))
}

func TestMarkAttendance_GroupSessionOnly(t *testing.T) {
	e := newEnv()

	individual := e.seedSlot(instructor.UserID, nil, testNow.Add(-2*time.Hour), time.Hour, model.LessonTypePractical, 1)

	err := e.attendance.MarkAttendance(context.Background(), instructor, individual.ID, nil)
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
}

func TestMarkAttendance_Authorization(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	group := e.seedGroup(instructor.UserID, 1, 5)
	e.seedMember(student.UserID, group.ID, model.PhaseCode, 1)
	session := e.seedSlot(instructor.UserID, &group.ID, testNow.Add(-2*time.Hour), time.Hour, model.LessonTypeTheory, 20)

	other := model.Actor{UserID: 11, Role: model.RoleInstructor}
	err := e.attendance.MarkAttendance(ctx, other, session.ID, nil)
	assert.True(t, apperr.IsCode(err, apperr.CodeAuthorization))

	// Администратор может отметить чужую сессию
	assert.NoError(t, e.attendance.MarkAttendance(ctx, admin, session.ID, []int64{student.UserID}))
}

func TestMarkAttendance_PresentResetsAbsencesAndAddsHours(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	group := e.seedGroup(instructor.UserID, 1, 5)
	m := e.seedMember(student.UserID, group.ID, model.PhaseCode, 1)
	m.ConsecutiveAbsences = 2

	session := e.seedSlot(instructor.UserID, &group.ID, testNow.Add(-3*time.Hour), 2*time.Hour, model.LessonTypeTheory, 20)

	require.NoError(t, e.attendance.MarkAttendance(ctx, instructor, session.ID, []int64{student.UserID}))

	assert.Equal(t, 0, m.ConsecutiveAbsences)
	progress := e.store.progress[student.UserID]
	require.NotNil(t, progress)
	assert.InDelta(t, 2.0, progress.TotalHours, 1e-9)
	assert.Empty(t, e.store.eventsOfType(model.EventAbsenceWarning))

	marked := e.store.eventsOfType(model.EventAttendanceMarked)
	require.Len(t, marked, 1)
	summary := marked[0].Payload.(model.AttendanceMarkedPayload)
	assert.Equal(t, 1, summary.PresentCount)
	assert.Equal(t, 0, summary.AbsentCount)
}

func TestMarkAttendance_AbsenceEscalatesExactlyOnce(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	group := e.seedGroup(instructor.UserID, 1, 5)
	m := e.seedMember(student.UserID, group.ID, model.PhaseCode, 1)

	// Четыре сессии подряд, ученик не пришёл ни на одну
	for i := 0; i < 4; i++ {
		session := e.seedSlot(instructor.UserID, &group.ID, testNow.Add(-time.Duration(10-i)*time.Hour), time.Hour, model.LessonTypeTheory, 20)
		require.NoError(t, e.attendance.MarkAttendance(ctx, instructor, session.ID, nil))
	}

	assert.Equal(t, 4, m.ConsecutiveAbsences)
	assert.Len(t, e.store.eventsOfType(model.EventAbsenceWarning), 4)

	// Эскалация ровно на пересечении порога, четвёртый пропуск её не дублирует
	escalations := e.store.eventsOfType(model.EventAbsenceEscalated)
	require.Len(t, escalations, 1)
	payload := escalations[0].Payload.(model.AbsencePayload)
	assert.Equal(t, student.UserID, payload.StudentID)
	assert.Equal(t, 3, payload.Consecutive)
}

func TestMarkAttendance_MixedGroup(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	group := e.seedGroup(instructor.UserID, 1, 5)
	present := e.seedMember(student.UserID, group.ID, model.PhaseCode, 1)
	absent := e.seedMember(student2.UserID, group.ID, model.PhaseCode, 1)

	session := e.seedSlot(instructor.UserID, &group.ID, testNow.Add(-2*time.Hour), time.Hour, model.LessonTypeTheory, 20)

	require.NoError(t, e.attendance.MarkAttendance(ctx, instructor, session.ID, []int64{student.UserID}))

	assert.Equal(t, 0, present.ConsecutiveAbsences)
	assert.Equal(t, 1, absent.ConsecutiveAbsences)
	require.Len(t, e.store.attendance, 2)
}

func TestGetGroupAttendanceHistory(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	group := e.seedGroup(instructor.UserID, 1, 5)
	e.seedMember(student.UserID, group.ID, model.PhaseCode, 1)
	e.seedMember(student2.UserID, group.ID, model.PhaseCode, 1)

	older := e.seedSlot(instructor.UserID, &group.ID, testNow.Add(-26*time.Hour), time.Hour, model.LessonTypeTheory, 20)
	recent := e.seedSlot(instructor.UserID, &group.ID, testNow.Add(-2*time.Hour), time.Hour, model.LessonTypeTheory, 20)

	require.NoError(t, e.attendance.MarkAttendance(ctx, instructor, older.ID, []int64{student.UserID, student2.UserID}))
	require.NoError(t, e.attendance.MarkAttendance(ctx, instructor, recent.ID, []int64{student.UserID}))

	history, err := e.attendance.GetGroupAttendanceHistory(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)

	// Свежие сессии первыми
	assert.Equal(t, recent.ID, history[0].SessionID)
	assert.Equal(t, 1, history[0].PresentCount)
	assert.Equal(t, 1, history[0].AbsentCount)
	assert.Equal(t, []int64{student2.UserID}, history[0].AbsentStudentIDs)

	assert.Equal(t, older.ID, history[1].SessionID)
	assert.Equal(t, 2, history[1].PresentCount)
	assert.Equal(t, 0, history[1].AbsentCount)
}

func TestGetTodaySessionsForGroup(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	group := e.seedGroup(instructor.UserID, 1, 5)
	today := e.seedSlot(instructor.UserID, &group.ID, testNow.Add(3*time.Hour), time.Hour, model.LessonTypeTheory, 20)
	e.seedSlot(instructor.UserID, &group.ID, testNow.Add(27*time.Hour), time.Hour, model.LessonTypeTheory, 20) // завтра

	sessions, err := e.attendance.GetTodaySessionsForGroup(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, today.ID, sessions[0].ID)
}
