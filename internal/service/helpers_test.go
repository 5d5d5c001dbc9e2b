package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rouleplus/autoecole-core/internal/config"
	"github.com/rouleplus/autoecole-core/internal/model"
)

// Понедельник 09:00 UTC, от него отсчитываются все времена в тестах
var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

var (
	admin      = model.Actor{UserID: 1, Role: model.RoleAdmin}
	instructor = model.Actor{UserID: 10, Role: model.RoleInstructor}
	student    = model.Actor{UserID: 100, Role: model.RoleStudent}
	student2   = model.Actor{UserID: 101, Role: model.RoleStudent}
)

func testConfig() *config.Config {
	return &config.Config{
		BookingFreezeWindow:        config.FreezeWindow,
		MinHoursForExam:            20,
		MinRatingForExam:           3.5,
		AbsenceEscalationThreshold: 3,
		AttendanceLookbackDays:     60,
		DefaultCapacityTheory:      20,
		DefaultCapacityExamPrep:    5,
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// fakeCache реализует AvailabilityCache в памяти, запоминая инвалидации
type fakeCache struct {
	entries     map[string][]*model.ScheduleSlot
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]*model.ScheduleSlot)}
}

func fakeCacheKey(lessonType model.LessonType, day time.Time) string {
	return fmt.Sprintf("%s:%s", lessonType, day.Format("2006-01-02"))
}

func (c *fakeCache) Get(_ context.Context, lessonType model.LessonType, day time.Time) ([]*model.ScheduleSlot, bool) {
	slots, ok := c.entries[fakeCacheKey(lessonType, day)]
	return slots, ok
}

func (c *fakeCache) Set(_ context.Context, lessonType model.LessonType, day time.Time, slots []*model.ScheduleSlot) {
	c.entries[fakeCacheKey(lessonType, day)] = slots
}

func (c *fakeCache) Invalidate(_ context.Context, lessonType model.LessonType, day time.Time) {
	key := fakeCacheKey(lessonType, day)
	delete(c.entries, key)
	c.invalidated = append(c.invalidated, key)
}

type env struct {
	store      *memStore
	schedule   *ScheduleService
	bookings   *BookingService
	attendance *AttendanceService
	phases     *PhaseService
	ranks      *RankService
}

func newEnv() *env {
	store := newMemStore()
	repos := store.repos()
	txm := &memTxManager{store: store}
	cfg := testConfig()
	logger := zap.NewNop()

	e := &env{
		store:      store,
		schedule:   NewScheduleService(repos, txm, nil, cfg, logger),
		bookings:   NewBookingService(repos, txm, nil, cfg, logger),
		attendance: NewAttendanceService(repos, txm, cfg, logger),
		phases:     NewPhaseService(repos, txm, logger),
		ranks:      NewRankService(repos, txm, logger),
	}
	e.schedule.clock = fixedClock(testNow)
	e.bookings.clock = fixedClock(testNow)
	e.attendance.clock = fixedClock(testNow)
	e.phases.clock = fixedClock(testNow)
	e.ranks.clock = fixedClock(testNow)
	return e
}

func (e *env) setClock(t time.Time) {
	e.schedule.clock = fixedClock(t)
	e.bookings.clock = fixedClock(t)
	e.attendance.clock = fixedClock(t)
	e.phases.clock = fixedClock(t)
	e.ranks.clock = fixedClock(t)
}

// seedSlot кладёт слот напрямую в стор, мимо проверок сервиса
func (e *env) seedSlot(ownerID int64, groupID *int64, start time.Time, duration time.Duration, lessonType model.LessonType, capacity int) *model.ScheduleSlot {
	slot := &model.ScheduleSlot{
		ID:         e.store.id(),
		OwnerID:    ownerID,
		GroupID:    groupID,
		Date:       dateOf(start),
		StartTime:  start,
		EndTime:    start.Add(duration),
		LessonType: lessonType,
		Capacity:   capacity,
		Status:     model.SlotStatusAvailable,
	}
	e.store.slots[slot.ID] = slot
	return slot
}

func (e *env) seedGroup(instructorID int64, minRank, maxRank int) *model.Group {
	group := &model.Group{
		ID:           e.store.id(),
		Name:         "Groupe B",
		InstructorID: instructorID,
		MinRank:      minRank,
		MaxRank:      maxRank,
	}
	e.store.groups[group.ID] = group
	return group
}

func (e *env) seedMember(studentID, groupID int64, phase model.Phase, rank int) *model.GroupMembership {
	m := &model.GroupMembership{
		ID:        e.store.id(),
		StudentID: studentID,
		GroupID:   groupID,
		Phase:     phase,
		Rank:      rank,
		Status:    model.MembershipStatusActive,
	}
	e.store.memberships[m.ID] = m
	e.store.groups[groupID].MemberCount++
	return m
}
