package service

// Инмемори-фейки репозиториев для юнит-тестов сервисов.
// Транзакционность не эмулируется: WithTx просто выполняет функцию
// над общим стором, проверяются бизнес-правила, не изоляция.

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rouleplus/autoecole-core/internal/model"
	"github.com/rouleplus/autoecole-core/internal/repository"
)

type memStore struct {
	slots       map[int64]*model.ScheduleSlot
	bookings    map[int64]*model.Booking
	groups      map[int64]*model.Group
	memberships map[int64]*model.GroupMembership
	attendance  []*model.AttendanceRecord
	progress    map[int64]*model.StudentProgress
	events      []model.Event
	lockedDays  []string // ключи advisory-блокировок инструктор+день
	nextID      int64
}

func newMemStore() *memStore {
	return &memStore{
		slots:       make(map[int64]*model.ScheduleSlot),
		bookings:    make(map[int64]*model.Booking),
		groups:      make(map[int64]*model.Group),
		memberships: make(map[int64]*model.GroupMembership),
		progress:    make(map[int64]*model.StudentProgress),
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) repos() repository.Repos {
	return repository.Repos{
		Slots:      &memSlots{s},
		Bookings:   &memBookings{s},
		Groups:     &memGroups{s},
		Members:    &memMembers{s},
		Attendance: &memAttendance{s},
		Progress:   &memProgress{s},
		Outbox:     &memOutbox{s},
	}
}

func (s *memStore) eventsOfType(t model.EventType) []model.Event {
	var out []model.Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type memTxManager struct {
	store *memStore
}

func (m *memTxManager) WithTx(ctx context.Context, fn func(ctx context.Context, r repository.Repos) error) error {
	return fn(ctx, m.store.repos())
}

// ---- slots ----

type memSlots struct{ s *memStore }

func (r *memSlots) LockOwnerDay(_ context.Context, ownerID int64, date time.Time) error {
	r.s.lockedDays = append(r.s.lockedDays, fmt.Sprintf("%d:%s", ownerID, date.Format("2006-01-02")))
	return nil
}

func (r *memSlots) Create(_ context.Context, slot *model.ScheduleSlot) error {
	slot.ID = r.s.id()
	slot.CreatedAt = time.Now()
	r.s.slots[slot.ID] = slot
	return nil
}

func (r *memSlots) GetByID(_ context.Context, id int64) (*model.ScheduleSlot, error) {
	return r.s.slots[id], nil
}

func (r *memSlots) GetByIDForUpdate(ctx context.Context, id int64) (*model.ScheduleSlot, error) {
	return r.GetByID(ctx, id)
}

func (r *memSlots) ListByOwnerAndDate(_ context.Context, ownerID int64, date time.Time) ([]*model.ScheduleSlot, error) {
	var out []*model.ScheduleSlot
	for _, slot := range r.s.slots {
		if slot.OwnerID == ownerID && slot.Date.Equal(date) {
			out = append(out, slot)
		}
	}
	sortSlots(out)
	return out, nil
}

func (r *memSlots) ListByOwnerAndDateForUpdate(ctx context.Context, ownerID int64, date time.Time) ([]*model.ScheduleSlot, error) {
	return r.ListByOwnerAndDate(ctx, ownerID, date)
}

func (r *memSlots) ListByOwner(_ context.Context, ownerID int64, from, to time.Time) ([]*model.ScheduleSlot, error) {
	var out []*model.ScheduleSlot
	for _, slot := range r.s.slots {
		if slot.OwnerID == ownerID && !slot.StartTime.Before(from) && slot.StartTime.Before(to) {
			out = append(out, slot)
		}
	}
	sortSlots(out)
	return out, nil
}

func (r *memSlots) ListByGroupAndDate(_ context.Context, groupID int64, date time.Time) ([]*model.ScheduleSlot, error) {
	var out []*model.ScheduleSlot
	for _, slot := range r.s.slots {
		if slot.GroupID != nil && *slot.GroupID == groupID &&
			slot.Date.Equal(date) && slot.Status != model.SlotStatusCancelled {
			out = append(out, slot)
		}
	}
	sortSlots(out)
	return out, nil
}

func (r *memSlots) ListAvailable(_ context.Context, filter repository.SlotFilter) ([]*model.ScheduleSlot, error) {
	var out []*model.ScheduleSlot
	for _, slot := range r.s.slots {
		if slot.Status != model.SlotStatusAvailable || !slot.HasFreeCapacity() {
			continue
		}
		if slot.StartTime.Before(filter.From) || !slot.StartTime.Before(filter.To) {
			continue
		}
		if filter.LessonType != nil && slot.LessonType != *filter.LessonType {
			continue
		}
		if filter.OwnerID != nil && slot.OwnerID != *filter.OwnerID {
			continue
		}
		out = append(out, slot)
	}
	sortSlots(out)
	return out, nil
}

func (r *memSlots) Update(_ context.Context, slot *model.ScheduleSlot) error {
	r.s.slots[slot.ID] = slot
	return nil
}

func sortSlots(slots []*model.ScheduleSlot) {
	sort.Slice(slots, func(i, j int) bool { return slots[i].StartTime.Before(slots[j].StartTime) })
}

// ---- bookings ----

type memBookings struct{ s *memStore }

func (r *memBookings) Create(_ context.Context, booking *model.Booking) error {
	booking.ID = r.s.id()
	booking.UpdatedAt = time.Now()
	r.s.bookings[booking.ID] = booking
	return nil
}

func (r *memBookings) GetByID(_ context.Context, id int64) (*model.Booking, error) {
	return r.s.bookings[id], nil
}

func (r *memBookings) GetConfirmedBySlotAndStudent(_ context.Context, slotID, studentID int64) (*model.Booking, error) {
	for _, b := range r.s.bookings {
		if b.SlotID == slotID && b.StudentID == studentID && b.Status == model.BookingStatusConfirmed {
			return b, nil
		}
	}
	return nil, nil
}

func (r *memBookings) ListConfirmedBySlot(_ context.Context, slotID int64) ([]*model.Booking, error) {
	var out []*model.Booking
	for _, b := range r.s.bookings {
		if b.SlotID == slotID && b.Status == model.BookingStatusConfirmed {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *memBookings) ListByStudent(_ context.Context, studentID int64) ([]*model.Booking, error) {
	var out []*model.Booking
	for _, b := range r.s.bookings {
		if b.StudentID == studentID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *memBookings) Update(_ context.Context, booking *model.Booking) error {
	r.s.bookings[booking.ID] = booking
	return nil
}

// ---- groups ----

type memGroups struct{ s *memStore }

func (r *memGroups) Create(_ context.Context, group *model.Group) error {
	group.ID = r.s.id()
	group.CreatedAt = time.Now()
	r.s.groups[group.ID] = group
	return nil
}

func (r *memGroups) GetByID(_ context.Context, id int64) (*model.Group, error) {
	return r.s.groups[id], nil
}

func (r *memGroups) GetByIDForUpdate(ctx context.Context, id int64) (*model.Group, error) {
	return r.GetByID(ctx, id)
}

func (r *memGroups) AdjustMemberCount(_ context.Context, id int64, delta int) error {
	r.s.groups[id].MemberCount += delta
	return nil
}

// ---- memberships ----

type memMembers struct{ s *memStore }

func (r *memMembers) Create(_ context.Context, m *model.GroupMembership) error {
	m.ID = r.s.id()
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt
	r.s.memberships[m.ID] = m
	return nil
}

func (r *memMembers) GetActiveByStudent(_ context.Context, studentID int64) (*model.GroupMembership, error) {
	for _, m := range r.s.memberships {
		if m.StudentID == studentID && m.Status == model.MembershipStatusActive {
			return m, nil
		}
	}
	return nil, nil
}

func (r *memMembers) GetActiveByStudentForUpdate(ctx context.Context, studentID int64) (*model.GroupMembership, error) {
	return r.GetActiveByStudent(ctx, studentID)
}

func (r *memMembers) ListActiveByGroup(_ context.Context, groupID int64) ([]*model.GroupMembership, error) {
	var out []*model.GroupMembership
	for _, m := range r.s.memberships {
		if m.GroupID == groupID && m.Status == model.MembershipStatusActive {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (r *memMembers) ListActiveByGroupForUpdate(ctx context.Context, groupID int64) ([]*model.GroupMembership, error) {
	return r.ListActiveByGroup(ctx, groupID)
}

func (r *memMembers) Update(_ context.Context, m *model.GroupMembership) error {
	r.s.memberships[m.ID] = m
	return nil
}

// ---- attendance ----

type memAttendance struct{ s *memStore }

func (r *memAttendance) CreateRecords(_ context.Context, records []*model.AttendanceRecord) error {
	for _, rec := range records {
		for _, existing := range r.s.attendance {
			if existing.SessionID == rec.SessionID && existing.StudentID == rec.StudentID {
				// Та же ошибка, что отдал бы Postgres на unique-индексе
				return &pgconn.PgError{Code: "23505"}
			}
		}
	}
	for _, rec := range records {
		rec.ID = r.s.id()
		r.s.attendance = append(r.s.attendance, rec)
	}
	return nil
}

func (r *memAttendance) ExistsForSession(_ context.Context, sessionID int64) (bool, error) {
	for _, rec := range r.s.attendance {
		if rec.SessionID == sessionID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memAttendance) ListByGroupSince(_ context.Context, groupID int64, since time.Time) ([]*model.AttendanceRecord, error) {
	var out []*model.AttendanceRecord
	for _, rec := range r.s.attendance {
		slot := r.s.slots[rec.SessionID]
		if slot == nil || slot.GroupID == nil || *slot.GroupID != groupID {
			continue
		}
		if rec.Date.Before(since) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// ---- progress ----

type memProgress struct{ s *memStore }

func (r *memProgress) Get(_ context.Context, studentID int64) (*model.StudentProgress, error) {
	if p, ok := r.s.progress[studentID]; ok {
		return p, nil
	}
	return &model.StudentProgress{StudentID: studentID}, nil
}

func (r *memProgress) ensure(studentID int64) *model.StudentProgress {
	p, ok := r.s.progress[studentID]
	if !ok {
		p = &model.StudentProgress{StudentID: studentID}
		r.s.progress[studentID] = p
	}
	return p
}

func (r *memProgress) AddHours(_ context.Context, studentID int64, hours float64) error {
	p := r.ensure(studentID)
	p.TotalHours += hours
	return nil
}

func (r *memProgress) AddCompletedLesson(_ context.Context, studentID int64, hours float64, rating int) error {
	p := r.ensure(studentID)
	p.TotalHours += hours
	p.RatingSum += rating
	p.RatingCount++
	return nil
}

// ---- outbox ----

type memOutbox struct{ s *memStore }

func (r *memOutbox) Insert(_ context.Context, event model.Event) error {
	r.s.events = append(r.s.events, event)
	return nil
}

func (r *memOutbox) ListUnpublished(_ context.Context, _ int) ([]*model.OutboxEvent, error) {
	return nil, nil
}

func (r *memOutbox) MarkPublished(_ context.Context, _ uuid.UUID) error {
	return nil
}
