package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rouleplus/autoecole-core/internal/repository/base"
)

// Repos — набор репозиториев, связанных одним Querier.
// Привязанный к пулу набор годится для чтений, привязанный
// к транзакции — для мутаций внутри TxManager.WithTx.
type Repos struct {
	Slots      SlotRepository
	Bookings   BookingRepository
	Groups     GroupRepository
	Members    MembershipRepository
	Attendance AttendanceRepository
	Progress   ProgressRepository
	Outbox     OutboxRepository
}

// NewRepos создаёт набор репозиториев поверх пула или транзакции
func NewRepos(db base.Querier) Repos {
	return Repos{
		Slots:      NewPgxSlotRepository(db),
		Bookings:   NewPgxBookingRepository(db),
		Groups:     NewPgxGroupRepository(db),
		Members:    NewPgxMembershipRepository(db),
		Attendance: NewPgxAttendanceRepository(db),
		Progress:   NewPgxProgressRepository(db),
		Outbox:     NewPgxOutboxRepository(db),
	}
}

// TxManager выполняет функцию внутри одной транзакции БД.
// Все check-then-act последовательности ядра (проверка пересечений,
// проверка вместимости, защита от повторной отметки) обязаны идти
// через него, иначе конкурентные запросы могут обе пройти проверку.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
}

type PgxTxManager struct {
	pool *pgxpool.Pool
}

func NewPgxTxManager(pool *pgxpool.Pool) *PgxTxManager {
	return &PgxTxManager{pool: pool}
}

func (m *PgxTxManager) WithTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, NewRepos(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}
