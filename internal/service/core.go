package service

import (
	"go.uber.org/zap"

	"github.com/rouleplus/autoecole-core/internal/config"
	"github.com/rouleplus/autoecole-core/internal/repository"
)

// Core — in-process граница ядра. Слой портала (HTTP, боты) получает
// этот набор сервисов и не трогает репозитории напрямую.
type Core struct {
	Schedule   *ScheduleService
	Bookings   *BookingService
	Attendance *AttendanceService
	Phases     *PhaseService
	Ranks      *RankService
}

func NewCore(
	repos repository.Repos,
	txm repository.TxManager,
	availCache AvailabilityCache,
	cfg *config.Config,
	logger *zap.Logger,
) *Core {
	return &Core{
		Schedule:   NewScheduleService(repos, txm, availCache, cfg, logger),
		Bookings:   NewBookingService(repos, txm, availCache, cfg, logger),
		Attendance: NewAttendanceService(repos, txm, cfg, logger),
		Phases:     NewPhaseService(repos, txm, logger),
		Ranks:      NewRankService(repos, txm, logger),
	}
}
