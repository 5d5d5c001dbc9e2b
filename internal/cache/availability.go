// Package cache — Redis-кэш горячего поиска доступных слотов.
// Промах или сбой Redis прозрачно уводит запрос в БД.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rouleplus/autoecole-core/internal/model"
)

type Availability struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewAvailability(addr, password string, logger *zap.Logger) *Availability {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	return &Availability{
		rdb:    rdb,
		ttl:    30 * time.Second,
		logger: logger,
	}
}

func availabilityKey(lessonType model.LessonType, day time.Time) string {
	return fmt.Sprintf("slots:avail:%s:%s", lessonType, day.Format("2006-01-02"))
}

// Get возвращает закэшированный список слотов, false при промахе или сбое
func (c *Availability) Get(ctx context.Context, lessonType model.LessonType, day time.Time) ([]*model.ScheduleSlot, bool) {
	data, err := c.rdb.Get(ctx, availabilityKey(lessonType, day)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("availability cache get failed", zap.Error(err))
		}
		return nil, false
	}

	var slots []*model.ScheduleSlot
	if err := json.Unmarshal(data, &slots); err != nil {
		c.logger.Debug("availability cache unmarshal failed", zap.Error(err))
		return nil, false
	}

	return slots, true
}

// Set кладёт список слотов в кэш с коротким TTL
func (c *Availability) Set(ctx context.Context, lessonType model.LessonType, day time.Time, slots []*model.ScheduleSlot) {
	data, err := json.Marshal(slots)
	if err != nil {
		c.logger.Debug("availability cache marshal failed", zap.Error(err))
		return
	}

	if err := c.rdb.Set(ctx, availabilityKey(lessonType, day), data, c.ttl).Err(); err != nil {
		c.logger.Debug("availability cache set failed", zap.Error(err))
	}
}

// Invalidate сбрасывает кэш дня после мутации слота или записи
func (c *Availability) Invalidate(ctx context.Context, lessonType model.LessonType, day time.Time) {
	if err := c.rdb.Del(ctx, availabilityKey(lessonType, day)).Err(); err != nil {
		c.logger.Debug("availability cache invalidate failed", zap.Error(err))
	}
}

func (c *Availability) Close() error {
	return c.rdb.Close()
}
