package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jimmyurl/loans-sub000/internal/config"
	"github.com/jimmyurl/loans-sub000/internal/domain/schedule"
)

// SchedulePreviewCache stores computed repayment schedules in Redis, keyed by
// the loan terms that produced them. Cache failures are logged and treated as
// misses so a Redis outage never blocks a preview request.
type SchedulePreviewCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisClient(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}

	logger.Info("Connected to Redis", "addr", cfg.Addr, "db", cfg.DB)
	return client, nil
}

func NewSchedulePreviewCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *SchedulePreviewCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SchedulePreviewCache{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "SchedulePreviewCache"),
	}
}

func (c *SchedulePreviewCache) GetSchedule(ctx context.Context, key string) (*schedule.LoanSchedule, bool) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "Redis get failed, treating as cache miss", "key", key, "error", err)
		}
		return nil, false
	}

	var sched schedule.LoanSchedule
	if err := json.Unmarshal(payload, &sched); err != nil {
		c.logger.WarnContext(ctx, "Failed to decode cached schedule, evicting", "key", key, "error", err)
		c.client.Del(ctx, key)
		return nil, false
	}
	return &sched, true
}

func (c *SchedulePreviewCache) SetSchedule(ctx context.Context, key string, sched *schedule.LoanSchedule) {
	payload, err := json.Marshal(sched)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to encode schedule for caching", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "Redis set failed", "key", key, "error", err)
	}
}
