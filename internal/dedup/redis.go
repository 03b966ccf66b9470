package dedup

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 24 * time.Hour

// RedisWindow deduplicates across gateway restarts (and replicas) by keeping
// one TTL-bound key per update id. Redis errors fail open: re-processing an
// update is acceptable, dropping it is not.
type RedisWindow struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisWindow(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisWindow {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisWindow{rdb: rdb, ttl: ttl, logger: logger}
}

func (w *RedisWindow) key(updateID int64) string {
	return "tg:update:" + strconv.FormatInt(updateID, 10)
}

func (w *RedisWindow) Seen(ctx context.Context, updateID int64) bool {
	n, err := w.rdb.Exists(ctx, w.key(updateID)).Result()
	if err != nil {
		w.logger.Warn("dedup_redis_error", "op", "exists", "error", err.Error())
		return false
	}
	return n > 0
}

func (w *RedisWindow) Remember(ctx context.Context, updateID int64) {
	if err := w.rdb.Set(ctx, w.key(updateID), 1, w.ttl).Err(); err != nil {
		w.logger.Warn("dedup_redis_error", "op", "set", "error", err.Error())
	}
}
