package upstream

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "voice:session:"
	activeSetKey     = "voice:active_sessions"
	sessionKeyTTL    = 2 * time.Hour
)

// Bookkeeper records session lifecycle facts in Redis for operational
// visibility. It is strictly best-effort: admission never consults it and
// every method degrades to a no-op when Redis is absent or unreachable.
type Bookkeeper struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewBookkeeper pings addr and returns a live Bookkeeper, or a disabled
// one when addr is empty or the ping fails.
func NewBookkeeper(ctx context.Context, addr string, logger *slog.Logger) *Bookkeeper {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		return &Bookkeeper{logger: logger}
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("session bookkeeping disabled, redis unreachable", "addr", addr, "error", err)
		_ = rdb.Close()
		return &Bookkeeper{logger: logger}
	}
	return &Bookkeeper{rdb: rdb, logger: logger}
}

// Enabled reports whether records are actually written.
func (b *Bookkeeper) Enabled() bool { return b != nil && b.rdb != nil }

// SessionStarted records a new session under its ID.
func (b *Bookkeeper) SessionStarted(ctx context.Context, id, ip, language, mode string, startedAt time.Time) {
	if !b.Enabled() {
		return
	}
	key := sessionKeyPrefix + id
	pipe := b.rdb.Pipeline()
	pipe.HSet(ctx, key,
		"ip", ip,
		"language", language,
		"mode", mode,
		"started_at", startedAt.UTC().Format(time.RFC3339),
	)
	pipe.Expire(ctx, key, sessionKeyTTL)
	pipe.SAdd(ctx, activeSetKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		b.logger.Warn("bookkeeping write failed", "session", id, "error", err)
	}
}

// SessionEnded marks a session finished.
func (b *Bookkeeper) SessionEnded(ctx context.Context, id string, endedAt time.Time) {
	if !b.Enabled() {
		return
	}
	key := sessionKeyPrefix + id
	pipe := b.rdb.Pipeline()
	pipe.HSet(ctx, key, "ended_at", endedAt.UTC().Format(time.RFC3339))
	pipe.SRem(ctx, activeSetKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		b.logger.Warn("bookkeeping write failed", "session", id, "error", err)
	}
}

// Close releases the Redis connection.
func (b *Bookkeeper) Close() error {
	if !b.Enabled() {
		return nil
	}
	return b.rdb.Close()
}
