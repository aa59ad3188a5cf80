package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/civic-desk/complaint-portal/internal/config"
	"github.com/civic-desk/complaint-portal/internal/presence"
)

const redisConnectTimeout = 3 * time.Second

// Redis wraps the go-redis client used for the presence mirror.
type Redis struct {
	Client *redis.Client
	cfg    config.RedisConfig
}

// NewRedis connects to Redis. An unreachable server is logged, not fatal: the
// presence mirror degrades to the local registry until Redis comes back.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: redisConnectTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.Addr), zap.String("instance_id", cfg.InstanceID))
	}

	return &Redis{Client: client, cfg: cfg}
}

// InstanceID names this process in shared presence state.
func (r *Redis) InstanceID() string {
	return r.cfg.InstanceID
}

// PresenceMirror returns this process's presence mirror.
func (r *Redis) PresenceMirror() *presence.RedisMirror {
	return presence.NewRedisMirror(r.Client, r.cfg.PresenceKey, r.cfg.InstanceID, r.cfg.PresenceTTL())
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}
