package app

import (
	"context"

	"github.com/beep-industries/admin/internal/config"
	"github.com/beep-industries/admin/internal/db"
	"github.com/beep-industries/admin/internal/logger"
	"github.com/beep-industries/admin/internal/redis"
	"github.com/beep-industries/admin/internal/session"
)

// Infra holds the optional backing services. A nil field means the
// service is not configured.
type Infra struct {
	DB    *db.DB
	Redis *redis.Client
}

func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	infra := &Infra{}

	if cfg.DatabaseDSN != "" {
		conn, err := db.Open(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		infra.DB = conn
		logger.Info("database ready", nil)
	}

	if cfg.RedisAddr != "" {
		client, err := redis.New(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			_ = infra.Close()
			return nil, err
		}
		infra.Redis = client
		logger.Info("redis ready", map[string]any{"addr": cfg.RedisAddr})
	}

	return infra, nil
}

// SessionStore is Redis when configured, process memory otherwise.
func (i *Infra) SessionStore() session.Store {
	if i.Redis != nil {
		return session.NewRedisStore(i.Redis.Client)
	}
	logger.Warn("REDIS_ADDR not set, sessions are kept in memory", nil)
	return session.NewMemoryStore()
}

func (i *Infra) Close() error {
	var firstErr error
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			firstErr = err
		}
	}
	if i.DB != nil {
		if err := i.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
