package db

import (
	"context"
	"time"

	"backend-bustracker/internal/config"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// ConnectRedis returns nil when no address is configured. Redis only backs
// the stream fan-out and the route cache, so an unreachable server is logged
// and the client is still returned; go-redis reconnects on demand.
func ConnectRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.WithField("addr", cfg.RedisAddr).Warnf("redis ping failed: %v", err)
	}
	return client
}
