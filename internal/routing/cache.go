package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backend-bustracker/internal/shared/geo"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// CachedRouter keeps successful routes in Redis. Coordinates are rounded to
// five decimals (about a meter), so a vehicle standing still hits the cache.
// Redis failures are logged and the request goes to the wrapped router.
type CachedRouter struct {
	next  Router
	redis *redis.Client
	ttl   time.Duration
}

func NewCachedRouter(next Router, redisClient *redis.Client, ttl time.Duration) *CachedRouter {
	return &CachedRouter{next: next, redis: redisClient, ttl: ttl}
}

func cacheKey(from, to geo.Point) string {
	return fmt.Sprintf("route:%.5f,%.5f;%.5f,%.5f", from.Lat, from.Lng, to.Lat, to.Lng)
}

func (c *CachedRouter) Route(ctx context.Context, from, to geo.Point) (Route, error) {
	if c.redis == nil || c.ttl <= 0 {
		return c.next.Route(ctx, from, to)
	}

	key := cacheKey(from, to)
	raw, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached Route
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		log.WithField("key", key).Warn("discarding undecodable cached route")
	case !errors.Is(err, redis.Nil):
		log.WithField("key", key).Warnf("route cache read failed: %v", err)
	}

	route, err := c.next.Route(ctx, from, to)
	if err != nil {
		return Route{}, err
	}

	if encoded, err := json.Marshal(route); err == nil {
		if err := c.redis.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
			log.WithField("key", key).Warnf("route cache write failed: %v", err)
		}
	}
	return route, nil
}
