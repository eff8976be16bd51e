package routing

import (
	"context"
	"errors"
	"testing"
	"time"

	"backend-bustracker/internal/shared/geo"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type countingRouter struct {
	calls int
	route Route
	err   error
}

func (r *countingRouter) Route(context.Context, geo.Point, geo.Point) (Route, error) {
	r.calls++
	return r.route, r.err
}

func TestCachedRouterHit(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	next := &countingRouter{route: Route{DurationSec: 600, Geometry: [][2]float64{{1, 2}, {3, 4}}}}
	cached := NewCachedRouter(next, client, time.Minute)

	from, to := geo.Point{Lat: 19.070001, Lng: 72.87}, geo.Point{Lat: 19.1, Lng: 72.9}
	for i := 0; i < 3; i++ {
		route, err := cached.Route(context.Background(), from, to)
		if err != nil {
			t.Fatalf("route: %v", err)
		}
		if route.DurationSec != 600 || len(route.Geometry) != 2 {
			t.Fatalf("unexpected route %+v", route)
		}
	}
	if next.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", next.calls)
	}
	if !s.Exists(cacheKey(from, to)) {
		t.Fatalf("expected cached key")
	}
	if ttl := s.TTL(cacheKey(from, to)); ttl != time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}

func TestCachedRouterErrorsAreNotCached(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	next := &countingRouter{err: ErrNoRoute}
	cached := NewCachedRouter(next, client, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := cached.Route(context.Background(), geo.Point{}, geo.Point{Lat: 1}); !errors.Is(err, ErrNoRoute) {
			t.Fatalf("expected ErrNoRoute, got %v", err)
		}
	}
	if next.calls != 2 {
		t.Fatalf("expected two upstream calls, got %d", next.calls)
	}
}

func TestCachedRouterRedisDown(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()
	s.Close()

	next := &countingRouter{route: Route{DurationSec: 5}}
	route, err := NewCachedRouter(next, client, time.Minute).Route(context.Background(), geo.Point{}, geo.Point{Lat: 1})
	if err != nil || route.DurationSec != 5 {
		t.Fatalf("expected pass-through route, got %+v %v", route, err)
	}
}

func TestCachedRouterDisabled(t *testing.T) {
	next := &countingRouter{route: Route{DurationSec: 5}}
	cached := NewCachedRouter(next, nil, time.Minute)
	for i := 0; i < 2; i++ {
		if _, err := cached.Route(context.Background(), geo.Point{}, geo.Point{Lat: 1}); err != nil {
			t.Fatalf("route: %v", err)
		}
	}
	if next.calls != 2 {
		t.Fatalf("expected no caching without redis")
	}
}

func TestCacheKeyRounding(t *testing.T) {
	a := cacheKey(geo.Point{Lat: 19.0700001, Lng: 72.87}, geo.Point{Lat: 1, Lng: 2})
	b := cacheKey(geo.Point{Lat: 19.0700002, Lng: 72.87}, geo.Point{Lat: 1, Lng: 2})
	if a != b {
		t.Fatalf("expected equal keys, got %q and %q", a, b)
	}
}
