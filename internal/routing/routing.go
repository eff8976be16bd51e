// Package routing asks an OSRM server for driving routes.
package routing

import (
	"context"
	"errors"
	"fmt"

	"backend-bustracker/internal/shared/geo"
)

// ErrNoRoute means the service answered but had no route between the points.
var ErrNoRoute = errors.New("routing: no route found")

// Route is a driving route with its geometry as [lat, lng] pairs.
type Route struct {
	DurationSec float64      `json:"duration_sec"`
	DistanceM   float64      `json:"distance_m"`
	Geometry    [][2]float64 `json:"geometry"`
}

type Router interface {
	Route(ctx context.Context, from, to geo.Point) (Route, error)
}

// ExternalServiceError covers an unreachable routing service and any response it sent that could not be used.
type ExternalServiceError struct {
	Op  string
	Err error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("routing %s: %v", e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}
