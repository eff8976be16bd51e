package eta

import (
	"context"

	"backend-bustracker/internal/reading"
	"backend-bustracker/internal/routing"
	"backend-bustracker/internal/shared/geo"

	log "github.com/sirupsen/logrus"
)

// Estimator prefers a routed estimate and falls back to StraightLine when
// the router is missing, fails, or has no route. Routing errors are logged
// and never returned.
type Estimator struct {
	router routing.Router
}

func NewEstimator(router routing.Router) *Estimator {
	return &Estimator{router: router}
}

// Estimate expects history ordered oldest to newest.
func (e *Estimator) Estimate(ctx context.Context, history []reading.Reading, dest geo.Point) Estimate {
	if len(history) < 2 {
		return notEnoughData()
	}
	last := history[len(history)-1]

	if e.router != nil {
		lastAt, err := reading.ParseTimestamp(last.Timestamp)
		if err != nil {
			return invalidTimestamp(MethodStraightLine, [][2]float64{{last.Latitude, last.Longitude}, {dest.Lat, dest.Lng}})
		}
		route, err := e.router.Route(ctx, geo.Point{Lat: last.Latitude, Lng: last.Longitude}, dest)
		if err == nil {
			return FromRoute(lastAt, route)
		}
		log.WithError(err).WithFields(log.Fields{"dest_lat": dest.Lat, "dest_lng": dest.Lng}).
			Warn("route lookup failed, using straight-line estimate")
	}

	return StraightLine(history, dest)
}
