package eta

import (
	"context"
	"strconv"

	"backend-bustracker/internal/reading"
	"backend-bustracker/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
)

// HistorySource loads recent readings oldest to newest.
type HistorySource interface {
	History(ctx context.Context, limit int) ([]reading.Reading, error)
}

// ParseDestination reads a coordinate pair from query values. Points off the
// globe are rejected.
func ParseDestination(rawLat, rawLng string) (geo.Point, bool) {
	lat, err := strconv.ParseFloat(rawLat, 64)
	if err != nil {
		return geo.Point{}, false
	}
	lng, err := strconv.ParseFloat(rawLng, 64)
	if err != nil {
		return geo.Point{}, false
	}
	p := geo.Point{Lat: lat, Lng: lng}
	return p, p.OnGlobe()
}

func RegisterRoutes(r fiber.Router, history HistorySource, estimator *Estimator) {
	r.Get("/eta", func(c *fiber.Ctx) error {
		dest, ok := ParseDestination(c.Query("lat"), c.Query("lng"))
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "lat and lng (numbers) required"})
		}
		readings, err := history.History(c.Context(), reading.ParseLimit(c.Query("limit")))
		if err != nil {
			log.WithError(err).Error("eta history query failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB query failed"})
		}
		return c.JSON(estimator.Estimate(c.Context(), readings, dest))
	})
}
