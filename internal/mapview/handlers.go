package mapview

import (
	_ "embed"

	"backend-bustracker/internal/eta"
	"backend-bustracker/internal/reading"
	"backend-bustracker/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
)

//go:embed static/index.html
var indexHTML []byte

// RegisterRoutes serves the layer API under api and the map page at page.
func RegisterRoutes(api fiber.Router, page fiber.Router, history eta.HistorySource, estimator *eta.Estimator) {
	api.Get("/map", func(c *fiber.Ctx) error {
		var dest *geo.Point
		if c.Query("dest_lat") != "" || c.Query("dest_lng") != "" {
			p, ok := eta.ParseDestination(c.Query("dest_lat"), c.Query("dest_lng"))
			if !ok {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "dest_lat and dest_lng must both be numbers"})
			}
			dest = &p
		}

		readings, err := history.History(c.Context(), reading.ParseLimit(c.Query("limit")))
		if err != nil {
			log.WithError(err).Error("map history query failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB query failed"})
		}

		var est *eta.Estimate
		if dest != nil {
			e := estimator.Estimate(c.Context(), readings, *dest)
			est = &e
		}

		body, err := Build(readings, dest, est).MarshalJSON()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		c.Set(fiber.HeaderContentType, "application/geo+json")
		return c.Send(body)
	})

	page.Get("/", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.Send(indexHTML)
	})
}
