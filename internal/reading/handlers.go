package reading

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
)

// ParseLimit reads the ?limit= query value. Missing or non-numeric values mean DefaultLimit.
func ParseLimit(raw string) int {
	if raw == "" {
		return DefaultLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return DefaultLimit
	}
	return ClampLimit(n)
}

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Post("/readings", func(c *fiber.Ctx) error {
		var req NewReading
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": invalidPayloadMsg})
		}
		id, err := svc.Insert(c.Context(), req)
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": verr.Msg})
			}
			log.WithError(err).Error("reading insert failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB insert failed"})
		}
		return c.JSON(fiber.Map{"id": id})
	})

	r.Get("/positions", func(c *fiber.Ctx) error {
		readings, err := svc.Latest(c.Context(), ParseLimit(c.Query("limit")))
		if err != nil {
			log.WithError(err).Error("reading query failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB query failed"})
		}
		return c.JSON(readings)
	})
}
