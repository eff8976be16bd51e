package server

import (
	"errors"

	"backend-bustracker/internal/config"
	"backend-bustracker/internal/db"
	"backend-bustracker/internal/eta"
	"backend-bustracker/internal/mapview"
	"backend-bustracker/internal/reading"
	"backend-bustracker/internal/routing"
	"backend-bustracker/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

type Server struct {
	App       *fiber.App
	Cfg       config.Config
	DB        db.Querier
	Redis     *redis.Client
	Stream    *stream.Hub
	Readings  *reading.Service
	Estimator *eta.Estimator
}

func NewServer(cfg config.Config, store db.Querier, redisClient *redis.Client) *Server {
	app := fiber.New(fiber.Config{ErrorHandler: errorHandler})
	app.Use(recover.New())
	app.Use(logger.New())

	hub := stream.NewHub(redisClient)
	s := &Server{
		App:       app,
		Cfg:       cfg,
		DB:        store,
		Redis:     redisClient,
		Stream:    hub,
		Readings:  reading.NewService(store, hub),
		Estimator: eta.NewEstimator(newRouter(cfg, redisClient)),
	}

	registerRoutes(s)
	return s
}

func newRouter(cfg config.Config, redisClient *redis.Client) routing.Router {
	if cfg.OSRMURL == "" {
		log.Warn("OSRM_URL not set, ETA uses straight-line estimates only")
		return nil
	}
	return routing.NewCachedRouter(routing.NewOSRMClient(cfg.OSRMURL, cfg.OSRMTimeout), redisClient, cfg.RouteCacheTTL)
}

// errorHandler keeps unhandled errors in the same {"error": ...} shape the
// handlers use.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		log.WithError(err).WithField("path", c.Path()).Error("request failed")
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := s.App.Group("/api")
	reading.RegisterRoutes(api, s.Readings)
	eta.RegisterRoutes(api, s.Readings, s.Estimator)
	mapview.RegisterRoutes(api, s.App, s.Readings, s.Estimator)
	stream.RegisterRoutes(api.Group("/stream"), s.Stream)
}

// Close stops the stream hub's Redis subscription.
func (s *Server) Close() {
	s.Stream.Close()
}
