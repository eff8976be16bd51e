package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backend-bustracker/internal/config"
	"backend-bustracker/internal/db"
	"backend-bustracker/internal/logging"
	"backend-bustracker/internal/server"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig      func() config.Config
	configureLogs   func(config.Config) error
	migrate         func(string) error
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	connectRedis    func(config.Config) *redis.Client
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, Store, *redis.Client, <-chan os.Signal, ListenFunc) error
}

// Store is the database handle Run serves from and closes on shutdown.
type Store interface {
	db.Querier
	Close()
}

// storeFor keeps a failed connection as a nil Store rather than a non-nil
// interface around a nil pool.
func storeFor(pg *pgxpool.Pool) Store {
	if pg == nil {
		return nil
	}
	return pg
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		configureLogs:   logging.Configure,
		migrate:         db.Migrate,
		connectPostgres: db.ConnectPostgres,
		connectRedis:    db.ConnectRedis,
		notify:          signal.Notify,
		run:             Run,
	}
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()
	if err := deps.configureLogs(cfg); err != nil {
		log.WithError(err).Warn("file logging disabled")
	}
	if err := config.Validate(cfg); err != nil {
		log.WithError(err).Warn("configuration has invalid values")
	}

	if cfg.MigrateOnStart {
		if err := deps.migrate(cfg.PostgresURL); err != nil {
			log.WithError(err).Error("migration failed")
		}
	}

	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		log.WithError(err).Error("postgres connection failed")
	}

	rdb := deps.connectRedis(cfg)

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, storeFor(pg), rdb, signals, nil); err != nil {
		log.WithError(err).Error("server exited with error")
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run starts the HTTP server and waits for termination signals.
func Run(ctx context.Context, cfg config.Config, store Store, rdb *redis.Client, signals <-chan os.Signal, listen ListenFunc) error {
	var querier db.Querier
	if store != nil {
		querier = store
	}
	srv := server.NewServer(cfg, querier, rdb)

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			srv.Close()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := shutdownFn(srv.App, shutdownCtx)
	srv.Close()
	if err != nil {
		return err
	}
	if store != nil {
		store.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	log.Info("server stopped")
	return nil
}
