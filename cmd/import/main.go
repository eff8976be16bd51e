package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"backend-bustracker/internal/config"
	"backend-bustracker/internal/db"
	"backend-bustracker/internal/importer"
	"backend-bustracker/internal/logging"
	"backend-bustracker/internal/reading"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"
)

// txStarter is the part of *pgxpool.Pool the import needs.
type txStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

type importDeps struct {
	loadConfig func() config.Config
	connect    func(config.Config) (txStarter, error)
	migrate    func(string) error
	stdout     io.Writer
	stderr     io.Writer
}

func defaultDeps() importDeps {
	return importDeps{
		loadConfig: config.Load,
		connect: func(cfg config.Config) (txStarter, error) {
			return db.ConnectPostgres(cfg)
		},
		migrate: db.Migrate,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}
}

var exit = os.Exit

func main() {
	exit(run(context.Background(), os.Args[1:], defaultDeps()))
}

func run(ctx context.Context, args []string, deps importDeps) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(deps.stderr)
	device := fs.String("device", "", "device id applied to every row")
	fs.Usage = func() {
		fmt.Fprintln(deps.stderr, "usage: import [-device id] <csv-file>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	path := fs.Arg(0)

	cfg := deps.loadConfig()
	if err := logging.Configure(cfg); err != nil {
		fmt.Fprintf(deps.stderr, "configure logging: %v\n", err)
	}
	logger := log.WithFields(log.Fields{"run_id": uuid.NewString(), "file": filepath.Base(path)})

	f, err := os.Open(path)
	if err != nil {
		logger.WithError(err).Error("CSV file not found")
		return 1
	}
	rows, parsed, err := importer.Parse(f, *device)
	f.Close()
	if err != nil {
		logger.WithError(err).Error("CSV file unreadable")
		return 1
	}
	if parsed.Rows == 0 {
		fmt.Fprintln(deps.stdout, "No records found in CSV.")
		return 0
	}
	if len(rows) == 0 {
		logger.WithField("skipped", parsed.Skipped).Warn("no valid rows, database not touched")
		fmt.Fprintf(deps.stdout, "Inserted 0 rows from %s\n", filepath.Base(path))
		return 0
	}

	if cfg.MigrateOnStart && deps.migrate != nil {
		if err := deps.migrate(cfg.PostgresURL); err != nil {
			logger.WithError(err).Error("migration failed")
			return 1
		}
	}

	pool, err := deps.connect(cfg)
	if err != nil {
		logger.WithError(err).Error("failed to open database")
		return 1
	}
	defer pool.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		logger.WithError(err).Error("begin transaction")
		return 1
	}

	res, err := importer.Load(ctx, reading.NewService(tx, nil), rows, parsed)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			logger.WithError(rbErr).Warn("rollback failed")
		}
		logger.WithError(err).WithField("inserted_before_failure", res.Inserted).Error("import aborted, nothing committed")
		return 1
	}
	if err := tx.Commit(ctx); err != nil {
		logger.WithError(err).Error("commit failed")
		return 1
	}

	logger.WithFields(log.Fields{"rows": res.Rows, "inserted": res.Inserted, "skipped": res.Skipped}).Info("import finished")
	fmt.Fprintf(deps.stdout, "Inserted %d rows from %s\n", res.Inserted, filepath.Base(path))
	return 0
}
