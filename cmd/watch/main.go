package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"backend-bustracker/internal/client"
	"backend-bustracker/internal/config"
	"backend-bustracker/internal/eta"
	"backend-bustracker/internal/logging"
	"backend-bustracker/internal/reading"
	"backend-bustracker/internal/routing"
	"backend-bustracker/internal/shared/geo"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const clearScreen = "\033[H\033[2J"

type watchDeps struct {
	loadConfig func() config.Config
	stdout     io.Writer
	stderr     io.Writer
}

var exit = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], watchDeps{loadConfig: config.Load, stdout: os.Stdout, stderr: os.Stderr})
	stop()
	exit(code)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `usage:
  watch run [-dest lat,lng | -stop name] [-once]
  watch stops ls
  watch stops add <name> <lat> <lng>
  watch stops rm <id>`)
}

func run(ctx context.Context, args []string, deps watchDeps) int {
	if len(args) == 0 {
		usage(deps.stderr)
		return 2
	}

	cfg := deps.loadConfig()
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(deps.stderr, "invalid config: %v\n", err)
		return 1
	}
	if err := logging.Configure(cfg); err != nil {
		fmt.Fprintf(deps.stderr, "configure logging: %v\n", err)
	}
	log.SetOutput(deps.stderr)

	switch args[0] {
	case "run":
		return runWatch(ctx, cfg, args[1:], deps)
	case "stops":
		return runStops(cfg, args[1:], deps)
	default:
		usage(deps.stderr)
		return 2
	}
}

func runStops(cfg config.Config, args []string, deps watchDeps) int {
	store := client.OpenStopStore(cfg.StopsFile)
	if len(args) == 0 {
		usage(deps.stderr)
		return 2
	}

	switch args[0] {
	case "ls":
		stops := store.List()
		if len(stops) == 0 {
			fmt.Fprintln(deps.stdout, "No saved stops.")
			return 0
		}
		for _, s := range stops {
			fmt.Fprintf(deps.stdout, "%d\t%s\t%.6f, %.6f\n", s.ID, s.Name, s.Lat, s.Lng)
		}
		return 0
	case "add":
		if len(args) != 4 || strings.TrimSpace(args[1]) == "" {
			usage(deps.stderr)
			return 2
		}
		p, ok := eta.ParseDestination(strings.TrimSpace(args[2]), strings.TrimSpace(args[3]))
		if !ok {
			fmt.Fprintln(deps.stderr, "invalid coordinates")
			return 2
		}
		stop, err := store.Add(args[1], p.Lat, p.Lng)
		if err != nil {
			fmt.Fprintf(deps.stderr, "save stops: %v\n", err)
			return 1
		}
		fmt.Fprintf(deps.stdout, "Added stop %d (%s)\n", stop.ID, stop.Name)
		return 0
	case "rm":
		if len(args) != 2 {
			usage(deps.stderr)
			return 2
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			fmt.Fprintln(deps.stderr, "invalid stop id")
			return 2
		}
		if err := store.Remove(id); err != nil {
			fmt.Fprintf(deps.stderr, "remove stop %d: %v\n", id, err)
			return 1
		}
		fmt.Fprintf(deps.stdout, "Removed stop %d\n", id)
		return 0
	default:
		usage(deps.stderr)
		return 2
	}
}

func parseLatLng(raw string) (geo.Point, bool) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return geo.Point{}, false
	}
	return eta.ParseDestination(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
}

func newRouter(cfg config.Config) routing.Router {
	if cfg.OSRMURL == "" {
		return nil
	}
	return routing.NewOSRMClient(cfg.OSRMURL, cfg.OSRMTimeout)
}

func runWatch(ctx context.Context, cfg config.Config, args []string, deps watchDeps) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(deps.stderr)
	destFlag := fs.String("dest", "", "destination as lat,lng")
	stopFlag := fs.String("stop", "", "name of a saved stop to use as destination")
	once := fs.Bool("once", false, "fetch and print a single frame")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *destFlag != "" && *stopFlag != "" {
		fmt.Fprintln(deps.stderr, "use either -dest or -stop")
		return 2
	}

	api := client.NewAPIClient(cfg.APIBaseURL, cfg.PollInterval)
	tracker := client.NewTracker(eta.NewEstimator(newRouter(cfg)))

	switch {
	case *destFlag != "":
		p, ok := parseLatLng(*destFlag)
		if !ok {
			fmt.Fprintln(deps.stderr, "invalid -dest, expected lat,lng")
			return 2
		}
		tracker.SetDestination(p)
	case *stopFlag != "":
		stop, ok := client.OpenStopStore(cfg.StopsFile).Find(*stopFlag)
		if !ok {
			fmt.Fprintf(deps.stderr, "unknown stop %q\n", *stopFlag)
			return 1
		}
		tracker.SetDestination(geo.Point{Lat: stop.Lat, Lng: stop.Lng})
	}

	if *once {
		history, err := api.History(ctx, cfg.PollLimit)
		if err != nil {
			fmt.Fprintf(deps.stderr, "fetch positions: %v\n", err)
			return 1
		}
		tracker.Refresh(ctx, history)
		if err := client.Render(deps.stdout, history, tracker.View(), client.DefaultRenderRows); err != nil {
			return 1
		}
		return 0
	}

	updates := make(chan []reading.Reading, 1)
	etaRequests := make(chan []reading.Reading, 1)
	redraw := make(chan struct{}, 1)

	poller := client.NewPoller(api, cfg.PollInterval, cfg.PollLimit, func(rows []reading.Reading) {
		offerLatest(updates, rows)
	})
	listener := client.NewStreamListener(api.StreamURL(reading.TopicAll), func([]byte) { poller.Trigger() })

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return poller.Run(gctx) })
	g.Go(func() error { return listener.Run(gctx) })

	// ETA refreshes run outside the render loop; frames never wait on the router.
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case rows := <-etaRequests:
				if tracker.Refresh(gctx, rows) {
					select {
					case redraw <- struct{}{}:
					default:
					}
				}
			}
		}
	})
	g.Go(func() error {
		var rows []reading.Reading
		for {
			select {
			case <-gctx.Done():
				return nil
			case rows = <-updates:
				offerLatest(etaRequests, rows)
			case <-redraw:
			}
			fmt.Fprint(deps.stdout, clearScreen)
			if err := client.Render(deps.stdout, rows, tracker.View(), client.DefaultRenderRows); err != nil {
				return err
			}
		}
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("watch stopped")
		return 1
	}
	return 0
}

// offerLatest queues rows on a one-slot channel, replacing anything still
// pending. ch must have a single sender.
func offerLatest(ch chan []reading.Reading, rows []reading.Reading) {
	select {
	case ch <- rows:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- rows
}
