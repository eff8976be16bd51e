package client

import (
	"context"
	"sync"
	"time"

	"backend-bustracker/internal/reading"

	log "github.com/sirupsen/logrus"
)

// HistorySource yields readings oldest to newest.
type HistorySource interface {
	History(ctx context.Context, limit int) ([]reading.Reading, error)
}

// Poller re-fetches positions on a fixed interval. A failed fetch is logged
// and the previous snapshot is kept until the next successful one.
type Poller struct {
	source   HistorySource
	interval time.Duration
	limit    int
	timeout  time.Duration
	onUpdate func([]reading.Reading)

	mu       sync.RWMutex
	snapshot []reading.Reading
	fetched  time.Time

	trigger chan struct{}
}

func NewPoller(source HistorySource, interval time.Duration, limit int, onUpdate func([]reading.Reading)) *Poller {
	return &Poller{
		source:   source,
		interval: interval,
		limit:    limit,
		timeout:  10 * time.Second,
		onUpdate: onUpdate,
		trigger:  make(chan struct{}, 1),
	}
}

// Run fetches immediately, then on every tick or Trigger until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		case <-p.trigger:
			if !t.Stop() {
				select {
				case <-t.C:
				default:
				}
			}
		}
		p.tick(ctx)
		t.Reset(p.interval)
	}
}

// Trigger requests a fetch without waiting for the next tick. Requests
// made while one is already pending are coalesced.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

func (p *Poller) Snapshot() []reading.Reading {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]reading.Reading, len(p.snapshot))
	copy(out, p.snapshot)
	return out
}

// LastFetch reports when the snapshot was last refreshed.
func (p *Poller) LastFetch() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fetched
}

func (p *Poller) tick(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	rows, err := p.source.History(cctx, p.limit)
	if err != nil {
		if ctx.Err() == nil {
			log.WithError(err).Warn("poll failed, keeping previous positions")
		}
		return
	}
	log.WithField("count", len(rows)).Debug("positions fetched")

	p.mu.Lock()
	p.snapshot = rows
	p.fetched = time.Now()
	p.mu.Unlock()

	if p.onUpdate != nil {
		p.onUpdate(rows)
	}
}
