package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"backend-bustracker/internal/reading"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedSource struct {
	mu     sync.Mutex
	calls  int
	limits []int
	script []func() ([]reading.Reading, error)
}

func (s *scriptedSource) History(_ context.Context, limit int) ([]reading.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits = append(s.limits, limit)
	i := s.calls
	s.calls++
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	return s.script[i]()
}

func rowsOf(ids ...int64) []reading.Reading {
	out := make([]reading.Reading, 0, len(ids))
	for _, id := range ids {
		out = append(out, reading.Reading{ID: id, Timestamp: "2024-01-01T10:00:00Z"})
	}
	return out
}

func TestPollerFetchesImmediately(t *testing.T) {
	src := &scriptedSource{script: []func() ([]reading.Reading, error){
		func() ([]reading.Reading, error) { return rowsOf(1, 2), nil },
	}}
	updates := make(chan []reading.Reading, 4)
	p := NewPoller(src, time.Hour, 200, func(rows []reading.Reading) { updates <- rows })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	select {
	case rows := <-updates:
		assert.Len(t, rows, 2)
	case <-time.After(time.Second):
		t.Fatalf("expected initial fetch")
	}
	assert.Len(t, p.Snapshot(), 2)
	assert.False(t, p.LastFetch().IsZero())
	src.mu.Lock()
	assert.Equal(t, []int{200}, src.limits)
	src.mu.Unlock()
}

func TestPollerKeepsStaleDataOnFailure(t *testing.T) {
	src := &scriptedSource{script: []func() ([]reading.Reading, error){
		func() ([]reading.Reading, error) { return rowsOf(1, 2, 3), nil },
		func() ([]reading.Reading, error) { return nil, errors.New("connection refused") },
	}}
	p := NewPoller(src, time.Hour, 100, nil)

	p.tick(context.Background())
	p.tick(context.Background())

	assert.Len(t, p.Snapshot(), 3)
	assert.Equal(t, 2, src.calls)
}

func TestPollerTriggerAndInterval(t *testing.T) {
	src := &scriptedSource{script: []func() ([]reading.Reading, error){
		func() ([]reading.Reading, error) { return rowsOf(1), nil },
	}}
	updates := make(chan struct{}, 16)
	p := NewPoller(src, time.Hour, 100, func([]reading.Reading) { updates <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()

	<-updates
	p.Trigger()
	select {
	case <-updates:
	case <-time.After(time.Second):
		t.Fatalf("expected triggered fetch")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("poller did not stop")
	}
}

func TestPollerTicks(t *testing.T) {
	src := &scriptedSource{script: []func() ([]reading.Reading, error){
		func() ([]reading.Reading, error) { return rowsOf(1), nil },
	}}
	updates := make(chan struct{}, 16)
	p := NewPoller(src, 10*time.Millisecond, 100, func([]reading.Reading) { updates <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	for i := 0; i < 3; i++ {
		select {
		case <-updates:
		case <-time.After(time.Second):
			t.Fatalf("expected tick %d", i)
		}
	}
	require.GreaterOrEqual(t, len(p.Snapshot()), 1)
}
