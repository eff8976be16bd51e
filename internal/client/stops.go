package client

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

var ErrStopNotFound = errors.New("stop not found")

type Stop struct {
	ID   int64   `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// StopStore keeps saved stops in a single JSON file, rewritten on every
// change.
type StopStore struct {
	path string
	now  func() time.Time

	mu    sync.Mutex
	stops []Stop
}

// OpenStopStore loads path. A missing or unreadable file yields an empty
// list.
func OpenStopStore(path string) *StopStore {
	s := &StopStore{path: path, now: time.Now}
	s.stops = loadStops(path)
	return s
}

func loadStops(path string) []Stop {
	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.WithError(err).WithField("path", path).Warn("stops file unreadable, starting empty")
		}
		return []Stop{}
	}
	var stops []Stop
	if err := json.Unmarshal(raw, &stops); err != nil {
		log.WithError(err).WithField("path", path).Warn("stops file corrupt, starting empty")
		return []Stop{}
	}
	if stops == nil {
		stops = []Stop{}
	}
	return stops
}

func (s *StopStore) List() []Stop {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Stop, len(s.stops))
	copy(out, s.stops)
	return out
}

// Add stores a new stop keyed by its creation time in milliseconds.
func (s *StopStore) Add(name string, lat, lng float64) (Stop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.now().UnixMilli()
	for _, st := range s.stops {
		if st.ID >= id {
			id = st.ID + 1
		}
	}
	stop := Stop{ID: id, Name: strings.TrimSpace(name), Lat: lat, Lng: lng}
	next := append(append([]Stop{}, s.stops...), stop)
	if err := s.save(next); err != nil {
		return Stop{}, err
	}
	s.stops = next
	return stop, nil
}

func (s *StopStore) Remove(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]Stop, 0, len(s.stops))
	for _, st := range s.stops {
		if st.ID != id {
			next = append(next, st)
		}
	}
	if len(next) == len(s.stops) {
		return ErrStopNotFound
	}
	if err := s.save(next); err != nil {
		return err
	}
	s.stops = next
	return nil
}

// Find looks a stop up by name, case-insensitively. The newest match wins.
func (s *StopStore) Find(name string) (Stop, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := make([]Stop, 0, 1)
	for _, st := range s.stops {
		if strings.EqualFold(st.Name, strings.TrimSpace(name)) {
			matches = append(matches, st)
		}
	}
	if len(matches) == 0 {
		return Stop{}, false
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID > matches[j].ID })
	return matches[0], true
}

func (s *StopStore) save(stops []Stop) error {
	raw, err := json.MarshalIndent(stops, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
