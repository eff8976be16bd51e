package reading

import (
	"math"
	"time"

	"github.com/araddon/dateparse"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Reading is one stored GPS fix. Rows are never updated or deleted.
type Reading struct {
	ID        int64   `json:"id"`
	DeviceID  *string `json:"device_id"`
	Timestamp string  `json:"timestamp"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NewReading is the ingestion payload. Coordinates are pointers so a missing
// field can be told apart from a legitimate zero.
type NewReading struct {
	DeviceID  *string  `json:"device_id"`
	Timestamp string   `json:"timestamp" validate:"required"`
	Latitude  *float64 `json:"latitude" validate:"required"`
	Longitude *float64 `json:"longitude" validate:"required"`
}

// ClampLimit bounds a requested row count to [1, MaxLimit].
func ClampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// ParseTimestamp accepts the loose date formats devices send. Zone-less values are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	return dateparse.ParseIn(s, time.UTC)
}

// Chronological returns a copy of newest-first rows ordered oldest to newest.
func Chronological(rows []Reading) []Reading {
	out := make([]Reading, len(rows))
	for i, r := range rows {
		out[len(rows)-1-i] = r
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
