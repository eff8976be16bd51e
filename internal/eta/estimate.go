// Package eta estimates arrival time at a destination from recent GPS fixes.
//
// A road route from the routing service is preferred. When none is available
// the estimate falls back to straight-line distance divided by a smoothed
// recent speed. Both paths pad the result so the estimate errs late rather
// than early.
package eta

import (
	"fmt"
	"math"
	"sort"
	"time"

	"backend-bustracker/internal/reading"
	"backend-bustracker/internal/routing"
	"backend-bustracker/internal/shared/geo"
)

const (
	MaxSegments           = 8
	MinSegmentSeconds     = 1.0
	MaxReasonableSpeedMps = 50.0 // ~180 km/h, faster segments are GPS noise
	MinSpeedMps           = 0.1
	FallbackSafetyFactor  = 1.5
	RouteSafetyFactor     = 1.25
)

type Status string

const (
	StatusOK                   Status = "ok"
	StatusNotEnoughData        Status = "not_enough_data"
	StatusInsufficientMovement Status = "insufficient_movement"
	StatusInvalidTimestamp     Status = "invalid_timestamp"
)

type Method string

const (
	MethodRoute        Method = "route"
	MethodStraightLine Method = "straight_line"
)

// Estimate is the outcome of one ETA computation. Text is always set, even
// when Status is not StatusOK.
type Estimate struct {
	Status           Status       `json:"status"`
	Method           Method       `json:"method,omitempty"`
	Seconds          float64      `json:"seconds"`
	ChosenSpeedMps   float64      `json:"chosen_speed_mps,omitempty"`
	MedianSpeedMps   float64      `json:"median_speed_mps,omitempty"`
	WeightedSpeedMps float64      `json:"weighted_speed_mps,omitempty"`
	Segments         int          `json:"segments,omitempty"`
	DistanceM        float64      `json:"distance_m"`
	ArriveAt         *time.Time   `json:"arrive_at,omitempty"`
	Geometry         [][2]float64 `json:"geometry,omitempty"`
	Text             string       `json:"text"`
}

// Segment is the movement between two consecutive fixes.
type Segment struct {
	SpeedMps float64
	Seconds  float64
}

// Segments returns the usable segments among the last MaxSegments pairs of
// history, which must be ordered oldest to newest.
func Segments(history []reading.Reading) []Segment {
	n := len(history) - 1
	if n > MaxSegments {
		n = MaxSegments
	}
	if n < 1 {
		return nil
	}

	recent := history[len(history)-(n+1):]
	segments := make([]Segment, 0, n)
	for i := 1; i < len(recent); i++ {
		a, b := recent[i-1], recent[i]
		ta, errA := reading.ParseTimestamp(a.Timestamp)
		tb, errB := reading.ParseTimestamp(b.Timestamp)
		if errA != nil || errB != nil || !tb.After(ta) {
			continue
		}
		dt := tb.Sub(ta).Seconds()
		if dt < MinSegmentSeconds {
			continue
		}
		speed := geo.HaversineMeters(a.Latitude, a.Longitude, b.Latitude, b.Longitude) / dt
		if math.IsNaN(speed) || math.IsInf(speed, 0) || speed <= 0 || speed > MaxReasonableSpeedMps {
			continue
		}
		segments = append(segments, Segment{SpeedMps: speed, Seconds: dt})
	}
	return segments
}

func MedianSpeed(segments []Segment) float64 {
	if len(segments) == 0 {
		return 0
	}
	speeds := make([]float64, len(segments))
	for i, s := range segments {
		speeds[i] = s.SpeedMps
	}
	sort.Float64s(speeds)
	mid := len(speeds) / 2
	if len(speeds)%2 == 1 {
		return speeds[mid]
	}
	return (speeds[mid-1] + speeds[mid]) / 2
}

// WeightedSpeed averages segment speeds weighted by their duration.
func WeightedSpeed(segments []Segment) float64 {
	var total, weighted float64
	for _, s := range segments {
		total += s.Seconds
		weighted += s.SpeedMps * s.Seconds
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// ChooseSpeed combines the median and weighted speeds. The nesting is kept
// exactly as deployed: min(w, max(m, w)) always reduces to w, so the median
// never affects the result. Whether the median was meant to cap the speed is
// an open question, and TestChooseSpeedIgnoresMedian pins current behavior.
func ChooseSpeed(median, weighted float64) float64 {
	return math.Max(MinSpeedMps, math.Min(weighted, math.Max(median, weighted)))
}

// StraightLine estimates arrival from haversine distance and recent speed.
func StraightLine(history []reading.Reading, dest geo.Point) Estimate {
	if len(history) < 2 {
		return notEnoughData()
	}
	last := history[len(history)-1]
	line := [][2]float64{{last.Latitude, last.Longitude}, {dest.Lat, dest.Lng}}

	segments := Segments(history)
	if len(segments) == 0 {
		return Estimate{
			Status:   StatusInsufficientMovement,
			Method:   MethodStraightLine,
			Geometry: line,
			Text:     "ETA: unknown (insufficient movement)",
		}
	}

	lastAt, err := reading.ParseTimestamp(last.Timestamp)
	if err != nil {
		return invalidTimestamp(MethodStraightLine, line)
	}

	median := MedianSpeed(segments)
	weighted := WeightedSpeed(segments)
	chosen := ChooseSpeed(median, weighted)

	distance := geo.HaversineMeters(last.Latitude, last.Longitude, dest.Lat, dest.Lng)
	seconds := (distance / chosen) * FallbackSafetyFactor
	arrive := lastAt.Add(secondsToDuration(seconds))

	return Estimate{
		Status:           StatusOK,
		Method:           MethodStraightLine,
		Seconds:          seconds,
		ChosenSpeedMps:   chosen,
		MedianSpeedMps:   median,
		WeightedSpeedMps: weighted,
		Segments:         len(segments),
		DistanceM:        distance,
		ArriveAt:         &arrive,
		Geometry:         line,
		Text: fmt.Sprintf("ETA: %dm %ds (arrive ~ %s)",
			int64(math.Floor(seconds/60)), int64(math.Floor(math.Mod(seconds, 60))), formatInstant(arrive)),
	}
}

// FromRoute pads the routed duration and anchors it at the last fix time.
func FromRoute(lastAt time.Time, route routing.Route) Estimate {
	adjusted := route.DurationSec * RouteSafetyFactor
	arrive := lastAt.Add(secondsToDuration(adjusted))
	return Estimate{
		Status:    StatusOK,
		Method:    MethodRoute,
		Seconds:   adjusted,
		DistanceM: route.DistanceM,
		ArriveAt:  &arrive,
		Geometry:  route.Geometry,
		Text:      fmt.Sprintf("ETA (route): %s (~ %s)", FormatDuration(adjusted), formatInstant(arrive)),
	}
}

// FormatDuration renders "1h 5m" above an hour and "4m 12s" below.
func FormatDuration(seconds float64) string {
	hrs := int64(math.Floor(seconds / 3600))
	mins := int64(math.Floor(math.Mod(seconds, 3600) / 60))
	secs := int64(math.Floor(math.Mod(seconds, 60)))
	if hrs > 0 {
		return fmt.Sprintf("%dh %dm", hrs, mins)
	}
	return fmt.Sprintf("%dm %ds", mins, secs)
}

func notEnoughData() Estimate {
	return Estimate{Status: StatusNotEnoughData, Text: "ETA: unknown (not enough data)"}
}

func invalidTimestamp(method Method, geometry [][2]float64) Estimate {
	return Estimate{
		Status:   StatusInvalidTimestamp,
		Method:   method,
		Geometry: geometry,
		Text:     "ETA: unknown (invalid timestamp)",
	}
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func formatInstant(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
