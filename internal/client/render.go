package client

import (
	"fmt"
	"io"
	"text/tabwriter"

	"backend-bustracker/internal/reading"
)

// DefaultRenderRows caps the position table printed by Render.
const DefaultRenderRows = 10

// Render writes a plain-text frame: the destination with its ETA, then the
// newest positions.
func Render(w io.Writer, positions []reading.Reading, view View, rows int) error {
	if rows <= 0 {
		rows = DefaultRenderRows
	}

	switch {
	case view.Destination == nil:
		fmt.Fprintln(w, "Destination: none")
	case view.Estimate == nil:
		fmt.Fprintf(w, "Destination: %.6f, %.6f\n", view.Destination.Lat, view.Destination.Lng)
		fmt.Fprintln(w, "ETA: calculating...")
	default:
		fmt.Fprintf(w, "Destination: %.6f, %.6f\n", view.Destination.Lat, view.Destination.Lng)
		fmt.Fprintln(w, view.Estimate.Text)
	}

	fmt.Fprintf(w, "\nPositions (%d)\n", len(positions))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIMESTAMP\tDEVICE\tLAT\tLNG")
	start := len(positions) - rows
	if start < 0 {
		start = 0
	}
	for i := len(positions) - 1; i >= start; i-- {
		r := positions[i]
		device := "-"
		if r.DeviceID != nil {
			device = *r.DeviceID
		}
		fmt.Fprintf(tw, "%s\t%s\t%.6f\t%.6f\n", r.Timestamp, device, r.Latitude, r.Longitude)
	}
	return tw.Flush()
}
