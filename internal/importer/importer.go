// Package importer bulk-loads readings from CSV exports.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"backend-bustracker/internal/reading"

	log "github.com/sirupsen/logrus"
)

// Inserter stores one reading. *reading.Service satisfies it.
type Inserter interface {
	Insert(ctx context.Context, input reading.NewReading) (int64, error)
}

type Result struct {
	Rows     int
	Inserted int
	Skipped  int
}

// Row is a parsed record ready for insertion.
type Row struct {
	Line  int
	Input reading.NewReading
}

// Import parses r and inserts every valid row into store. See Parse and
// Load.
func Import(ctx context.Context, r io.Reader, store Inserter, deviceOverride string) (Result, error) {
	rows, res, err := Parse(r, deviceOverride)
	if err != nil {
		return res, err
	}
	return Load(ctx, store, rows, res)
}

// Parse reads a header row followed by device_id, timestamp, latitude,
// longitude records in any column order. Invalid and malformed rows are
// skipped and logged. Only an unreadable header or an I/O failure is
// returned as an error. A non-empty deviceOverride replaces every row's
// device_id.
func Parse(r io.Reader, deviceOverride string) ([]Row, Result, error) {
	var res Result

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, res, nil
	}
	if err != nil {
		return nil, res, fmt.Errorf("read header: %w", err)
	}
	cols := columnIndex(header)

	var rows []Row
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, res, nil
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			res.Rows++
			res.Skipped++
			log.WithField("line", perr.StartLine).WithError(err).Warn("skipping malformed row")
			continue
		}
		if err != nil {
			return rows, res, fmt.Errorf("read row %d: %w", res.Rows+1, err)
		}
		res.Rows++
		line, _ := cr.FieldPos(0)

		input, ok := parseRow(cols, record)
		if !ok {
			res.Skipped++
			log.WithFields(log.Fields{"line": line, "record": strings.Join(record, ",")}).Warn("skipping invalid row")
			continue
		}
		if deviceOverride != "" {
			d := deviceOverride
			input.DeviceID = &d
		}
		rows = append(rows, Row{Line: line, Input: input})
	}
}

// Load inserts rows into store, adding to the counts in res. Rows the store
// rejects as invalid are skipped. The first storage error stops the load and
// is returned with the counts so far.
func Load(ctx context.Context, store Inserter, rows []Row, res Result) (Result, error) {
	for _, row := range rows {
		if _, err := store.Insert(ctx, row.Input); err != nil {
			var verr *reading.ValidationError
			if errors.As(err, &verr) {
				res.Skipped++
				log.WithField("line", row.Line).WithError(err).Warn("skipping rejected row")
				continue
			}
			return res, err
		}
		res.Inserted++
	}
	return res, nil
}

func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	return cols
}

func field(cols map[string]int, record []string, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func parseRow(cols map[string]int, record []string) (reading.NewReading, bool) {
	ts := field(cols, record, "timestamp")
	lat, latOK := parseCoord(field(cols, record, "latitude"))
	lng, lngOK := parseCoord(field(cols, record, "longitude"))
	if ts == "" || !latOK || !lngOK {
		return reading.NewReading{}, false
	}

	input := reading.NewReading{Timestamp: ts, Latitude: &lat, Longitude: &lng}
	if d := field(cols, record, "device_id"); d != "" {
		input.DeviceID = &d
	}
	return input, true
}

func parseCoord(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
