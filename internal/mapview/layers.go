// Package mapview turns readings, a destination and an ETA into GeoJSON
// layers for the browser map. Each feature carries its own style in
// properties, so the page needs no styling logic of its own.
package mapview

import (
	"fmt"
	"html"

	"backend-bustracker/internal/eta"
	"backend-bustracker/internal/reading"
	"backend-bustracker/internal/shared/geo"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const (
	KindReading      = "reading"
	KindLatest       = "latest"
	KindTrail        = "trail"
	KindDestination  = "destination"
	KindRoute        = "route"
	KindStraightLine = "straight_line"
)

// Build lays out history (oldest first) as markers and a trail. When dest is
// set it adds the destination marker and either the routed path or a dashed
// straight line, both annotated with est.
func Build(history []reading.Reading, dest *geo.Point, est *eta.Estimate) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	var bounds *orb.Bound
	extend := func(p orb.Point) {
		if bounds == nil {
			b := p.Bound()
			bounds = &b
			return
		}
		b := bounds.Extend(p)
		bounds = &b
	}

	trail := orb.LineString{}
	for _, r := range history {
		p := geo.Point{Lat: r.Latitude, Lng: r.Longitude}
		if !p.Valid() {
			continue
		}
		pt := orb.Point{p.Lng, p.Lat}
		trail = append(trail, pt)
		extend(pt)

		f := geojson.NewFeature(pt)
		f.Properties["kind"] = KindReading
		f.Properties["id"] = r.ID
		f.Properties["device_id"] = deviceLabel(r)
		f.Properties["timestamp"] = r.Timestamp
		f.Properties["radius"] = 4
		f.Properties["color"] = "#0077ff"
		f.Properties["popup"] = readingPopup(r)
		fc.Append(f)
	}

	if len(trail) > 0 {
		line := geojson.NewFeature(trail)
		line.Properties["kind"] = KindTrail
		line.Properties["color"] = "blue"
		line.Properties["weight"] = 3
		fc.Append(line)

		latest := geojson.NewFeature(trail[len(trail)-1])
		latest.Properties["kind"] = KindLatest
		latest.Properties["radius"] = 6
		latest.Properties["color"] = "red"
		latest.Properties["fill_opacity"] = 0.9
		fc.Append(latest)
	}

	if dest != nil {
		destPt := orb.Point{dest.Lng, dest.Lat}
		extend(destPt)

		text := "ETA: unknown (not enough data)"
		if est != nil {
			text = est.Text
		}
		marker := geojson.NewFeature(destPt)
		marker.Properties["kind"] = KindDestination
		marker.Properties["title"] = "Destination"
		marker.Properties["eta"] = text
		marker.Properties["popup"] = fmt.Sprintf("<div><strong>Destination</strong><br/>%.6f, %.6f<br/>%s</div>", dest.Lat, dest.Lng, html.EscapeString(text))
		fc.Append(marker)

		if path := pathFeature(trail, *dest, est); path != nil {
			for _, p := range path.Geometry.(orb.LineString) {
				extend(p)
			}
			fc.Append(path)
		}
	}

	if bounds != nil {
		fc.BBox = geojson.NewBBox(*bounds)
	}
	return fc
}

func pathFeature(trail orb.LineString, dest geo.Point, est *eta.Estimate) *geojson.Feature {
	if est != nil && est.Method == eta.MethodRoute && len(est.Geometry) > 1 {
		line := make(orb.LineString, 0, len(est.Geometry))
		for _, c := range est.Geometry {
			line = append(line, orb.Point{c[1], c[0]})
		}
		f := geojson.NewFeature(line)
		f.Properties["kind"] = KindRoute
		f.Properties["color"] = "green"
		f.Properties["weight"] = 4
		f.Properties["eta"] = est.Text
		return f
	}
	if len(trail) == 0 {
		return nil
	}
	f := geojson.NewFeature(orb.LineString{trail[len(trail)-1], {dest.Lng, dest.Lat}})
	f.Properties["kind"] = KindStraightLine
	f.Properties["color"] = "red"
	f.Properties["dash_array"] = "4 6"
	if est != nil {
		f.Properties["eta"] = est.Text
	}
	return f
}

func deviceLabel(r reading.Reading) string {
	if r.DeviceID != nil && *r.DeviceID != "" {
		return *r.DeviceID
	}
	return "device"
}

func readingPopup(r reading.Reading) string {
	return fmt.Sprintf("<div><strong>%s</strong><br/>%s<br/>%.6f, %.6f</div>",
		html.EscapeString(deviceLabel(r)), html.EscapeString(r.Timestamp), r.Latitude, r.Longitude)
}
