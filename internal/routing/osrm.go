package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"backend-bustracker/internal/shared/geo"
)

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Duration float64 `json:"duration"`
		Distance float64 `json:"distance"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// OSRMClient calls the /route/v1/driving endpoint of an OSRM server.
type OSRMClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewOSRMClient(baseURL string, timeout time.Duration) *OSRMClient {
	return &OSRMClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *OSRMClient) routeURL(from, to geo.Point) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return fmt.Sprintf("%s/route/v1/driving/%s,%s;%s,%s?overview=full&geometries=geojson",
		c.baseURL, f(from.Lng), f(from.Lat), f(to.Lng), f(to.Lat))
}

func (c *OSRMClient) Route(ctx context.Context, from, to geo.Point) (Route, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.routeURL(from, to), nil)
	if err != nil {
		return Route{}, &ExternalServiceError{Op: "request", Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Route{}, &ExternalServiceError{Op: "request", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Route{}, &ExternalServiceError{Op: "request", Err: fmt.Errorf("osrm http status: %d", resp.StatusCode)}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Route{}, &ExternalServiceError{Op: "read", Err: err}
	}

	var decoded osrmResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Route{}, &ExternalServiceError{Op: "decode", Err: err}
	}
	if len(decoded.Routes) == 0 {
		return Route{}, ErrNoRoute
	}

	first := decoded.Routes[0]
	geometry := make([][2]float64, 0, len(first.Geometry.Coordinates))
	for _, c := range first.Geometry.Coordinates {
		if len(c) < 2 {
			return Route{}, &ExternalServiceError{Op: "decode", Err: fmt.Errorf("coordinate with %d values", len(c))}
		}
		// GeoJSON is [lon, lat]
		geometry = append(geometry, [2]float64{c[1], c[0]})
	}
	return Route{
		DurationSec: first.Duration,
		DistanceM:   first.Distance,
		Geometry:    geometry,
	}, nil
}
