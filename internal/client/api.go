package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"backend-bustracker/internal/reading"
)

// APIClient reads positions from the backend HTTP API.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Latest returns up to limit readings in the server's order, newest first.
func (c *APIClient) Latest(ctx context.Context, limit int) ([]reading.Reading, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/positions?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("positions http status: %d", resp.StatusCode)
	}

	var rows []reading.Reading
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	return rows, nil
}

// History returns up to limit readings oldest to newest.
func (c *APIClient) History(ctx context.Context, limit int) ([]reading.Reading, error) {
	rows, err := c.Latest(ctx, limit)
	if err != nil {
		return nil, err
	}
	return reading.Chronological(rows), nil
}

// StreamURL maps the API base onto the websocket endpoint for topic.
func (c *APIClient) StreamURL(topic string) string {
	base := c.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/api/stream/ws/" + url.PathEscape(topic)
}
