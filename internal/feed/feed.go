// Package feed fetches sighting batches from ADS-B feeds, over HTTP
// point queries or a NATS subject.
package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"adsb_tracker/internal/adsb"
)

// Client polls an adsb.one-style HTTP endpoint returning {"ac": [...]}.
type Client struct {
	url    string
	client *http.Client
}

// NewClient creates a feed client for the given point-query URL.
func NewClient(url string) *Client {
	return &Client{
		url: url,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Fetch retrieves and decodes one batch of sightings.
func (c *Client) Fetch(ctx context.Context) ([]adsb.Sighting, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}

	sightings, err := adsb.DecodeFeed(body)
	if err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	return sightings, nil
}

// PointURL builds an adsb.one v2 point-query URL for a location and radius
// in nautical miles.
func PointURL(base string, lat, lon float64, radiusNM int) string {
	return fmt.Sprintf("%s/v2/point/%g/%g/%d", base, lat, lon, radiusNM)
}
