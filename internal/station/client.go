// Package station talks to the station dependency (GET /stations/{id}) and
// wraps it in the resilience pipeline.
package station

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blackstrype/trainline/internal/domain"
	"github.com/blackstrype/trainline/internal/resilience"
)

// ErrNotFound is returned when the station service answers 404.
// It matches resilience.ErrRemoteNotFound so the pipeline treats it as terminal.
var ErrNotFound = fmt.Errorf("station not found: %w", resilience.ErrRemoteNotFound)

// Client is a plain HTTP client for the station service. It maps responses
// onto the resilience error kinds but applies no policy of its own.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client for the service rooted at baseURL.
// A nil httpClient gets a client with a 30s safety timeout; per-attempt
// timeouts come from the caller's context.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// GetStation fetches one station by id.
func (c *Client) GetStation(ctx context.Context, id string) (domain.Station, error) {
	endpoint := c.baseURL + "/stations/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Station{}, fmt.Errorf("station.Client.GetStation: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return domain.Station{}, fmt.Errorf("station.Client.GetStation: %w", err)
		}
		return domain.Station{}, fmt.Errorf("station.Client.GetStation: %w: %v", resilience.ErrRemoteError, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return domain.Station{}, fmt.Errorf("station.Client.GetStation: %s (404): %w", id, ErrNotFound)
	default:
		// Drain a little of the body so the error names the upstream complaint.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return domain.Station{}, fmt.Errorf("station.Client.GetStation: %w: status %d: %s",
			resilience.ErrRemoteError, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var payload stationPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Station{}, fmt.Errorf("station.Client.GetStation: %w: decode: %v", resilience.ErrRemoteError, err)
	}
	return domain.Station{ID: payload.id(id), Name: payload.Name}, nil
}

// stationPayload is the station service's body. Only the name is needed; the
// id may come back as a string or a number, or not at all.
type stationPayload struct {
	ID   json.RawMessage `json:"id"`
	Name string          `json:"name"`
}

// id returns the id the service reported, or requested when it is missing or
// not a scalar.
func (p stationPayload) id(requested string) string {
	var s string
	if err := json.Unmarshal(p.ID, &s); err == nil && s != "" {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(p.ID, &n); err == nil && n != "" {
		return n.String()
	}
	return requested
}
